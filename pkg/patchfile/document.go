// Package patchfile reads and writes views as XML documents.
//
// Each node becomes an <object> carrying its class, geometry and optional
// custom state. Each linked sink adds a <signal> to its node's object whose
// handler is "{sourceSocketID}_{sinkSocketID}" and whose object attribute
// names the object of the source node.
package patchfile

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/chazu/patchbay/pkg/graph"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// FormatVersion is written to every document.
const FormatVersion = 1

// SignalConnect is the signal name used for edge records.
const SignalConnect = "node-socket-connect"

var (
	// ErrMalformed is returned when a document cannot be interpreted.
	ErrMalformed = errors.New("malformed patch document")
	// ErrUnknownClass is returned when an object names an unregistered node type.
	ErrUnknownClass = graph.ErrUnknownType
)

// Document is the root element of a patch file.
type Document struct {
	XMLName xml.Name `xml:"interface"`
	ID      string   `xml:"id,attr,omitempty"`
	Version int      `xml:"version,attr,omitempty"`
	Objects []Object `xml:"object"`
}

// Object describes one node.
type Object struct {
	Class      string     `xml:"class,attr"`
	ID         string     `xml:"id,attr"`
	Properties []Property `xml:"property"`
	Signals    []Signal   `xml:"signal"`
	State      *State     `xml:"state"`
}

// Property is a named scalar.
type Property struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// Signal is an edge record attached to the sink's object.
type Signal struct {
	Name    string `xml:"name,attr"`
	Handler string `xml:"handler,attr"`
	Object  string `xml:"object,attr"`
}

// State holds a node's custom state. Text that XML can carry verbatim is
// stored as is, anything else as base64.
type State struct {
	Encoding string `xml:"encoding,attr,omitempty"`
	Data     string `xml:",chardata"`
}

func newState(blob []byte) *State {
	if textSafe(blob) {
		return &State{Data: string(blob)}
	}
	return &State{Encoding: "base64", Data: base64.StdEncoding.EncodeToString(blob)}
}

// Bytes returns the decoded state blob.
func (s *State) Bytes() ([]byte, error) {
	switch s.Encoding {
	case "":
		return []byte(s.Data), nil
	case "base64":
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s.Data))
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "state: %v", err)
		}
		return b, nil
	}
	return nil, errors.Wrapf(ErrMalformed, "state: unknown encoding %q", s.Encoding)
}

func textSafe(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// EdgeHandler formats the handler of an edge record.
func EdgeHandler(sourceID, sinkID uint32) string {
	return fmt.Sprintf("%d_%d", sourceID, sinkID)
}

// ParseEdgeHandler splits an edge handler into source and sink socket ids.
func ParseEdgeHandler(h string) (sourceID, sinkID uint32, err error) {
	a, b, ok := strings.Cut(h, "_")
	if !ok {
		return 0, 0, errors.Errorf("edge handler %q has no separator", h)
	}
	src, err := strconv.ParseUint(a, 10, 32)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "edge handler %q", h)
	}
	snk, err := strconv.ParseUint(b, 10, 32)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "edge handler %q", h)
	}
	return uint32(src), uint32(snk), nil
}

// ---------------------------------------------------------------------------
// View -> Document
// ---------------------------------------------------------------------------

// Encode renumbers the nodes of v from 0 and describes the view. Links whose
// source node is not part of v cannot be expressed and are left out.
func Encode(v *graph.View) (*Document, error) {
	v.Renumber()
	doc := &Document{ID: v.ID().String(), Version: FormatVersion}
	for _, n := range v.Nodes() {
		obj, err := encodeNode(v, n)
		if err != nil {
			return nil, err
		}
		doc.Objects = append(doc.Objects, obj)
	}
	return doc, nil
}

func encodeNode(v *graph.View, n *graph.Node) (Object, error) {
	r := n.Rect()
	obj := Object{
		Class: n.TypeName(),
		ID:    strconv.Itoa(n.ID()),
		Properties: []Property{
			{Name: "x", Value: strconv.Itoa(r.X)},
			{Name: "y", Value: strconv.Itoa(r.Y)},
			{Name: "width", Value: strconv.Itoa(r.Width)},
			{Name: "height", Value: strconv.Itoa(r.Height)},
			{Name: "label", Value: n.Label()},
			{Name: "expanded", Value: strconv.FormatBool(n.Expanded())},
		},
	}
	for _, s := range n.Sinks() {
		up := s.Upstream()
		if up == nil {
			continue
		}
		src := up.Node()
		if src == nil || v.Node(src.ID()) != src {
			v.Logger().Warn("not saving link to a node outside the view",
				"sink", s.String(), "source", up.String())
			continue
		}
		obj.Signals = append(obj.Signals, Signal{
			Name:    SignalConnect,
			Handler: EdgeHandler(up.ID(), s.ID()),
			Object:  strconv.Itoa(src.ID()),
		})
	}
	blob, ok, err := graph.ExportState(n)
	if err != nil {
		return obj, err
	}
	if ok {
		obj.State = newState(blob)
	}
	return obj, nil
}

// ---------------------------------------------------------------------------
// Document -> View
// ---------------------------------------------------------------------------

// SkippedEdge records an edge that could not be restored.
type SkippedEdge struct {
	Object  string
	Handler string
	Reason  string
}

// Report summarises a Decode.
type Report struct {
	Nodes   int
	Edges   int
	Skipped []SkippedEdge
}

// Decode builds the nodes described by doc and adds them to v, then restores
// the edges through graph.Connect. Every node is constructed and configured
// before any is added, so an error leaves v untouched. Edges that do not
// resolve or are rejected are skipped and listed in the report.
func Decode(doc *Document, reg *graph.Registry, v *graph.View) (Report, error) {
	var rep Report
	log := v.Logger()

	staged := make([]*graph.Node, 0, len(doc.Objects))
	byID := make(map[string]*graph.Node, len(doc.Objects))
	rollback := func() {
		for _, n := range staged {
			n.Destroy()
		}
	}

	for _, obj := range doc.Objects {
		if obj.ID == "" {
			rollback()
			return rep, errors.Wrapf(ErrMalformed, "object of class %q has no id", obj.Class)
		}
		if _, dup := byID[obj.ID]; dup {
			rollback()
			return rep, errors.Wrapf(ErrMalformed, "duplicate object id %q", obj.ID)
		}
		n, err := reg.New(obj.Class)
		if err != nil {
			rollback()
			return rep, errors.Wrapf(err, "object %q", obj.ID)
		}
		staged = append(staged, n)
		byID[obj.ID] = n

		if err := applyProperties(n, obj.Properties, log); err != nil {
			rollback()
			return rep, errors.Wrapf(err, "object %q", obj.ID)
		}
		if obj.State != nil {
			blob, err := obj.State.Bytes()
			if err != nil {
				rollback()
				return rep, errors.Wrapf(err, "object %q", obj.ID)
			}
			if err := graph.ApplyState(n, blob); err != nil {
				rollback()
				return rep, errors.Wrapf(err, "object %q", obj.ID)
			}
		}
	}

	if id, err := uuid.Parse(doc.ID); err == nil {
		v.SetID(id)
	}
	for _, n := range staged {
		v.Add(n)
	}
	rep.Nodes = len(staged)

	for i, obj := range doc.Objects {
		for _, sig := range obj.Signals {
			if sig.Name != SignalConnect {
				continue
			}
			if reason := connectEdge(staged[i], sig, byID); reason != "" {
				log.Warn("skipping edge", "object", obj.ID, "handler", sig.Handler, "reason", reason)
				rep.Skipped = append(rep.Skipped, SkippedEdge{Object: obj.ID, Handler: sig.Handler, Reason: reason})
				continue
			}
			rep.Edges++
		}
	}
	return rep, nil
}

// connectEdge resolves one edge record and links it. It returns a reason
// when the edge is skipped.
func connectEdge(sinkNode *graph.Node, sig Signal, byID map[string]*graph.Node) string {
	srcID, sinkID, err := ParseEdgeHandler(sig.Handler)
	if err != nil {
		return "malformed handler"
	}
	srcNode, ok := byID[sig.Object]
	if !ok {
		return "unknown source object"
	}
	src := srcNode.FindSource(srcID)
	if src == nil {
		return "no source socket " + strconv.FormatUint(uint64(srcID), 10)
	}
	snk := sinkNode.FindSink(sinkID)
	if snk == nil {
		return "no sink socket " + strconv.FormatUint(uint64(sinkID), 10)
	}
	if !graph.Connect(snk, src) {
		return "incompatible sockets"
	}
	return ""
}

func applyProperties(n *graph.Node, props []Property, log *slog.Logger) error {
	r := n.Rect()
	for _, p := range props {
		val := strings.TrimSpace(p.Value)
		var err error
		switch p.Name {
		case "x":
			r.X, err = strconv.Atoi(val)
		case "y":
			r.Y, err = strconv.Atoi(val)
		case "width":
			r.Width, err = strconv.Atoi(val)
		case "height":
			r.Height, err = strconv.Atoi(val)
		case "label":
			n.SetLabel(p.Value)
		case "expanded":
			var b bool
			b, err = strconv.ParseBool(val)
			n.SetExpanded(b)
		case "id":
			// ids are reassigned by the view
		default:
			log.Debug("ignoring unknown property", "node", n.TypeName(), "property", p.Name)
		}
		if err != nil {
			return errors.Wrapf(ErrMalformed, "property %s=%q", p.Name, p.Value)
		}
	}
	n.SetRect(r)
	return nil
}
