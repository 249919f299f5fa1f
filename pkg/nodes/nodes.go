// Package nodes provides the stock node types: a pulse generator, a range
// stepper, bitwise gates, binary encoders and number converters.
package nodes

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chazu/patchbay/pkg/graph"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Socket keys shared by the stock nodes.
const (
	KeyInt    graph.Key = 0x1
	KeyDouble graph.Key = 0x2
	KeyPoints graph.Key = 0x3
	KeyInt8   graph.Key = 0x4
	KeyInt16  graph.Key = 0x5
	KeyInt32  graph.Key = 0x6
)

// PulsePayload is the constant payload written by trigger outputs.
var PulsePayload = []byte("NODE_PULSE\x00")

// ---------------------------------------------------------------------------
// Number encodings
// ---------------------------------------------------------------------------

// NumberKind is the wire encoding of a numeric payload. Integers are signed
// and little-endian, doubles are IEEE 754 little-endian.
type NumberKind int

const (
	Int8 NumberKind = iota
	Int16
	Int32
	Double
)

func (k NumberKind) String() string {
	switch k {
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Double:
		return "double"
	default:
		return fmt.Sprintf("NumberKind(%d)", int(k))
	}
}

// ParseNumberKind converts a kind name back into a NumberKind.
func ParseNumberKind(s string) (NumberKind, error) {
	switch s {
	case "int8":
		return Int8, nil
	case "int16":
		return Int16, nil
	case "int32":
		return Int32, nil
	case "double":
		return Double, nil
	}
	return Int8, errors.Errorf("unknown number kind %q", s)
}

// Key returns the socket key carrying this kind.
func (k NumberKind) Key() graph.Key {
	switch k {
	case Int16:
		return KeyInt16
	case Int32:
		return KeyInt32
	case Double:
		return KeyDouble
	default:
		return KeyInt8
	}
}

// KindForKey maps a socket key to a number kind. Unknown keys read as int8.
func KindForKey(key graph.Key) NumberKind {
	switch key {
	case KeyInt16:
		return Int16
	case KeyInt32:
		return Int32
	case KeyDouble:
		return Double
	default:
		return Int8
	}
}

// Size returns the payload length in bytes.
func (k NumberKind) Size() int {
	switch k {
	case Int16:
		return 2
	case Int32:
		return 4
	case Double:
		return 8
	default:
		return 1
	}
}

// Encode converts v to this kind, truncating toward zero and wrapping like a
// C integer cast.
func (k NumberKind) Encode(v float64) []byte {
	buf := make([]byte, k.Size())
	switch k {
	case Int8:
		buf[0] = byte(int8(int64(v)))
	case Int16:
		binary.LittleEndian.PutUint16(buf, uint16(int16(int64(v))))
	case Int32:
		binary.LittleEndian.PutUint32(buf, uint32(int32(int64(v))))
	case Double:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	}
	return buf
}

// Decode reads a value of this kind from the front of p. It reports false if
// p is too short.
func (k NumberKind) Decode(p []byte) (float64, bool) {
	if len(p) < k.Size() {
		return 0, false
	}
	switch k {
	case Int8:
		return float64(int8(p[0])), true
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(p))), true
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(p))), true
	default:
		return math.Float64frombits(binary.LittleEndian.Uint64(p)), true
	}
}

// Format renders v the way a number display shows it.
func (k NumberKind) Format(v float64) string {
	switch k {
	case Int8:
		return fmt.Sprintf("%d [0x%x]", int8(v), uint8(int8(v)))
	case Int16:
		return fmt.Sprintf("%d [0x%x]", int16(v), uint16(int16(v)))
	case Int32:
		return fmt.Sprintf("%d [0x%x]", int32(v), uint32(int32(v)))
	default:
		return fmt.Sprintf("%g", v)
	}
}

// ---------------------------------------------------------------------------
// Shared plumbing
// ---------------------------------------------------------------------------

// newNode creates a node bound to impl. Activating the node removes it.
func newNode(typeName, label string, impl any) *graph.Node {
	n := graph.NewNode(typeName)
	n.SetLabel(label)
	n.SetImpl(impl)
	n.Subscribe(func(ev graph.NodeEvent) {
		if ev.Kind == graph.NodeActivated {
			ev.Node.Destroy()
		}
	})
	return n
}

// onIncoming calls fn with every payload arriving on s.
func onIncoming(s *graph.Socket, fn func([]byte)) {
	s.Subscribe(graph.EventIncoming, func(ev graph.SocketEvent) { fn(ev.Payload) })
}

// onConnected calls fn whenever s gains a link.
func onConnected(s *graph.Socket, fn func(peer *graph.Socket)) {
	s.Subscribe(graph.EventConnected, func(ev graph.SocketEvent) { fn(ev.Peer) })
}

// onDestroyed calls fn once when node n is destroyed.
func onDestroyed(n *graph.Node, fn func()) {
	n.Subscribe(func(ev graph.NodeEvent) {
		if ev.Kind == graph.NodeDestroyed {
			fn()
		}
	})
}

func exportYAML(v any) ([]byte, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode state")
	}
	return out, nil
}

func applyYAML(blob []byte, v any) error {
	if err := yaml.Unmarshal(blob, v); err != nil {
		return errors.Wrap(err, "decode state")
	}
	return nil
}
