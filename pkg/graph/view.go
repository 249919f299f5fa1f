package graph

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// DefaultRect is the geometry given to nodes added without one.
var DefaultRect = Rect{X: 100, Y: 100, Width: 100, Height: 100}

// Connection is one cached (Source, Sink) link.
type Connection struct {
	Source *Socket
	Sink   *Socket
}

// ViewEventKind enumerates the notifications a View emits.
type ViewEventKind int

const (
	ViewNodeAdded         ViewEventKind = iota // a node joined the view
	ViewNodeRemoved                            // a node left the view
	ViewConnectionAdded                        // a link was indexed
	ViewConnectionRemoved                      // a link was dropped from the index
	ViewNodeEvent                              // any other node or socket event
)

// ViewEvent is delivered to view observers.
type ViewEvent struct {
	Kind       ViewEventKind
	Node       *Node
	Connection Connection
	Event      NodeEvent
}

// View owns a set of nodes and keeps an index of the connections between
// them. The index is derived from socket notifications; the upstream
// references held by sinks remain authoritative.
type View struct {
	id       uuid.UUID
	nodes    []*Node
	nextID   int
	conns    []Connection
	defaults Rect
	subs     map[*Node]Subscription

	observers observerList[ViewEvent]
	log       *slog.Logger
}

// Option configures a View.
type Option func(*View)

// WithLogger sets the logger handed to the view and every node it adopts.
func WithLogger(l *slog.Logger) Option {
	return func(v *View) {
		if l != nil {
			v.log = l
		}
	}
}

// WithDefaultRect overrides DefaultRect for this view.
func WithDefaultRect(r Rect) Option {
	return func(v *View) { v.defaults = r }
}

// WithID sets the document id instead of generating one.
func WithID(id uuid.UUID) Option {
	return func(v *View) { v.id = id }
}

// NewView creates an empty view with a fresh document id.
func NewView(opts ...Option) *View {
	v := &View{
		id:       uuid.New(),
		defaults: DefaultRect,
		subs:     make(map[*Node]Subscription),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ID returns the document id persisted with the view.
func (v *View) ID() uuid.UUID { return v.id }

// SetID replaces the document id.
func (v *View) SetID(id uuid.UUID) { v.id = id }

// Logger returns the view logger.
func (v *View) Logger() *slog.Logger { return v.log }

// Len returns the number of nodes.
func (v *View) Len() int { return len(v.nodes) }

// Nodes returns the nodes in child order.
func (v *View) Nodes() []*Node {
	return append([]*Node(nil), v.nodes...)
}

// Node returns the node with the given id, or nil.
func (v *View) Node(id int) *Node {
	n, ok := lo.Find(v.nodes, func(n *Node) bool { return n.id == id })
	if !ok {
		return nil
	}
	return n
}

// Connections returns the cached links in the order they were made.
func (v *View) Connections() []Connection {
	return append([]Connection(nil), v.conns...)
}

// Subscribe registers fn for every view event.
func (v *View) Subscribe(fn func(ViewEvent)) Subscription {
	return v.observers.add(fn)
}

// Add adopts n, assigns it the next node id and applies the default geometry
// if it has none. Links already held by its sinks are indexed.
func (v *View) Add(n *Node) {
	if n == nil || n.destroyed {
		return
	}
	if _, ok := v.subs[n]; ok {
		return
	}
	n.setID(v.nextID)
	v.nextID++
	if n.rect.IsZero() {
		n.rect = v.defaults
	}
	n.SetLogger(v.log)
	v.nodes = append(v.nodes, n)
	v.subs[n] = n.Subscribe(v.onNodeEvent)
	v.observers.emit(ViewEvent{Kind: ViewNodeAdded, Node: n})

	for _, s := range n.Sinks() {
		if up := s.upstream; up != nil {
			v.index(up, s)
		}
	}
}

// Remove destroys n. Its links are torn down and it leaves the view.
func (v *View) Remove(n *Node) {
	if _, ok := v.subs[n]; !ok {
		return
	}
	n.Destroy()
}

// Clear destroys every node.
func (v *View) Clear() {
	for _, n := range v.Nodes() {
		n.Destroy()
	}
}

// Renumber reassigns node ids sequentially from 0 in child order.
func (v *View) Renumber() {
	for i, n := range v.nodes {
		n.setID(i)
	}
	v.nextID = len(v.nodes)
}

func (v *View) onNodeEvent(ev NodeEvent) {
	switch ev.Kind {
	case NodeDestroyed:
		v.detach(ev.Node)
		return
	case NodeSocketEvent:
		v.onSocketEvent(ev.Socket)
	}
	v.observers.emit(ViewEvent{Kind: ViewNodeEvent, Node: ev.Node, Event: ev})
}

func (v *View) onSocketEvent(ev SocketEvent) {
	switch ev.Kind {
	case EventConnected:
		// both ends announce the link; the sink's notice is the one indexed
		if ev.Socket.upstream == ev.Peer && ev.Peer != nil {
			v.index(ev.Peer, ev.Socket)
		}
	case EventDisconnected:
		if ev.Peer != nil {
			v.unindex(func(c Connection) bool {
				return c.Sink == ev.Socket && c.Source == ev.Peer
			})
		}
	case EventDestroyed:
		v.unindex(func(c Connection) bool {
			return c.Sink == ev.Socket || c.Source == ev.Socket
		})
	}
}

func (v *View) index(source, sink *Socket) {
	c := Connection{Source: source, Sink: sink}
	if lo.Contains(v.conns, c) {
		return
	}
	v.conns = append(v.conns, c)
	v.observers.emit(ViewEvent{Kind: ViewConnectionAdded, Node: sink.node, Connection: c})
}

func (v *View) unindex(match func(Connection) bool) {
	removed := lo.Filter(v.conns, func(c Connection, _ int) bool { return match(c) })
	if len(removed) == 0 {
		return
	}
	v.conns = lo.Reject(v.conns, func(c Connection, _ int) bool { return match(c) })
	for _, c := range removed {
		v.observers.emit(ViewEvent{Kind: ViewConnectionRemoved, Node: c.Sink.node, Connection: c})
	}
}

func (v *View) detach(n *Node) {
	sub, ok := v.subs[n]
	if !ok {
		return
	}
	sub.Cancel()
	delete(v.subs, n)
	v.nodes = lo.Without(v.nodes, n)
	v.unindex(func(c Connection) bool {
		return c.Sink.node == n || c.Source.node == n
	})
	v.observers.emit(ViewEvent{Kind: ViewNodeRemoved, Node: n})
}
