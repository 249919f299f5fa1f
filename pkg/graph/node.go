package graph

import (
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

// NodeEventKind enumerates the notifications a Node emits.
type NodeEventKind int

const (
	NodeSocketEvent NodeEventKind = iota // an owned socket emitted an event
	NodeActivated                        // the functional action was triggered
	NodeDestroyed                        // the node was destroyed
)

func (k NodeEventKind) String() string {
	switch k {
	case NodeSocketEvent:
		return "socket"
	case NodeActivated:
		return "functional-action-clicked"
	case NodeDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// NodeEvent is delivered to node observers. Socket is set for
// NodeSocketEvent only.
type NodeEvent struct {
	Kind   NodeEventKind
	Node   *Node
	Socket SocketEvent
}

// Rect is the position and size of a node in view coordinates.
type Rect struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// IsZero reports whether every field is zero.
func (r Rect) IsZero() bool { return r == Rect{} }

// Item is one entry of a node: a named row paired with its socket.
type Item struct {
	Name   string
	Socket *Socket
}

// Node is a graph vertex owning an ordered list of items.
type Node struct {
	id        int
	typeName  string
	label     string
	expanded  bool
	blocked   bool
	lastState bool
	rect      Rect
	items     []*Item
	nextSock  uint32
	impl      any
	destroyed bool

	observers observerList[NodeEvent]
	log       *slog.Logger
}

// NewNode creates an empty, expanded node of the given type.
func NewNode(typeName string) *Node {
	return &Node{
		typeName: typeName,
		label:    typeName,
		expanded: true,
		nextSock: 1,
		log:      slog.Default(),
	}
}

// ID returns the id assigned by the owning View.
func (n *Node) ID() int { return n.id }

func (n *Node) setID(id int) { n.id = id }

// TypeName returns the registry name used to construct the node.
func (n *Node) TypeName() string { return n.typeName }

// Label returns the display label.
func (n *Node) Label() string { return n.label }

// SetLabel changes the display label.
func (n *Node) SetLabel(label string) { n.label = label }

// Expanded reports whether the node body is shown.
func (n *Node) Expanded() bool { return n.expanded }

// SetExpanded shows or hides the node body. It is ignored while the expander
// is blocked.
func (n *Node) SetExpanded(expanded bool) {
	if n.blocked {
		return
	}
	n.expanded = expanded
}

// BlockExpander collapses the node and pins it collapsed until
// UnblockExpander restores the previous state.
func (n *Node) BlockExpander() {
	if n.blocked {
		return
	}
	n.lastState = n.expanded
	n.expanded = false
	n.blocked = true
}

// UnblockExpander releases BlockExpander.
func (n *Node) UnblockExpander() {
	if !n.blocked {
		return
	}
	n.blocked = false
	n.expanded = n.lastState
}

// Rect returns the node geometry.
func (n *Node) Rect() Rect { return n.rect }

// SetRect replaces the node geometry.
func (n *Node) SetRect(r Rect) { n.rect = r }

// Move changes the node position.
func (n *Node) Move(x, y int) {
	n.rect.X = x
	n.rect.Y = y
}

// SetLogger replaces the logger used for this node and its sockets.
func (n *Node) SetLogger(l *slog.Logger) {
	if l != nil {
		n.log = l
	}
}

// Impl returns the value attached with SetImpl.
func (n *Node) Impl() any { return n.impl }

// SetImpl attaches the type-specific implementation. If it implements
// StateExporter, its state is persisted with the node.
func (n *Node) SetImpl(impl any) { n.impl = impl }

// Destroyed reports whether the node has been destroyed.
func (n *Node) Destroyed() bool { return n.destroyed }

func (n *Node) String() string {
	return fmt.Sprintf("%s#%d", n.typeName, n.id)
}

// ---------------------------------------------------------------------------
// Items and sockets
// ---------------------------------------------------------------------------

// AddItem appends an item with a new socket in the given mode and returns the
// socket. Socket ids are assigned from a per-node counter starting at 1.
func (n *Node) AddItem(name string, mode Mode) *Socket {
	s := NewSocket(name, mode)
	s.SetID(n.nextSock)
	n.nextSock++
	s.node = n
	for k := EventKind(0); k < numEventKinds; k++ {
		s.Subscribe(k, n.forward)
	}
	n.items = append(n.items, &Item{Name: name, Socket: s})
	return s
}

// RemoveItem removes the item owning s and destroys the socket.
func (n *Node) RemoveItem(s *Socket) bool {
	for i, it := range n.items {
		if it.Socket == s {
			n.items = append(n.items[:i:i], n.items[i+1:]...)
			s.Destroy()
			return true
		}
	}
	return false
}

// Items returns the item list in order.
func (n *Node) Items() []*Item {
	return append([]*Item(nil), n.items...)
}

// Sockets returns every socket in item order.
func (n *Node) Sockets() []*Socket {
	return lo.Map(n.items, func(it *Item, _ int) *Socket { return it.Socket })
}

// Sinks returns the sockets currently in Sink mode.
func (n *Node) Sinks() []*Socket {
	return n.byMode(ModeSink)
}

// Sources returns the sockets currently in Source mode.
func (n *Node) Sources() []*Socket {
	return n.byMode(ModeSource)
}

func (n *Node) byMode(m Mode) []*Socket {
	return lo.Filter(n.Sockets(), func(s *Socket, _ int) bool { return s.mode == m })
}

// Socket returns the socket of the item with the given name, or nil.
func (n *Node) Socket(name string) *Socket {
	it, ok := lo.Find(n.items, func(it *Item) bool { return it.Name == name })
	if !ok {
		return nil
	}
	return it.Socket
}

// FindSink returns the Sink with the given socket id, or nil.
func (n *Node) FindSink(id uint32) *Socket {
	return findByID(n.Sinks(), id)
}

// FindSource returns the Source with the given socket id, or nil.
func (n *Node) FindSource(id uint32) *Socket {
	return findByID(n.Sources(), id)
}

func findByID(socks []*Socket, id uint32) *Socket {
	s, ok := lo.Find(socks, func(s *Socket) bool { return s.id == id })
	if !ok {
		return nil
	}
	return s
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// Subscribe registers fn for every event of this node, including forwarded
// socket events.
func (n *Node) Subscribe(fn func(NodeEvent)) Subscription {
	return n.observers.add(fn)
}

// Activate triggers the functional action of the node.
func (n *Node) Activate() {
	if n.destroyed {
		return
	}
	n.observers.emit(NodeEvent{Kind: NodeActivated, Node: n})
}

// Destroy destroys every socket, then announces the node's removal.
func (n *Node) Destroy() {
	if n.destroyed {
		return
	}
	n.destroyed = true
	for _, it := range n.Items() {
		it.Socket.Destroy()
	}
	n.observers.emit(NodeEvent{Kind: NodeDestroyed, Node: n})
	n.observers.clear()
}

func (n *Node) forward(ev SocketEvent) {
	n.observers.emit(NodeEvent{Kind: NodeSocketEvent, Node: n, Socket: ev})
}
