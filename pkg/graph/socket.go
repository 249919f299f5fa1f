package graph

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
)

// Mode is the direction of a Socket.
type Mode int

const (
	ModeDisabled Mode = iota // no connections, writes are rejected
	ModeSink                 // accepts at most one upstream Source
	ModeSource               // broadcasts to any number of Sinks
)

func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeSink:
		return "sink"
	case ModeSource:
		return "source"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a mode name back into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "disabled", "disable":
		return ModeDisabled, nil
	case "sink":
		return ModeSink, nil
	case "source":
		return ModeSource, nil
	}
	return ModeDisabled, errors.Errorf("unknown socket mode %q", s)
}

// Key is a compatibility tag. A Sink with key 0 accepts any Source.
type Key uint32

// EventKind identifies one of the notification channels of a Socket.
type EventKind int

const (
	EventConnected    EventKind = iota // a link was established; Peer is the other end
	EventDisconnected                  // a link was removed; Peer is the old upstream or nil
	EventKeyChanged                    // the compatibility key changed
	EventDestroyed                     // the socket is being torn down
	EventIncoming                      // payload arrived on a Sink
	EventOutgoing                      // payload was written to a Source
	numEventKinds
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventKeyChanged:
		return "key-changed"
	case EventDestroyed:
		return "destroyed"
	case EventIncoming:
		return "incoming"
	case EventOutgoing:
		return "outgoing"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// SocketEvent is delivered to socket observers.
//
// Payload is only valid for the duration of the callback. Observers that need
// the bytes afterwards must copy them.
type SocketEvent struct {
	Kind    EventKind
	Socket  *Socket
	Peer    *Socket
	Payload []byte
}

// Socket is a directional connection endpoint owned by a Node item.
type Socket struct {
	id        uint32
	name      string
	mode      Mode
	key       Key
	upstream  *Socket
	links     []Subscription
	node      *Node
	destroyed bool

	channels [numEventKinds]observerList[SocketEvent]
	log      *slog.Logger
}

// NewSocket creates a detached socket. Sockets that belong to a node are
// normally created through Node.AddItem.
func NewSocket(name string, mode Mode) *Socket {
	return &Socket{name: name, mode: mode, log: slog.Default()}
}

// ID returns the per-node socket id, or 0 if none has been assigned.
func (s *Socket) ID() uint32 { return s.id }

// SetID assigns the socket id. Once a non-zero id is set, later calls are
// ignored.
func (s *Socket) SetID(id uint32) {
	if s.id != 0 {
		return
	}
	s.id = id
}

// Name returns the item name the socket was created with.
func (s *Socket) Name() string { return s.name }

// Node returns the owning node, or nil for a detached socket.
func (s *Socket) Node() *Node { return s.node }

// Mode returns the current direction.
func (s *Socket) Mode() Mode { return s.mode }

// Key returns the compatibility key.
func (s *Socket) Key() Key { return s.key }

// Upstream returns the Source this Sink is connected to, or nil.
func (s *Socket) Upstream() *Socket { return s.upstream }

// Connected reports whether this socket currently has an upstream.
func (s *Socket) Connected() bool { return s.upstream != nil }

// RemoteKey returns the key of the upstream Source, or 0 when unconnected.
func (s *Socket) RemoteKey() Key {
	if s.upstream == nil {
		return 0
	}
	return s.upstream.key
}

// Destroyed reports whether Destroy has run.
func (s *Socket) Destroyed() bool { return s.destroyed }

func (s *Socket) String() string {
	if s.node != nil {
		return fmt.Sprintf("%s#%d(%s/%s)", s.node.TypeName(), s.node.ID(), s.name, s.mode)
	}
	return fmt.Sprintf("socket(%s/%s)", s.name, s.mode)
}

// Subscribe registers fn on one notification channel. Observers run
// synchronously, in subscription order.
func (s *Socket) Subscribe(kind EventKind, fn func(SocketEvent)) Subscription {
	return s.channels[kind].add(fn)
}

// SetMode changes the direction. Any existing upstream is dropped and a
// general disconnect (no peer) is broadcast so dependents re-evaluate.
func (s *Socket) SetMode(m Mode) {
	if s.mode == m {
		return
	}
	s.mode = m
	s.Disconnect()
	s.emit(SocketEvent{Kind: EventDisconnected})
}

// SetKey changes the compatibility key. A non-zero key that no longer matches
// the upstream disconnects it. Dependents are always told about the change.
func (s *Socket) SetKey(k Key) {
	if s.key == k {
		return
	}
	s.key = k
	if k != 0 && s.upstream != nil && s.upstream.key != k {
		s.Disconnect()
	}
	s.emit(SocketEvent{Kind: EventKeyChanged})
}

// Write delivers a payload. A Sink raises EventIncoming, a Source raises
// EventOutgoing which reaches every subscribed Sink before Write returns.
// Disabled and destroyed sockets reject the write.
func (s *Socket) Write(payload []byte) bool {
	if s.destroyed {
		return false
	}
	switch s.mode {
	case ModeSink:
		s.emit(SocketEvent{Kind: EventIncoming, Peer: s.upstream, Payload: payload})
	case ModeSource:
		s.emit(SocketEvent{Kind: EventOutgoing, Payload: payload})
	default:
		return false
	}
	return true
}

// ConnectTo links this Sink to source. See Connect.
func (s *Socket) ConnectTo(source *Socket) bool {
	return Connect(s, source)
}

// Disconnect removes the upstream link, if any.
func (s *Socket) Disconnect() {
	disconnect(s)
}

// Destroy announces the teardown to dependents, drops the upstream link and
// detaches every observer.
func (s *Socket) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.emit(SocketEvent{Kind: EventDestroyed})
	s.Disconnect()
	for i := range s.channels {
		s.channels[i].clear()
	}
}

func (s *Socket) emit(ev SocketEvent) {
	ev.Socket = s
	s.channels[ev.Kind].emit(ev)
}

func (s *Socket) logger() *slog.Logger {
	if s.node != nil {
		return s.node.log
	}
	return s.log
}
