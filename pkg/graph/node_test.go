package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newGate builds a node with two sinks, one disabled row and one source.
func newGate() *Node {
	n := NewNode("gate")
	n.AddItem("a", ModeSink)
	n.AddItem("b", ModeSink)
	n.AddItem("label", ModeDisabled)
	n.AddItem("out", ModeSource)
	return n
}

func TestNodeSocketIDsAreSequential(t *testing.T) {
	n := newGate()
	var ids []uint32
	for _, s := range n.Sockets() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []uint32{1, 2, 3, 4}, ids)

	n.RemoveItem(n.Socket("b"))
	s := n.AddItem("c", ModeSink)
	assert.Equal(t, uint32(5), s.ID(), "ids are never reused")
}

func TestNodeSinksAndSources(t *testing.T) {
	n := newGate()
	require.Len(t, n.Sinks(), 2)
	require.Len(t, n.Sources(), 1)
	assert.Equal(t, "out", n.Sources()[0].Name())

	assert.Same(t, n.Socket("a"), n.FindSink(1))
	assert.Nil(t, n.FindSink(4), "socket 4 is a source")
	assert.Same(t, n.Socket("out"), n.FindSource(4))
	assert.Nil(t, n.FindSource(99))
	assert.Nil(t, n.Socket("missing"))
}

func TestNodeForwardsSocketEvents(t *testing.T) {
	n := newGate()
	var got []NodeEvent
	n.Subscribe(func(ev NodeEvent) { got = append(got, ev) })

	n.Socket("out").Write([]byte{1})

	require.Len(t, got, 1)
	assert.Equal(t, NodeSocketEvent, got[0].Kind)
	assert.Same(t, n, got[0].Node)
	assert.Equal(t, EventOutgoing, got[0].Socket.Kind)
	assert.Same(t, n.Socket("out"), got[0].Socket.Socket)
}

func TestNodeDestroyCascadesToSockets(t *testing.T) {
	up := newGate()
	down := newGate()
	require.True(t, Connect(down.Socket("a"), up.Socket("out")))
	require.True(t, Connect(up.Socket("a"), down.Socket("out")))

	var kinds []NodeEventKind
	up.Subscribe(func(ev NodeEvent) { kinds = append(kinds, ev.Kind) })

	up.Destroy()

	assert.True(t, up.Destroyed())
	assert.False(t, down.Socket("a").Connected())
	assert.False(t, up.Socket("a").Connected())
	for _, s := range up.Sockets() {
		assert.True(t, s.Destroyed())
	}
	require.NotEmpty(t, kinds)
	assert.Equal(t, NodeDestroyed, kinds[len(kinds)-1])

	up.Destroy()
}

func TestNodeRemoveItemDestroysSocket(t *testing.T) {
	up := newGate()
	down := newGate()
	require.True(t, Connect(down.Socket("a"), up.Socket("out")))

	out := up.Socket("out")
	assert.True(t, up.RemoveItem(out))
	assert.False(t, up.RemoveItem(out))
	assert.True(t, out.Destroyed())
	assert.False(t, down.Socket("a").Connected())
	assert.Len(t, up.Items(), 3)
}

func TestNodeActivate(t *testing.T) {
	n := newGate()
	activated := 0
	n.Subscribe(func(ev NodeEvent) {
		if ev.Kind == NodeActivated {
			activated++
		}
	})
	n.Activate()
	assert.Equal(t, 1, activated)

	n.Destroy()
	n.Activate()
	assert.Equal(t, 1, activated)
}

func TestNodeExpander(t *testing.T) {
	n := NewNode("x")
	assert.True(t, n.Expanded())

	n.SetExpanded(false)
	n.BlockExpander()
	assert.False(t, n.Expanded())
	n.SetExpanded(true)
	assert.False(t, n.Expanded(), "blocked expander ignores changes")
	n.UnblockExpander()
	assert.False(t, n.Expanded(), "unblock restores the remembered state")

	n.SetExpanded(true)
	n.BlockExpander()
	n.BlockExpander()
	assert.False(t, n.Expanded())
	n.UnblockExpander()
	assert.True(t, n.Expanded())
}

func TestNodeGeometryAndLabel(t *testing.T) {
	n := NewNode("x")
	assert.Equal(t, "x", n.Label())
	n.SetLabel("hello")
	assert.Equal(t, "hello", n.Label())

	n.SetRect(Rect{X: 1, Y: 2, Width: 3, Height: 4})
	n.Move(10, 20)
	assert.Equal(t, Rect{X: 10, Y: 20, Width: 3, Height: 4}, n.Rect())
}
