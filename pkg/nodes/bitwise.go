package nodes

import "github.com/chazu/patchbay/pkg/graph"

// Op is a bitwise operation on single bytes.
type Op int

const (
	OpAnd Op = iota
	OpOr
	OpXor
	OpNot
)

func (o Op) String() string {
	switch o {
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpXor:
		return "xor"
	case OpNot:
		return "not"
	default:
		return "unknown"
	}
}

func (o Op) apply(a, b byte) byte {
	switch o {
	case OpAnd:
		return a & b
	case OpOr:
		return a | b
	case OpXor:
		return a ^ b
	default:
		return ^a
	}
}

// Gate combines the first byte of its inputs and writes the one-byte result.
// OpNot has a single input.
type Gate struct {
	op     Op
	node   *graph.Node
	inA    *graph.Socket
	inB    *graph.Socket
	out    *graph.Socket
	a, b   byte
	result byte
}

// NewGate creates a gate for op.
func NewGate(op Op) *Gate {
	g := &Gate{op: op}
	g.node = newNode("bitwise-"+op.String(), "Bitwise "+op.String(), g)
	g.inA = g.node.AddItem("A", graph.ModeSink)
	g.out = g.node.AddItem("C", graph.ModeSource)
	onIncoming(g.inA, func(p []byte) { g.input(&g.a, p) })
	if op != OpNot {
		g.inB = g.node.AddItem("B", graph.ModeSink)
		onIncoming(g.inB, func(p []byte) { g.input(&g.b, p) })
	}
	g.result = op.apply(g.a, g.b)
	onConnected(g.out, func(*graph.Socket) { g.output() })
	return g
}

// Node returns the graph node.
func (g *Gate) Node() *graph.Node { return g.node }

// Op returns the gate operation.
func (g *Gate) Op() Op { return g.op }

// Result returns the last computed output byte.
func (g *Gate) Result() byte { return g.result }

func (g *Gate) input(dst *byte, p []byte) {
	if len(p) == 0 {
		return
	}
	*dst = p[0]
	g.result = g.op.apply(g.a, g.b)
	g.output()
}

func (g *Gate) output() {
	g.out.Write([]byte{g.result})
}
