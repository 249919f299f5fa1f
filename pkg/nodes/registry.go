package nodes

import "github.com/chazu/patchbay/pkg/graph"

// Register adds every stock node type to reg. Pulse generators created
// through reg run their timers on loop.
func Register(reg *graph.Registry, loop *graph.Loop) error {
	ctors := []struct {
		name string
		fn   graph.Constructor
	}{
		{"pulse", func() *graph.Node { return NewPulse(loop).Node() }},
		{"step", func() *graph.Node { return NewStep().Node() }},
		{"bitwise-and", func() *graph.Node { return NewGate(OpAnd).Node() }},
		{"bitwise-or", func() *graph.Node { return NewGate(OpOr).Node() }},
		{"bitwise-xor", func() *graph.Node { return NewGate(OpXor).Node() }},
		{"bitwise-not", func() *graph.Node { return NewGate(OpNot).Node() }},
		{"binary-encode", func() *graph.Node { return NewEncoder().Node() }},
		{"binary-decode", func() *graph.Node { return NewDecoder().Node() }},
		{"convert-number", func() *graph.Node { return NewConverter().Node() }},
		{"show-number", func() *graph.Node { return NewDisplay().Node() }},
	}
	for _, c := range ctors {
		if err := reg.Register(c.name, c.fn); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the stock node types.
func NewRegistry(loop *graph.Loop) *graph.Registry {
	reg := graph.NewRegistry()
	if err := Register(reg, loop); err != nil {
		panic(err)
	}
	return reg
}
