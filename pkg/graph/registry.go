package graph

import (
	"sort"

	"github.com/pkg/errors"
)

// ErrUnknownType is returned by Registry.New for unregistered type names.
var ErrUnknownType = errors.New("unknown node type")

// Constructor builds a fresh node of one type.
type Constructor func() *Node

// Registry maps node type names to constructors.
type Registry struct {
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a constructor. Registering a name twice is an error.
func (r *Registry) Register(name string, c Constructor) error {
	if name == "" {
		return errors.New("register: empty type name")
	}
	if c == nil {
		return errors.Errorf("register %q: nil constructor", name)
	}
	if _, ok := r.ctors[name]; ok {
		return errors.Errorf("register %q: already registered", name)
	}
	r.ctors[name] = c
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, c Constructor) {
	if err := r.Register(name, c); err != nil {
		panic(err)
	}
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.ctors[name]
	return ok
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs a node of the named type.
func (r *Registry) New(name string) (*Node, error) {
	c, ok := r.ctors[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownType, "%q", name)
	}
	n := c()
	if n == nil {
		return nil, errors.Errorf("constructor for %q returned nil", name)
	}
	n.typeName = name
	return n, nil
}
