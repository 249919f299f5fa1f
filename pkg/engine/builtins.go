package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/patchbay/pkg/graph"
	"github.com/chazu/patchbay/pkg/nodes"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms patch script source before passing it to
// zygomys. It performs three transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: set-mode -> set_mode
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator).
//
//  3. Line comments: ; and ;; become //
//
// All transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				result = append(result, '"')
				result = append(result, kwPrefix...)
				result = append(result, b[i+1:j]...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Only when the hyphen sits between identifier characters.
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpNodeRef wraps a node so it can be passed between builtins.
type sexpNodeRef struct {
	node *graph.Node
}

func (n *sexpNodeRef) SexpString(ps *zygo.PrintState) string {
	if l := n.node.Label(); l != "" {
		return fmt.Sprintf("(node %q %q)", n.node.TypeName(), l)
	}
	return fmt.Sprintf("(node %q %d)", n.node.TypeName(), n.node.ID())
}
func (n *sexpNodeRef) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toInt extracts an integer from a SexpInt.
func toInt(s zygo.Sexp) (int, error) {
	if v, ok := s.(*zygo.SexpInt); ok {
		return int(v.Val), nil
	}
	return 0, fmt.Errorf("expected integer, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toBool extracts a boolean from a SexpBool.
func toBool(s zygo.Sexp) (bool, error) {
	if b, ok := s.(*zygo.SexpBool); ok {
		return b.Val, nil
	}
	return false, fmt.Errorf("expected boolean, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_sink) and plain strings ("sink").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], nil
	}
	return str.S, nil
}

// toMode converts a keyword or string to a graph.Mode.
func toMode(s zygo.Sexp) (graph.Mode, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, fmt.Errorf("expected mode keyword (:disabled, :sink, :source): %w", err)
	}
	return graph.ParseMode(name)
}

// toKey converts an integer or a number kind keyword (:int8, :double, ...)
// to a socket key.
func toKey(s zygo.Sexp) (graph.Key, error) {
	if v, ok := s.(*zygo.SexpInt); ok {
		if v.Val < 0 {
			return 0, fmt.Errorf("key must not be negative, got %d", v.Val)
		}
		return graph.Key(v.Val), nil
	}
	name, err := toKeywordString(s)
	if err != nil {
		return 0, fmt.Errorf("expected key number or kind keyword: %w", err)
	}
	switch name {
	case "any":
		return 0, nil
	case "int":
		return nodes.KeyInt, nil
	case "points":
		return nodes.KeyPoints, nil
	}
	kind, err := nodes.ParseNumberKind(name)
	if err != nil {
		return 0, err
	}
	return kind.Key(), nil
}

// toNode extracts the node from a sexpNodeRef.
func toNode(s zygo.Sexp) (*graph.Node, error) {
	if ref, ok := s.(*sexpNodeRef); ok {
		return ref.node, nil
	}
	return nil, fmt.Errorf("expected node reference, got %T (%s)", s, s.SexpString(nil))
}

// toSocket resolves a node reference plus socket name.
func toSocket(nodeArg, nameArg zygo.Sexp) (*graph.Socket, error) {
	n, err := toNode(nodeArg)
	if err != nil {
		return nil, err
	}
	name, err := toKeywordString(nameArg)
	if err != nil {
		return nil, fmt.Errorf("socket name: %w", err)
	}
	s := n.Socket(name)
	if s == nil {
		return nil, fmt.Errorf("%s has no socket %q", n, name)
	}
	return s, nil
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// builder owns the view a script populates.
type builder struct {
	view     *graph.View
	registry *graph.Registry
}

// discard destroys everything built so far.
func (b *builder) discard() {
	b.view.Clear()
}

func (b *builder) find(label string) *graph.Node {
	for _, n := range b.view.Nodes() {
		if n.Label() == label {
			return n
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the patch DSL builtins into a zygomys
// environment. The builtins operate on the builder's view.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, b *builder) {

	// -----------------------------------------------------------------------
	// (node "step" :label "ramp" :x 100 :y 40 :state "start: 0")
	// -----------------------------------------------------------------------
	env.AddFunction("node", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("node requires a type name")
		}
		typeName, err := toKeywordString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("node: type: %w", err)
		}
		n, err := b.registry.New(typeName)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("node: %w", err)
		}

		if v, ok := pa.kw["label"]; ok {
			s, err := toString(v)
			if err != nil {
				n.Destroy()
				return zygo.SexpNull, fmt.Errorf("node: label: %w", err)
			}
			n.SetLabel(s)
		}
		if v, ok := pa.kw["state"]; ok {
			s, err := toString(v)
			if err != nil {
				n.Destroy()
				return zygo.SexpNull, fmt.Errorf("node: state: %w", err)
			}
			if err := graph.ApplyState(n, []byte(s)); err != nil {
				n.Destroy()
				return zygo.SexpNull, fmt.Errorf("node: state: %w", err)
			}
		}

		b.view.Add(n)

		r := n.Rect()
		if v, ok := pa.kw["x"]; ok {
			x, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("node: x: %w", err)
			}
			r.X = x
		}
		if v, ok := pa.kw["y"]; ok {
			y, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("node: y: %w", err)
			}
			r.Y = y
		}
		n.SetRect(r)

		return &sexpNodeRef{node: n}, nil
	})

	// -----------------------------------------------------------------------
	// (find "ramp")
	// -----------------------------------------------------------------------
	env.AddFunction("find", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 1 {
			return zygo.SexpNull, fmt.Errorf("find requires a label argument")
		}
		label, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("find: label: %w", err)
		}
		n := b.find(label)
		if n == nil {
			return zygo.SexpNull, fmt.Errorf("find: no node labelled %q", label)
		}
		return &sexpNodeRef{node: n}, nil
	})

	// -----------------------------------------------------------------------
	// (connect src "output" dst "trigger")
	// -----------------------------------------------------------------------
	env.AddFunction("connect", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 4 {
			return zygo.SexpNull, fmt.Errorf("connect requires source node, socket, sink node, socket; got %d arguments", len(args))
		}
		src, err := toSocket(args[0], args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("connect: source: %w", err)
		}
		snk, err := toSocket(args[2], args[3])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("connect: sink: %w", err)
		}
		if !graph.Connect(snk, src) {
			return zygo.SexpNull, fmt.Errorf("connect: %s cannot receive from %s", snk, src)
		}
		return &zygo.SexpBool{Val: true}, nil
	})

	// -----------------------------------------------------------------------
	// (disconnect dst "trigger")
	// -----------------------------------------------------------------------
	env.AddFunction("disconnect", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("disconnect requires a node and a socket name")
		}
		s, err := toSocket(args[0], args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("disconnect: %w", err)
		}
		was := s.Connected()
		s.Disconnect()
		return &zygo.SexpBool{Val: was}, nil
	})

	// -----------------------------------------------------------------------
	// (label n "ramp")
	// -----------------------------------------------------------------------
	env.AddFunction("label", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("label requires a node and a string")
		}
		n, err := toNode(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("label: %w", err)
		}
		s, err := toString(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("label: %w", err)
		}
		n.SetLabel(s)
		return args[0], nil
	})

	// -----------------------------------------------------------------------
	// (move n 300 40)
	// -----------------------------------------------------------------------
	env.AddFunction("move", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("move requires a node, x and y")
		}
		n, err := toNode(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("move: %w", err)
		}
		x, err := toInt(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("move: x: %w", err)
		}
		y, err := toInt(args[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("move: y: %w", err)
		}
		n.Move(x, y)
		return args[0], nil
	})

	// -----------------------------------------------------------------------
	// (state n "start: 0\nstop: 10")
	// -----------------------------------------------------------------------
	env.AddFunction("state", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("state requires a node and a state document")
		}
		n, err := toNode(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("state: %w", err)
		}
		s, err := toString(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("state: %w", err)
		}
		if err := graph.ApplyState(n, []byte(s)); err != nil {
			return zygo.SexpNull, fmt.Errorf("state: %w", err)
		}
		return args[0], nil
	})

	// -----------------------------------------------------------------------
	// (set-mode n "label" :source)
	// -----------------------------------------------------------------------
	env.AddFunction("set_mode", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("set-mode requires a node, a socket name and a mode")
		}
		s, err := toSocket(args[0], args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-mode: %w", err)
		}
		m, err := toMode(args[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-mode: %w", err)
		}
		s.SetMode(m)
		return args[0], nil
	})

	// -----------------------------------------------------------------------
	// (set-key n "value" :double) or (set-key n "value" 2)
	// -----------------------------------------------------------------------
	env.AddFunction("set_key", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("set-key requires a node, a socket name and a key")
		}
		s, err := toSocket(args[0], args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-key: %w", err)
		}
		k, err := toKey(args[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-key: %w", err)
		}
		s.SetKey(k)
		return args[0], nil
	})

	// -----------------------------------------------------------------------
	// (expand n false)
	// -----------------------------------------------------------------------
	env.AddFunction("expand", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("expand requires a node and a boolean")
		}
		n, err := toNode(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("expand: %w", err)
		}
		on, err := toBool(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("expand: %w", err)
		}
		n.SetExpanded(on)
		return args[0], nil
	})

	// -----------------------------------------------------------------------
	// (fire clock) emits one pulse; (fire ramp) triggers one step.
	// -----------------------------------------------------------------------
	env.AddFunction("fire", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 1 {
			return zygo.SexpNull, fmt.Errorf("fire requires a node")
		}
		n, err := toNode(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("fire: %w", err)
		}
		count := 1
		if len(args) > 1 {
			if count, err = toInt(args[1]); err != nil {
				return zygo.SexpNull, fmt.Errorf("fire: count: %w", err)
			}
		}
		for i := 0; i < count; i++ {
			switch impl := n.Impl().(type) {
			case *nodes.Pulse:
				impl.Emit()
			case *nodes.Step:
				impl.Trigger()
			default:
				return zygo.SexpNull, fmt.Errorf("fire: %s cannot be fired", n)
			}
		}
		return args[0], nil
	})

	// -----------------------------------------------------------------------
	// (remove n)
	// -----------------------------------------------------------------------
	env.AddFunction("remove", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("remove requires a node")
		}
		n, err := toNode(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("remove: %w", err)
		}
		b.view.Remove(n)
		return zygo.SexpNull, nil
	})
}
