// Package engine provides the Lisp evaluation engine for patch scripts.
// It wraps zygomys in a sandboxed environment and produces a graph.View
// from user source code.
package engine

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/patchbay/pkg/graph"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Engine wraps the zygomys interpreter for patch evaluation.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment and a fresh view.
type Engine struct {
	registry *graph.Registry
	timeout  time.Duration
	log      *slog.Logger

	mu         sync.Mutex
	generation uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout overrides EvalTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger handed to every view the engine builds.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates an Engine that instantiates nodes from reg.
func NewEngine(reg *graph.Registry, opts ...Option) *Engine {
	e := &Engine{registry: reg, timeout: EvalTimeout, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate takes Lisp source code and produces a new view.
//
// Return semantics:
//   - On success: returns view + nil errors + nil error
//   - On parse/eval failure: returns nil view + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*graph.View, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult)
	abandoned := make(chan struct{})

	go func() {
		v, evalErrs, err := e.evaluate(source)
		select {
		case ch <- evalResult{view: v, errors: evalErrs, err: err}:
		case <-abandoned:
			// Nobody will adopt the view; tear it down here.
			if v != nil {
				v.Clear()
			}
		}
	}()

	return waitWithTimeout(ch, abandoned, gen, e.timeout, &e.mu, &e.generation)
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (v *graph.View, evalErrs []EvalError, err error) {
	v = graph.NewView(graph.WithLogger(e.log))
	defer func() {
		if r := recover(); r != nil {
			if v != nil {
				v.Clear()
			}
			v, evalErrs, err = nil, nil, fmt.Errorf("panic during evaluation: %v", r)
		}
	}()

	// Empty source is a valid program that produces an empty view.
	if strings.TrimSpace(source) == "" {
		return v, nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	b := &builder{view: v, registry: e.registry}
	registerBuiltins(env, b)

	err = env.LoadString(preprocessSource(source))
	if err != nil {
		b.discard()
		return nil, parseZygomysError(err), nil
	}

	_, err = env.Run()
	if err != nil {
		b.discard()
		return nil, parseZygomysError(err), nil
	}

	e.log.Debug("script evaluated", "nodes", v.Len(), "connections", len(v.Connections()))
	return v, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{
				Line:    line,
				Message: strings.TrimSpace(m[2]),
			}}
		}
	}

	// Fallback: no line info available.
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
