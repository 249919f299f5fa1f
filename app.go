package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/chazu/patchbay/pkg/config"
	"github.com/chazu/patchbay/pkg/engine"
	"github.com/chazu/patchbay/pkg/graph"
	"github.com/chazu/patchbay/pkg/metrics"
	"github.com/chazu/patchbay/pkg/nodes"
	"github.com/chazu/patchbay/pkg/patchfile"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// App is the host backend. It exposes methods to a frontend via bindings
// and to the CLI. Once startup has been called every graph mutation runs on
// the app's loop, the same goroutine that drives pulse timers.
type App struct {
	ctx     context.Context
	cfg     config.Config
	log     *slog.Logger
	loop    *graph.Loop
	reg     *graph.Registry
	engine  *engine.Engine
	metrics *metrics.Registry
	running atomic.Bool

	view    *graph.View
	viewSub graph.Subscription
	drag    *graph.Drag
}

// SocketData is the JSON-serializable form of a socket.
type SocketData struct {
	ID        uint32 `json:"id"`
	Name      string `json:"name"`
	Mode      string `json:"mode"`
	Key       uint32 `json:"key"`
	Connected bool   `json:"connected"`
}

// NodeData is the JSON-serializable form of a node.
type NodeData struct {
	ID       int          `json:"id"`
	Type     string       `json:"type"`
	Label    string       `json:"label"`
	X        int          `json:"x"`
	Y        int          `json:"y"`
	Width    int          `json:"width"`
	Height   int          `json:"height"`
	Expanded bool         `json:"expanded"`
	Reading  string       `json:"reading,omitempty"`
	Sockets  []SocketData `json:"sockets"`
}

// ConnectionData is the JSON-serializable form of a link.
type ConnectionData struct {
	SourceNode   int    `json:"sourceNode"`
	SourceSocket string `json:"sourceSocket"`
	SinkNode     int    `json:"sinkNode"`
	SinkSocket   string `json:"sinkSocket"`
}

// Snapshot is the full state of the current view.
type Snapshot struct {
	ID          string           `json:"id"`
	Nodes       []NodeData       `json:"nodes"`
	Connections []ConnectionData `json:"connections"`
}

// EvalErrorData is a JSON-serializable eval error for the frontend.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// EvalResult is the full result returned to the frontend.
type EvalResult struct {
	Snapshot Snapshot        `json:"snapshot"`
	Errors   []EvalErrorData `json:"errors"`
}

// SkippedEdgeData is a JSON-serializable skipped edge.
type SkippedEdgeData struct {
	Object  string `json:"object"`
	Handler string `json:"handler"`
	Reason  string `json:"reason"`
}

// LoadResult summarises a Load.
type LoadResult struct {
	Nodes   int               `json:"nodes"`
	Edges   int               `json:"edges"`
	Skipped []SkippedEdgeData `json:"skipped"`
}

// Reading is the value shown by a show-number node.
type Reading struct {
	Node  int    `json:"node"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

// NewApp creates an App configured by cfg with an empty view.
func NewApp(cfg config.Config, log *slog.Logger) *App {
	loop := graph.NewLoop()
	reg := nodes.NewRegistry(loop)
	a := &App{
		ctx:  context.Background(),
		cfg:  cfg,
		log:  log,
		loop: loop,
		reg:  reg,
		engine: engine.NewEngine(reg,
			engine.WithTimeout(cfg.Engine.Timeout),
			engine.WithLogger(log)),
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewRegistry(cfg.Metrics.Namespace)
	}
	a.swap(a.newView())
	return a
}

// startup is called by the host on app startup. The context is saved and
// the loop starts serving posted work until it is cancelled. Pulses armed by
// a view adopted before startup begin running on the loop.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.running.Store(true)
	a.loop.Post(a.startArmed)
	go func() {
		err := a.loop.Run(ctx)
		a.running.Store(false)
		a.log.Debug("loop stopped", "reason", err)
	}()
}

// shutdown stops every pulse and destroys the view.
func (a *App) shutdown(ctx context.Context) {
	a.do(func() { a.view.Clear() })
}

// Metrics returns the app's collectors, or nil when metrics are disabled.
func (a *App) Metrics() *metrics.Registry { return a.metrics }

// do runs fn on the loop once startup has been called, inline otherwise.
func (a *App) do(fn func()) {
	if !a.running.Load() {
		fn()
		return
	}
	done := make(chan struct{})
	a.loop.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-a.ctx.Done():
	}
}

func (a *App) newView() *graph.View {
	c := a.cfg.View
	return graph.NewView(
		graph.WithLogger(a.log),
		graph.WithDefaultRect(graph.Rect{X: c.NodeX, Y: c.NodeY, Width: c.NodeWidth, Height: c.NodeHeight}),
	)
}

// swap replaces the current view, destroying the old one.
func (a *App) swap(v *graph.View) {
	if a.drag != nil {
		a.drag.Cancel()
		a.drag = nil
	}
	if a.view != nil {
		a.view.Clear()
		a.viewSub.Cancel()
	}
	a.view = v
	if a.metrics != nil {
		a.viewSub = a.metrics.Observe(v)
	}
}

// startArmed starts every pulse whose state asked for periodic mode. Without
// a running loop nothing would drain the timer posts, so pulses stay armed.
func (a *App) startArmed() {
	if !a.running.Load() {
		return
	}
	for _, n := range a.view.Nodes() {
		p, ok := n.Impl().(*nodes.Pulse)
		if !ok || !p.Armed() {
			continue
		}
		if err := p.Start(); err != nil {
			a.log.Warn("pulse not started", "node", n.ID(), "error", err)
		}
	}
}

// ---------------------------------------------------------------------------
// Scripts
// ---------------------------------------------------------------------------

// Evaluate runs a patch script. On success the resulting view replaces the
// current one; on failure the current view is kept and errors are returned.
func (a *App) Evaluate(source string) EvalResult {
	result := EvalResult{Errors: []EvalErrorData{}}

	start := time.Now()
	v, evalErrs, err := a.engine.Evaluate(source)
	if a.metrics != nil {
		a.metrics.RecordEval(time.Since(start))
	}
	if err != nil {
		// Fatal error (panic, timeout, etc.)
		a.log.Error("evaluate failed", "error", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		result.Snapshot = a.Snapshot()
		return result
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{
				Line:    e.Line,
				Col:     e.Col,
				Message: e.Message,
			})
		}
		result.Snapshot = a.Snapshot()
		return result
	}

	a.do(func() {
		a.swap(v)
		a.startArmed()
		result.Snapshot = a.snapshot()
	})
	return result
}

// ---------------------------------------------------------------------------
// Editing
// ---------------------------------------------------------------------------

// NodeTypes lists the registered node types.
func (a *App) NodeTypes() []string { return a.reg.Names() }

// AddNode creates a node of the given type and adds it to the view.
func (a *App) AddNode(typeName string) (NodeData, error) {
	n, err := a.reg.New(typeName)
	if err != nil {
		return NodeData{}, err
	}
	var data NodeData
	a.do(func() {
		a.view.Add(n)
		data = nodeData(n)
	})
	return data, nil
}

// RemoveNode destroys a node and its links.
func (a *App) RemoveNode(id int) error {
	var err error
	a.do(func() {
		n := a.view.Node(id)
		if n == nil {
			err = errors.Errorf("no node %d", id)
			return
		}
		a.view.Remove(n)
	})
	return err
}

// Activate fires a node's functional action.
func (a *App) Activate(id int) error {
	var err error
	a.do(func() {
		n := a.view.Node(id)
		if n == nil {
			err = errors.Errorf("no node %d", id)
			return
		}
		n.Activate()
	})
	return err
}

// MoveNode places a node's rectangle.
func (a *App) MoveNode(id, x, y int) error {
	var err error
	a.do(func() {
		n := a.view.Node(id)
		if n == nil {
			err = errors.Errorf("no node %d", id)
			return
		}
		n.Move(x, y)
	})
	return err
}

func (a *App) socket(node int, name string) (*graph.Socket, error) {
	n := a.view.Node(node)
	if n == nil {
		return nil, errors.Errorf("no node %d", node)
	}
	s := n.Socket(name)
	if s == nil {
		return nil, errors.Errorf("%s has no socket %q", n, name)
	}
	return s, nil
}

// Connect links a source socket to a sink socket.
func (a *App) Connect(srcNode int, srcSocket string, sinkNode int, sinkSocket string) error {
	var err error
	a.do(func() {
		src, e := a.socket(srcNode, srcSocket)
		if e != nil {
			err = errors.Wrap(e, "connect source")
			return
		}
		snk, e := a.socket(sinkNode, sinkSocket)
		if e != nil {
			err = errors.Wrap(e, "connect sink")
			return
		}
		if !graph.Connect(snk, src) {
			err = errors.Errorf("%s cannot receive from %s", snk, src)
		}
	})
	return err
}

// Disconnect unlinks a sink socket.
func (a *App) Disconnect(node int, socket string) error {
	var err error
	a.do(func() {
		s, e := a.socket(node, socket)
		if e != nil {
			err = errors.Wrap(e, "disconnect")
			return
		}
		s.Disconnect()
	})
	return err
}

// BeginDrag starts a drag from a socket. Dragging from a linked sink
// unplugs it and continues from its former source.
func (a *App) BeginDrag(node int, socket string) error {
	var err error
	a.do(func() {
		s, e := a.socket(node, socket)
		if e != nil {
			err = errors.Wrap(e, "drag")
			return
		}
		if a.drag != nil {
			a.drag.Cancel()
		}
		d, ok := a.view.BeginDrag(s)
		if !ok {
			err = errors.Errorf("cannot drag from %s", s)
			return
		}
		a.drag = d
	})
	return err
}

// Drop ends the current drag on a socket. It reports whether a link was made.
func (a *App) Drop(node int, socket string) (bool, error) {
	var (
		linked bool
		err    error
	)
	a.do(func() {
		if a.drag == nil {
			err = errors.New("no drag in progress")
			return
		}
		s, e := a.socket(node, socket)
		if e != nil {
			err = errors.Wrap(e, "drop")
			return
		}
		linked = a.drag.Drop(s)
		a.drag = nil
	})
	return linked, err
}

// CancelDrag abandons the current drag.
func (a *App) CancelDrag() {
	a.do(func() {
		if a.drag != nil {
			a.drag.Cancel()
			a.drag = nil
		}
	})
}

// ---------------------------------------------------------------------------
// Running
// ---------------------------------------------------------------------------

// SetRunning starts or stops a pulse node's timer. Starting needs the loop
// that startup runs.
func (a *App) SetRunning(id int, on bool) error {
	if on && !a.running.Load() {
		return errors.New("event loop is not running")
	}
	var err error
	a.do(func() {
		n := a.view.Node(id)
		if n == nil {
			err = errors.Errorf("no node %d", id)
			return
		}
		p, ok := n.Impl().(*nodes.Pulse)
		if !ok {
			err = errors.Errorf("%s is not a pulse", n)
			return
		}
		if on {
			err = p.Start()
		} else {
			p.Stop()
		}
	})
	return err
}

// Tick emits count pulses from every pulse node and returns the readings
// of every show-number node afterwards.
func (a *App) Tick(count int) []Reading {
	var out []Reading
	a.do(func() {
		pulses := lo.FilterMap(a.view.Nodes(), func(n *graph.Node, _ int) (*nodes.Pulse, bool) {
			p, ok := n.Impl().(*nodes.Pulse)
			return p, ok
		})
		for i := 0; i < count; i++ {
			for _, p := range pulses {
				p.Emit()
			}
		}
		out = a.readings()
	})
	return out
}

// Readings returns the current value of every show-number node.
func (a *App) Readings() []Reading {
	var out []Reading
	a.do(func() { out = a.readings() })
	return out
}

func (a *App) readings() []Reading {
	return lo.FilterMap(a.view.Nodes(), func(n *graph.Node, _ int) (Reading, bool) {
		d, ok := n.Impl().(*nodes.Display)
		if !ok {
			return Reading{}, false
		}
		return Reading{Node: n.ID(), Label: n.Label(), Text: d.Text()}, true
	})
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

// Save writes the view to path.
func (a *App) Save(path string) error {
	var err error
	a.do(func() {
		var opts []patchfile.Option
		if a.cfg.Files.Compress {
			opts = append(opts, patchfile.WithCompression(true))
		}
		err = patchfile.Save(path, a.view, opts...)
	})
	if a.metrics != nil {
		a.metrics.RecordFileOp("save", err)
	}
	return err
}

// Load replaces the view with the patch stored at path. On error the
// current view is kept.
func (a *App) Load(path string) (LoadResult, error) {
	var (
		rep patchfile.Report
		err error
	)
	a.do(func() {
		v := a.newView()
		rep, err = patchfile.Load(path, a.reg, v)
		if err != nil {
			return
		}
		a.swap(v)
		a.startArmed()
	})
	if a.metrics != nil {
		a.metrics.RecordFileOp("load", err)
	}
	if err != nil {
		return LoadResult{}, err
	}
	return LoadResult{
		Nodes: rep.Nodes,
		Edges: rep.Edges,
		Skipped: lo.Map(rep.Skipped, func(s patchfile.SkippedEdge, _ int) SkippedEdgeData {
			return SkippedEdgeData{Object: s.Object, Handler: s.Handler, Reason: s.Reason}
		}),
	}, nil
}

// Validate checks the current view and its layout and returns every
// finding as text.
func (a *App) Validate() []string {
	var out []string
	a.do(func() {
		findings := append(graph.Validate(a.view), graph.ValidateLayout(a.view)...)
		out = lo.Map(findings, func(e graph.ValidationError, _ int) string {
			return e.Error()
		})
	})
	return out
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

// Snapshot returns the current nodes and connections.
func (a *App) Snapshot() Snapshot {
	var s Snapshot
	a.do(func() { s = a.snapshot() })
	return s
}

func (a *App) snapshot() Snapshot {
	return Snapshot{
		ID:    a.view.ID().String(),
		Nodes: lo.Map(a.view.Nodes(), func(n *graph.Node, _ int) NodeData { return nodeData(n) }),
		Connections: lo.Map(a.view.Connections(), func(c graph.Connection, _ int) ConnectionData {
			return ConnectionData{
				SourceNode:   c.Source.Node().ID(),
				SourceSocket: c.Source.Name(),
				SinkNode:     c.Sink.Node().ID(),
				SinkSocket:   c.Sink.Name(),
			}
		}),
	}
}

func nodeData(n *graph.Node) NodeData {
	r := n.Rect()
	d := NodeData{
		ID:       n.ID(),
		Type:     n.TypeName(),
		Label:    n.Label(),
		X:        r.X,
		Y:        r.Y,
		Width:    r.Width,
		Height:   r.Height,
		Expanded: n.Expanded(),
		Sockets: lo.Map(n.Sockets(), func(s *graph.Socket, _ int) SocketData {
			return SocketData{
				ID:        s.ID(),
				Name:      s.Name(),
				Mode:      s.Mode().String(),
				Key:       uint32(s.Key()),
				Connected: s.Connected(),
			}
		}),
	}
	if disp, ok := n.Impl().(*nodes.Display); ok {
		d.Reading = disp.Text()
	}
	return d
}
