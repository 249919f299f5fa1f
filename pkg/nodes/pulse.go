package nodes

import (
	"time"

	"github.com/chazu/patchbay/pkg/graph"
	"github.com/pkg/errors"
)

// Pulse limits and default.
const (
	PulseIntervalMin     = 1 * time.Millisecond
	PulseIntervalMax     = 100 * time.Second
	PulseIntervalDefault = 500 * time.Millisecond
)

// Pulse writes PulsePayload on its output, once per Emit or periodically
// while running.
type Pulse struct {
	node     *graph.Node
	out      *graph.Socket
	loop     *graph.Loop
	interval time.Duration
	stop     func()
	armed    bool
	emitted  uint64
}

type pulseState struct {
	IntervalMS int64 `yaml:"interval_ms"`
	Running    bool  `yaml:"running"`
}

// NewPulse creates a stopped pulse generator. Periodic mode posts its writes
// to loop; a nil loop allows only manual Emit.
func NewPulse(loop *graph.Loop) *Pulse {
	p := &Pulse{loop: loop, interval: PulseIntervalDefault}
	p.node = newNode("pulse", "Pulse", p)
	p.node.AddItem("controls", graph.ModeDisabled)
	p.out = p.node.AddItem("output", graph.ModeSource)
	onDestroyed(p.node, p.Stop)
	return p
}

// Node returns the graph node.
func (p *Pulse) Node() *graph.Node { return p.node }

// Output returns the pulse source.
func (p *Pulse) Output() *graph.Socket { return p.out }

// Emit writes one pulse.
func (p *Pulse) Emit() bool {
	if p.node.Destroyed() {
		return false
	}
	p.emitted++
	return p.out.Write(PulsePayload)
}

// Emitted returns the number of pulses written.
func (p *Pulse) Emitted() uint64 { return p.emitted }

// Interval returns the periodic interval.
func (p *Pulse) Interval() time.Duration { return p.interval }

// SetInterval changes the periodic interval, restarting the timer if it is
// running.
func (p *Pulse) SetInterval(d time.Duration) error {
	if d < PulseIntervalMin || d > PulseIntervalMax {
		return errors.Errorf("pulse interval %s out of range [%s, %s]", d, PulseIntervalMin, PulseIntervalMax)
	}
	p.interval = d
	if p.Running() {
		p.Stop()
		return p.Start()
	}
	return nil
}

// Running reports whether periodic mode is on.
func (p *Pulse) Running() bool { return p.stop != nil }

// Armed reports whether applied state asked for periodic mode that has not
// been started. The host starts armed pulses once their view is live.
func (p *Pulse) Armed() bool { return p.armed && !p.Running() }

// Start enables periodic mode.
func (p *Pulse) Start() error {
	if p.Running() {
		return nil
	}
	if p.loop == nil {
		return errors.New("pulse: no event loop for periodic mode")
	}
	if p.node.Destroyed() {
		return errors.New("pulse: node destroyed")
	}
	p.armed = false
	p.stop = p.loop.Every(p.interval, func() { p.Emit() })
	return nil
}

// Stop disables periodic mode.
func (p *Pulse) Stop() {
	p.armed = false
	if p.stop == nil {
		return
	}
	p.stop()
	p.stop = nil
}

// ExportState implements graph.StateExporter.
func (p *Pulse) ExportState() ([]byte, error) {
	return exportYAML(pulseState{IntervalMS: p.interval.Milliseconds(), Running: p.Running() || p.armed})
}

// ApplyState implements graph.StateExporter. A running state only arms the
// pulse; it never starts a timer.
func (p *Pulse) ApplyState(blob []byte) error {
	st := pulseState{IntervalMS: p.interval.Milliseconds()}
	if err := applyYAML(blob, &st); err != nil {
		return err
	}
	if err := p.SetInterval(time.Duration(st.IntervalMS) * time.Millisecond); err != nil {
		return err
	}
	if !st.Running {
		p.Stop()
		return nil
	}
	if !p.Running() {
		p.armed = true
	}
	return nil
}
