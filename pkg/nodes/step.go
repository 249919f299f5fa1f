package nodes

import (
	"github.com/chazu/patchbay/pkg/graph"
	"github.com/pkg/errors"
)

// Step walks a value from Start toward Stop by Step on every trigger. The
// value goes out as a double; the done output fires once the end is reached.
type Step struct {
	node    *graph.Node
	trigger *graph.Socket
	reset   *graph.Socket
	value   *graph.Socket
	done    *graph.Socket

	start, stop, step float64
	cur               float64
}

type stepState struct {
	Start float64 `yaml:"start"`
	Stop  float64 `yaml:"stop"`
	Step  float64 `yaml:"step"`
}

// NewStep creates a stepper over [0, 360] in increments of 0.5.
func NewStep() *Step {
	s := &Step{start: 0, stop: 360, step: 0.5}
	s.node = newNode("step", "Step", s)
	s.trigger = s.node.AddItem("trigger", graph.ModeSink)
	s.reset = s.node.AddItem("reset", graph.ModeSink)
	s.node.AddItem("controls", graph.ModeDisabled)
	s.value = s.node.AddItem("value", graph.ModeSource)
	s.value.SetKey(KeyDouble)
	s.done = s.node.AddItem("done", graph.ModeSource)

	onIncoming(s.trigger, func([]byte) { s.Trigger() })
	onIncoming(s.reset, func([]byte) { s.Reset() })
	onConnected(s.value, func(*graph.Socket) { s.output() })
	return s
}

// Node returns the graph node.
func (s *Step) Node() *graph.Node { return s.node }

// Value returns the current value.
func (s *Step) Value() float64 { return s.cur }

// Range returns start, stop and step.
func (s *Step) Range() (start, stop, step float64) { return s.start, s.stop, s.step }

// SetRange changes the range and moves the value back to start.
func (s *Step) SetRange(start, stop, step float64) error {
	if step == 0 && start != stop {
		return errors.New("step: zero increment")
	}
	if (stop-start)*step < 0 {
		return errors.Errorf("step: increment %g moves away from %g", step, stop)
	}
	s.start, s.stop, s.step = start, stop, step
	s.cur = start
	return nil
}

// Trigger advances the value and writes it. When the value has reached the
// end, the done output fires too.
func (s *Step) Trigger() {
	if s.start < s.stop {
		if s.cur < s.stop {
			s.cur += s.step
		}
	} else if s.cur > s.stop {
		s.cur += s.step
	}
	s.output()

	if s.start < s.stop {
		if s.cur < s.stop {
			return
		}
	} else if s.cur > s.stop {
		return
	}
	s.done.Write(Double.Encode(s.cur))
}

// Reset moves the value back to start and writes it.
func (s *Step) Reset() {
	s.cur = s.start
	s.output()
}

func (s *Step) output() {
	s.value.Write(Double.Encode(s.cur))
}

// ExportState implements graph.StateExporter.
func (s *Step) ExportState() ([]byte, error) {
	return exportYAML(stepState{Start: s.start, Stop: s.stop, Step: s.step})
}

// ApplyState implements graph.StateExporter.
func (s *Step) ApplyState(blob []byte) error {
	st := stepState{Start: s.start, Stop: s.stop, Step: s.step}
	if err := applyYAML(blob, &st); err != nil {
		return err
	}
	return s.SetRange(st.Start, st.Stop, st.Step)
}
