package patchfile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/patchbay/pkg/graph"
	"github.com/chazu/patchbay/pkg/nodes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// buildPatch creates pulse -> step -> show-number with custom step state.
// One node is removed first so the saved ids differ from the live ones.
func buildPatch(t *testing.T, reg *graph.Registry) *graph.View {
	t.Helper()
	v := graph.NewView()

	scratch, err := reg.New("bitwise-and")
	require.NoError(t, err)
	v.Add(scratch)

	pulse, err := reg.New("pulse")
	require.NoError(t, err)
	step, err := reg.New("step")
	require.NoError(t, err)
	show, err := reg.New("show-number")
	require.NoError(t, err)
	for _, n := range []*graph.Node{pulse, step, show} {
		v.Add(n)
	}
	v.Remove(scratch)

	require.NoError(t, step.Impl().(*nodes.Step).SetRange(10, 20, 2))
	step.Move(300, 40)
	step.SetLabel("ramp")

	require.True(t, graph.Connect(step.Socket("trigger"), pulse.Socket("output")))
	require.True(t, graph.Connect(show.Socket("input"), step.Socket("value")))
	return v
}

func newRegistry() *graph.Registry {
	return nodes.NewRegistry(nil)
}

func roundTrip(t *testing.T, v *graph.View, compress bool) *graph.View {
	t.Helper()
	doc, err := Encode(v)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, doc, compress))

	back, err := Read(&buf)
	require.NoError(t, err)
	out := graph.NewView()
	rep, err := Decode(back, newRegistry(), out)
	require.NoError(t, err)
	assert.Empty(t, rep.Skipped)
	return out
}

// ---------------------------------------------------------------------------
// Encode
// ---------------------------------------------------------------------------

func TestEncodeRenumbersAndRecordsEdges(t *testing.T) {
	v := buildPatch(t, newRegistry())
	assert.Equal(t, []int{1, 2, 3}, nodeIDs(v))

	doc, err := Encode(v)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, nodeIDs(v), "save renumbers from 0")
	assert.Equal(t, v.ID().String(), doc.ID)
	require.Len(t, doc.Objects, 3)

	step := doc.Objects[1]
	assert.Equal(t, "step", step.Class)
	assert.Equal(t, "1", step.ID)
	require.Len(t, step.Signals, 1)
	pulseOut := v.Node(0).Socket("output").ID()
	trigger := v.Node(1).Socket("trigger").ID()
	assert.Equal(t, Signal{Name: SignalConnect, Handler: EdgeHandler(pulseOut, trigger), Object: "0"}, step.Signals[0])
	require.NotNil(t, step.State)
	assert.Contains(t, step.State.Data, "start: 10")

	show := doc.Objects[2]
	require.Len(t, show.Signals, 1)
	assert.Equal(t, "1", show.Signals[0].Object)
	assert.Nil(t, show.State, "nodes without custom state carry none")
}

func TestEncodeSkipsLinksLeavingTheView(t *testing.T) {
	reg := newRegistry()
	v := graph.NewView()
	show, _ := reg.New("show-number")
	v.Add(show)
	outside := nodes.NewStep()
	require.True(t, graph.Connect(show.Socket("input"), outside.Node().Socket("value")))

	doc, err := Encode(v)
	require.NoError(t, err)
	assert.Empty(t, doc.Objects[0].Signals)
}

// ---------------------------------------------------------------------------
// Round trip
// ---------------------------------------------------------------------------

func TestRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "snappy"
		}
		t.Run(name, func(t *testing.T) {
			v := buildPatch(t, newRegistry())
			out := roundTrip(t, v, compress)

			require.Equal(t, 3, out.Len())
			assert.Equal(t, v.ID(), out.ID())
			require.Len(t, out.Connections(), 2)

			pulse, step, show := out.Node(0), out.Node(1), out.Node(2)
			assert.Equal(t, "pulse", pulse.TypeName())
			assert.Same(t, pulse.Socket("output"), step.Socket("trigger").Upstream())
			assert.Same(t, step.Socket("value"), show.Socket("input").Upstream())
			assert.Equal(t, v.Node(1).Socket("trigger").ID(), step.Socket("trigger").ID())

			start, stop, inc := step.Impl().(*nodes.Step).Range()
			assert.Equal(t, []float64{10, 20, 2}, []float64{start, stop, inc})
			assert.Equal(t, graph.Rect{X: 300, Y: 40, Width: 100, Height: 100}, step.Rect())
			assert.Equal(t, "ramp", step.Label())
			assert.Empty(t, graph.Validate(out))

			pulse.Impl().(*nodes.Pulse).Emit()
			assert.Equal(t, "12", show.Impl().(*nodes.Display).Text())
		})
	}
}

func TestRoundTripBinaryState(t *testing.T) {
	blob := []byte{0, 1, 2, 0xff}
	s := newState(blob)
	assert.Equal(t, "base64", s.Encoding)
	got, err := s.Bytes()
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	text := newState([]byte("a: 1\nb: two\n"))
	assert.Empty(t, text.Encoding)

	_, err = (&State{Encoding: "rot13"}).Bytes()
	assert.True(t, errors.Is(err, ErrMalformed))
}

// ---------------------------------------------------------------------------
// Decode failures
// ---------------------------------------------------------------------------

func TestDecodeSkipsBadEdges(t *testing.T) {
	src := `<interface>
  <object class="step" id="a"></object>
  <object class="show-number" id="b">
    <signal name="node-socket-connect" handler="4_1" object="a"/>
    <signal name="node-socket-connect" handler="nonsense" object="a"/>
    <signal name="node-socket-connect" handler="4_1" object="zzz"/>
    <signal name="node-socket-connect" handler="99_1" object="a"/>
    <signal name="node-socket-connect" handler="4_99" object="a"/>
    <signal name="clicked" handler="whatever" object="a"/>
  </object>
  <object class="binary-decode" id="c">
    <signal name="node-socket-connect" handler="4_1" object="a"/>
  </object>
</interface>`
	doc, err := Read(strings.NewReader(src))
	require.NoError(t, err)

	v := graph.NewView()
	rep, err := Decode(doc, newRegistry(), v)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Nodes)
	assert.Equal(t, 1, rep.Edges)

	var reasons []string
	for _, s := range rep.Skipped {
		reasons = append(reasons, s.Reason)
	}
	assert.Equal(t, []string{
		"malformed handler",
		"unknown source object",
		"no source socket 99",
		"no sink socket 99",
		"incompatible sockets",
	}, reasons)
	assert.Len(t, v.Connections(), 1)
	assert.Empty(t, graph.Validate(v))
}

func TestDecodeIsTransactional(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		target error
	}{
		{"unknown class", `<interface><object class="pulse" id="0"/><object class="teapot" id="1"/></interface>`, ErrUnknownClass},
		{"bad property", `<interface><object class="pulse" id="0"><property name="x">left</property></object></interface>`, ErrMalformed},
		{"bad state", `<interface><object class="step" id="0"/><object class="pulse" id="1"><state>interval_ms: 0</state></object></interface>`, nil},
		{"duplicate id", `<interface><object class="pulse" id="0"/><object class="pulse" id="0"/></interface>`, ErrMalformed},
		{"missing id", `<interface><object class="pulse"/></interface>`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Read(strings.NewReader(tt.doc))
			require.NoError(t, err)

			v := graph.NewView()
			existing := nodes.NewGate(nodes.OpOr).Node()
			v.Add(existing)
			before := v.ID()

			_, err = Decode(doc, newRegistry(), v)
			require.Error(t, err)
			if tt.target != nil {
				assert.True(t, errors.Is(err, tt.target), "got %v", err)
			}
			assert.Equal(t, 1, v.Len(), "view must be left untouched")
			assert.Equal(t, before, v.ID())
		})
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	for _, src := range []string{"not xml", "<other/>", `<interface version="99"/>`, snappyMagic + "junk"} {
		_, err := Read(strings.NewReader(src))
		require.Error(t, err, src)
		assert.True(t, errors.Is(err, ErrMalformed), src)
	}
}

func TestParseEdgeHandler(t *testing.T) {
	src, snk, err := ParseEdgeHandler("12_3")
	require.NoError(t, err)
	assert.Equal(t, uint32(12), src)
	assert.Equal(t, uint32(3), snk)

	for _, h := range []string{"", "12", "a_3", "3_b", "-1_2"} {
		_, _, err := ParseEdgeHandler(h)
		assert.Error(t, err, h)
	}
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"patch.xml", "patch.xml" + CompressedExt} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			v := buildPatch(t, newRegistry())
			require.NoError(t, Save(path, v))

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, strings.HasSuffix(name, CompressedExt), bytes.HasPrefix(raw, []byte(snappyMagic)))

			out := graph.NewView()
			rep, err := Load(path, newRegistry(), out)
			require.NoError(t, err)
			assert.Equal(t, 3, rep.Nodes)
			assert.Equal(t, 2, rep.Edges)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			for _, e := range entries {
				assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file left behind: %s", e.Name())
			}
		})
	}
}

func TestSaveForcedCompression(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patch.xml")
	require.NoError(t, Save(path, buildPatch(t, newRegistry()), WithCompression(true)))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte(snappyMagic)))
}

func TestSaveFailureLeavesNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "patch.xml")
	err := Save(path, buildPatch(t, newRegistry()))
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSaveKeepsOldFileWhenStateExportFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patch.xml")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

	v := graph.NewView()
	n := graph.NewNode("broken")
	n.SetImpl(failingState{})
	v.Add(n)

	require.Error(t, Save(path, v))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(raw))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.xml"), newRegistry(), graph.NewView())
	assert.Error(t, err)
}

type failingState struct{}

func (failingState) ExportState() ([]byte, error) { return nil, errors.New("no") }
func (failingState) ApplyState([]byte) error      { return nil }

func nodeIDs(v *graph.View) []int {
	var ids []int
	for _, n := range v.Nodes() {
		ids = append(ids, n.ID())
	}
	return ids
}
