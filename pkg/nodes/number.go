package nodes

import "github.com/chazu/patchbay/pkg/graph"

// adoptRemoteKey makes the wildcard sink s take on the key of whatever it is
// linked to, and fall back to the wildcard when unlinked. set receives the
// resulting number kind.
func adoptRemoteKey(s *graph.Socket, set func(NumberKind)) {
	onConnected(s, func(peer *graph.Socket) {
		switch peer.Key() {
		case KeyInt8, KeyInt16, KeyInt32, KeyDouble:
			set(KindForKey(peer.Key()))
			s.SetKey(peer.Key())
		default:
			set(Int8)
		}
	})
	s.Subscribe(graph.EventDisconnected, func(ev graph.SocketEvent) {
		if ev.Peer == nil {
			return
		}
		set(Int8)
		s.SetKey(0)
	})
}

// Converter reinterprets a numeric input as another number kind.
type Converter struct {
	node    *graph.Node
	in      *graph.Socket
	out     *graph.Socket
	inKind  NumberKind
	outKind NumberKind
	payload []byte
}

type converterState struct {
	Output string `yaml:"output"`
}

// NewConverter creates a converter producing int8.
func NewConverter() *Converter {
	c := &Converter{inKind: Int8, outKind: Int8}
	c.node = newNode("convert-number", "Convert Number", c)
	c.in = c.node.AddItem("input", graph.ModeSink)
	c.out = c.node.AddItem("output", graph.ModeSource)
	c.out.SetKey(c.outKind.Key())
	c.payload = c.outKind.Encode(0)

	adoptRemoteKey(c.in, func(k NumberKind) { c.inKind = k })
	onIncoming(c.in, c.input)
	onConnected(c.out, func(*graph.Socket) { c.output() })
	return c
}

// Node returns the graph node.
func (c *Converter) Node() *graph.Node { return c.node }

// InputKind returns the kind the input is currently read as.
func (c *Converter) InputKind() NumberKind { return c.inKind }

// OutputKind returns the kind written to the output.
func (c *Converter) OutputKind() NumberKind { return c.outKind }

// SetOutputKind changes the output encoding. The output key follows, which
// drops downstream sinks that no longer match.
func (c *Converter) SetOutputKind(k NumberKind) {
	if v, ok := c.outKind.Decode(c.payload); ok {
		c.payload = k.Encode(v)
	}
	c.outKind = k
	c.out.SetKey(k.Key())
}

func (c *Converter) input(p []byte) {
	v, ok := c.inKind.Decode(p)
	if !ok {
		return
	}
	c.payload = c.outKind.Encode(v)
	c.output()
}

func (c *Converter) output() {
	c.out.Write(c.payload)
}

// ExportState implements graph.StateExporter.
func (c *Converter) ExportState() ([]byte, error) {
	return exportYAML(converterState{Output: c.outKind.String()})
}

// ApplyState implements graph.StateExporter.
func (c *Converter) ApplyState(blob []byte) error {
	st := converterState{Output: c.outKind.String()}
	if err := applyYAML(blob, &st); err != nil {
		return err
	}
	k, err := ParseNumberKind(st.Output)
	if err != nil {
		return err
	}
	c.SetOutputKind(k)
	return nil
}

// Display shows the last number it received.
type Display struct {
	node *graph.Node
	in   *graph.Socket
	kind NumberKind
	text string
	seen int
}

// NewDisplay creates a number display.
func NewDisplay() *Display {
	d := &Display{kind: Int8}
	d.node = newNode("show-number", "Show Number", d)
	d.in = d.node.AddItem("input", graph.ModeSink)
	adoptRemoteKey(d.in, func(k NumberKind) { d.kind = k })
	onIncoming(d.in, d.input)
	return d
}

// Node returns the graph node.
func (d *Display) Node() *graph.Node { return d.node }

// Text returns the rendered reading, or "" before the first payload.
func (d *Display) Text() string { return d.text }

// Received returns how many readings have been shown.
func (d *Display) Received() int { return d.seen }

func (d *Display) input(p []byte) {
	v, ok := d.kind.Decode(p)
	if !ok {
		return
	}
	d.text = d.kind.Format(v)
	d.seen++
}
