package nodes

import (
	"fmt"

	"github.com/chazu/patchbay/pkg/graph"
)

// Encoder packs eight bit inputs into one byte. Input i sets bit i from the
// lowest bit of its payload.
type Encoder struct {
	node *graph.Node
	bits [8]*graph.Socket
	out  *graph.Socket
	val  byte
}

// NewEncoder creates a binary encoder.
func NewEncoder() *Encoder {
	e := &Encoder{}
	e.node = newNode("binary-encode", "Binary Encode", e)
	for i := range e.bits {
		idx := i
		e.bits[i] = e.node.AddItem(fmt.Sprintf("bit%d", i), graph.ModeSink)
		onIncoming(e.bits[i], func(p []byte) { e.input(idx, p) })
	}
	e.out = e.node.AddItem("byte", graph.ModeSource)
	e.out.SetKey(KeyInt8)
	onConnected(e.out, func(*graph.Socket) { e.output() })
	return e
}

// Node returns the graph node.
func (e *Encoder) Node() *graph.Node { return e.node }

// Value returns the encoded byte.
func (e *Encoder) Value() byte { return e.val }

func (e *Encoder) input(idx int, p []byte) {
	if len(p) == 0 {
		return
	}
	e.val &^= 1 << idx
	e.val |= (p[0] & 0x1) << idx
	e.output()
}

func (e *Encoder) output() {
	e.out.Write([]byte{e.val})
}

// Decoder splits the first byte of its input into eight outputs, each
// writing 0 or 1.
type Decoder struct {
	node *graph.Node
	in   *graph.Socket
	bits [8]*graph.Socket
	val  byte
}

// NewDecoder creates a binary decoder.
func NewDecoder() *Decoder {
	d := &Decoder{}
	d.node = newNode("binary-decode", "Binary Decode", d)
	d.in = d.node.AddItem("byte", graph.ModeSink)
	d.in.SetKey(KeyInt8)
	onIncoming(d.in, d.input)
	for i := range d.bits {
		idx := i
		d.bits[i] = d.node.AddItem(fmt.Sprintf("bit%d", i), graph.ModeSource)
		onConnected(d.bits[i], func(*graph.Socket) { d.outputBit(idx) })
	}
	return d
}

// Node returns the graph node.
func (d *Decoder) Node() *graph.Node { return d.node }

// Value returns the last decoded byte.
func (d *Decoder) Value() byte { return d.val }

func (d *Decoder) input(p []byte) {
	if len(p) == 0 {
		return
	}
	d.val = p[0]
	for i := range d.bits {
		d.outputBit(i)
	}
}

func (d *Decoder) outputBit(idx int) {
	d.bits[idx].Write([]byte{(d.val >> idx) & 0x1})
}
