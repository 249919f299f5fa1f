package graph

import "github.com/pkg/errors"

// StateExporter is implemented by node implementations that carry state the
// generic node model does not, such as a timer interval or a numeric range.
type StateExporter interface {
	ExportState() ([]byte, error)
	ApplyState(blob []byte) error
}

// ExportState returns the custom state of n. ok is false when the node
// implementation has no custom state.
func ExportState(n *Node) (blob []byte, ok bool, err error) {
	se, ok := n.impl.(StateExporter)
	if !ok {
		return nil, false, nil
	}
	blob, err = se.ExportState()
	if err != nil {
		return nil, true, errors.Wrapf(err, "export state of %s", n)
	}
	return blob, true, nil
}

// ApplyState hands blob to the node implementation. A node without custom
// state ignores it.
func ApplyState(n *Node, blob []byte) error {
	se, ok := n.impl.(StateExporter)
	if !ok {
		if len(blob) > 0 {
			n.log.Warn("ignoring state for node without custom state", "node", n.String())
		}
		return nil
	}
	if err := se.ApplyState(blob); err != nil {
		return errors.Wrapf(err, "apply state to %s", n)
	}
	return nil
}
