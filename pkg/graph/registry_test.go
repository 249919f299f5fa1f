package graph

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterImpl struct {
	value string
	fail  bool
}

func (c *counterImpl) ExportState() ([]byte, error) {
	if c.fail {
		return nil, errors.New("boom")
	}
	return []byte(c.value), nil
}

func (c *counterImpl) ApplyState(blob []byte) error {
	if string(blob) == "bad" {
		return errors.New("bad state")
	}
	c.value = string(blob)
	return nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("gate", newGate))
	assert.Error(t, r.Register("gate", newGate))
	assert.Error(t, r.Register("", newGate))
	assert.Error(t, r.Register("nil", nil))
	r.MustRegister("blank", func() *Node { return NewNode("whatever") })

	assert.Equal(t, []string{"blank", "gate"}, r.Names())
	assert.True(t, r.Has("gate"))

	n, err := r.New("blank")
	require.NoError(t, err)
	assert.Equal(t, "blank", n.TypeName(), "registry name overrides constructor name")

	_, err = r.New("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownType))

	assert.Panics(t, func() { r.MustRegister("gate", newGate) })
}

func TestStateCapability(t *testing.T) {
	plain := NewNode("plain")
	blob, ok, err := ExportState(plain)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, blob)
	assert.NoError(t, ApplyState(plain, []byte("ignored")))

	impl := &counterImpl{value: "42"}
	n := NewNode("counter")
	n.SetImpl(impl)

	blob, ok, err = ExportState(n)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", string(blob))

	require.NoError(t, ApplyState(n, []byte("7")))
	assert.Equal(t, "7", impl.value)
	assert.Error(t, ApplyState(n, []byte("bad")))

	impl.fail = true
	_, _, err = ExportState(n)
	assert.Error(t, err)
}
