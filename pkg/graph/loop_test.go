package graph

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunPending(t *testing.T) {
	l := NewLoop()
	var order []int
	l.Post(func() { order = append(order, 1) })
	l.Post(func() {
		order = append(order, 2)
		l.Post(func() { order = append(order, 3) })
	})

	assert.Equal(t, 3, l.RunPending())
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, l.RunPending())
}

func TestLoopRunUntilCancelled(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())

	var ran atomic.Int32
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	l.Post(func() { ran.Add(1) })
	l.Post(func() { ran.Add(1); cancel() })

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Equal(t, int32(2), ran.Load())

	l.Post(func() { ran.Add(1) })
	assert.Equal(t, 0, l.RunPending(), "posts after Run returns are dropped")
}

func TestLoopEvery(t *testing.T) {
	l := NewLoop()
	var ticks atomic.Int32
	stop := l.Every(5*time.Millisecond, func() { ticks.Add(1) })

	require.Eventually(t, func() bool {
		l.RunPending()
		return ticks.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	stop()
	stop()
	l.RunPending()
	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	l.RunPending()
	assert.Equal(t, after, ticks.Load())
}
