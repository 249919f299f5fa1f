package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/chazu/patchbay/pkg/graph"
)

// EvalTimeout is the default limit for a single evaluation.
const EvalTimeout = 5 * time.Second

// evalResult is the internal type used to pass evaluation results through channels.
type evalResult struct {
	view   *graph.View
	errors []EvalError
	err    error
}

// waitWithTimeout waits for a result from ch, but returns a timeout error
// if the evaluation exceeds timeout. It uses a generation counter to
// discard stale results from previous evaluations.
//
// On timeout, the goroutine may still be running. abandoned is closed so it
// tears down its view instead of delivering it.
func waitWithTimeout(
	ch <-chan evalResult,
	abandoned chan<- struct{},
	gen uint64,
	timeout time.Duration,
	mu *sync.Mutex,
	currentGen *uint64,
) (*graph.View, []EvalError, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		mu.Lock()
		current := *currentGen
		mu.Unlock()

		if gen != current {
			if res.view != nil {
				res.view.Clear()
			}
			return nil, nil, fmt.Errorf("evaluation superseded by newer request")
		}

		return res.view, res.errors, res.err

	case <-timer.C:
		close(abandoned)
		return nil, nil, fmt.Errorf("evaluation timed out after %s", timeout)
	}
}
