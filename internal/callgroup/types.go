package callgroup

import (
	"context"
	"errors"
	"time"
)

// DefaultDelay is the grace window used when none is configured
const DefaultDelay = 50 * time.Millisecond

// ErrClosed is returned to calls made after Close
var ErrClosed = errors.New("call group closed")

// Result is what a single call eventually receives
type Result[R any] struct {
	Value R
	Err   error
}

// Resolver turns the outcome of a group into the answer for one call.
// It must not block: by the time it runs all group work is done.
type Resolver[A, R any] func(call A) (R, error)

// GroupFunc runs once per sealed group with the calls in arrival order.
// Returning an error fails every call of the group with that error.
type GroupFunc[A, R any] func(ctx context.Context, calls []A) (Resolver[A, R], error)

// Stats are counters since the Grouper was created
type Stats struct {
	Groups uint64
	Calls  uint64
}

// pendingCall is one caller's arguments plus where to send its answer
type pendingCall[A, R any] struct {
	arg        A
	resultChan chan Result[R]
}

// group accumulates the calls of one grace window
type group[A, R any] struct {
	ctx      context.Context
	calls    []*pendingCall[A, R]
	timer    *time.Timer
	openedAt time.Time
}

func (g *group[A, R]) args() []A {
	args := make([]A, len(g.calls))
	for i, c := range g.calls {
		args[i] = c.arg
	}
	return args
}

// fail delivers the same error to every call of the group
func (g *group[A, R]) fail(err error) {
	for _, c := range g.calls {
		c.resultChan <- Result[R]{Err: err}
	}
}
