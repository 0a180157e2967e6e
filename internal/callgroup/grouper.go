package callgroup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Grouper coalesces calls into groups sealed after a grace window
type Grouper[A, R any] struct {
	fn     GroupFunc[A, R]
	logger zerolog.Logger

	mu      sync.Mutex
	delay   time.Duration
	pending *group[A, R]
	closed  bool
	running sync.WaitGroup

	groups atomic.Uint64
	calls  atomic.Uint64
}

// New creates a Grouper. A non-positive delay means DefaultDelay.
func New[A, R any](delay time.Duration, fn GroupFunc[A, R], logger zerolog.Logger) *Grouper[A, R] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Grouper[A, R]{
		fn:     fn,
		delay:  delay,
		logger: logger.With().Str("component", "callgroup").Logger(),
	}
}

// Call adds a call to the open group, opening one if needed, and returns a
// channel that receives exactly one Result. Call never blocks on the group.
func (g *Grouper[A, R]) Call(ctx context.Context, arg A) <-chan Result[R] {
	resultChan := make(chan Result[R], 1)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		resultChan <- Result[R]{Err: ErrClosed}
		return resultChan
	}

	grp := g.pending
	if grp == nil {
		// The group outlives the caller that opened it
		grp = &group[A, R]{
			ctx:      context.WithoutCancel(ctx),
			openedAt: time.Now(),
		}
		g.pending = grp
		grp.timer = time.AfterFunc(g.delay, func() { g.seal(grp) })
	}
	grp.calls = append(grp.calls, &pendingCall[A, R]{arg: arg, resultChan: resultChan})
	g.mu.Unlock()

	g.calls.Add(1)
	return resultChan
}

// Do calls and waits for the answer. If ctx ends first Do returns ctx.Err();
// the call itself stays in its group.
func (g *Grouper[A, R]) Do(ctx context.Context, arg A) (R, error) {
	select {
	case res := <-g.Call(ctx, arg):
		return res.Value, res.Err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Delay returns the current grace window
func (g *Grouper[A, R]) Delay() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.delay
}

// SetDelay changes the grace window of groups opened from now on
func (g *Grouper[A, R]) SetDelay(delay time.Duration) {
	if delay <= 0 {
		delay = DefaultDelay
	}
	g.mu.Lock()
	g.delay = delay
	g.mu.Unlock()
}

// Flush seals the open group now and runs it before returning
func (g *Grouper[A, R]) Flush() {
	g.mu.Lock()
	grp := g.take()
	g.mu.Unlock()

	if grp != nil {
		defer g.running.Done()
		g.run(grp)
	}
}

// Close flushes the open group, waits for running groups and rejects
// further calls with ErrClosed
func (g *Grouper[A, R]) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	grp := g.take()
	g.mu.Unlock()

	if grp != nil {
		g.run(grp)
		g.running.Done()
	}
	g.running.Wait()

	g.logger.Debug().Msg("call group closed")
}

// Stats returns the counters
func (g *Grouper[A, R]) Stats() Stats {
	return Stats{
		Groups: g.groups.Load(),
		Calls:  g.calls.Load(),
	}
}

// take detaches the open group. Must be called with g.mu held.
func (g *Grouper[A, R]) take() *group[A, R] {
	grp := g.pending
	if grp == nil {
		return nil
	}
	g.pending = nil
	grp.timer.Stop()
	g.running.Add(1)
	return grp
}

// seal is the timer callback of a group
func (g *Grouper[A, R]) seal(grp *group[A, R]) {
	g.mu.Lock()
	if g.pending != grp {
		// Flushed or closed in the meantime
		g.mu.Unlock()
		return
	}
	g.pending = nil
	g.running.Add(1)
	g.mu.Unlock()

	defer g.running.Done()
	g.run(grp)
}

// run executes a sealed group and answers every call
func (g *Grouper[A, R]) run(grp *group[A, R]) {
	g.groups.Add(1)

	g.logger.Debug().
		Int("calls", len(grp.calls)).
		Dur("window", time.Since(grp.openedAt)).
		Msg("executing group")

	resolver, err := g.invoke(grp)
	if err != nil {
		g.logger.Debug().Err(err).Int("calls", len(grp.calls)).Msg("group failed")
		grp.fail(err)
		return
	}

	for _, c := range grp.calls {
		if resolver == nil {
			c.resultChan <- Result[R]{}
			continue
		}
		value, err := resolve(resolver, c.arg)
		c.resultChan <- Result[R]{Value: value, Err: err}
	}

	g.logger.Debug().
		Int("calls", len(grp.calls)).
		Dur("elapsed", time.Since(grp.openedAt)).
		Msg("group completed")
}

// invoke runs the group function, turning a panic into an error
func (g *Grouper[A, R]) invoke(grp *group[A, R]) (resolver Resolver[A, R], err error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error().Interface("panic", r).Msg("group function panicked")
			err = fmt.Errorf("call group panicked: %v", r)
		}
	}()
	return g.fn(grp.ctx, grp.args())
}

// resolve applies the resolver to a single call, turning a panic into an error
func resolve[A, R any](resolver Resolver[A, R], arg A) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("call resolver panicked: %v", r)
		}
	}()
	return resolver(arg)
}
