// Package debounce delays an action until its trigger has been quiet for a
// while.
//
// Every Debouncer owns its timer. Two controllers debouncing unrelated
// inputs never cancel each other's pending action.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs fn once delay has elapsed since the last Trigger
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// New creates a Debouncer for fn
func New(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{
		delay: delay,
		fn:    fn,
	}
}

// NewValidated creates a Debouncer that, once the input settles, loads and
// validates the value with load and hands it to apply. A load error is
// passed to reject instead and nothing is applied.
func NewValidated[T any](delay time.Duration, load func() (T, error), apply func(T), reject func(error)) *Debouncer {
	return New(delay, func() {
		v, err := load()
		if err != nil {
			if reject != nil {
				reject(err)
			}
			return
		}
		apply(v)
	})
}

// Trigger (re)arms the timer. A pending run is pushed back by delay.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Pending returns true if a run is scheduled
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels the pending run. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	// A timer that already fired can't be stopped, so a stale generation
	// means this run was superseded.
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}
