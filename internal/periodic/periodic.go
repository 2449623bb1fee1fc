// Package periodic implements PeriodicClosure, a background scheduler
// that runs a closure on a fixed interval, skipping ahead rather than
// queuing up runs when the closure itself takes longer than the
// interval.
//
// Two cases matter:
//
//	closure faster than interval:
//	  |--closure--|     wait     |--closure--|     wait     |
//	  t0          t1   (to t0+I) t0+I
//
//	closure slower than interval (a tick is skipped, never queued):
//	  |------closure------|
//	  t0                  t0+1.5I     next run scheduled for t0+2I,
//	                                  not t0+1.5I and not queued twice
//
// Start() may only be called successfully by one goroutine; Stop() may
// be called concurrently by multiple goroutines and is idempotent.
package periodic

import (
	"sync"
	"sync/atomic"
	"time"
)

// Closure is the unit of work run on each tick.
type Closure func()

// PeriodicClosure runs a Closure on a fixed interval in a background
// goroutine, with an optional one-time startup delay before the first
// run.
type PeriodicClosure struct {
	interval     time.Duration
	startupDelay time.Duration
	closure      Closure

	started atomic.Bool
	stopped atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

// New constructs a PeriodicClosure. startupDelay may be zero to run
// the first invocation immediately after Start.
func New(interval time.Duration, startupDelay time.Duration, closure Closure) *PeriodicClosure {
	return &PeriodicClosure{
		interval:     interval,
		startupDelay: startupDelay,
		closure:      closure,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start launches the background goroutine. It returns false if the
// closure has already been started (Start is not reentrant).
func (p *PeriodicClosure) Start() bool {
	if !p.started.CompareAndSwap(false, true) {
		return false
	}
	go p.run()
	return true
}

func (p *PeriodicClosure) run() {
	defer close(p.doneCh)

	if p.startupDelay > 0 {
		timer := time.NewTimer(p.startupDelay)
		select {
		case <-timer.C:
		case <-p.stopCh:
			timer.Stop()
			return
		}
	}

	next := time.Now()
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		p.closure()

		// Skip ahead to the earliest multiple of interval strictly
		// after "now": if the closure overran one or more intervals,
		// those ticks are dropped rather than queued.
		now := time.Now()
		next = next.Add(p.interval)
		for !next.After(now) {
			next = next.Add(p.interval)
		}

		wait := next.Sub(now)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-p.stopCh:
			timer.Stop()
			return
		}
	}
}

// Stop signals the background goroutine to exit and waits for it to
// finish. It is safe to call from multiple goroutines concurrently and
// safe to call even if Start was never called.
func (p *PeriodicClosure) Stop() {
	p.once.Do(func() {
		close(p.stopCh)
	})
	if p.started.Load() {
		<-p.doneCh
	}
}
