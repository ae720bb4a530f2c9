// Package schedule holds the two timer shapes the monitor needs: a
// fixed-rate repeat and a wall-clock aligned repeat.
package schedule

import (
	"context"
	"time"
)

// Handle controls one running schedule.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop cancels future runs. It does not interrupt a run already in
// progress and is safe to call more than once or on a nil handle.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.cancel()
}

// Done is closed once the schedule loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Every runs job immediately and then on every tick of a fixed-rate
// ticker until the handle is stopped or ctx is done.
//
// Ticks are spaced from the start of the schedule, not from the end of
// the previous run: each run gets its own goroutine, so a slow run never
// delays the next one and two runs may overlap.
func Every(ctx context.Context, interval time.Duration, job func()) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		go job()
		for {
			select {
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				go job()
			case <-ctx.Done():
				return
			}
		}
	}()

	return h
}

// AtThenEvery runs job once at first and then every period after that.
// The first run pins the phase to the wall clock, so restarts of the
// process do not make the schedule drift. Runs are sequential.
func AtThenEvery(ctx context.Context, first time.Time, period time.Duration, job func()) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)

		timer := time.NewTimer(time.Until(first))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}

		job()

		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				job()
			case <-ctx.Done():
				return
			}
		}
	}()

	return h
}

// NextDaily returns the next hour:minute strictly after now, in now's
// location.
func NextDaily(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
