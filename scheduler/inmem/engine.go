// Package inmem provides a pure in-process scheduler.Engine: the recurring
// loop lives entirely in a single goroutine's call stack and is lost on
// process restart. This is the default engine, adequate for a deployment
// where one process owns all in-flight state.
package inmem

import (
	"context"
	"time"

	"github.com/stockbuddy/orchestrator/scheduler"
)

// Engine runs a RecurringSpec's loop directly on the calling goroutine.
type Engine struct {
	// Now returns the current time; overridden in tests for determinism.
	Now func() time.Time
}

// New constructs an Engine using time.Now.
func New() *Engine {
	return &Engine{Now: time.Now}
}

// RunRecurring implements scheduler.Engine.
func (e *Engine) RunRecurring(ctx context.Context, spec scheduler.RecurringSpec) error {
	now := e.Now
	if now == nil {
		now = time.Now
	}

	for {
		if err := spec.Invoke(ctx); err != nil {
			return err
		}

		delay, ok := spec.NextDelay(now())
		if !ok {
			return nil
		}

		if e.sleepWithCancellation(ctx, spec, delay) {
			return nil
		}

		if spec.Cancelled(ctx) {
			return nil
		}
	}
}

// sleepWithCancellation blocks for delay, polling spec.Cancelled and ctx.Done
// every spec.PollInterval (or less, for the final partial interval) so a
// cancellation observed mid-sleep returns promptly instead of waiting out
// the full delay. Returns true if the sleep was cut short by cancellation.
func (e *Engine) sleepWithCancellation(ctx context.Context, spec scheduler.RecurringSpec, delay time.Duration) bool {
	poll := spec.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}

	remaining := delay
	for remaining > 0 {
		if spec.Cancelled(ctx) {
			return true
		}
		step := poll
		if remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return true
		case <-time.After(step):
		}
		remaining -= step
	}
	return false
}
