// Package scheduler abstracts the recurring-task re-invocation loop the
// Executor drives for RECURRING tasks, so the loop can run either purely
// in-process (lost on restart, adequate for a single-process deployment) or
// atop a durable workflow engine that survives a process restart, resuming
// the same sleep/retry state.
package scheduler

import (
	"context"
	"time"
)

// Engine drives one recurring task's re-invocation loop from the first
// invocation through cooperative cancellation.
type Engine interface {
	// RunRecurring invokes spec.Invoke, computes the next delay, sleeps, and
	// repeats until spec.NextDelay reports no further run or spec.Cancelled
	// reports true. It blocks until the loop exits and returns the error (if
	// any) from the last failed invocation, or nil on a clean exit.
	RunRecurring(ctx context.Context, spec RecurringSpec) error
}

// RecurringSpec describes a single recurring task's schedule and callback.
// Engines must poll Cancelled at least every PollInterval while sleeping
// between invocations, so cancellation during a long daily-schedule sleep is
// observed promptly rather than at the next firing.
type RecurringSpec struct {
	// ID identifies the recurring task, used as the workflow ID by durable
	// engines so a restart resumes the same logical schedule instead of
	// starting a duplicate.
	ID string
	// PollInterval bounds how often Cancelled is polled during a sleep.
	PollInterval time.Duration
	// Invoke runs one invocation of the task. A non-nil error stops the
	// loop and is returned from RunRecurring.
	Invoke func(ctx context.Context) error
	// NextDelay computes the delay until the next invocation, given the
	// time Invoke last returned. ok=false ends the loop (the schedule is
	// exhausted or malformed).
	NextDelay func(now time.Time) (delay time.Duration, ok bool)
	// Cancelled reports whether the task has been cancelled and the loop
	// should exit without a further invocation.
	Cancelled func(ctx context.Context) bool
}
