// Package telemetry holds the logging, metrics, and tracing seams shared by
// the orchestration components. Each seam is a single small interface so the
// components stay decoupled from the clue/OpenTelemetry wiring in the
// entrypoint, and tests can pass the no-op implementations instead of
// configuring providers.
package telemetry

import (
	"context"
	"time"
)

// Logger is the structured logging seam. keyvals alternate string keys and
// arbitrary values, the same shape clue's log.KV takes.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics records counters and durations. tags alternate key and value, one
// pair per dimension.
type Metrics interface {
	// Count adds delta to the named counter.
	Count(name string, delta float64, tags ...string)
	// Observe records d into the named duration histogram.
	Observe(name string, d time.Duration, tags ...string)
}

// Tracer opens a span around an orchestration stage. The returned finish
// function ends the span; passing it a non-nil error marks the span failed
// and records the error.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, func(err error))
}
