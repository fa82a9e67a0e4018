package telemetry

import (
	"context"
	"time"
)

// NoopLogger discards every log message. The default for tests.
type NoopLogger struct{}

func (NoopLogger) Debug(context.Context, string, ...any) {}

func (NoopLogger) Info(context.Context, string, ...any) {}

func (NoopLogger) Warn(context.Context, string, ...any) {}

func (NoopLogger) Error(context.Context, string, ...any) {}

// NoopMetrics discards every recording.
type NoopMetrics struct{}

func (NoopMetrics) Count(string, float64, ...string) {}

func (NoopMetrics) Observe(string, time.Duration, ...string) {}

// NoopTracer opens no spans; the finish function it returns does nothing.
type NoopTracer struct{}

func (NoopTracer) Start(ctx context.Context, _ string) (context.Context, func(error)) {
	return ctx, func(error) {}
}
