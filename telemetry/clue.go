package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

// scope names the instrumentation for the OTEL meter and tracer.
const scope = "github.com/stockbuddy/orchestrator"

// ClueLogger is the production Logger: it forwards to goa.design/clue/log,
// which reads its format and debug settings from the context (log.Context,
// log.WithFormat, log.WithDebug).
type ClueLogger struct{}

// NewClueLogger returns the clue-backed Logger.
func NewClueLogger() Logger {
	return ClueLogger{}
}

func (ClueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, clueFields(msg, keyvals)...)
}

func (ClueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, clueFields(msg, keyvals)...)
}

func (ClueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	log.Warn(ctx, clueFields(msg, keyvals)...)
}

func (ClueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	log.Error(ctx, nil, clueFields(msg, keyvals)...)
}

// clueFields turns a message plus alternating keyvals into clue fielders.
// A trailing odd value is kept under the "value" key rather than dropped.
func clueFields(msg string, keyvals []any) []log.Fielder {
	out := make([]log.Fielder, 0, len(keyvals)/2+2)
	out = append(out, log.KV{K: "msg", V: msg})
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 >= len(keyvals) {
			out = append(out, log.KV{K: "value", V: keyvals[i]})
			break
		}
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		out = append(out, log.KV{K: key, V: keyvals[i+1]})
	}
	return out
}

// OTELMetrics is the production Metrics: counters and duration histograms on
// the global OTEL MeterProvider (configured in the entrypoint via
// clue.ConfigureOpenTelemetry or otel.SetMeterProvider). Instruments are
// created once per name and reused.
type OTELMetrics struct {
	meter metric.Meter

	mu       sync.Mutex
	counters map[string]metric.Float64Counter
	timers   map[string]metric.Float64Histogram
}

// NewOTELMetrics returns a Metrics recorder on the global MeterProvider.
func NewOTELMetrics() *OTELMetrics {
	return &OTELMetrics{
		meter:    otel.Meter(scope),
		counters: make(map[string]metric.Float64Counter),
		timers:   make(map[string]metric.Float64Histogram),
	}
}

// Count implements Metrics.
func (m *OTELMetrics) Count(name string, delta float64, tags ...string) {
	m.mu.Lock()
	counter, ok := m.counters[name]
	if !ok {
		var err error
		counter, err = m.meter.Float64Counter(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.counters[name] = counter
	}
	m.mu.Unlock()
	counter.Add(context.Background(), delta, metric.WithAttributes(tagAttributes(tags)...))
}

// Observe implements Metrics, recording d in seconds.
func (m *OTELMetrics) Observe(name string, d time.Duration, tags ...string) {
	m.mu.Lock()
	timer, ok := m.timers[name]
	if !ok {
		var err error
		timer, err = m.meter.Float64Histogram(name, metric.WithUnit("s"))
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.timers[name] = timer
	}
	m.mu.Unlock()
	timer.Record(context.Background(), d.Seconds(), metric.WithAttributes(tagAttributes(tags)...))
}

func tagAttributes(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	return attrs
}

// OTELTracer is the production Tracer, on the global OTEL TracerProvider.
type OTELTracer struct {
	tracer trace.Tracer
}

// NewOTELTracer returns a Tracer on the global TracerProvider.
func NewOTELTracer() *OTELTracer {
	return &OTELTracer{tracer: otel.Tracer(scope)}
}

// Start implements Tracer. The finish function ends the span; a non-nil
// error marks the span's status Error and records it.
func (t *OTELTracer) Start(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
