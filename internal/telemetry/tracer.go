package telemetry

import (
	"context"
	"log/slog"
	"time"
)

// Tracer starts spans through a simplified OpenTelemetry-compatible
// interface, with span names drawn from submission/request lifecycle
// events.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, Span)
}

// Span is one traced operation.
type Span interface {
	End()
	SetAttributes(attrs map[string]any)
	RecordError(err error)
}

type simpleTracer struct {
	logger *slog.Logger
}

func newSimpleTracer(logger *slog.Logger) Tracer {
	return &simpleTracer{logger: logger}
}

func (t *simpleTracer) Start(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &simpleSpan{name: name, logger: t.logger, start: time.Now()}
}

type simpleSpan struct {
	name  string
	logger *slog.Logger
	start time.Time
}

func (s *simpleSpan) End() {
	s.logger.Debug("span ended", "span", s.name, "duration_ms", time.Since(s.start).Milliseconds())
}

func (s *simpleSpan) SetAttributes(attrs map[string]any) {
	if len(attrs) == 0 {
		return
	}
	args := make([]any, 0, len(attrs)*2)
	for k, v := range attrs {
		args = append(args, k, v)
	}
	s.logger.Debug("span attributes", append([]any{"span", s.name}, args...)...)
}

func (s *simpleSpan) RecordError(err error) {
	s.logger.Warn("span error", "span", s.name, "error", err)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, name string) (context.Context, Span) { return ctx, noopSpan{} }

type noopSpan struct{}

func (noopSpan) End()                            {}
func (noopSpan) SetAttributes(map[string]any)    {}
func (noopSpan) RecordError(error)               {}
