// Package telemetry implements the process-wide TelemetryService: a
// single instance acquired once at startup and passed by reference
// rather than reached through a global mutable singleton. Its
// simplified Tracer/Span interface generalizes a Tracer/SimpleTracer
// pair from per-request alert-formatting spans to per-submission
// build spans.
package telemetry

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// State is the TelemetryService lifecycle: "Uninitialized →
// {OptOut | Unsampled | TracerInitialized | CollectorInitialized}".
// Transitions happen only inside Initialize, which is idempotent after
// its first success.
type State int

const (
	StateUninitialized State = iota
	StateOptOut
	StateUnsampled
	StateTracerInitialized
	StateCollectorInitialized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateOptOut:
		return "OptOut"
	case StateUnsampled:
		return "Unsampled"
	case StateTracerInitialized:
		return "TracerInitialized"
	case StateCollectorInitialized:
		return "CollectorInitialized"
	default:
		return "Unknown"
	}
}

// Options configures one Initialize call.
type Options struct {
	OptOut            bool
	SampleRate        float64       // 0..1; ignored if OptOut
	CollectorDSN      string        // non-empty selects StateCollectorInitialized over StateTracerInitialized
	HeartbeatInterval time.Duration // gates Heartbeat; zero means "every call"
}

// Service is the process-wide telemetry handle. The zero value is
// StateUninitialized and emits nothing until Initialize succeeds.
type Service struct {
	mu     sync.Mutex
	state  State
	tracer Tracer
	logger *slog.Logger

	sampleRate float64
	heartbeat  rate.Sometimes
	rng        *rand.Rand
	rngMu      sync.Mutex
}

// NewService creates an uninitialized Service.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger: logger.With("component", "telemetry"),
		state:  StateUninitialized,
		rng:    rand.New(rand.NewSource(1)),
	}
}

// State reports the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialize transitions the service out of Uninitialized exactly once;
// subsequent calls are no-ops that return the state chosen by the first
// call.
func (s *Service) Initialize(opts Options) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized {
		return s.state
	}

	switch {
	case opts.OptOut:
		s.state = StateOptOut
		s.logger.Info("telemetry disabled by opt-out")
	case opts.SampleRate <= 0:
		s.state = StateUnsampled
		s.logger.Info("telemetry sample rate is zero, no tracer created")
	case opts.CollectorDSN != "":
		s.tracer = newSimpleTracer(s.logger)
		s.state = StateCollectorInitialized
		s.logger.Info("telemetry collector initialized", "dsn_set", true)
	default:
		s.tracer = newSimpleTracer(s.logger)
		s.state = StateTracerInitialized
		s.logger.Info("telemetry tracer initialized")
	}

	s.sampleRate = opts.SampleRate
	s.heartbeat = rate.Sometimes{Interval: opts.HeartbeatInterval}
	if opts.HeartbeatInterval <= 0 {
		s.heartbeat = rate.Sometimes{Every: 1}
	}
	return s.state
}

// Sampled draws fresh randomness and reports whether this event should
// be emitted. Always false before Initialize or in OptOut/Unsampled states.
func (s *Service) Sampled() bool {
	s.mu.Lock()
	state := s.state
	sampleRate := s.sampleRate
	s.mu.Unlock()

	if state != StateTracerInitialized && state != StateCollectorInitialized {
		return false
	}
	if sampleRate <= 0 {
		return false
	}
	if sampleRate >= 1 {
		return true
	}

	s.rngMu.Lock()
	draw := s.rng.Float64()
	s.rngMu.Unlock()
	return draw < sampleRate
}

// Heartbeat runs fn at most once per HeartbeatInterval (on every call
// when the interval is zero), gated by rate.Sometimes; calls before the
// interval elapses are no-ops.
func (s *Service) Heartbeat(fn func()) {
	s.heartbeat.Do(fn)
}

// Tracer returns the active tracer, or a no-op tracer if telemetry is
// not emitting (OptOut, Unsampled, or not yet initialized).
func (s *Service) Tracer() Tracer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracer == nil {
		return noopTracer{}
	}
	return s.tracer
}

// StartSpan starts ctx's span iff this event was sampled, otherwise
// returns a no-op span so call sites never branch on Sampled themselves.
func (s *Service) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	if !s.Sampled() {
		return ctx, noopSpan{}
	}
	return s.Tracer().Start(ctx, name)
}
