package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_OptOutTakesPriority(t *testing.T) {
	s := NewService(nil)
	state := s.Initialize(Options{OptOut: true, SampleRate: 1})
	assert.Equal(t, StateOptOut, state)
	assert.False(t, s.Sampled())
}

func TestService_ZeroSampleRateIsUnsampled(t *testing.T) {
	s := NewService(nil)
	state := s.Initialize(Options{SampleRate: 0})
	assert.Equal(t, StateUnsampled, state)
	assert.False(t, s.Sampled())
}

func TestService_PositiveSampleRateInitializesTracer(t *testing.T) {
	s := NewService(nil)
	state := s.Initialize(Options{SampleRate: 1})
	assert.Equal(t, StateTracerInitialized, state)
	assert.True(t, s.Sampled())
}

func TestService_CollectorDSNSelectsCollectorState(t *testing.T) {
	s := NewService(nil)
	state := s.Initialize(Options{SampleRate: 1, CollectorDSN: "otlp://collector:4317"})
	assert.Equal(t, StateCollectorInitialized, state)
}

func TestService_InitializeIsIdempotentAfterFirstSuccess(t *testing.T) {
	s := NewService(nil)
	first := s.Initialize(Options{SampleRate: 1})
	second := s.Initialize(Options{OptOut: true})
	assert.Equal(t, first, second)
	assert.Equal(t, StateTracerInitialized, second)
}

func TestService_StartSpanIsNoopWhenNotSampled(t *testing.T) {
	s := NewService(nil)
	s.Initialize(Options{SampleRate: 0})
	_, span := s.StartSpan(context.Background(), "op")
	require.NotNil(t, span)
	span.End() // must not panic
}

func TestService_StartSpanUsesRealTracerWhenSampled(t *testing.T) {
	s := NewService(nil)
	s.Initialize(Options{SampleRate: 1})
	_, span := s.StartSpan(context.Background(), "op")
	require.NotNil(t, span)
	span.SetAttributes(map[string]any{"k": "v"})
	span.End()
}

func TestOptionsFromEnv_TelemetryOptoutVariants(t *testing.T) {
	t.Setenv("TELEMETRY_OPTOUT", "true")
	t.Setenv("PLATFORM_TELEMETRY_OPTOUT", "")
	t.Setenv("TELEMETRY_SAMPLE_RATE", "0.5")

	opts := OptionsFromEnv()
	assert.True(t, opts.OptOut)
	assert.Equal(t, 0.5, opts.SampleRate)
}

func TestOptionsFromEnv_SampleRateClampedToUnitInterval(t *testing.T) {
	t.Setenv("TELEMETRY_OPTOUT", "")
	t.Setenv("PLATFORM_TELEMETRY_OPTOUT", "")
	t.Setenv("TELEMETRY_SAMPLE_RATE", "5")

	opts := OptionsFromEnv()
	assert.Equal(t, 1.0, opts.SampleRate)
}
