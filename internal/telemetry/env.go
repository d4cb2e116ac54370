package telemetry

import (
	"os"
	"strconv"
	"strings"
)

// OptionsFromEnv reads the telemetry environment variables into
// Options. Values read here are stable-by-contract.
func OptionsFromEnv() Options {
	return Options{
		OptOut:     truthy(os.Getenv("TELEMETRY_OPTOUT")) || truthy(os.Getenv("PLATFORM_TELEMETRY_OPTOUT")),
		SampleRate: sampleRateFromEnv(os.Getenv("TELEMETRY_SAMPLE_RATE")),
	}
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true":
		return true
	default:
		return false
	}
}

// sampleRateFromEnv parses TELEMETRY_SAMPLE_RATE, clamping to [0,1] and
// defaulting to 0 (no sampling) on an empty or unparseable value.
func sampleRateFromEnv(v string) float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
