package config

import (
	"os"
	"strconv"
	"strings"
)

// OverrideFromEnv applies the documented environment variables on top of
// whatever Load already unmarshaled from file/defaults. These names
// are stable by contract and are checked directly rather than through
// viper's automatic binding so they apply regardless of the
// ENGINE_-prefixed keys used for the rest of the config tree.
func (c *Config) OverrideFromEnv() {
	if v, ok := os.LookupEnv("MULTITHREADED"); ok {
		c.Node.Multithreaded = truthy(v)
	}
	if v, ok := os.LookupEnv("DISABLE_IN_PROC_NODE"); ok {
		c.Node.DisableInProcNode = truthy(v)
	}
	if v, ok := os.LookupEnv("DEBUG_PATH"); ok {
		c.Debug.Path = v
	}
	if v, ok := os.LookupEnv("DEBUG_ENGINE"); ok {
		c.Debug.Enable = truthy(v)
	}
	if v, ok := os.LookupEnv("TELEMETRY_OPTOUT"); ok {
		c.Telemetry.OptOut = c.Telemetry.OptOut || truthy(v)
	}
	if v, ok := os.LookupEnv("PLATFORM_TELEMETRY_OPTOUT"); ok {
		c.Telemetry.OptOut = c.Telemetry.OptOut || truthy(v)
	}
	if v, ok := os.LookupEnv("TELEMETRY_SAMPLE_RATE"); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.Telemetry.SampleRate = clamp01(f)
		}
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

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
