package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsProduceValidLiteConfig(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ProfileLite, cfg.Profile)
	assert.Equal(t, RoleCentral, cfg.Node.Role)
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.IsLiteProfile())
}

func TestLoad_ReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	content := []byte(`
profile: standard
node:
  role: worker
  max_cpu_count: 4
cache:
  redis_addr: localhost:6379
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ProfileStandard, cfg.Profile)
	assert.Equal(t, RoleWorker, cfg.Node.Role)
	assert.Equal(t, 4, cfg.Node.MaxCPUCount)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.True(t, cfg.IsStandardProfile())
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ProfileLite, cfg.Profile)
}

func TestValidate_StandardProfileRequiresRedisAddr(t *testing.T) {
	cfg := &Config{
		Profile: ProfileStandard,
		Node:    NodeConfig{Role: RoleCentral},
		Log:     LogConfig{Level: "info"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis_addr")
}

func TestValidate_WorkerRequiresPositiveMaxCPUCount(t *testing.T) {
	cfg := &Config{
		Profile: ProfileLite,
		Node:    NodeConfig{Role: RoleWorker, MaxCPUCount: 0},
		Log:     LogConfig{Level: "info"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_cpu_count")
}

func TestValidate_RejectsUnknownProfile(t *testing.T) {
	cfg := &Config{Profile: "bogus", Node: NodeConfig{Role: RoleCentral}, Log: LogConfig{Level: "info"}}
	require.Error(t, cfg.Validate())
}

func TestOverrideFromEnv_EnvVarsTakePrecedence(t *testing.T) {
	t.Setenv("MULTITHREADED", "true")
	t.Setenv("DISABLE_IN_PROC_NODE", "1")
	t.Setenv("DEBUG_PATH", "/tmp/dumps")
	t.Setenv("DEBUG_ENGINE", "true")
	t.Setenv("TELEMETRY_OPTOUT", "")
	t.Setenv("PLATFORM_TELEMETRY_OPTOUT", "true")
	t.Setenv("TELEMETRY_SAMPLE_RATE", "2.5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Node.Multithreaded)
	assert.True(t, cfg.Node.DisableInProcNode)
	assert.Equal(t, "/tmp/dumps", cfg.Debug.Path)
	assert.True(t, cfg.Debug.Enable)
	assert.True(t, cfg.Telemetry.OptOut)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)
}
