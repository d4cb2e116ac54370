// Package config loads engine configuration from file and environment,
// using a viper/mapstructure nested-struct shape with the engine's own
// sections: node role and concurrency, cache backing, logging,
// telemetry, and debug dump behavior.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DeploymentProfile selects the storage topology for the Configuration
// and Results caches: a Lite/Standard split.
type DeploymentProfile string

const (
	// ProfileLite keeps both caches in memory only, no Redis/Postgres.
	ProfileLite DeploymentProfile = "lite"

	// ProfileStandard additionally gives the Results Cache a Redis
	// remote tier and spills the Configuration Cache to files under the
	// process temp directory, for multi-node deployments.
	ProfileStandard DeploymentProfile = "standard"
)

// Config is the root configuration object, unmarshaled by viper.
type Config struct {
	Profile DeploymentProfile `mapstructure:"profile"`

	Node      NodeConfig      `mapstructure:"node"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Debug     DebugConfig     `mapstructure:"debug"`
	Server    ServerConfig    `mapstructure:"server"`
}

// NodeRole distinguishes the coordinating process from a worker node
// process.
type NodeRole string

const (
	RoleCentral NodeRole = "central"
	RoleWorker  NodeRole = "worker"
)

// NodeConfig carries per-process build-node settings.
type NodeConfig struct {
	Role              NodeRole      `mapstructure:"role"`
	MaxCPUCount       int           `mapstructure:"max_cpu_count"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	Multithreaded     bool          `mapstructure:"multithreaded"`
	DisableInProcNode bool          `mapstructure:"disable_in_proc_node"`
	CoordinatorAddr   string        `mapstructure:"coordinator_addr"`
}

// CacheConfig holds Configuration/Results Cache sizing and remote-tier
// settings for the Standard profile.
type CacheConfig struct {
	ResultsCacheCapacity int           `mapstructure:"results_cache_capacity"`
	ConfigCacheCapacity  int           `mapstructure:"config_cache_capacity"`
	RedisAddr            string        `mapstructure:"redis_addr"`
	RedisPassword        string        `mapstructure:"redis_password"`
	RedisDB              int           `mapstructure:"redis_db"`
	CompactionInterval   time.Duration `mapstructure:"compaction_interval"`

	// SubmissionHistoryDSN, if set, points the Standard profile's
	// submission-history sink at a Postgres instance. Empty disables
	// the sink; it is purely additive and never required.
	SubmissionHistoryDSN string `mapstructure:"submission_history_dsn"`

	// SQLiteSpillPath, if set, gives the Lite profile's Configuration
	// Cache a modernc.org/sqlite spill database at this path. Without it
	// the Lite profile does not spill.
	SQLiteSpillPath string `mapstructure:"sqlite_spill_path"`
}

// LogConfig mirrors pkg/logger.Config's shape.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// TelemetryConfig seeds telemetry.Options; environment variables
// always take precedence over file/defaults (see OverrideFromEnv).
type TelemetryConfig struct {
	OptOut            bool          `mapstructure:"optout"`
	SampleRate        float64       `mapstructure:"sample_rate"`
	CollectorDSN      string        `mapstructure:"collector_dsn"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// DebugConfig seeds dump.Writer; environment variables always take precedence.
type DebugConfig struct {
	Path   string `mapstructure:"path"`
	Enable bool   `mapstructure:"enable"`
}

// ServerConfig configures the coordinator's node-transport and debug
// HTTP listener.
type ServerConfig struct {
	ListenAddr   string        `mapstructure:"listen_addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Load reads configuration from configPath (if non-empty) layered over
// defaults, then environment variables, then validates. An absent
// config file is not an error; defaults and environment apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.OverrideFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("profile", "lite")

	v.SetDefault("node.role", "central")
	v.SetDefault("node.max_cpu_count", 1)
	v.SetDefault("node.heartbeat_interval", "30s")
	v.SetDefault("node.multithreaded", false)
	v.SetDefault("node.disable_in_proc_node", false)
	v.SetDefault("node.coordinator_addr", "localhost:9190")

	v.SetDefault("cache.results_cache_capacity", 1024)
	v.SetDefault("cache.config_cache_capacity", 1024)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.compaction_interval", "5m")
	v.SetDefault("cache.submission_history_dsn", "")
	v.SetDefault("cache.sqlite_spill_path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("telemetry.optout", false)
	v.SetDefault("telemetry.sample_rate", 0)
	v.SetDefault("telemetry.heartbeat_interval", "1m")

	v.SetDefault("debug.path", "")
	v.SetDefault("debug.enable", false)

	v.SetDefault("server.listen_addr", ":9190")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
}

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	if c.Profile != ProfileLite && c.Profile != ProfileStandard {
		return fmt.Errorf("invalid deployment profile: %s (must be 'lite' or 'standard')", c.Profile)
	}
	if c.Node.Role != RoleCentral && c.Node.Role != RoleWorker {
		return fmt.Errorf("invalid node role: %s (must be 'central' or 'worker')", c.Node.Role)
	}
	if c.Node.Role == RoleWorker && c.Node.MaxCPUCount <= 0 {
		return fmt.Errorf("node.max_cpu_count must be positive for a worker node")
	}
	if c.Profile == ProfileStandard && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache.redis_addr is required for the standard profile")
	}
	if c.Log.Level == "" {
		return fmt.Errorf("log level cannot be empty")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be within [0,1]")
	}
	return nil
}

// IsLiteProfile reports whether the cache layer stays in-memory only.
func (c *Config) IsLiteProfile() bool {
	return c.Profile == ProfileLite
}

// IsStandardProfile reports whether the Standard profile (Redis remote
// tier, file spill) is selected.
func (c *Config) IsStandardProfile() bool {
	return c.Profile == ProfileStandard
}
