// Package engineboot wires the engine's caches, router, and transport
// together from a config.Config, shared by cmd/coordinator and
// cmd/workernode so neither entry point duplicates construction logic.
package engineboot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/buildmesh/enginecore/internal/config"
	"github.com/buildmesh/enginecore/internal/configcache"
	"github.com/buildmesh/enginecore/internal/core"
	"github.com/buildmesh/enginecore/internal/requestengine"
	"github.com/buildmesh/enginecore/internal/resultscache"
	"github.com/buildmesh/enginecore/internal/telemetry"
)

// Engine bundles the long-lived components a process needs, regardless
// of whether it runs as the coordinator (central) or a worker node.
type Engine struct {
	Config       *config.Config
	ConfigCache  *configcache.Cache
	ResultsCache *resultscache.Cache
	Telemetry    *telemetry.Service
	TelemetryMetrics *telemetry.Metrics
	Logger       *slog.Logger
	redisClient  *redis.Client
	sqliteSpill  *configcache.SQLiteSpillBackend
}

// Build constructs the cache layer per cfg.Profile: Lite keeps both
// caches in memory only; Standard additionally backs the Results Cache
// with Redis.
func Build(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{Config: cfg, Logger: logger}

	var remote resultscache.RemoteBackend
	if cfg.IsStandardProfile() {
		e.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err := e.redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Cache.RedisAddr, err)
		}
		remote = resultscache.NewRedisBackend(e.redisClient, "enginecore:", 0)
	}
	e.ResultsCache = resultscache.New(cfg.Cache.ResultsCacheCapacity, remote, logger)

	if cfg.IsStandardProfile() && cfg.Cache.SubmissionHistoryDSN != "" {
		history, err := resultscache.NewSubmissionHistorySink(context.Background(), cfg.Cache.SubmissionHistoryDSN, logger)
		if err != nil {
			return nil, err
		}
		if err := history.Migrate(); err != nil {
			history.Close()
			return nil, err
		}
		e.ResultsCache.History = history
	}

	var spill configcache.SpillBackend
	switch {
	case cfg.IsStandardProfile():
		tempRoot := filepath.Join(os.TempDir(), "enginecore-configcache")
		spill = configcache.NewFileSpillBackend(tempRoot, encodeProjectInstance, decodeProjectInstance)
	case cfg.Cache.SQLiteSpillPath != "":
		sqliteSpill, err := configcache.NewSQLiteSpillBackend(cfg.Cache.SQLiteSpillPath, encodeProjectInstance, decodeProjectInstance)
		if err != nil {
			return nil, err
		}
		spill = sqliteSpill
		e.sqliteSpill = sqliteSpill
	}
	e.ConfigCache = configcache.New(spill, logger)

	e.Telemetry = telemetry.NewService(logger)
	e.Telemetry.Initialize(mergeTelemetryOptions(cfg))
	e.TelemetryMetrics = telemetry.NewMetrics("enginecore")

	return e, nil
}

func mergeTelemetryOptions(cfg *config.Config) telemetry.Options {
	opts := telemetry.Options{
		OptOut:            cfg.Telemetry.OptOut,
		SampleRate:        cfg.Telemetry.SampleRate,
		CollectorDSN:      cfg.Telemetry.CollectorDSN,
		HeartbeatInterval: cfg.Telemetry.HeartbeatInterval,
	}
	envOpts := telemetry.OptionsFromEnv()
	if envOpts.OptOut {
		opts.OptOut = true
	}
	if envOpts.SampleRate != 0 {
		opts.SampleRate = envOpts.SampleRate
	}
	return opts
}

// NewRouter creates a requestengine.Router with the local in-proc node
// already registered by requestengine.New; callers add worker nodes as
// they connect (see internal/transport.Server's NodeRegistrar).
func NewRouter() *requestengine.Router {
	return requestengine.NewRouter()
}

// encodeProjectInstance/decodeProjectInstance are placeholders for the
// evaluator-specific (de)serialization the Configuration Cache's spill
// path requires; the evaluator itself is an external collaborator
// this repository does not implement.
func encodeProjectInstance(p core.ProjectInstance) ([]byte, error) {
	return nil, fmt.Errorf("engineboot: no project instance codec configured")
}

func decodeProjectInstance([]byte) (core.ProjectInstance, error) {
	return nil, fmt.Errorf("engineboot: no project instance codec configured")
}

// Close releases any external connections the Engine opened.
func (e *Engine) Close() error {
	if e.ResultsCache != nil && e.ResultsCache.History != nil {
		e.ResultsCache.History.Close()
	}
	if e.sqliteSpill != nil {
		e.sqliteSpill.Close()
	}
	if e.redisClient != nil {
		return e.redisClient.Close()
	}
	return nil
}
