// Command workernode runs a build worker process: it dials the
// coordinator over internal/transport and executes incoming build
// requests locally, streaming results back over the same connection.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/buildmesh/enginecore/internal/config"
	"github.com/buildmesh/enginecore/internal/core"
	"github.com/buildmesh/enginecore/internal/dump"
	"github.com/buildmesh/enginecore/internal/engineboot"
	"github.com/buildmesh/enginecore/internal/requestbuilder"
	"github.com/buildmesh/enginecore/internal/transport"
	"github.com/buildmesh/enginecore/pkg/logger"
)

var (
	configPath      string
	coordinatorAddr string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

var rootCmd = &cobra.Command{
	Use:   "workernode",
	Short: "Runs a build engine worker node process",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.Flags().StringVar(&coordinatorAddr, "coordinator", "", "coordinator host:port (overrides config)")
	viper.BindPFlag("config", rootCmd.Flags().Lookup("config"))
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Node.Role = config.RoleWorker
	if coordinatorAddr != "" {
		cfg.Node.CoordinatorAddr = coordinatorAddr
	}

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}).With("component", "workernode")

	eng, err := engineboot.Build(cfg, log)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer eng.Close()

	dumpWriter := dump.NewWriter(log)
	transportMetrics := transport.NewMetrics("enginecore")
	nodeID := fmt.Sprintf("worker-%d", os.Getpid())

	w := &worker{
		configCache: eng.ConfigCache,
		logger:      log,
	}

	client := transport.NewClient(nodeID, w.handleRequest, transportMetrics, log)
	w.client = client

	if err := client.Dial(cfg.Node.CoordinatorAddr, cfg.Node.MaxCPUCount, false); err != nil {
		return fmt.Errorf("dial coordinator at %s: %w", cfg.Node.CoordinatorAddr, err)
	}

	stop := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
runLoop:
	for {
		runErrCh := make(chan error, 1)
		go func() { runErrCh <- client.Run() }()

		select {
		case err := <-runErrCh:
			log.Warn("connection to coordinator dropped, reconnecting", "error", err)
			if reconnErr := client.ReconnectWithBackoff(cfg.Node.CoordinatorAddr, cfg.Node.MaxCPUCount, false, 30*time.Second, stop); reconnErr != nil {
				log.Error("failed to reconnect to coordinator", "error", reconnErr)
				if dump.Enabled() {
					dumpWriter.WriteFailure(core.NewInternalError("%v", reconnErr), time.Now())
				}
				exitCode = 2
				break runLoop
			}
		case <-quit:
			log.Info("worker node shutting down")
			close(stop)
			break runLoop
		}
	}

	client.Close()
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

// worker drives locally-received build requests through a bare
// requestbuilder.Builder, using engineboot.NoopTargetBuilderFactory in
// place of a real task evaluator. It is the worker-node
// analogue of requestengine.Engine.runLocal, minus the coalescing and
// subrequest-dispatch machinery a single-hop worker does not need.
type worker struct {
	configCache configCacheLookup
	logger      *slog.Logger
	client      *transport.Client
}

// configCacheLookup is the subset of configcache.Cache a worker needs:
// resolving the configuration a coordinator-issued request refers to
// by id, without importing configcache solely for a type name.
type configCacheLookup interface {
	Get(id core.ConfigurationId) (*core.BuildRequestConfiguration, bool)
}

func (w *worker) handleRequest(req *core.BuildRequest) {
	cfg, ok := w.configCache.Get(req.ConfigurationID)
	if !ok {
		result := missingConfigResult(req)
		if err := w.client.SendResult(result); err != nil {
			w.logger.Error("failed to send result to coordinator", "error", err)
		}
		return
	}

	tb := engineboot.NoopTargetBuilderFactory(req, cfg)
	b := requestbuilder.New(req.GlobalRequestID, req, cfg, tb, noopDispatcher{}, requestbuilder.NewCWDGuard(nil), nil, w.logger)

	result := b.Run(context.Background())
	if err := w.client.SendResult(result); err != nil {
		w.logger.Error("failed to send result to coordinator", "error", err)
	}
}

// noopDispatcher never produces subrequests for the noop target builder,
// so DispatchSubrequests is never actually invoked.
type noopDispatcher struct{}

func (noopDispatcher) DispatchSubrequests(b *requestbuilder.Builder, requests []*core.BuildRequest) {
}

func missingConfigResult(req *core.BuildRequest) *core.BuildResult {
	res := core.NewBuildResult(req.ConfigurationID)
	res.GlobalRequestID = req.GlobalRequestID
	res.ParentGlobalRequestID = req.ParentGlobalRequestID
	res.Exception = core.NewInternalError("worker node has no configuration %d cached", req.ConfigurationID)
	for _, name := range req.Targets.Names() {
		res.AddTargetResult(name, &core.TargetResult{WorkUnitResult: core.WorkUnitResult{
			ResultCode: core.ResultCodeFailure,
			ActionCode: core.ActionStop,
		}})
	}
	return res
}
