// Command coordinator runs the central engine process: it hosts the
// Configuration Cache, Results Cache, and Request Engine, accepts
// worker node connections over internal/transport, and serves a debug
// HTTP API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/buildmesh/enginecore/internal/config"
	"github.com/buildmesh/enginecore/internal/core"
	"github.com/buildmesh/enginecore/internal/dump"
	"github.com/buildmesh/enginecore/internal/engineboot"
	"github.com/buildmesh/enginecore/internal/packetprotocol"
	"github.com/buildmesh/enginecore/internal/requestengine"
	"github.com/buildmesh/enginecore/internal/transport"
	"github.com/buildmesh/enginecore/pkg/logger"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

var rootCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Runs the build engine's central coordinator process",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	viper.BindPFlag("config", rootCmd.Flags().Lookup("config"))
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Node.Role = config.RoleCentral

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}).With("component", "coordinator")

	eng, err := engineboot.Build(cfg, log)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer eng.Close()

	dumpWriter := dump.NewWriter(log)

	router := engineboot.NewRouter()
	transportMetrics := transport.NewMetrics("enginecore")

	var requestEngine *requestengine.Engine
	server := transport.NewServer(router, func(nodeID string, t packetprotocol.PacketType, payload []byte) {
		handleNodePacket(requestEngine, log, nodeID, t, payload)
	}, transportMetrics, log)

	requestEngine = requestengine.New(eng.ConfigCache, eng.ResultsCache, router, engineboot.NoopTargetBuilderFactory, server, log)

	mux := server.Router()
	mux.PathPrefix("/debug/swagger/").Handler(httpSwagger.WrapHandler)
	mux.HandleFunc("/debug/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	registerDebugAPI(mux, eng.ConfigCache, eng.ResultsCache, requestEngine)
	mux.Use(logger.RequestLoggingMiddleware(log))

	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	exitCode := 0
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("coordinator listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
			if dump.Enabled() {
				dumpWriter.WriteFailure(internalError(err), time.Now())
			}
			exitCode = 2
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	log.Info("coordinator shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		exitCode = 2
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

// handleNodePacket dispatches inbound packets from a worker node
// connection to the request engine. Only
// BuildResult and LogMessage packets travel node-to-coordinator; every
// other type on this direction is a protocol violation.
func handleNodePacket(eng *requestengine.Engine, log *slog.Logger, nodeID string, t packetprotocol.PacketType, payload []byte) {
	switch t {
	case packetprotocol.PacketTypeBuildResult:
		var pkt packetprotocol.BuildResultPacket
		if err := packetprotocol.Decode(payload, &pkt); err != nil {
			log.Error("failed to decode build result from node", "node_id", nodeID, "error", err)
			return
		}
		eng.HandleBuildResult(nodeID, pkt.BuildResult)
	case packetprotocol.PacketTypeLogMessage:
		var msg packetprotocol.LogMessage
		if err := packetprotocol.Decode(payload, &msg); err != nil {
			log.Error("failed to decode log message from node", "node_id", nodeID, "error", err)
			return
		}
		log.Info("node log event", "node_id", nodeID, "kind", msg.Kind, "message", msg.Message)
	default:
		log.Warn("unexpected packet type from node", "node_id", nodeID, "type", t.String())
	}
}

func internalError(err error) *core.BuildError {
	return core.NewInternalError("%v", err)
}
