// cmd/worker-manager/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nlquery-agent/internal/app"
	"nlquery-agent/internal/common/camunda"
	"nlquery-agent/internal/common/config"
	"nlquery-agent/internal/common/logger"
	"nlquery-agent/internal/mcp"
	"nlquery-agent/internal/models"
	"nlquery-agent/internal/server"
	aq "nlquery-agent/internal/workers/nlquery/answer-question"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log, app.Options{
		ConnectAttempts: 10,
		RetryDelay:      2 * time.Second,
	})
	if err != nil {
		zapLog.Fatal("bootstrap failed", zap.Error(err))
	}
	defer application.Close(context.Background())

	defaultBackend, err := models.ParseBackend(cfg.Pipeline.DefaultBackend)
	if err != nil {
		zapLog.Fatal("invalid default backend", zap.Error(err))
	}
	if !application.Pipeline.Supports(defaultBackend) {
		zapLog.Warn("default backend is not configured", zap.String("backend", string(defaultBackend)))
	}

	// --- Zeebe job worker ---
	var (
		zeebe  *camunda.Client
		worker *camunda.CamundaWorker
	)
	if cfg.Camunda.Enabled && config.IsWorkerEnabled(cfg, aq.TaskType) {
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			RetryConfig: &camunda.RetryConfig{
				MaxRetries: 10,
				BaseDelay:  2 * time.Second,
				MaxDelay:   30 * time.Second,
			},
		})
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")

		workerCfg := aq.LoadConfig(cfg)
		handler := aq.NewHandler(workerCfg, application.Pipeline, log).WithObservability(application.Observability)
		worker = camunda.NewWorker(zeebe.GetClient(), aq.TaskType, workerCfg.MaxJobsActive, workerCfg.Timeout, handler, log)
		worker.Start()
	} else {
		zapLog.Info("Camunda worker disabled")
	}

	checks := make(map[string]server.Check)
	for name, check := range application.Checks() {
		checks[name] = check
	}
	if zeebe != nil {
		checks["zeebe"] = zeebe.HealthCheck
	}

	// --- HTTP API ---
	httpServer := server.New(cfg.Server, checks, log,
		server.NewAnswerService(application.Pipeline, defaultBackend, config.GetDuration(cfg.Server.RequestTimeout), log),
	)
	go func() {
		if err := httpServer.Start(); err != nil {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// --- MCP tools ---
	var mcpServer *mcp.Server
	if cfg.MCP.Enabled {
		mcpServer = mcp.NewServer(cfg.MCP, cfg.App.Version, &mcp.ToolDeps{
			Pipeline:       application.Pipeline,
			DefaultBackend: defaultBackend,
			Logger:         log,
		})
		go func() {
			if err := mcpServer.Start(); err != nil {
				zapLog.Error("MCP server failed", zap.Error(err))
			}
		}()
	}

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if worker != nil {
		worker.Stop(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}
	if mcpServer != nil {
		if err := mcpServer.Shutdown(shutdownCtx); err != nil {
			zapLog.Error("Error stopping MCP server", zap.Error(err))
		}
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Worker manager stopped gracefully")
}
