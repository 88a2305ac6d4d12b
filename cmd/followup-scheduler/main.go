package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/app/bootstrap"
	appconfig "github.com/leadflowhq/whatsapp-ai-platform/internal/config"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/observability/metrics"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/ops"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/scheduler"
	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.NewRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("runtime init failed", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	app, err := bootstrap.BuildEngine(ctx, rt)
	if err != nil {
		logger.Error("engine init failed", "error", err)
		os.Exit(1)
	}

	sweeper := scheduler.NewSweeper(
		app.Scheduled,
		app.Engine,
		metrics.NewSchedulerMetrics(rt.Registry),
		logger,
		scheduler.WithSweepInterval(cfg.FollowupSweepInterval),
		scheduler.WithSweepBatchSize(cfg.FollowupBatchSize),
	)
	sweeper.Start(ctx)

	opsServer := ops.NewServer(cfg.Port, rt.Registry, rt.Ready, logger)
	opsServer.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down follow-up scheduler...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = opsServer.Shutdown(shutdownCtx)

	sweeper.Wait()
	logger.Info("follow-up scheduler stopped")
}
