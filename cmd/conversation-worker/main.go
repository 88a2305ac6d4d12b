package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/app/bootstrap"
	appconfig "github.com/leadflowhq/whatsapp-ai-platform/internal/config"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/conversation"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/ops"
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

	jobs := conversation.NewJobStore(dynamodb.NewFromConfig(rt.AWS), cfg.PipelineJobsTable, logger)
	workerOpts := []conversation.WorkerOption{
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithJobTracker(jobs),
	}

	var worker *conversation.Worker
	if cfg.UseMemoryQueue {
		logger.Warn("using in-memory queue, messages are lost on restart")
		worker = conversation.NewWorker(app.Engine, conversation.NewMemoryQueue(256), logger, workerOpts...)
	} else {
		sqsQueue := conversation.NewSQSQueue(sqs.NewFromConfig(rt.AWS), cfg.InboundQueueURL)
		worker = conversation.NewWorker(app.Engine, sqsQueue, logger, workerOpts...)
	}
	worker.Start(ctx)

	opsServer := ops.NewServer(cfg.Port, rt.Registry, rt.Ready, logger)
	opsServer.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down conversation worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = opsServer.Shutdown(shutdownCtx)

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-shutdownCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", shutdownCtx.Err())
	}
}
