package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/app/bootstrap"
	appconfig "github.com/leadflowhq/whatsapp-ai-platform/internal/config"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/conversation"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/scheduler"
	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

// Cron-style one-shot: zero the rolling 24h nudge counters and exit.
func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	rt, err := bootstrap.NewRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("runtime init failed", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	task := scheduler.NewNudgeResetTask(conversation.NewStore(rt.DB), logger, 0)
	if err := task.RunOnce(ctx); err != nil {
		os.Exit(1)
	}
}
