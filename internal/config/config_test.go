package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.WorkerCount != 2 {
		t.Fatalf("expected default worker count 2, got %d", cfg.WorkerCount)
	}
	if cfg.FollowupSweepInterval != 60*time.Second {
		t.Fatalf("expected 60s sweep interval, got %s", cfg.FollowupSweepInterval)
	}
	if cfg.EmbeddingDimensions != 768 {
		t.Fatalf("expected 768 embedding dimensions, got %d", cfg.EmbeddingDimensions)
	}
}

func TestGetEnvOverrides(t *testing.T) {
	t.Setenv("WORKER_COUNT", "7")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("VECTOR_SCORE_THRESHOLD", "0.5")
	t.Setenv("LLM_RETRY_BASE_WAIT", "2s")

	cfg := Load()
	if cfg.WorkerCount != 7 {
		t.Fatalf("expected worker count 7, got %d", cfg.WorkerCount)
	}
	if !cfg.UseMemoryQueue {
		t.Fatal("expected memory queue to be enabled")
	}
	if cfg.VectorScoreThreshold != 0.5 {
		t.Fatalf("expected threshold 0.5, got %f", cfg.VectorScoreThreshold)
	}
	if cfg.LLMRetryBaseWait != 2*time.Second {
		t.Fatalf("expected 2s retry base, got %s", cfg.LLMRetryBaseWait)
	}
}

func TestGetEnvAsIntIgnoresGarbage(t *testing.T) {
	t.Setenv("WORKER_COUNT", "not-a-number")
	cfg := Load()
	if cfg.WorkerCount != 2 {
		t.Fatalf("expected fallback 2, got %d", cfg.WorkerCount)
	}
}
