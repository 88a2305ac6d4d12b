package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/leadflowhq/whatsapp-ai-platform/internal/config"
	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

// Runtime holds the process-wide connections every binary wires once at
// startup and closes on shutdown.
type Runtime struct {
	Config   *appconfig.Config
	Logger   *logging.Logger
	DB       *pgxpool.Pool
	SQLDB    *sql.DB
	Redis    *redis.Client
	AWS      aws.Config
	Registry *prometheus.Registry
}

// NewRuntime connects Postgres, Redis and AWS from config.
func NewRuntime(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("bootstrap: DATABASE_URL is required")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}

	// The knowledge store runs on database/sql so its pgvector literals
	// and full-text queries go through the pq driver.
	sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: open sql db: %w", err)
	}

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup, continuing", "error", err, "addr", cfg.RedisAddr)
	}

	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		pool.Close()
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		DB:       pool,
		SQLDB:    sqlDB,
		Redis:    redisClient,
		AWS:      awsCfg,
		Registry: registry,
	}, nil
}

// Ready reports whether the backing stores answer, for readiness probes.
func (rt *Runtime) Ready(ctx context.Context) error {
	if err := rt.DB.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := rt.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close releases every connection.
func (rt *Runtime) Close() {
	if rt.DB != nil {
		rt.DB.Close()
	}
	if rt.SQLDB != nil {
		_ = rt.SQLDB.Close()
	}
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
}
