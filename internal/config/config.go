package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	UseMemoryQueue  bool
	WorkerCount     int
	InboundQueueURL string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	PipelineJobsTable string

	GeminiAPIKey  string
	GeminiModelID string

	BedrockModelID          string
	BedrockEmbeddingModelID string
	EmbeddingDimensions     int

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	WhatsAppAPIBaseURL string

	FollowupSweepInterval time.Duration
	FollowupBatchSize     int

	KnowledgeTopK            int
	VectorScoreThreshold     float64
	KeywordRankThreshold     int
	KnowledgeDocumentsBucket string

	SESFromEmail      string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	LLMMaxAttempts   int
	LLMRetryBaseWait time.Duration
	LLMTimeout       time.Duration

	ResponseMaxWords     int
	ResponseMaxQuestions int
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		UseMemoryQueue:  getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 2),
		InboundQueueURL: getEnv("INBOUND_QUEUE_URL", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		PipelineJobsTable: getEnv("PIPELINE_JOBS_TABLE", "pipeline_jobs"),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		BedrockModelID:          getEnv("BEDROCK_MODEL_ID", ""),
		BedrockEmbeddingModelID: getEnv("BEDROCK_EMBEDDING_MODEL_ID", "amazon.titan-embed-text-v2:0"),
		EmbeddingDimensions:     getEnvAsInt("EMBEDDING_DIMENSIONS", 768),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		WhatsAppAPIBaseURL: getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v21.0"),

		FollowupSweepInterval: getEnvAsDuration("FOLLOWUP_SWEEP_INTERVAL", 60*time.Second),
		FollowupBatchSize:     getEnvAsInt("FOLLOWUP_BATCH_SIZE", 50),

		KnowledgeTopK:            getEnvAsInt("KNOWLEDGE_TOP_K", 5),
		VectorScoreThreshold:     getEnvAsFloat("VECTOR_SCORE_THRESHOLD", 0.35),
		KeywordRankThreshold:     getEnvAsInt("KEYWORD_RANK_THRESHOLD", 3),
		KnowledgeDocumentsBucket: getEnv("KNOWLEDGE_DOCUMENTS_BUCKET", ""),

		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "LeadFlow AI"),

		LLMMaxAttempts:   getEnvAsInt("LLM_MAX_ATTEMPTS", 3),
		LLMRetryBaseWait: getEnvAsDuration("LLM_RETRY_BASE_WAIT", 500*time.Millisecond),
		LLMTimeout:       getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),

		ResponseMaxWords:     getEnvAsInt("RESPONSE_MAX_WORDS", 80),
		ResponseMaxQuestions: getEnvAsInt("RESPONSE_MAX_QUESTIONS", 1),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
