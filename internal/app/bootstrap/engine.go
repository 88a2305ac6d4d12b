package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/conversation"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/events"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/knowledge"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/leads"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/messaging"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/notify"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/observability/metrics"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/orgs"
)

// fixedModelClient pins the model id on every request. The Bedrock
// fallback needs its own model id because requests in flight carry the
// primary's.
type fixedModelClient struct {
	inner conversation.LLMClient
	model string
}

func (c fixedModelClient) Complete(ctx context.Context, req conversation.LLMRequest) (conversation.LLMResponse, error) {
	req.Model = c.model
	return c.inner.Complete(ctx, req)
}

// BuildLLMClient assembles the provider chain: Gemini primary with a
// Bedrock Converse fallback. Either side alone also works.
func BuildLLMClient(ctx context.Context, rt *Runtime) (conversation.LLMClient, string, error) {
	cfg := rt.Config

	var bedrock conversation.LLMClient
	if cfg.BedrockModelID != "" {
		bedrock = fixedModelClient{
			inner: conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(rt.AWS)),
			model: cfg.BedrockModelID,
		}
	}

	if cfg.GeminiAPIKey != "" {
		gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, "", fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		return conversation.NewFallbackLLMClient(gemini, bedrock, rt.Logger), cfg.GeminiModelID, nil
	}

	if bedrock != nil {
		rt.Logger.Warn("no gemini api key configured, running on bedrock only")
		return bedrock, cfg.BedrockModelID, nil
	}

	return nil, "", fmt.Errorf("bootstrap: no LLM provider configured")
}

// BuildKnowledge wires the hybrid retriever and its ingestion side.
func BuildKnowledge(rt *Runtime) (*knowledge.SnippetProvider, *knowledge.Ingestor) {
	cfg := rt.Config

	store := knowledge.NewStore(rt.SQLDB)
	embedder := knowledge.NewTitanEmbedder(
		bedrockruntime.NewFromConfig(rt.AWS), cfg.BedrockEmbeddingModelID)

	retriever := knowledge.NewRetriever(store, embedder, cfg.EmbeddingDimensions,
		rt.Logger.Component("knowledge"))
	provider := knowledge.NewSnippetProvider(retriever, knowledge.SearchParams{
		TopK:                 cfg.KnowledgeTopK,
		VectorThreshold:      cfg.VectorScoreThreshold,
		KeywordRankThreshold: cfg.KeywordRankThreshold,
	})

	ingestor := knowledge.NewIngestor(store, embedder, cfg.EmbeddingDimensions,
		rt.Logger.Component("knowledge"))
	return provider, ingestor
}

// BuildS3Loader wires document ingestion from the configured bucket, or
// nil when no bucket is set.
func BuildS3Loader(rt *Runtime, ingestor *knowledge.Ingestor) *knowledge.S3Loader {
	if rt.Config.KnowledgeDocumentsBucket == "" {
		return nil
	}
	return knowledge.NewS3Loader(s3.NewFromConfig(rt.AWS),
		rt.Config.KnowledgeDocumentsBucket, ingestor, rt.Logger.Component("knowledge"))
}

// BuildEmailSender picks the configured email provider: SES when a from
// address is set, SendGrid otherwise, a logging stub when neither is.
func BuildEmailSender(rt *Runtime) notify.EmailSender {
	cfg := rt.Config
	if cfg.SESFromEmail != "" {
		if sender := notify.NewSESSender(sesv2.NewFromConfig(rt.AWS), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
		}, rt.Logger); sender != nil {
			return sender
		}
	}
	if cfg.SendGridAPIKey != "" {
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, rt.Logger); sender != nil {
			return sender
		}
	}
	return notify.NewStubEmailSender(rt.Logger)
}

// Engine bundles the wired turn engine with the stores the binaries
// poll directly.
type Engine struct {
	Engine        *conversation.Engine
	Conversations *conversation.Store
	Scheduled     *conversation.ScheduledActionStore
	Ingestor      *knowledge.Ingestor
	S3Loader      *knowledge.S3Loader
}

// BuildEngine wires the full conversation turn engine from the runtime.
func BuildEngine(ctx context.Context, rt *Runtime) (*Engine, error) {
	cfg := rt.Config
	logger := rt.Logger

	llm, model, err := BuildLLMClient(ctx, rt)
	if err != nil {
		return nil, err
	}

	retry := conversation.RetryPolicy{
		MaxAttempts: cfg.LLMMaxAttempts,
		BaseWait:    cfg.LLMRetryBaseWait,
	}

	pipelineMetrics := metrics.NewPipelineMetrics(rt.Registry)
	classifier := conversation.NewClassifier(llm, model, nil, retry, logger)
	generator := conversation.NewGenerator(llm, model, retry, logger)
	summarizer := conversation.NewSummarizer(llm, model, logger)
	pipeline := conversation.NewPipeline(classifier, generator, pipelineMetrics, logger)

	conversations := conversation.NewStore(rt.DB)
	messages := conversation.NewMessageStore(rt.DB)
	scheduled := conversation.NewScheduledActionStore(rt.DB)
	leadsRepo := leads.NewPostgresRepository(rt.DB)
	orgsRepo := orgs.NewPostgresRepository(rt.DB)

	publisher := events.NewPublisher(rt.Redis, logger.Component("events"))
	recorder := events.NewTurnRecorder(rt.DB, publisher, logger.Component("events"))
	notifier := notify.NewService(orgsRepo, BuildEmailSender(rt), publisher, logger.Component("notify"))

	applier := conversation.NewActionApplier(
		conversations, leadsRepo, scheduled, notifier, recorder, logger)

	assembler := conversation.NewContextAssembler(messages, conversation.ResponseConstraints{
		MaxWords:     cfg.ResponseMaxWords,
		MaxQuestions: cfg.ResponseMaxQuestions,
	})

	locker := conversation.NewConversationLocker(rt.Redis, logger)
	messenger := messaging.NewWhatsAppSender(logger.Component("messaging"),
		messaging.WithGraphBaseURL(cfg.WhatsAppAPIBaseURL))

	snippets, ingestor := BuildKnowledge(rt)

	engine := conversation.NewEngine(
		conversations, leadsRepo, orgsRepo, messages, locker,
		assembler, pipeline, applier, summarizer,
		messenger, snippets, logger,
	)
	engine.SetEventLogger(conversation.NewEventLogger(logger.Component("decisions")))

	return &Engine{
		Engine:        engine,
		Conversations: conversations,
		Scheduled:     scheduled,
		Ingestor:      ingestor,
		S3Loader:      BuildS3Loader(rt, ingestor),
	}, nil
}
