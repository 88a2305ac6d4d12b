package conversation

import (
	"context"
	"time"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/observability/metrics"
	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

// TriggerKind distinguishes the pipeline's two entry points.
type TriggerKind string

const (
	TriggerInbound  TriggerKind = "inbound"
	TriggerFollowup TriggerKind = "followup"
)

// followupSystemNote is the synthetic message injected when a scheduled
// follow-up re-enters the pipeline.
const followupSystemNote = "Scheduled follow-up timer fired. The lead has not replied since the last message. Decide whether a nudge is appropriate."

// Pipeline sequences the classification and generation steps over one
// immutable snapshot and produces exactly one PipelineResult per run.
// It is the last line of defense: no panic or error escapes a run.
type Pipeline struct {
	classifier *Classifier
	generator  *Generator
	metrics    *metrics.PipelineMetrics
	logger     *logging.Logger
}

// NewPipeline wires the orchestrator. metrics may be nil.
func NewPipeline(classifier *Classifier, generator *Generator, m *metrics.PipelineMetrics, logger *logging.Logger) *Pipeline {
	if classifier == nil {
		panic("conversation: classifier cannot be nil")
	}
	if generator == nil {
		panic("conversation: generator cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{
		classifier: classifier,
		generator:  generator,
		metrics:    m,
		logger:     logger,
	}
}

// Run executes one live-message pipeline pass.
func (p *Pipeline) Run(ctx context.Context, in PipelineInput) PipelineResult {
	return p.run(ctx, in, TriggerInbound)
}

// RunFollowup executes one timer-triggered pass. It injects a synthetic
// system message and otherwise reuses the identical state machine, so the
// follow-up path gets exactly the same guarantees as the live path.
func (p *Pipeline) RunFollowup(ctx context.Context, in PipelineInput) PipelineResult {
	in.History = append(in.History, HistoryMessage{
		Role:   ChatRoleSystem,
		Body:   followupSystemNote,
		SentAt: in.Now,
	})
	return p.run(ctx, in, TriggerFollowup)
}

func (p *Pipeline) run(ctx context.Context, in PipelineInput, trigger TriggerKind) (result PipelineResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline run panicked, returning emergency result",
				"panic", r, "conversation_id", in.ConversationID, "trigger", trigger)
			result = p.emergencyResult(in)
			result.Latency = time.Since(start)
			p.metrics.ObserveRun(string(trigger), "emergency")
		}
	}()

	classification, classifyStats := p.classifier.Classify(ctx, in)
	result.Classification = classification
	result.Latency = classifyStats.Latency
	result.Tokens = classifyStats.Tokens
	p.metrics.ObserveStepLatency("classify", classifyStats.Latency.Seconds())
	p.metrics.ObserveTokens("classify", int(classifyStats.Tokens.InputTokens), int(classifyStats.Tokens.OutputTokens))
	if classification.Degraded {
		p.metrics.ObserveFallback("classify")
	}

	if classification.ShouldRespond {
		generation, generateStats := p.generator.Generate(ctx, in, classification)
		result.Generation = generation
		result.Latency += generateStats.Latency
		result.Tokens.Add(generateStats.Tokens)
		p.metrics.ObserveStepLatency("generate", generateStats.Latency.Seconds())
		p.metrics.ObserveTokens("generate", int(generateStats.Tokens.InputTokens), int(generateStats.Tokens.OutputTokens))
		if generation != nil && generation.Degraded {
			p.metrics.ObserveFallback("generate")
		}
	}

	// A degraded classification has nothing worth folding into memory.
	result.NeedsBackgroundSummary = !classification.Degraded

	outcome := "ok"
	if classification.Degraded {
		outcome = "degraded"
	}
	p.metrics.ObserveRun(string(trigger), outcome)

	return result
}

// emergencyResult is the do-nothing outcome used when a run blows up in a
// way the step fallbacks did not absorb.
func (p *Pipeline) emergencyResult(in PipelineInput) PipelineResult {
	return PipelineResult{
		Classification: ClassifyOutput{
			Situation:     "pipeline failure",
			Intent:        in.Intent,
			Sentiment:     in.Sentiment,
			Action:        ActionWaitSchedule,
			NewStage:      in.Stage,
			ShouldRespond: false,
			Confidence:    0,
			Risk: RiskFlags{
				Spam:          RiskMedium,
				Policy:        RiskMedium,
				Hallucination: RiskMedium,
			},
			Degraded: true,
		},
		NeedsBackgroundSummary: false,
		Emergency:              true,
	}
}
