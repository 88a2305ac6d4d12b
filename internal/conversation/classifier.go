package conversation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

// StageConfidenceThreshold is the single canonical confidence gate for stage
// transitions. A proposed stage differing from the current one is held
// unless the classification reaches this confidence.
const StageConfidenceThreshold = 0.70

const (
	classifyTemperature = 0.2
	classifyMaxTokens   = 1024
)

// Classifier is the pipeline's brain: one LLM call that analyzes the
// conversation and decides the next action. It never returns an error;
// failures degrade to a safe do-nothing output.
type Classifier struct {
	llm     LLMClient
	model   string
	prompts *PromptRegistry
	retry   RetryPolicy
	logger  *logging.Logger
}

// NewClassifier wires a classification step around the supplied LLM client.
func NewClassifier(llm LLMClient, model string, prompts *PromptRegistry, retry RetryPolicy, logger *logging.Logger) *Classifier {
	if llm == nil {
		panic("conversation: LLM client cannot be nil")
	}
	if prompts == nil {
		prompts = NewPromptRegistry()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Classifier{
		llm:     llm,
		model:   model,
		prompts: prompts,
		retry:   retry,
		logger:  logger,
	}
}

// rawClassification mirrors the JSON schema requested from the model.
type rawClassification struct {
	Thought             string  `json:"thought"`
	Situation           string  `json:"situation"`
	IntentLevel         string  `json:"intent_level"`
	UserSentiment       string  `json:"user_sentiment"`
	SpamRisk            string  `json:"spam_risk"`
	PolicyRisk          string  `json:"policy_risk"`
	HallucinationRisk   string  `json:"hallucination_risk"`
	Action              string  `json:"action"`
	NewStage            string  `json:"new_stage"`
	ShouldRespond       bool    `json:"should_respond"`
	CTAID               string  `json:"cta_id"`
	CTAScheduledAt      string  `json:"cta_scheduled_at"`
	FollowupInMinutes   int     `json:"followup_in_minutes"`
	FollowupReason      string  `json:"followup_reason"`
	Confidence          float64 `json:"confidence"`
	NeedsHumanAttention bool    `json:"needs_human_attention"`
}

// Classify runs the classification step against the snapshot.
func (c *Classifier) Classify(ctx context.Context, in PipelineInput) (ClassifyOutput, StepStats) {
	start := time.Now()

	system, user := BuildClassifyPrompts(c.prompts, in)
	req := LLMRequest{
		Model:       c.model,
		System:      []string{system},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: user}},
		MaxTokens:   classifyMaxTokens,
		Temperature: classifyTemperature,
		WantJSON:    true,
	}

	var resp LLMResponse
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.llm.Complete(ctx, req)
		return callErr
	})

	stats := StepStats{Latency: time.Since(start), Tokens: resp.Usage}
	if err != nil {
		c.logger.Warn("classification call failed, using fallback",
			"error", err, "conversation_id", in.ConversationID)
		return c.fallbackOutput(in), stats
	}

	out, parseErr := c.parse(resp.Text, in)
	stats.Latency = time.Since(start)
	if parseErr != nil {
		c.logger.Warn("classification output unparseable, using fallback",
			"error", parseErr, "conversation_id", in.ConversationID)
		return c.fallbackOutput(in), stats
	}
	return out, stats
}

func (c *Classifier) parse(text string, in PipelineInput) (ClassifyOutput, error) {
	jsonText, err := ExtractJSONObject(text)
	if err != nil {
		return ClassifyOutput{}, err
	}

	var raw rawClassification
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return ClassifyOutput{}, err
	}

	out := ClassifyOutput{
		Thought:             raw.Thought,
		Situation:           raw.Situation,
		Intent:              ParseIntentWithFallback(raw.IntentLevel, in.Intent),
		Sentiment:           ParseSentimentWithFallback(raw.UserSentiment, in.Sentiment),
		Action:              ParseActionWithFallback(raw.Action, ActionWaitSchedule),
		ShouldRespond:       raw.ShouldRespond,
		FollowupReason:      raw.FollowupReason,
		Confidence:          clamp01(raw.Confidence),
		NeedsHumanAttention: raw.NeedsHumanAttention,
		Risk: RiskFlags{
			Spam:          ParseRiskWithFallback(raw.SpamRisk, RiskMedium),
			Policy:        ParseRiskWithFallback(raw.PolicyRisk, RiskMedium),
			Hallucination: ParseRiskWithFallback(raw.HallucinationRisk, RiskMedium),
		},
	}

	// Stage-transition guard: an unrecognized stage falls back to the
	// current one, and a recognized but low-confidence transition is held.
	proposed := ParseStageWithFallback(raw.NewStage, in.Stage)
	if proposed != in.Stage && out.Confidence < StageConfidenceThreshold {
		c.logger.Info("stage transition rejected below confidence threshold",
			"conversation_id", in.ConversationID,
			"current_stage", in.Stage,
			"proposed_stage", proposed,
			"confidence", out.Confidence,
		)
		proposed = in.Stage
	}
	out.NewStage = proposed

	if raw.FollowupInMinutes > 0 {
		out.FollowupInMinutes = raw.FollowupInMinutes
	}

	if raw.CTAID != "" {
		if id, parseErr := uuid.Parse(raw.CTAID); parseErr == nil {
			out.CTAID = &id
		}
	}
	if raw.CTAScheduledAt != "" {
		if at, parseErr := time.Parse(time.RFC3339, raw.CTAScheduledAt); parseErr == nil {
			out.CTAScheduledAt = &at
		}
	}

	// The window is a compliance boundary; the model cannot override it.
	if !in.WindowOpen {
		out.ShouldRespond = false
		if out.Action == ActionSendNow {
			out.Action = ActionWaitSchedule
		}
	}

	return out, nil
}

// fallbackOutput is the step's documented safe result: hold the stage, do
// nothing now, flag risks at cautious defaults.
func (c *Classifier) fallbackOutput(in PipelineInput) ClassifyOutput {
	return ClassifyOutput{
		Situation:     "classification unavailable",
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
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
