package conversation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

const (
	generateTemperature = 0.7
	generateMaxTokens   = 512

	// generationFallbackText is sent when generation fails after the
	// classifier already committed to responding. A failed draft must
	// still produce some reply.
	generationFallbackText = "Sorry - I'm having trouble responding right now. Please reply again in a moment."
)

// Generator is the pipeline's mouth: drafts the outbound message from the
// classifier's plan. Only invoked when should_respond is true.
type Generator struct {
	llm    LLMClient
	model  string
	retry  RetryPolicy
	logger *logging.Logger
}

// NewGenerator wires a response generation step.
func NewGenerator(llm LLMClient, model string, retry RetryPolicy, logger *logging.Logger) *Generator {
	if llm == nil {
		panic("conversation: LLM client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Generator{llm: llm, model: model, retry: retry, logger: logger}
}

type rawGeneration struct {
	Text            string   `json:"text"`
	Language        string   `json:"language"`
	SelfCheckPassed bool     `json:"self_check_passed"`
	Violations      []string `json:"violations"`
}

// Generate drafts the reply. It never returns an error: a failed call or
// parse yields the fixed apologetic fallback.
func (g *Generator) Generate(ctx context.Context, in PipelineInput, plan ClassifyOutput) (*GenerateOutput, StepStats) {
	start := time.Now()

	system, user := BuildGeneratePrompts(in, plan)
	req := LLMRequest{
		Model:       g.model,
		System:      []string{system},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: user}},
		MaxTokens:   generateMaxTokens,
		Temperature: generateTemperature,
		WantJSON:    true,
	}

	var resp LLMResponse
	err := g.retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = g.llm.Complete(ctx, req)
		return callErr
	})

	stats := StepStats{Latency: time.Since(start), Tokens: resp.Usage}
	if err != nil {
		g.logger.Warn("generation call failed, using fallback message",
			"error", err, "conversation_id", in.ConversationID)
		return g.fallbackOutput(), stats
	}

	jsonText, err := ExtractJSONObject(resp.Text)
	if err != nil {
		g.logger.Warn("generation output unparseable, using fallback message",
			"error", err, "conversation_id", in.ConversationID)
		stats.Latency = time.Since(start)
		return g.fallbackOutput(), stats
	}

	var raw rawGeneration
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		g.logger.Warn("generation JSON invalid, using fallback message",
			"error", err, "conversation_id", in.ConversationID)
		stats.Latency = time.Since(start)
		return g.fallbackOutput(), stats
	}
	if raw.Text == "" {
		stats.Latency = time.Since(start)
		return g.fallbackOutput(), stats
	}

	stats.Latency = time.Since(start)
	return &GenerateOutput{
		Text:            raw.Text,
		Language:        raw.Language,
		SelfCheckPassed: raw.SelfCheckPassed,
		Violations:      raw.Violations,
	}, stats
}

func (g *Generator) fallbackOutput() *GenerateOutput {
	return &GenerateOutput{
		Text:            generationFallbackText,
		Language:        "en",
		SelfCheckPassed: false,
		Degraded:        true,
	}
}
