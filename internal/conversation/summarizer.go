package conversation

import (
	"context"
	"strings"

	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

const (
	summaryTemperature = 0.3
	summaryMaxTokens   = 400
	summaryMaxChars    = 1500
)

// Summarizer folds the latest exchange into the rolling summary. It runs
// after the reply path completes and must never fail a turn that already
// sent a message: on any error it returns the previous summary.
type Summarizer struct {
	llm    LLMClient
	model  string
	logger *logging.Logger
}

// NewSummarizer wires the memory step.
func NewSummarizer(llm LLMClient, model string, logger *logging.Logger) *Summarizer {
	if llm == nil {
		panic("conversation: LLM client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Summarizer{llm: llm, model: model, logger: logger}
}

// Summarize returns the updated rolling summary. The classification gives
// the prompt this turn's stage and intent assessment.
func (s *Summarizer) Summarize(ctx context.Context, in PipelineInput, userMessage, reply string, cls ClassifyOutput) string {
	system, user := BuildSummaryPrompts(in, userMessage, reply, cls)

	resp, err := s.llm.Complete(ctx, LLMRequest{
		Model:       s.model,
		System:      []string{system},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: user}},
		MaxTokens:   summaryMaxTokens,
		Temperature: summaryTemperature,
	})
	if err != nil {
		s.logger.Warn("summary call failed, keeping previous summary",
			"error", err, "conversation_id", in.ConversationID)
		return s.naiveFallback(in, userMessage, reply)
	}

	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return s.naiveFallback(in, userMessage, reply)
	}
	return truncate(summary, summaryMaxChars)
}

// naiveFallback appends the raw exchange so the turn is not lost entirely.
func (s *Summarizer) naiveFallback(in PipelineInput, userMessage, reply string) string {
	if userMessage == "" && reply == "" {
		return in.Summary
	}
	var b strings.Builder
	b.WriteString(in.Summary)
	if userMessage != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString("Lead: " + userMessage + ".")
	}
	if reply != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString("Bot: " + reply + ".")
	}
	return truncate(b.String(), summaryMaxChars)
}

// truncate caps s at max runes. Slicing on runes keeps multi-byte
// characters intact; message bodies are frequently non-ASCII.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
