package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizePromptCarriesTurnAssessment(t *testing.T) {
	llm := &scriptedLLM{responses: []LLMResponse{{Text: "lead is comparing plans"}}}
	summarizer := NewSummarizer(llm, "test-model", nil)

	in := PipelineInput{Summary: "lead asked about opening hours"}
	cls := ClassifyOutput{NewStage: StagePricing, Intent: IntentHigh, Sentiment: SentimentPositive}

	got := summarizer.Summarize(context.Background(), in, "how much is it?", "$49/month.", cls)

	assert.Equal(t, "lead is comparing plans", got)
	require.Len(t, llm.requests, 1)
	prompt := llm.requests[0].Messages[0].Content
	assert.Contains(t, prompt, "Lead said: how much is it?")
	assert.Contains(t, prompt, "We replied: $49/month.")
	assert.Contains(t, prompt, "Turn assessment: stage pricing, intent high, sentiment positive.")
}

func TestSummarizePromptOmitsEmptyAssessment(t *testing.T) {
	llm := &scriptedLLM{responses: []LLMResponse{{Text: "summary"}}}
	summarizer := NewSummarizer(llm, "test-model", nil)

	summarizer.Summarize(context.Background(), PipelineInput{}, "hi", "hello!", ClassifyOutput{})

	require.Len(t, llm.requests, 1)
	assert.NotContains(t, llm.requests[0].Messages[0].Content, "Turn assessment")
}

func TestSummarizeFallsBackOnProviderError(t *testing.T) {
	llm := &scriptedLLM{errs: []error{errors.New("status 500")}}
	summarizer := NewSummarizer(llm, "test-model", nil)

	in := PipelineInput{Summary: "lead asked about opening hours."}
	got := summarizer.Summarize(context.Background(), in, "how much?", "$49", ClassifyOutput{})

	// The raw exchange is appended so the turn is not lost.
	assert.Equal(t, "lead asked about opening hours. Lead: how much?. Bot: $49.", got)
}

func TestTruncateSlicesOnRunes(t *testing.T) {
	s := strings.Repeat("ü", 10)

	got := truncate(s, 4)

	assert.Equal(t, "üüüü", got)
	assert.True(t, utf8.ValidString(got))
}

func TestTruncateLeavesShortStringsAlone(t *testing.T) {
	assert.Equal(t, "hola", truncate("hola", 10))
	assert.Equal(t, "ünchanged", truncate("ünchanged", 9))
}

func TestSummarizeCapsOversizedSummary(t *testing.T) {
	llm := &scriptedLLM{responses: []LLMResponse{{Text: strings.Repeat("é", summaryMaxChars+50)}}}
	summarizer := NewSummarizer(llm, "test-model", nil)

	got := summarizer.Summarize(context.Background(), PipelineInput{}, "hi", "hello!", ClassifyOutput{})

	assert.Equal(t, summaryMaxChars, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}
