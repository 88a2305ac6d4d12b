package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the durable per-(org, lead) state machine record. It is
// mutated exclusively by the ActionApplier after a pipeline run.
type Conversation struct {
	ID                  uuid.UUID
	OrgID               uuid.UUID
	LeadID              uuid.UUID
	Stage               Stage
	Mode                Mode
	Intent              Intent
	Sentiment           Sentiment
	Summary             string
	LastMessageText     string
	LastMessageAt       *time.Time
	LastUserMessageAt   *time.Time
	LastBotMessageAt    *time.Time
	FollowupsLast24h    int
	NudgesTotal         int
	NextFollowupAt      *time.Time
	SelectedCTAID       *uuid.UUID
	CTAScheduledAt      *time.Time
	NeedsHumanAttention bool
	AttentionResolvedAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Message is one stored conversation message.
type Message struct {
	ID                uuid.UUID
	ConversationID    uuid.UUID
	Role              string // "user", "assistant" or "system"
	Body              string
	ProviderMessageID string
	CreatedAt         time.Time
}

// ScheduledAction is a durable deferred re-entry into the pipeline.
type ScheduledAction struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	OrgID          uuid.UUID
	ScheduledAt    time.Time
	Status         ScheduledActionStatus
	ActionType     string
	Context        string
	CreatedAt      time.Time
}

// BusinessProfile carries the organization-level prompt configuration.
type BusinessProfile struct {
	Name             string
	Description      string
	FlowInstructions string
}

// CTA is a business-defined call to action a lead can be funneled into.
type CTA struct {
	ID          uuid.UUID
	Label       string
	Description string
	URL         string
}

// HistoryMessage is one entry of the compacted history handed to the LLM.
type HistoryMessage struct {
	Role   string
	Body   string
	SentAt time.Time
}

// ContextSnippet is a retrieved knowledge fragment attached to a run.
type ContextSnippet struct {
	Title   string
	Content string
}

// ResponseConstraints bound the drafted reply.
type ResponseConstraints struct {
	MaxWords     int
	MaxQuestions int
}

// PipelineInput is the immutable snapshot assembled once per pipeline run.
// Steps read from it and write only to their own typed outputs.
type PipelineInput struct {
	ConversationID uuid.UUID
	OrgID          uuid.UUID
	LeadID         uuid.UUID
	LeadName       string
	LeadPhone      string

	Business BusinessProfile

	History   []HistoryMessage
	Summary   string
	Stage     Stage
	Intent    Intent
	Sentiment Sentiment

	Now               time.Time
	LastUserMessageAt *time.Time
	LastBotMessageAt  *time.Time
	WindowOpen        bool

	FollowupsLast24h int
	NudgesTotal      int

	CTAs      []CTA
	Knowledge []ContextSnippet

	Constraints ResponseConstraints
}

// IsOpening reports whether this run has no prior history, i.e. the very
// first exchange with the lead.
func (in PipelineInput) IsOpening() bool {
	return len(in.History) == 0
}

// RiskFlags grade the turn on the three monitored risks.
type RiskFlags struct {
	Spam          RiskLevel
	Policy        RiskLevel
	Hallucination RiskLevel
}

// ClassifyOutput is the classification step's validated result.
type ClassifyOutput struct {
	Thought             string
	Situation           string
	Intent              Intent
	Sentiment           Sentiment
	Risk                RiskFlags
	Action              Action
	NewStage            Stage
	ShouldRespond       bool
	CTAID               *uuid.UUID
	CTAScheduledAt      *time.Time
	FollowupInMinutes   int
	FollowupReason      string
	Confidence          float64
	NeedsHumanAttention bool

	// Degraded marks outputs produced by the step's safe fallback rather
	// than a successful model call.
	Degraded bool
}

// GenerateOutput is the response generation step's result.
type GenerateOutput struct {
	Text            string
	Language        string
	SelfCheckPassed bool
	Violations      []string
	Degraded        bool
}

// StepStats carries per-step observability data.
type StepStats struct {
	Latency time.Duration
	Tokens  TokenUsage
}

// PipelineResult aggregates one pipeline run; it is the unit handed to the
// ActionApplier.
type PipelineResult struct {
	Classification ClassifyOutput
	Generation     *GenerateOutput

	Latency time.Duration
	Tokens  TokenUsage

	NeedsBackgroundSummary bool

	// Emergency marks the orchestrator's do-nothing result after a
	// catastrophic failure.
	Emergency bool
}

// ShouldSendMessage reports whether this run produced a reply to deliver.
func (r PipelineResult) ShouldSendMessage() bool {
	return r.Classification.ShouldRespond && r.Generation != nil && r.Generation.Text != ""
}

// InboundMessage is one inbound trigger event pulled from the queue.
// Delivery is at-least-once; ProviderMessageID is the idempotency key.
type InboundMessage struct {
	ProviderMessageID string    `json:"provider_message_id"`
	PhoneNumberID     string    `json:"phone_number_id"`
	SenderPhone       string    `json:"sender_phone"`
	SenderName        string    `json:"sender_name,omitempty"`
	Text              string    `json:"message_text"`
	ReceivedAt        time.Time `json:"received_at"`
}
