package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/leads"
	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

// followupActionType is the only scheduled action kind the applier emits.
const followupActionType = "followup"

type stateWriter interface {
	UpdateState(ctx context.Context, conv *Conversation) error
}

type leadMirror interface {
	UpdateFunnelState(ctx context.Context, id uuid.UUID, state, intent, sentiment string) error
}

type followupScheduler interface {
	// Schedule cancels any pending action for the conversation and creates
	// exactly one new one, atomically.
	Schedule(ctx context.Context, conversationID, orgID uuid.UUID, at time.Time, actionType, reason string) (*ScheduledAction, error)
}

type turnNotifier interface {
	NotifyHumanAttention(ctx context.Context, conv *Conversation, lead *leads.Lead, reason string) error
	NotifyCTAInitiated(ctx context.Context, conv *Conversation, lead *leads.Lead, ctaID uuid.UUID) error
}

// TurnEvent is the audit record appended after every applied run.
type TurnEvent struct {
	ConversationID uuid.UUID
	OrgID          uuid.UUID
	Stage          Stage
	Action         Action
	Confidence     float64
	MessageSent    bool
	Escalated      bool
	Emergency      bool
	Latency        time.Duration
	InputTokens    int32
	OutputTokens   int32
	At             time.Time
}

type turnAuditor interface {
	RecordTurn(ctx context.Context, event TurnEvent) error
}

// ActionApplier is the single writer of conversation state. It folds one
// PipelineResult into the conversation record and returns the reply text to
// deliver, if any. Sending and persisting are deliberately not one atomic
// operation: a delivered message cannot be unsent, so state persistence
// failures are logged rather than used to suppress the reply.
type ActionApplier struct {
	conversations stateWriter
	leadStates    leadMirror
	scheduler     followupScheduler
	notifier      turnNotifier
	audit         turnAuditor
	logger        *logging.Logger
}

// NewActionApplier wires the applier. notifier and audit may be nil.
func NewActionApplier(
	conversations stateWriter,
	leadStates leadMirror,
	scheduler followupScheduler,
	notifier turnNotifier,
	audit turnAuditor,
	logger *logging.Logger,
) *ActionApplier {
	if conversations == nil {
		panic("conversation: state writer required")
	}
	if scheduler == nil {
		panic("conversation: followup scheduler required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ActionApplier{
		conversations: conversations,
		leadStates:    leadStates,
		scheduler:     scheduler,
		notifier:      notifier,
		audit:         audit,
		logger:        logger,
	}
}

// Apply mutates conv in place according to the run result, persists it, and
// returns the outbound reply text ("" when this turn stays silent). The
// effects are independent and combinable; their order fixes precedence when
// they interact.
func (a *ActionApplier) Apply(ctx context.Context, result PipelineResult, conv *Conversation, lead *leads.Lead, now time.Time) (string, error) {
	cls := result.Classification

	if cls.Confidence >= StageConfidenceThreshold && cls.NewStage != conv.Stage {
		a.logger.Info("stage transition applied",
			"conversation_id", conv.ID,
			"from", conv.Stage, "to", cls.NewStage,
			"confidence", cls.Confidence)
		conv.Stage = cls.NewStage
	}

	conv.Intent = cls.Intent
	conv.Sentiment = cls.Sentiment
	if a.leadStates != nil && lead != nil {
		err := a.leadStates.UpdateFunnelState(ctx, lead.ID,
			string(conv.Stage), string(conv.Intent), string(conv.Sentiment))
		if err != nil {
			a.logger.Warn("lead read-copy mirror failed", "error", err, "lead_id", lead.ID)
		}
	}

	if cls.NeedsHumanAttention && !conv.NeedsHumanAttention {
		conv.NeedsHumanAttention = true
		conv.AttentionResolvedAt = nil
		a.notifyAttention(ctx, conv, lead, cls.Situation)
	}

	if cls.CTAID != nil {
		conv.SelectedCTAID = cls.CTAID
		conv.CTAScheduledAt = cls.CTAScheduledAt
		a.notifyCTA(ctx, conv, lead, *cls.CTAID)
	}

	outbound := ""
	switch {
	case result.ShouldSendMessage():
		outbound = result.Generation.Text
		conv.LastMessageText = outbound
		conv.LastMessageAt = &now
		conv.LastBotMessageAt = &now

	case cls.FollowupInMinutes > 0:
		at := now.Add(time.Duration(cls.FollowupInMinutes) * time.Minute)
		if _, err := a.scheduler.Schedule(ctx, conv.ID, conv.OrgID, at, followupActionType, cls.FollowupReason); err != nil {
			a.logger.Error("followup scheduling failed", "error", err, "conversation_id", conv.ID)
		} else {
			conv.NextFollowupAt = &at
			conv.FollowupsLast24h++
			conv.NudgesTotal++
		}

	case cls.Action == ActionFlagAttention:
		// Escalation hides the conversation from every future bot trigger
		// until a human releases it.
		conv.Mode = ModeHuman
		a.logger.Info("conversation escalated to human mode", "conversation_id", conv.ID)
	}

	conv.UpdatedAt = now

	var persistErr error
	if err := a.conversations.UpdateState(ctx, conv); err != nil {
		persistErr = fmt.Errorf("conversation: persist state: %w", err)
		a.logger.Error("conversation state persistence failed",
			"error", err, "conversation_id", conv.ID)
	}

	a.recordTurn(ctx, result, conv, now, outbound != "")

	return outbound, persistErr
}

func (a *ActionApplier) notifyAttention(ctx context.Context, conv *Conversation, lead *leads.Lead, reason string) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.NotifyHumanAttention(ctx, conv, lead, reason); err != nil {
		a.logger.Warn("human attention notification failed", "error", err, "conversation_id", conv.ID)
	}
}

func (a *ActionApplier) notifyCTA(ctx context.Context, conv *Conversation, lead *leads.Lead, ctaID uuid.UUID) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.NotifyCTAInitiated(ctx, conv, lead, ctaID); err != nil {
		a.logger.Warn("cta notification failed", "error", err, "conversation_id", conv.ID)
	}
}

func (a *ActionApplier) recordTurn(ctx context.Context, result PipelineResult, conv *Conversation, now time.Time, sent bool) {
	if a.audit == nil {
		return
	}
	event := TurnEvent{
		ConversationID: conv.ID,
		OrgID:          conv.OrgID,
		Stage:          conv.Stage,
		Action:         result.Classification.Action,
		Confidence:     result.Classification.Confidence,
		MessageSent:    sent,
		Escalated:      conv.Mode == ModeHuman,
		Emergency:      result.Emergency,
		Latency:        result.Latency,
		InputTokens:    result.Tokens.InputTokens,
		OutputTokens:   result.Tokens.OutputTokens,
		At:             now,
	}
	if err := a.audit.RecordTurn(ctx, event); err != nil {
		a.logger.Warn("turn audit record failed", "error", err, "conversation_id", conv.ID)
	}
}
