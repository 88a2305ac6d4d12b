package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/leads"
)

type applierFixture struct {
	states    *fakeStateWriter
	funnels   *fakeLeadMirror
	scheduler *fakeScheduler
	notifier  *fakeNotifier
	audit     *fakeAuditor
	applier   *ActionApplier
}

type fakeStateWriter struct {
	updated *Conversation
	err     error
}

func (f *fakeStateWriter) UpdateState(_ context.Context, conv *Conversation) error {
	copied := *conv
	f.updated = &copied
	return f.err
}

type fakeLeadMirror struct {
	states     []string
	intents    []string
	sentiments []string
}

func (f *fakeLeadMirror) UpdateFunnelState(_ context.Context, _ uuid.UUID, state, intent, sentiment string) error {
	f.states = append(f.states, state)
	f.intents = append(f.intents, intent)
	f.sentiments = append(f.sentiments, sentiment)
	return nil
}

type fakeScheduler struct {
	calls []time.Time
	err   error
}

func (f *fakeScheduler) Schedule(_ context.Context, conversationID, orgID uuid.UUID, at time.Time, actionType, reason string) (*ScheduledAction, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, at)
	return &ScheduledAction{
		ID:             uuid.New(),
		ConversationID: conversationID,
		OrgID:          orgID,
		ScheduledAt:    at,
		Status:         ScheduledStatusPending,
		ActionType:     actionType,
		Context:        reason,
	}, nil
}

type fakeNotifier struct {
	attention int
	ctas      []uuid.UUID
}

func (f *fakeNotifier) NotifyHumanAttention(_ context.Context, _ *Conversation, _ *leads.Lead, _ string) error {
	f.attention++
	return nil
}

func (f *fakeNotifier) NotifyCTAInitiated(_ context.Context, _ *Conversation, _ *leads.Lead, id uuid.UUID) error {
	f.ctas = append(f.ctas, id)
	return nil
}

type fakeAuditor struct{ events []TurnEvent }

func (f *fakeAuditor) RecordTurn(_ context.Context, e TurnEvent) error {
	f.events = append(f.events, e)
	return nil
}

func newApplierFixture() *applierFixture {
	fx := &applierFixture{
		states:    &fakeStateWriter{},
		funnels:   &fakeLeadMirror{},
		scheduler: &fakeScheduler{},
		notifier:  &fakeNotifier{},
		audit:     &fakeAuditor{},
	}
	fx.applier = NewActionApplier(fx.states, fx.funnels, fx.scheduler, fx.notifier, fx.audit, nil)
	return fx
}

func applierConv() (*Conversation, *leads.Lead) {
	convID, orgID, leadID := uuid.New(), uuid.New(), uuid.New()
	conv := &Conversation{
		ID:        convID,
		OrgID:     orgID,
		LeadID:    leadID,
		Stage:     StageQualification,
		Mode:      ModeBot,
		Intent:    IntentMedium,
		Sentiment: SentimentNeutral,
	}
	return conv, &leads.Lead{ID: leadID, OrgID: orgID, Phone: "+15550001111"}
}

func sendResult(stage Stage, confidence float64, text string) PipelineResult {
	return PipelineResult{
		Classification: ClassifyOutput{
			Intent:        IntentHigh,
			Sentiment:     SentimentPositive,
			Action:        ActionSendNow,
			NewStage:      stage,
			ShouldRespond: true,
			Confidence:    confidence,
		},
		Generation: &GenerateOutput{Text: text, SelfCheckPassed: true},
	}
}

func TestApplySendPath(t *testing.T) {
	fx := newApplierFixture()
	conv, lead := applierConv()
	now := time.Now().UTC()

	outbound, err := fx.applier.Apply(context.Background(), sendResult(StagePricing, 0.9, "Our plan is $49/mo."), conv, lead, now)
	require.NoError(t, err)

	assert.Equal(t, "Our plan is $49/mo.", outbound)
	assert.Equal(t, StagePricing, conv.Stage)
	assert.Equal(t, IntentHigh, conv.Intent)
	assert.Equal(t, SentimentPositive, conv.Sentiment)
	require.NotNil(t, conv.LastBotMessageAt)
	assert.Equal(t, now, *conv.LastBotMessageAt)
	assert.Equal(t, "Our plan is $49/mo.", conv.LastMessageText)
	require.NotNil(t, fx.states.updated)
	assert.Empty(t, fx.scheduler.calls, "send path must not schedule a followup")

	require.Len(t, fx.audit.events, 1)
	assert.True(t, fx.audit.events[0].MessageSent)
	assert.Equal(t, StagePricing, fx.audit.events[0].Stage)
}

func TestApplyStageHeldBelowThreshold(t *testing.T) {
	fx := newApplierFixture()
	conv, lead := applierConv()

	result := sendResult(StagePricing, 0.5, "hello")
	outbound, err := fx.applier.Apply(context.Background(), result, conv, lead, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, "hello", outbound, "reply is still sent")
	assert.Equal(t, StageQualification, conv.Stage, "stage must be held")
}

func TestApplyFollowupScheduling(t *testing.T) {
	fx := newApplierFixture()
	conv, lead := applierConv()
	conv.FollowupsLast24h = 1
	conv.NudgesTotal = 4
	now := time.Now().UTC()

	result := PipelineResult{
		Classification: ClassifyOutput{
			Intent:            IntentMedium,
			Sentiment:         SentimentNeutral,
			Action:            ActionWaitSchedule,
			NewStage:          StageQualification,
			ShouldRespond:     false,
			FollowupInMinutes: 120,
			FollowupReason:    "lead said they'd decide tonight",
			Confidence:        0.8,
		},
	}

	outbound, err := fx.applier.Apply(context.Background(), result, conv, lead, now)
	require.NoError(t, err)

	assert.Empty(t, outbound)
	require.Len(t, fx.scheduler.calls, 1)
	assert.Equal(t, now.Add(2*time.Hour), fx.scheduler.calls[0])
	assert.Equal(t, 2, conv.FollowupsLast24h)
	assert.Equal(t, 5, conv.NudgesTotal)
	require.NotNil(t, conv.NextFollowupAt)
}

func TestApplySchedulingFailureKeepsCounters(t *testing.T) {
	fx := newApplierFixture()
	fx.scheduler.err = assert.AnError
	conv, lead := applierConv()

	result := PipelineResult{
		Classification: ClassifyOutput{
			Action:            ActionWaitSchedule,
			NewStage:          StageQualification,
			FollowupInMinutes: 60,
		},
	}

	_, err := fx.applier.Apply(context.Background(), result, conv, lead, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, conv.FollowupsLast24h)
	assert.Equal(t, 0, conv.NudgesTotal)
	assert.Nil(t, conv.NextFollowupAt)
}

func TestApplyEscalationFlipsMode(t *testing.T) {
	fx := newApplierFixture()
	conv, lead := applierConv()

	result := PipelineResult{
		Classification: ClassifyOutput{
			Action:              ActionFlagAttention,
			NewStage:            StageQualification,
			NeedsHumanAttention: true,
			Situation:           "lead is asking about a refund dispute",
		},
	}

	outbound, err := fx.applier.Apply(context.Background(), result, conv, lead, time.Now().UTC())
	require.NoError(t, err)

	assert.Empty(t, outbound)
	assert.Equal(t, ModeHuman, conv.Mode)
	assert.True(t, conv.NeedsHumanAttention)
	assert.Equal(t, 1, fx.notifier.attention)
	require.Len(t, fx.audit.events, 1)
	assert.True(t, fx.audit.events[0].Escalated)
}

func TestApplyCTASelection(t *testing.T) {
	fx := newApplierFixture()
	conv, lead := applierConv()
	ctaID := uuid.New()
	at := time.Now().Add(48 * time.Hour).UTC()

	result := sendResult(StageCTA, 0.95, "Here is the booking link!")
	result.Classification.Action = ActionInitiateCTA
	result.Classification.CTAID = &ctaID
	result.Classification.CTAScheduledAt = &at

	outbound, err := fx.applier.Apply(context.Background(), result, conv, lead, time.Now().UTC())
	require.NoError(t, err)

	assert.NotEmpty(t, outbound)
	require.NotNil(t, conv.SelectedCTAID)
	assert.Equal(t, ctaID, *conv.SelectedCTAID)
	require.NotNil(t, conv.CTAScheduledAt)
	require.Len(t, fx.notifier.ctas, 1)
	assert.Equal(t, ctaID, fx.notifier.ctas[0])
}

func TestApplyPersistFailureStillReturnsReply(t *testing.T) {
	fx := newApplierFixture()
	fx.states.err = assert.AnError
	conv, lead := applierConv()

	outbound, err := fx.applier.Apply(context.Background(), sendResult(StagePricing, 0.9, "reply text"), conv, lead, time.Now().UTC())
	assert.Error(t, err)
	assert.Equal(t, "reply text", outbound, "transport is best-effort relative to the DB")
}

func TestApplyMirrorsLeadReadCopy(t *testing.T) {
	fx := newApplierFixture()
	conv, lead := applierConv()

	_, err := fx.applier.Apply(context.Background(), sendResult(StagePricing, 0.9, "x"), conv, lead, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, fx.funnels.states, 1)
	assert.Equal(t, "pricing", fx.funnels.states[0])
	assert.Equal(t, "high", fx.funnels.intents[0])
	assert.Equal(t, "positive", fx.funnels.sentiments[0])
}

func TestApplyMirrorsHeldStageWithFreshAssessment(t *testing.T) {
	fx := newApplierFixture()
	conv, lead := applierConv()

	// Below the threshold the stage is held, but intent and sentiment
	// still reflect this turn.
	_, err := fx.applier.Apply(context.Background(), sendResult(StagePricing, 0.5, "x"), conv, lead, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, fx.funnels.states, 1)
	assert.Equal(t, "qualification", fx.funnels.states[0])
	assert.Equal(t, "high", fx.funnels.intents[0])
	assert.Equal(t, "positive", fx.funnels.sentiments[0])
}
