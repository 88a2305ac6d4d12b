package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/leads"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/orgs"
)

type fakeConversationRepo struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*Conversation
	byLead   map[uuid.UUID]uuid.UUID
	summary  map[uuid.UUID]string
	inbounds int
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		byID:    make(map[uuid.UUID]*Conversation),
		byLead:  make(map[uuid.UUID]uuid.UUID),
		summary: make(map[uuid.UUID]string),
	}
}

func (f *fakeConversationRepo) Get(_ context.Context, id uuid.UUID) (*Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.byID[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	copied := *conv
	return &copied, nil
}

func (f *fakeConversationRepo) GetActiveByLead(_ context.Context, _, leadID uuid.UUID) (*Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byLead[leadID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	copied := *f.byID[id]
	return &copied, nil
}

func (f *fakeConversationRepo) Create(_ context.Context, orgID, leadID uuid.UUID) (*Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv := &Conversation{
		ID: uuid.New(), OrgID: orgID, LeadID: leadID,
		Stage: StageGreeting, Mode: ModeBot, Intent: IntentLow, Sentiment: SentimentNeutral,
	}
	f.byID[conv.ID] = conv
	f.byLead[leadID] = conv.ID
	return conv, nil
}

func (f *fakeConversationRepo) RecordInbound(_ context.Context, id uuid.UUID, text string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv, ok := f.byID[id]; ok {
		conv.LastMessageText = text
		conv.LastMessageAt = &at
		conv.LastUserMessageAt = &at
		f.inbounds++
	}
	return nil
}

func (f *fakeConversationRepo) UpdateState(_ context.Context, conv *Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *conv
	f.byID[conv.ID] = &copied
	return nil
}

func (f *fakeConversationRepo) UpdateSummary(_ context.Context, id uuid.UUID, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summary[id] = summary
	return nil
}

type fakeLeadRepo struct {
	mu    sync.Mutex
	leads map[uuid.UUID]*leads.Lead
}

func newFakeLeadRepo() *fakeLeadRepo {
	return &fakeLeadRepo{leads: make(map[uuid.UUID]*leads.Lead)}
}

func (f *fakeLeadRepo) UpsertByPhone(_ context.Context, req *leads.UpsertLeadRequest) (*leads.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.leads {
		if l.Phone == req.Phone && l.OrgID == req.OrgID {
			return l, nil
		}
	}
	lead := &leads.Lead{ID: uuid.New(), OrgID: req.OrgID, Phone: req.Phone, Name: req.Name}
	f.leads[lead.ID] = lead
	return lead, nil
}

func (f *fakeLeadRepo) GetByID(_ context.Context, _, id uuid.UUID) (*leads.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return nil, leads.ErrLeadNotFound
	}
	return lead, nil
}

type fakeOrgRepo struct{ org *orgs.Organization }

func (f *fakeOrgRepo) GetByID(_ context.Context, _ uuid.UUID) (*orgs.Organization, error) {
	return f.org, nil
}

func (f *fakeOrgRepo) ResolveByPhoneNumberID(_ context.Context, phoneNumberID string) (*orgs.Organization, error) {
	if phoneNumberID != f.org.PhoneNumberID {
		return nil, orgs.ErrOrgNotFound
	}
	return f.org, nil
}

func (f *fakeOrgRepo) ListCTAs(_ context.Context, _ uuid.UUID) ([]orgs.CTA, error) {
	return nil, nil
}

type fakeMessages struct {
	mu       sync.Mutex
	seen     map[string]bool
	appended []Message
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{seen: make(map[string]bool)}
}

func (f *fakeMessages) Append(_ context.Context, msg *Message) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.ProviderMessageID != "" && f.seen[msg.ProviderMessageID] {
		return false, nil
	}
	if msg.ProviderMessageID != "" {
		f.seen[msg.ProviderMessageID] = true
	}
	f.appended = append(f.appended, *msg)
	return true, nil
}

func (f *fakeMessages) Recent(_ context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, m := range f.appended {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[uuid.UUID]bool
}

func newFakeLocks() *fakeLocks { return &fakeLocks{held: make(map[uuid.UUID]bool)} }

func (f *fakeLocks) Acquire(_ context.Context, id uuid.UUID) (func(), bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[id] {
		return nil, false, nil
	}
	f.held[id] = true
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, id)
	}, true, nil
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []OutboundReply
}

func (f *fakeMessenger) SendReply(_ context.Context, reply OutboundReply) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, reply)
	return "wamid.out." + uuid.NewString(), nil
}

type engineFixture struct {
	engine    *Engine
	convs     *fakeConversationRepo
	messages  *fakeMessages
	messenger *fakeMessenger
	locks     *fakeLocks
	scheduler *fakeScheduler
	org       *orgs.Organization
}

func newEngineFixture(llm LLMClient) *engineFixture {
	convs := newFakeConversationRepo()
	leadsRepo := newFakeLeadRepo()
	org := &orgs.Organization{
		ID: uuid.New(), Name: "Acme Fitness", PhoneNumberID: "109765",
		WhatsAppToken: "token",
	}
	orgsRepo := &fakeOrgRepo{org: org}
	messages := newFakeMessages()
	locks := newFakeLocks()
	scheduler := &fakeScheduler{}
	messenger := &fakeMessenger{}

	classifier := NewClassifier(llm, "test-model", nil, quickRetry(), nil)
	generator := NewGenerator(llm, "test-model", quickRetry(), nil)
	pipeline := NewPipeline(classifier, generator, nil, nil)
	assembler := NewContextAssembler(messages, ResponseConstraints{MaxWords: 80, MaxQuestions: 1})
	applier := NewActionApplier(convs, nil, scheduler, nil, nil, nil)
	summarizer := NewSummarizer(llm, "test-model", nil)

	engine := NewEngine(convs, leadsRepo, orgsRepo, messages, locks,
		assembler, pipeline, applier, summarizer, messenger, nil, nil)

	return &engineFixture{
		engine: engine, convs: convs, messages: messages,
		messenger: messenger, locks: locks, scheduler: scheduler, org: org,
	}
}

func inboundMsg(id string) InboundMessage {
	return InboundMessage{
		ProviderMessageID: id,
		PhoneNumberID:     "109765",
		SenderPhone:       "+15550001111",
		SenderName:        "Jo",
		Text:              "How much is the premium plan?",
		ReceivedAt:        time.Now().UTC(),
	}
}

func TestEngineProcessInboundEndToEnd(t *testing.T) {
	llm := &scriptedLLM{
		responses: []LLMResponse{
			{Text: `{"intent_level":"high","user_sentiment":"positive",
				"spam_risk":"low","policy_risk":"low","hallucination_risk":"low",
				"action":"send_now","new_stage":"pricing","should_respond":true,
				"confidence":0.9}`},
			{Text: `{"text":"The premium plan is $49/month.","language":"en","self_check_passed":true}`},
			{Text: "Lead asked about premium pricing; quoted $49/month."},
		},
	}
	fx := newEngineFixture(llm)

	report, err := fx.engine.ProcessInbound(context.Background(), inboundMsg("wamid.1"))
	require.NoError(t, err)

	assert.Equal(t, StagePricing, report.Stage)
	assert.Equal(t, "The premium plan is $49/month.", report.ReplyText)
	require.Len(t, fx.messenger.sent, 1)
	assert.Equal(t, "+15550001111", fx.messenger.sent[0].To)
	assert.Equal(t, "token", fx.messenger.sent[0].AccessToken)

	// Inbound and outbound are both persisted.
	require.GreaterOrEqual(t, len(fx.messages.appended), 2)
	assert.Equal(t, ChatRoleUser, fx.messages.appended[0].Role)
	assert.Equal(t, ChatRoleAssistant, fx.messages.appended[1].Role)

	// The summary lands asynchronously.
	assert.Eventually(t, func() bool {
		fx.convs.mu.Lock()
		defer fx.convs.mu.Unlock()
		return fx.convs.summary[report.ConversationID] != ""
	}, time.Second, 10*time.Millisecond)
}

func TestEngineDuplicateDeliveryIsIdempotent(t *testing.T) {
	llm := &scriptedLLM{
		responses: []LLMResponse{
			{Text: `{"intent_level":"high","user_sentiment":"positive",
				"spam_risk":"low","policy_risk":"low","hallucination_risk":"low",
				"action":"send_now","new_stage":"pricing","should_respond":true,
				"confidence":0.9}`},
			{Text: `{"text":"$49/month.","language":"en","self_check_passed":true}`},
			{Text: "summary"},
		},
	}
	fx := newEngineFixture(llm)

	_, err := fx.engine.ProcessInbound(context.Background(), inboundMsg("wamid.dup"))
	require.NoError(t, err)

	report, err := fx.engine.ProcessInbound(context.Background(), inboundMsg("wamid.dup"))
	require.NoError(t, err)
	assert.True(t, report.Duplicate)
	assert.Len(t, fx.messenger.sent, 1, "duplicate must not trigger a second reply")
}

func TestEngineHumanModeSkipsPipeline(t *testing.T) {
	llm := &scriptedLLM{}
	fx := newEngineFixture(llm)

	// First contact creates the conversation; flip it to human mode.
	msg := inboundMsg("wamid.h1")
	llm.responses = []LLMResponse{{Text: "garbage"}}
	_, err := fx.engine.ProcessInbound(context.Background(), msg)
	require.NoError(t, err)

	for _, conv := range fx.convs.byID {
		conv.Mode = ModeHuman
	}

	report, err := fx.engine.ProcessInbound(context.Background(), inboundMsg("wamid.h2"))
	require.NoError(t, err)
	assert.Empty(t, report.ReplyText)
	assert.Empty(t, fx.messenger.sent)
}

func TestEngineBusyConversationReturnsTypedError(t *testing.T) {
	llm := &scriptedLLM{}
	fx := newEngineFixture(llm)

	llm.responses = []LLMResponse{{Text: "garbage"}}
	_, err := fx.engine.ProcessInbound(context.Background(), inboundMsg("wamid.b1"))
	require.NoError(t, err)

	var convID uuid.UUID
	for id := range fx.convs.byID {
		convID = id
	}
	release, ok, err := fx.locks.Acquire(context.Background(), convID)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	_, err = fx.engine.ProcessInbound(context.Background(), inboundMsg("wamid.b2"))
	assert.ErrorIs(t, err, ErrConversationBusy)
}

func TestEngineUnknownTenantFails(t *testing.T) {
	fx := newEngineFixture(&scriptedLLM{})

	msg := inboundMsg("wamid.u1")
	msg.PhoneNumberID = "does-not-exist"
	_, err := fx.engine.ProcessInbound(context.Background(), msg)
	assert.ErrorIs(t, err, orgs.ErrOrgNotFound)
}

func TestEngineFollowupTurn(t *testing.T) {
	llm := &scriptedLLM{
		responses: []LLMResponse{
			// First inbound turn schedules a follow-up.
			{Text: `{"intent_level":"medium","user_sentiment":"neutral",
				"spam_risk":"low","policy_risk":"low","hallucination_risk":"low",
				"action":"wait_schedule","new_stage":"qualification","should_respond":false,
				"followup_in_minutes":60,"followup_reason":"lead deciding","confidence":0.8}`},
			{Text: "summary one"},
			// The follow-up turn nudges.
			{Text: `{"intent_level":"medium","user_sentiment":"neutral",
				"spam_risk":"low","policy_risk":"low","hallucination_risk":"low",
				"action":"send_now","new_stage":"qualification","should_respond":true,
				"confidence":0.85}`},
			{Text: `{"text":"Just checking in, any questions?","language":"en","self_check_passed":true}`},
			{Text: "summary two"},
		},
	}
	fx := newEngineFixture(llm)

	_, err := fx.engine.ProcessInbound(context.Background(), inboundMsg("wamid.f1"))
	require.NoError(t, err)
	require.Len(t, fx.scheduler.calls, 1)

	var convID uuid.UUID
	for id := range fx.convs.byID {
		convID = id
	}

	// Let the background summary finish so the scripted responses stay in order.
	require.Eventually(t, func() bool {
		fx.convs.mu.Lock()
		defer fx.convs.mu.Unlock()
		return fx.convs.summary[convID] != ""
	}, time.Second, 10*time.Millisecond)
	report, err := fx.engine.RunFollowupTurn(context.Background(), ScheduledAction{
		ID:             uuid.New(),
		ConversationID: convID,
		OrgID:          fx.org.ID,
		ScheduledAt:    time.Now(),
		Status:         ScheduledStatusPending,
		ActionType:     "followup",
	})
	require.NoError(t, err)
	assert.Equal(t, "Just checking in, any questions?", report.ReplyText)
	require.Len(t, fx.messenger.sent, 1)
}

func TestEngineFollowupAgainstHumanModeRefuses(t *testing.T) {
	fx := newEngineFixture(&scriptedLLM{responses: []LLMResponse{{Text: "garbage"}}})

	_, err := fx.engine.ProcessInbound(context.Background(), inboundMsg("wamid.hm"))
	require.NoError(t, err)

	var convID uuid.UUID
	for id, conv := range fx.convs.byID {
		conv.Mode = ModeHuman
		convID = id
	}

	_, err = fx.engine.RunFollowupTurn(context.Background(), ScheduledAction{
		ID: uuid.New(), ConversationID: convID, OrgID: fx.org.ID,
	})
	assert.ErrorIs(t, err, ErrHumanModeActive)
}
