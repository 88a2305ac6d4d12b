package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/leads"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/orgs"
	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

var (
	// ErrConversationBusy means another run holds the conversation lock.
	// The caller should let the queue redeliver the message.
	ErrConversationBusy = errors.New("conversation: another run is in progress")

	// ErrHumanModeActive means a human operator owns the conversation and
	// the bot must not act on it.
	ErrHumanModeActive = errors.New("conversation: human mode active")
)

const summarizeTimeout = 30 * time.Second

type conversationRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*Conversation, error)
	GetActiveByLead(ctx context.Context, orgID, leadID uuid.UUID) (*Conversation, error)
	Create(ctx context.Context, orgID, leadID uuid.UUID) (*Conversation, error)
	RecordInbound(ctx context.Context, id uuid.UUID, text string, at time.Time) error
	UpdateSummary(ctx context.Context, id uuid.UUID, summary string) error
}

type leadRepository interface {
	UpsertByPhone(ctx context.Context, req *leads.UpsertLeadRequest) (*leads.Lead, error)
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*leads.Lead, error)
}

type orgRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*orgs.Organization, error)
	ResolveByPhoneNumberID(ctx context.Context, phoneNumberID string) (*orgs.Organization, error)
	ListCTAs(ctx context.Context, orgID uuid.UUID) ([]orgs.CTA, error)
}

type messageAppender interface {
	Append(ctx context.Context, msg *Message) (bool, error)
}

type conversationLocker interface {
	Acquire(ctx context.Context, conversationID uuid.UUID) (release func(), ok bool, err error)
}

// KnowledgeRetriever supplies business knowledge snippets for a run.
type KnowledgeRetriever interface {
	Retrieve(ctx context.Context, orgID uuid.UUID, query string) ([]ContextSnippet, error)
}

// TurnReport summarizes one processed turn for job tracking.
type TurnReport struct {
	ConversationID uuid.UUID
	OrgID          uuid.UUID
	Stage          Stage
	ReplyText      string
	Duplicate      bool
}

// Engine executes one conversation turn end to end: resolve the tenant,
// snapshot state, run the pipeline, apply the result, deliver the reply and
// fold the exchange into memory. The queue worker and the follow-up sweeper
// both drive it.
type Engine struct {
	conversations conversationRepository
	leadsRepo     leadRepository
	orgsRepo      orgRepository
	messages      messageAppender
	locks         conversationLocker

	assembler  *ContextAssembler
	pipeline   *Pipeline
	applier    *ActionApplier
	summarizer *Summarizer

	messenger ReplyMessenger
	retriever KnowledgeRetriever

	logger *logging.Logger
	events *EventLogger
}

// SetEventLogger attaches a decision-point event logger. Optional; the
// engine runs fine without one.
func (e *Engine) SetEventLogger(el *EventLogger) {
	e.events = el
}

// NewEngine wires the turn engine. messenger and retriever may be nil; the
// engine then runs silent (useful in tests and dry runs).
func NewEngine(
	conversations conversationRepository,
	leadsRepo leadRepository,
	orgsRepo orgRepository,
	messages messageAppender,
	locks conversationLocker,
	assembler *ContextAssembler,
	pipeline *Pipeline,
	applier *ActionApplier,
	summarizer *Summarizer,
	messenger ReplyMessenger,
	retriever KnowledgeRetriever,
	logger *logging.Logger,
) *Engine {
	if conversations == nil || leadsRepo == nil || orgsRepo == nil || messages == nil {
		panic("conversation: engine requires all repositories")
	}
	if locks == nil {
		panic("conversation: engine requires a locker")
	}
	if assembler == nil || pipeline == nil || applier == nil {
		panic("conversation: engine requires assembler, pipeline and applier")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		conversations: conversations,
		leadsRepo:     leadsRepo,
		orgsRepo:      orgsRepo,
		messages:      messages,
		locks:         locks,
		assembler:     assembler,
		pipeline:      pipeline,
		applier:       applier,
		summarizer:    summarizer,
		messenger:     messenger,
		retriever:     retriever,
		logger:        logger,
	}
}

// ProcessInbound handles one queued WhatsApp message. Duplicate deliveries
// are detected via the provider message id and acknowledged without a
// second pipeline run.
func (e *Engine) ProcessInbound(ctx context.Context, msg InboundMessage) (*TurnReport, error) {
	org, err := e.orgsRepo.ResolveByPhoneNumberID(ctx, msg.PhoneNumberID)
	if err != nil {
		return nil, err
	}

	lead, err := e.leadsRepo.UpsertByPhone(ctx, &leads.UpsertLeadRequest{
		OrgID: org.ID,
		Phone: msg.SenderPhone,
		Name:  msg.SenderName,
	})
	if err != nil {
		return nil, err
	}

	conv, err := e.conversations.GetActiveByLead(ctx, org.ID, lead.ID)
	if errors.Is(err, ErrConversationNotFound) {
		conv, err = e.conversations.Create(ctx, org.ID, lead.ID)
	}
	if err != nil {
		return nil, err
	}

	receivedAt := msg.ReceivedAt.UTC()
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	stored, err := e.messages.Append(ctx, &Message{
		ConversationID:    conv.ID,
		Role:              ChatRoleUser,
		Body:              msg.Text,
		ProviderMessageID: msg.ProviderMessageID,
		CreatedAt:         receivedAt,
	})
	if err != nil {
		return nil, err
	}
	report := &TurnReport{ConversationID: conv.ID, OrgID: org.ID, Stage: conv.Stage}
	if !stored {
		e.logger.Info("duplicate inbound message acknowledged",
			"provider_message_id", msg.ProviderMessageID, "conversation_id", conv.ID)
		e.events.DuplicateSkipped(ctx, conv.ID.String(), org.ID.String(), msg.ProviderMessageID)
		report.Duplicate = true
		return report, nil
	}
	e.events.MessageReceived(ctx, conv.ID.String(), org.ID.String(), lead.ID.String(), msg.Text)

	if err := e.conversations.RecordInbound(ctx, conv.ID, msg.Text, receivedAt); err != nil {
		e.logger.Warn("record inbound failed", "error", err, "conversation_id", conv.ID)
	}
	conv.LastMessageText = msg.Text
	conv.LastMessageAt = &receivedAt
	conv.LastUserMessageAt = &receivedAt

	if conv.Mode == ModeHuman {
		// Stored for the operator; the bot stays out of the way.
		return report, nil
	}

	release, ok, err := e.locks.Acquire(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConversationBusy
	}
	defer release()

	return e.runTurn(ctx, conv, lead, org, TriggerInbound, msg.Text)
}

// RunFollowupTurn re-enters the pipeline for one due scheduled action.
func (e *Engine) RunFollowupTurn(ctx context.Context, action ScheduledAction) (*TurnReport, error) {
	conv, err := e.conversations.Get(ctx, action.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.Mode == ModeHuman {
		return nil, ErrHumanModeActive
	}

	e.events.FollowupRun(ctx, conv.ID.String(), conv.OrgID.String(), action.ActionType)

	lead, err := e.leadsRepo.GetByID(ctx, conv.OrgID, conv.LeadID)
	if err != nil {
		return nil, err
	}
	org, err := e.orgsRepo.GetByID(ctx, conv.OrgID)
	if err != nil {
		return nil, err
	}

	release, ok, err := e.locks.Acquire(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConversationBusy
	}
	defer release()

	return e.runTurn(ctx, conv, lead, org, TriggerFollowup, conv.LastMessageText)
}

func (e *Engine) runTurn(ctx context.Context, conv *Conversation, lead *leads.Lead, org *orgs.Organization, trigger TriggerKind, userMessage string) (*TurnReport, error) {
	now := time.Now().UTC()

	ctas, err := e.orgsRepo.ListCTAs(ctx, org.ID)
	if err != nil {
		e.logger.Warn("cta lookup failed, running without ctas", "error", err, "org_id", org.ID)
	}

	var knowledge []ContextSnippet
	if e.retriever != nil && userMessage != "" {
		knowledge, err = e.retriever.Retrieve(ctx, org.ID, userMessage)
		if err != nil {
			e.logger.Warn("knowledge retrieval failed, running without context",
				"error", err, "conversation_id", conv.ID)
			knowledge = nil
		}
	}

	in, err := e.assembler.Assemble(ctx, conv, lead, org, ctas, knowledge, now)
	if err != nil {
		return nil, err
	}

	var result PipelineResult
	if trigger == TriggerFollowup {
		result = e.pipeline.RunFollowup(ctx, in)
	} else {
		result = e.pipeline.Run(ctx, in)
	}

	e.events.TurnCompleted(ctx, conv.ID.String(), org.ID.String(),
		result.Classification.NewStage, result.Classification.Action,
		result.Classification.Confidence, result.Emergency)

	reply, applyErr := e.applier.Apply(ctx, result, conv, lead, now)

	if reply != "" {
		e.deliver(ctx, conv, org, lead, reply)
	}

	if result.NeedsBackgroundSummary && e.summarizer != nil {
		go e.summarizeInBackground(in, conv.ID, userMessage, reply, result.Classification)
	}

	return &TurnReport{
		ConversationID: conv.ID,
		OrgID:          org.ID,
		Stage:          conv.Stage,
		ReplyText:      reply,
	}, applyErr
}

func (e *Engine) deliver(ctx context.Context, conv *Conversation, org *orgs.Organization, lead *leads.Lead, reply string) {
	if e.messenger == nil {
		e.logger.Warn("no messenger configured, dropping reply", "conversation_id", conv.ID)
		return
	}

	providerID, err := e.messenger.SendReply(ctx, OutboundReply{
		OrgID:          org.ID,
		ConversationID: conv.ID,
		PhoneNumberID:  org.PhoneNumberID,
		AccessToken:    org.WhatsAppToken,
		To:             lead.Phone,
		Body:           reply,
	})
	if err != nil {
		e.logger.Error("reply delivery failed", "error", err, "conversation_id", conv.ID)
		e.events.ErrorOccurred(ctx, conv.ID.String(), org.ID.String(), "deliver", err)
		return
	}
	e.events.ReplySent(ctx, conv.ID.String(), org.ID.String(), len(reply))

	if _, err := e.messages.Append(ctx, &Message{
		ConversationID:    conv.ID,
		Role:              ChatRoleAssistant,
		Body:              reply,
		ProviderMessageID: providerID,
		CreatedAt:         time.Now().UTC(),
	}); err != nil {
		e.logger.Warn("outbound message persistence failed", "error", err, "conversation_id", conv.ID)
	}
}

// summarizeInBackground folds the exchange into the rolling summary after
// the reply path finished. It runs detached from the turn's context so a
// completed turn is never failed retroactively.
func (e *Engine) summarizeInBackground(in PipelineInput, conversationID uuid.UUID, userMessage, reply string, cls ClassifyOutput) {
	ctx, cancel := context.WithTimeout(context.Background(), summarizeTimeout)
	defer cancel()

	summary := e.summarizer.Summarize(ctx, in, userMessage, reply, cls)
	if summary == in.Summary {
		return
	}
	if err := e.conversations.UpdateSummary(ctx, conversationID, summary); err != nil {
		e.logger.Warn("summary persistence failed", "error", err, "conversation_id", conversationID)
	}
}
