package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/leads"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/orgs"
)

const (
	// historyLimit bounds the messages handed to the LLM per run.
	historyLimit = 10
	// historyMessageMaxChars truncates pathological single messages.
	historyMessageMaxChars = 600

	// messagingWindow is WhatsApp's reply window after the last inbound
	// lead message. At exactly the boundary the window counts as closed.
	messagingWindow = 24 * time.Hour
)

type historyReader interface {
	Recent(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)
}

// ContextAssembler builds the immutable PipelineInput snapshot for one run.
// It only reads; nothing here mutates state.
type ContextAssembler struct {
	messages    historyReader
	constraints ResponseConstraints
}

// NewContextAssembler wires the assembler.
func NewContextAssembler(messages historyReader, constraints ResponseConstraints) *ContextAssembler {
	if messages == nil {
		panic("conversation: history reader required")
	}
	return &ContextAssembler{messages: messages, constraints: constraints}
}

// Assemble produces the snapshot for a pipeline run. Conversation, lead and
// org are hard preconditions; a nil any of them is a caller bug.
func (a *ContextAssembler) Assemble(
	ctx context.Context,
	conv *Conversation,
	lead *leads.Lead,
	org *orgs.Organization,
	ctas []orgs.CTA,
	knowledge []ContextSnippet,
	now time.Time,
) (PipelineInput, error) {
	if conv == nil || lead == nil || org == nil {
		return PipelineInput{}, errors.New("conversation: assemble requires conversation, lead and org")
	}

	recent, err := a.messages.Recent(ctx, conv.ID, historyLimit)
	if err != nil {
		return PipelineInput{}, fmt.Errorf("conversation: load history: %w", err)
	}

	history := make([]HistoryMessage, 0, len(recent))
	for _, msg := range recent {
		history = append(history, HistoryMessage{
			Role:   msg.Role,
			Body:   truncate(msg.Body, historyMessageMaxChars),
			SentAt: msg.CreatedAt,
		})
	}

	in := PipelineInput{
		ConversationID: conv.ID,
		OrgID:          conv.OrgID,
		LeadID:         lead.ID,
		LeadName:       lead.Name,
		LeadPhone:      lead.Phone,

		Business: BusinessProfile{
			Name:             org.Name,
			Description:      org.Description,
			FlowInstructions: org.FlowInstructions,
		},

		History:   history,
		Summary:   conv.Summary,
		Stage:     conv.Stage,
		Intent:    conv.Intent,
		Sentiment: conv.Sentiment,

		Now:               now,
		LastUserMessageAt: conv.LastUserMessageAt,
		LastBotMessageAt:  conv.LastBotMessageAt,
		WindowOpen:        windowOpen(now, conv.LastUserMessageAt),

		FollowupsLast24h: conv.FollowupsLast24h,
		NudgesTotal:      conv.NudgesTotal,

		Knowledge:   knowledge,
		Constraints: a.constraints,
	}

	for _, cta := range ctas {
		in.CTAs = append(in.CTAs, CTA{
			ID:          cta.ID,
			Label:       cta.Label,
			Description: cta.Description,
			URL:         cta.URL,
		})
	}

	return in, nil
}

// windowOpen implements the compliance boundary: open iff a lead message
// exists and strictly less than 24h have passed since it.
func windowOpen(now time.Time, lastUserMessageAt *time.Time) bool {
	if lastUserMessageAt == nil {
		return false
	}
	return now.Sub(*lastUserMessageAt) < messagingWindow
}
