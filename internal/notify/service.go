package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/conversation"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/events"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/leads"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/orgs"
	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

const (
	typeHumanAttentionRequired = "conversation.human_attention_required.v1"
	typeCTAInitiated           = "conversation.cta_initiated.v1"
)

type orgDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*orgs.Organization, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, orgID, eventType string, event any) error
}

// Service turns pipeline signals into operator notifications: an email
// to the org's configured address plus a pub/sub event for live
// dashboards. Either channel may be absent.
type Service struct {
	directory orgDirectory
	sender    EmailSender
	publisher eventPublisher
	logger    *logging.Logger
}

// NewService wires the notification service. sender and publisher are
// optional; with both nil the service only logs.
func NewService(directory orgDirectory, sender EmailSender, publisher *events.Publisher, logger *logging.Logger) *Service {
	if directory == nil {
		panic("notify: org directory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{directory: directory, sender: sender, logger: logger}
	if publisher != nil {
		s.publisher = publisher
	}
	return s
}

// NotifyHumanAttention alerts the org that a conversation needs a human.
func (s *Service) NotifyHumanAttention(ctx context.Context, conv *conversation.Conversation, lead *leads.Lead, reason string) error {
	org, err := s.directory.GetByID(ctx, conv.OrgID)
	if err != nil {
		return fmt.Errorf("notify: resolve org %s: %w", conv.OrgID, err)
	}

	s.publish(ctx, org.ID.String(), typeHumanAttentionRequired, events.HumanAttentionRequiredV1{
		EventID:        uuid.NewString(),
		OrgID:          org.ID.String(),
		ConversationID: conv.ID.String(),
		LeadID:         lead.ID.String(),
		LeadPhone:      lead.Phone,
		Reason:         reason,
		OccurredAt:     time.Now().UTC(),
	})

	if s.sender == nil || org.NotifyEmail == "" {
		s.logger.Info("human attention raised without email channel",
			"conversation_id", conv.ID, "org_id", org.ID, "reason", reason)
		return nil
	}

	name := lead.Name
	if name == "" {
		name = lead.Phone
	}
	msg := EmailMessage{
		To:      org.NotifyEmail,
		ToName:  org.Name,
		Subject: fmt.Sprintf("Conversation needs attention: %s", name),
		Body: fmt.Sprintf(
			"A WhatsApp conversation was flagged for human follow-up.\n\n"+
				"Lead: %s (%s)\nStage: %s\nReason: %s\nConversation: %s\n",
			name, lead.Phone, conv.Stage, reason, conv.ID),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: human attention email: %w", err)
	}
	return nil
}

// NotifyCTAInitiated alerts the org that a lead entered a call to action.
func (s *Service) NotifyCTAInitiated(ctx context.Context, conv *conversation.Conversation, lead *leads.Lead, ctaID uuid.UUID) error {
	org, err := s.directory.GetByID(ctx, conv.OrgID)
	if err != nil {
		return fmt.Errorf("notify: resolve org %s: %w", conv.OrgID, err)
	}

	s.publish(ctx, org.ID.String(), typeCTAInitiated, events.CTAInitiatedV1{
		EventID:        uuid.NewString(),
		OrgID:          org.ID.String(),
		ConversationID: conv.ID.String(),
		LeadID:         lead.ID.String(),
		CTAID:          ctaID.String(),
		OccurredAt:     time.Now().UTC(),
	})

	if s.sender == nil || org.NotifyEmail == "" {
		return nil
	}

	name := lead.Name
	if name == "" {
		name = lead.Phone
	}
	msg := EmailMessage{
		To:      org.NotifyEmail,
		ToName:  org.Name,
		Subject: fmt.Sprintf("New CTA conversion: %s", name),
		Body: fmt.Sprintf(
			"A lead accepted a call to action.\n\n"+
				"Lead: %s (%s)\nCTA: %s\nConversation: %s\n",
			name, lead.Phone, ctaID, conv.ID),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: cta email: %w", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, orgID, eventType string, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, orgID, eventType, event); err != nil {
		s.logger.Warn("notification event publish failed", "error", err, "type", eventType)
	}
}
