package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/conversation"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/events"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/leads"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/orgs"
	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

type fakeDirectory struct {
	org *orgs.Organization
	err error
}

func (f *fakeDirectory) GetByID(context.Context, uuid.UUID) (*orgs.Organization, error) {
	return f.org, f.err
}

type recordingSender struct {
	sent []EmailMessage
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg EmailMessage) error {
	r.sent = append(r.sent, msg)
	return r.err
}

type recordingPublisher struct {
	types  []string
	events []any
}

func (r *recordingPublisher) Publish(_ context.Context, _ string, eventType string, event any) error {
	r.types = append(r.types, eventType)
	r.events = append(r.events, event)
	return nil
}

func notifyFixture() (*Service, *recordingSender, *recordingPublisher, *conversation.Conversation, *leads.Lead) {
	org := &orgs.Organization{
		ID:          uuid.New(),
		Name:        "Acme Fitness",
		NotifyEmail: "owner@acmefitness.test",
	}
	conv := &conversation.Conversation{
		ID:    uuid.New(),
		OrgID: org.ID,
		Stage: conversation.StagePricing,
	}
	lead := &leads.Lead{
		ID:    uuid.New(),
		OrgID: org.ID,
		Phone: "+14155550100",
		Name:  "Dana",
	}

	sender := &recordingSender{}
	pub := &recordingPublisher{}
	svc := &Service{
		directory: &fakeDirectory{org: org},
		sender:    sender,
		publisher: pub,
		logger:    logging.Default(),
	}
	return svc, sender, pub, conv, lead
}

func TestNotifyHumanAttentionSendsEmailAndEvent(t *testing.T) {
	svc, sender, pub, conv, lead := notifyFixture()

	err := svc.NotifyHumanAttention(context.Background(), conv, lead, "explicit request for a human")
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "owner@acmefitness.test", msg.To)
	assert.Contains(t, msg.Subject, "Dana")
	assert.Contains(t, msg.Body, "explicit request for a human")

	require.Len(t, pub.events, 1)
	assert.Equal(t, typeHumanAttentionRequired, pub.types[0])
	raised := pub.events[0].(events.HumanAttentionRequiredV1)
	assert.Equal(t, lead.ID.String(), raised.LeadID)
}

func TestNotifyCTAInitiated(t *testing.T) {
	svc, sender, pub, conv, lead := notifyFixture()
	ctaID := uuid.New()

	require.NoError(t, svc.NotifyCTAInitiated(context.Background(), conv, lead, ctaID))

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Body, ctaID.String())
	require.Len(t, pub.types, 1)
	assert.Equal(t, typeCTAInitiated, pub.types[0])
}

func TestNotifyWithoutEmailChannelStillPublishes(t *testing.T) {
	svc, sender, pub, conv, lead := notifyFixture()
	svc.sender = nil

	require.NoError(t, svc.NotifyHumanAttention(context.Background(), conv, lead, "spam surge"))
	assert.Empty(t, sender.sent)
	assert.Len(t, pub.events, 1)
}

func TestNotifyUnknownOrgFails(t *testing.T) {
	svc, _, _, conv, lead := notifyFixture()
	svc.directory = &fakeDirectory{err: orgs.ErrOrgNotFound}

	err := svc.NotifyHumanAttention(context.Background(), conv, lead, "whatever")
	assert.ErrorIs(t, err, orgs.ErrOrgNotFound)
}

func TestNotifyEmailFailureSurfaces(t *testing.T) {
	svc, sender, _, conv, lead := notifyFixture()
	sender.err = errors.New("smtp timeout")

	err := svc.NotifyHumanAttention(context.Background(), conv, lead, "angry lead")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "human attention email")
}
