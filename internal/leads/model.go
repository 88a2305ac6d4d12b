package leads

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Lead is one WhatsApp contact known to an organization. Leads are keyed
// by (org, phone); the first inbound message creates them. FunnelState,
// Intent and Sentiment are a read-optimized copy of the conversation's
// assessment so CRM list views never join on conversations.
type Lead struct {
	ID          uuid.UUID `json:"id"`
	OrgID       uuid.UUID `json:"org_id"`
	Phone       string    `json:"phone"`
	Name        string    `json:"name"`
	FunnelState string    `json:"funnel_state"`
	Intent      string    `json:"intent"`
	Sentiment   string    `json:"sentiment"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpsertLeadRequest carries the fields learned from an inbound message.
type UpsertLeadRequest struct {
	OrgID uuid.UUID
	Phone string
	Name  string
}

// Validate checks the upsert request.
func (r *UpsertLeadRequest) Validate() error {
	if r.OrgID == uuid.Nil {
		return ErrMissingOrgID
	}
	if strings.TrimSpace(r.Phone) == "" {
		return ErrMissingPhone
	}
	return nil
}
