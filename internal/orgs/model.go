// Package orgs resolves organizations (tenants) and their WhatsApp channel
// configuration.
package orgs

import (
	"time"

	"github.com/google/uuid"
)

// Organization is one tenant of the platform. Each org owns exactly one
// WhatsApp Business phone number.
type Organization struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	FlowInstructions string    `json:"flow_instructions"`

	// PhoneNumberID is the WhatsApp Cloud API phone number id the org
	// receives and sends on. Inbound events are routed by this value.
	PhoneNumberID string `json:"phone_number_id"`
	WhatsAppToken string `json:"-"`

	NotifyEmail string    `json:"notify_email"`
	CreatedAt   time.Time `json:"created_at"`
}

// CTA is a business-defined call to action (booking link, payment link,
// phone call offer) the pipeline can select for a lead.
type CTA struct {
	ID          uuid.UUID `json:"id"`
	OrgID       uuid.UUID `json:"org_id"`
	Label       string    `json:"label"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Active      bool      `json:"active"`
}
