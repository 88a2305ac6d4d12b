package leads

import "errors"

var (
	// ErrMissingOrgID is returned when the org is not set
	ErrMissingOrgID = errors.New("org id is required")

	// ErrMissingPhone is returned when the phone number is missing
	ErrMissingPhone = errors.New("phone is required")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")
)
