package orgs

import "errors"

var (
	// ErrOrgNotFound is returned when no organization matches
	ErrOrgNotFound = errors.New("organization not found")
)
