package messaging

import (
	"regexp"
	"strings"
)

var phoneDigitsRe = regexp.MustCompile(`\d+`)

// NormalizeWaID reduces a phone number to the digits-only wa_id form the
// Cloud API expects in the "to" field. Leading +, spaces and punctuation
// are dropped.
func NormalizeWaID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return strings.Join(phoneDigitsRe.FindAllString(value, -1), "")
}
