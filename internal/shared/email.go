package shared

import (
	"strings"

	"golang.org/x/text/secure/precis"
)

// NormalizeEmail canonicalizes an address so case and unicode variants of
// the same mailbox collide on the unique index and on credential lookups.
// Registration and login must both pass through here or a mixed-case
// registration becomes unreachable at login.
func NormalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !strings.Contains(trimmed, "@") {
		return "", Validationf("invalid email address")
	}
	normalized, err := precis.UsernameCaseMapped.String(trimmed)
	if err != nil {
		return "", Validationf("invalid email address")
	}
	return normalized, nil
}
