package shared

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across domain services. Services wrap these with a
// human-readable reason; transport maps them onto HTTP statuses.
var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName indicates a create/rename collides with a unique name.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrForbidden indicates the subject lacks sufficient privilege.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates a mutation is blocked by referencing records.
	ErrConflict = errors.New("conflict")
	// ErrUnauthenticated indicates a missing, invalid or expired credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInactive indicates a valid credential for a deactivated account.
	ErrInactive = errors.New("account inactive")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
)

// NotFoundf wraps ErrNotFound with a reason.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Forbiddenf wraps ErrForbidden with a reason.
func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrForbidden}, args...)...)
}

// Conflictf wraps ErrConflict with a reason.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}

// DuplicateNamef wraps ErrDuplicateName with a reason.
func DuplicateNamef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrDuplicateName}, args...)...)
}

// Validationf wraps ErrValidation with a reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
