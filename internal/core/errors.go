package core

import "errors"

// Submission errors. Each one blocks the ledger append and is rendered to
// the user; none of them is fatal to the process.
var (
	ErrNotFound             = errors.New("tenant not found")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAmbiguousIdentity    = errors.New("more than one tenant matches this name")
	ErrInvalidReading       = errors.New("current reading is lower than previous reading")
	ErrInvalidRent          = errors.New("rent must not be negative")
	ErrStoreUnavailable     = errors.New("data store unavailable")
	// ErrDamagedRecord means the newest record for a unit and room has no
	// usable meter reading, so no baseline can be trusted.
	ErrDamagedRecord = errors.New("latest ledger record has no readable meter reading")
)

// ErrorKind returns a short stable label for a submission error, used for
// metrics and log fields.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAuthenticationFailed):
		return "authentication_failed"
	case errors.Is(err, ErrAmbiguousIdentity):
		return "ambiguous_identity"
	case errors.Is(err, ErrInvalidReading):
		return "invalid_reading"
	case errors.Is(err, ErrInvalidRent), errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrDamagedRecord):
		return "damaged_record"
	case errors.Is(err, ErrEmptyName), errors.Is(err, ErrEmptyUnit), errors.Is(err, ErrEmptyRoom),
		errors.Is(err, ErrUnknownUnit), errors.Is(err, ErrUnknownRoom), errors.Is(err, ErrNameTooLong),
		errors.Is(err, ErrDuplicateTenant):
		return "validation"
	default:
		return "internal"
	}
}
