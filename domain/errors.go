package domain

import "errors"

// Validation errors
var (
	ErrInvalidPhone = errors.New("invalid phone")
	ErrMissingField = errors.New("missing required field")
	ErrInvalidRole  = errors.New("invalid role")
	ErrInvalidScope = errors.New("invalid operator scope")

	ErrInvalidOrganization = errors.New("invalid organization")
)

// Identity errors
var (
	ErrDriverNotFound   = errors.New("driver not found")
	ErrDriverExists     = errors.New("driver already exists")
	ErrConcurrentUpdate = errors.New("concurrent update detected")
)

// ErrInvalidOrExpired is returned for every verification failure so callers
// cannot tell a wrong code from an expired one or an unknown phone.
var ErrInvalidOrExpired = errors.New("invalid or expired verification code")

// Session errors
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionTokenConflict = errors.New("session token already exists")
	ErrTokenMalformed       = errors.New("malformed token")
)

// Authorization errors
var (
	ErrUnauthorized = errors.New("unauthorized access")
	ErrForbidden    = errors.New("forbidden")
)

// Persistence lookups
var (
	ErrAttemptNotFound       = errors.New("attempt not found")
	ErrOperatorTokenNotFound = errors.New("operator token not found")
	ErrOrganizationNotFound  = errors.New("organization not found")
	ErrOrganizationExists    = errors.New("organization already exists")
)

// ErrChannelDisabled is recovered locally by falling back to log delivery
var ErrChannelDisabled = errors.New("delivery channel disabled")

// Fatal errors, never retried in a weakened mode
var (
	ErrTokenCollision = errors.New("session token collision")
	ErrMissingSecret  = errors.New("required secret missing")
)
