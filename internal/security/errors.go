// Package security owns authentication, sessions, CSRF tokens, login
// lockout and rate limiting. All tables are fixed-capacity and evict by
// oldest expiry, matching the constrained target environment.
package security

import "errors"

var (
	// ErrInvalidCredentials rejects a bad username/password pair.
	ErrInvalidCredentials = errors.New("security: invalid credentials")
	// ErrLockedOut rejects login attempts while the identity is locked.
	ErrLockedOut = errors.New("security: too many failed logins")
	// ErrSessionExpired covers unknown as well as expired session
	// tokens so responses do not reveal which one it was.
	ErrSessionExpired = errors.New("security: session expired")
	// ErrOwnerMismatch rejects a session presented from a different IP.
	ErrOwnerMismatch = errors.New("security: session owner mismatch")
	// ErrCSRFMismatch rejects a missing, stale or already consumed
	// CSRF token.
	ErrCSRFMismatch = errors.New("security: csrf token mismatch")
	// ErrRateLimited rejects requests beyond the window ceiling.
	ErrRateLimited = errors.New("security: rate limited")
	// ErrInvalidInput matches any InvalidInputError via errors.Is.
	ErrInvalidInput = errors.New("security: invalid input")
)

// InvalidInputError names the offending field. The raw value is never
// included so error text cannot leak attacker-controlled input.
type InvalidInputError struct {
	Field string
}

func (e *InvalidInputError) Error() string {
	return "security: invalid value for " + e.Field
}

func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}
