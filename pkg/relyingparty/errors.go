// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package relyingparty

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ceremony orchestrator. They fall into four
// categories that the transport layer maps to distinct status codes:
// input errors, ceremony errors, verification errors, and collaborator
// errors (the last are whatever the stores return, wrapped with an op).
var (
	// ErrMissingField is returned when a required request field is absent.
	// Use MissingField to name the offending field.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidHandleEncoding is returned when a caller-supplied user
	// handle seed is not valid base64url.
	ErrInvalidHandleEncoding = errors.New("user handle is not valid base64url")

	// ErrNoSuchCeremony is returned when a finish call references a token
	// that was never issued, was already consumed, or has expired.
	ErrNoSuchCeremony = errors.New("no such ceremony in progress")

	// ErrUnknownUser is returned when authentication is started for a
	// username with no registered credentials.
	ErrUnknownUser = errors.New("user has no registered credentials")

	// ErrRegistrationFailed is returned when the verifier rejects a
	// registration response. The verifier's reason is wrapped.
	ErrRegistrationFailed = errors.New("registration verification failed")

	// ErrAssertionFailed is returned when the verifier rejects an
	// authentication response. The verifier's reason is wrapped.
	ErrAssertionFailed = errors.New("assertion verification failed")

	// ErrNotConfigured is returned when the service was not built through
	// NewService.
	ErrNotConfigured = errors.New("relying party service not configured")
)

// MissingField returns an ErrMissingField naming the absent field.
func MissingField(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

// CeremonyError wraps an error with the operation that produced it.
type CeremonyError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *CeremonyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CeremonyError{Op: op, Err: err}
}

// IsNoSuchCeremony returns true if the error indicates a consumed,
// expired, or never-issued ceremony token.
func IsNoSuchCeremony(err error) bool {
	return errors.Is(err, ErrNoSuchCeremony)
}

// IsVerificationFailed returns true for either verification category.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrRegistrationFailed) || errors.Is(err, ErrAssertionFailed)
}
