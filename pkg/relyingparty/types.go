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

// Package relyingparty drives the registration and authentication state
// machine: start issues ceremony options under a single-use token, finish
// consumes the token, delegates verification and commits the outcome to the
// credential registry. All ceremony state lives in the injected stores; a
// Service instance itself is stateless and safe for concurrent use.
package relyingparty

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/jeremyhahn/go-passkey/pkg/registry"
)

// StartRegistrationRequest carries the fields needed to open a registration
// ceremony. Username, DisplayName, Nickname and ResidentKey are required;
// ResidentKey is a pointer so an absent field is distinguishable from false.
type StartRegistrationRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Nickname    string `json:"nickname"`

	// ResidentKey requests a discoverable credential (passkey).
	ResidentKey *bool `json:"resident_key"`

	// Attachment optionally narrows the authenticator type for this
	// ceremony: "platform", "cross-platform", or empty for any.
	Attachment string `json:"attachment,omitempty"`

	// UserHandle is an optional base64url-encoded seed for the user
	// handle. Ignored when the username already has a handle; a fresh
	// random handle is minted when both are absent.
	UserHandle string `json:"user_handle,omitempty"`
}

// StartRegistrationResult is the opened ceremony: options for the client
// authenticator plus the token that correlates the finish call.
type StartRegistrationResult struct {
	Token   string                       `json:"token"`
	Options *protocol.CredentialCreation `json:"options"`
}

// RegistrationResult reports a committed registration.
type RegistrationResult struct {
	Username     string                           `json:"username"`
	CredentialID []byte                           `json:"credential_id"`
	Nickname     string                           `json:"nickname,omitempty"`
	Registration *registry.CredentialRegistration `json:"registration"`

	// AuthToken is a post-registration session token when a token
	// generator is configured, empty otherwise.
	AuthToken string `json:"auth_token,omitempty"`
}

// StartAuthenticationRequest opens an authentication ceremony. An empty
// Username selects the discoverable-credential (usernameless) flow.
type StartAuthenticationRequest struct {
	Username string `json:"username,omitempty"`
}

// StartAuthenticationResult is the opened assertion ceremony.
type StartAuthenticationResult struct {
	Token   string                        `json:"token"`
	Options *protocol.CredentialAssertion `json:"options"`
}

// AuthenticationResult reports a finished authentication.
type AuthenticationResult struct {
	Success      bool   `json:"success"`
	Username     string `json:"username"`
	CredentialID []byte `json:"credential_id"`

	// CounterAnomaly is set when the verifier flagged a non-advancing
	// signature counter, the cloned-authenticator signal. The
	// authentication itself still succeeded; callers decide what to do
	// with the warning.
	CounterAnomaly bool `json:"counter_anomaly,omitempty"`

	// AuthToken is a post-authentication session token when a token
	// generator is configured, empty otherwise.
	AuthToken string `json:"auth_token,omitempty"`
}

// CredentialSummary is the listing projection of a registration: enough to
// render a credential management UI without exposing key material.
type CredentialSummary struct {
	CredentialID     []byte                            `json:"credential_id"`
	Nickname         string                            `json:"nickname,omitempty"`
	Algorithm        string                            `json:"algorithm"`
	Transports       []protocol.AuthenticatorTransport `json:"transports,omitempty"`
	AAGUID           string                            `json:"aaguid,omitempty"`
	RegistrationTime time.Time                         `json:"registration_time"`
	LastUsedTime     time.Time                         `json:"last_used_time"`
}

// summarize builds the listing projection of a registration row.
func summarize(reg *registry.CredentialRegistration) CredentialSummary {
	return CredentialSummary{
		CredentialID:     reg.CredentialID,
		Nickname:         reg.Nickname,
		Algorithm:        registry.KeyAlgorithm(reg.PublicKey),
		Transports:       reg.Transports,
		AAGUID:           reg.AAGUIDString(),
		RegistrationTime: reg.RegistrationTime,
		LastUsedTime:     reg.LastUsedTime,
	}
}

// ceremonyUser adapts registry rows to the verifier's user contract.
type ceremonyUser struct {
	id          []byte
	name        string
	displayName string
	credentials []webauthn.Credential
}

func newCeremonyUser(id []byte, name, displayName string, regs []*registry.CredentialRegistration) *ceremonyUser {
	creds := make([]webauthn.Credential, len(regs))
	for i, reg := range regs {
		creds[i] = reg.WebAuthnCredential()
	}
	return &ceremonyUser{
		id:          id,
		name:        name,
		displayName: displayName,
		credentials: creds,
	}
}

// WebAuthnID returns the user handle.
func (u *ceremonyUser) WebAuthnID() []byte {
	return u.id
}

// WebAuthnName returns the username.
func (u *ceremonyUser) WebAuthnName() string {
	return u.name
}

// WebAuthnDisplayName returns the display name, falling back to the username.
func (u *ceremonyUser) WebAuthnDisplayName() string {
	if u.displayName == "" {
		return u.name
	}
	return u.displayName
}

// WebAuthnIcon returns an empty icon URL; required by webauthn.User.
func (u *ceremonyUser) WebAuthnIcon() string {
	return ""
}

// WebAuthnCredentials returns the user's registered credentials.
func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}
