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

// Package ceremony provides the pending-ceremony store: single-use,
// time-bounded tokens correlating the two halves of a WebAuthn registration
// or authentication ceremony. Entries are created by the start operations,
// consumed exactly once by the finish operations, and expired lazily on
// access rather than by a background timer.
package ceremony

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// TokenLength is the number of random bytes in a ceremony token.
const TokenLength = 32

// DefaultTTL is how long a pending ceremony may wait for its finish call.
const DefaultTTL = time.Hour

// NewToken generates a cryptographically random, base64url-encoded ceremony
// token. Tokens are minted by the server only; clients never supply them.
func NewToken() (string, error) {
	buf := make([]byte, TokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// PendingRegistration is an in-flight registration ceremony: the options sent
// to the client plus the verifier session state needed to check the signed
// response.
type PendingRegistration struct {
	// Token is the single-use identifier returned to the client.
	Token string `json:"token"`

	// Username is the account the credential will belong to.
	Username string `json:"username"`

	// DisplayName is the human-readable name captured at start time.
	DisplayName string `json:"display_name"`

	// Nickname is the label the new credential will be stored under.
	Nickname string `json:"nickname"`

	// ResidentKey records whether a discoverable credential was requested.
	ResidentKey bool `json:"resident_key"`

	// UserHandle is the stable user identifier embedded in the options.
	UserHandle []byte `json:"user_handle"`

	// Options is the full credential creation payload sent to the client.
	Options *protocol.CredentialCreation `json:"options"`

	// Session is the verifier's session state for the finish call.
	Session webauthn.SessionData `json:"session"`

	// CreatedAt drives TTL expiry.
	CreatedAt time.Time `json:"created_at"`
}

// PendingAssertion is an in-flight authentication ceremony.
type PendingAssertion struct {
	// Token is the single-use identifier returned to the client.
	Token string `json:"token"`

	// Username is the account being authenticated. Empty means a
	// discoverable-credential (usernameless) ceremony.
	Username string `json:"username,omitempty"`

	// Options is the full credential request payload sent to the client.
	Options *protocol.CredentialAssertion `json:"options"`

	// Session is the verifier's session state for the finish call.
	Session webauthn.SessionData `json:"session"`

	// CreatedAt drives TTL expiry.
	CreatedAt time.Time `json:"created_at"`
}
