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

package rest

import "encoding/json"

// FinishRegistrationRequest carries the ceremony token and the raw
// authenticator attestation response. The response is kept raw so the
// protocol parser sees exactly what the browser produced.
type FinishRegistrationRequest struct {
	Token    string          `json:"token"`
	Response json.RawMessage `json:"response"`
}

// FinishAuthenticationRequest carries the ceremony token and the raw
// authenticator assertion response.
type FinishAuthenticationRequest struct {
	Token    string          `json:"token"`
	Response json.RawMessage `json:"response"`
}

// UpdateNicknameRequest renames a credential.
type UpdateNicknameRequest struct {
	Nickname string `json:"nickname"`
}

// RemoveResponse reports the outcome of a single-credential removal.
type RemoveResponse struct {
	Removed bool `json:"removed"`
}

// RemoveAllResponse reports the number of credentials removed.
type RemoveAllResponse struct {
	Removed int `json:"removed"`
}

// ErrorResponse is the structured error payload returned by every handler.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
