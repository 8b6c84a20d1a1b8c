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

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"

	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/relyingparty"
)

// HandlerContext holds the dependencies shared by all handlers.
type HandlerContext struct {
	service *relyingparty.Service
	version string
}

// NewHandlerContext creates a handler context for the relying party service.
func NewHandlerContext(service *relyingparty.Service, version string) *HandlerContext {
	return &HandlerContext{
		service: service,
		version: version,
	}
}

// HealthHandler reports liveness.
func (h *HandlerContext) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok", Version: h.version}, http.StatusOK)
}

// StartRegistrationHandler opens a registration ceremony.
//
//	POST /api/v1/registration/start
func (h *HandlerContext) StartRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	var req relyingparty.StartRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "malformed JSON body", http.StatusBadRequest)
		return
	}

	result, err := h.service.StartRegistration(r.Context(), &req)
	if err != nil {
		metrics.RecordCeremonyError(metrics.CeremonyRegistration, errorType(err))
		handleError(w, err)
		return
	}

	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.PhaseStart, metrics.StatusSuccess, 0)
	writeJSON(w, result, http.StatusOK)
}

// FinishRegistrationHandler completes a registration ceremony.
//
//	POST /api/v1/registration/finish
func (h *HandlerContext) FinishRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	var req FinishRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "malformed JSON body", http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		handleError(w, relyingparty.MissingField("token"))
		return
	}
	if len(req.Response) == 0 {
		handleError(w, relyingparty.MissingField("response"))
		return
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.Response))
	if err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, fmt.Sprintf("malformed attestation response: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.service.FinishRegistration(r.Context(), req.Token, parsed)
	if err != nil {
		metrics.RecordCeremonyError(metrics.CeremonyRegistration, errorType(err))
		handleError(w, err)
		return
	}

	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.PhaseFinish, metrics.StatusSuccess, 0)
	metrics.RecordCredentialRegistered()
	writeJSON(w, result, http.StatusOK)
}

// StartAuthenticationHandler opens an authentication ceremony.
//
//	POST /api/v1/authentication/start
func (h *HandlerContext) StartAuthenticationHandler(w http.ResponseWriter, r *http.Request) {
	var req relyingparty.StartAuthenticationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "malformed JSON body", http.StatusBadRequest)
		return
	}

	result, err := h.service.StartAuthentication(r.Context(), &req)
	if err != nil {
		metrics.RecordCeremonyError(metrics.CeremonyAuthentication, errorType(err))
		handleError(w, err)
		return
	}

	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.PhaseStart, metrics.StatusSuccess, 0)
	writeJSON(w, result, http.StatusOK)
}

// FinishAuthenticationHandler completes an authentication ceremony.
//
//	POST /api/v1/authentication/finish
func (h *HandlerContext) FinishAuthenticationHandler(w http.ResponseWriter, r *http.Request) {
	var req FinishAuthenticationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "malformed JSON body", http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		handleError(w, relyingparty.MissingField("token"))
		return
	}
	if len(req.Response) == 0 {
		handleError(w, relyingparty.MissingField("response"))
		return
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.Response))
	if err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, fmt.Sprintf("malformed assertion response: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.service.FinishAuthentication(r.Context(), req.Token, parsed)
	if err != nil {
		metrics.RecordCeremonyError(metrics.CeremonyAuthentication, errorType(err))
		handleError(w, err)
		return
	}

	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.PhaseFinish, metrics.StatusSuccess, 0)
	if result.CounterAnomaly {
		metrics.RecordCounterAnomaly()
	}
	writeJSON(w, result, http.StatusOK)
}

// CredentialsHandler lists credential summaries for a username.
//
//	GET /api/v1/users/{username}/credentials
func (h *HandlerContext) CredentialsHandler(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	summaries, err := h.service.Credentials(r.Context(), username)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, summaries, http.StatusOK)
}

// RegistrationsHandler lists full registration rows for a username.
//
//	GET /api/v1/users/{username}/registrations
func (h *HandlerContext) RegistrationsHandler(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	regs, err := h.service.Registrations(r.Context(), username)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, regs, http.StatusOK)
}

// UpdateNicknameHandler renames a credential.
//
//	PUT /api/v1/users/{username}/credentials/{credentialID}/nickname
func (h *HandlerContext) UpdateNicknameHandler(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	credentialID, err := decodeCredentialID(chi.URLParam(r, "credentialID"))
	if err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "credential id is not valid base64url", http.StatusBadRequest)
		return
	}

	var req UpdateNicknameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "malformed JSON body", http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateNickname(r.Context(), username, credentialID, req.Nickname); err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, map[string]string{"nickname": req.Nickname}, http.StatusOK)
}

// RemoveCredentialHandler deletes one credential.
//
//	DELETE /api/v1/users/{username}/credentials/{credentialID}
func (h *HandlerContext) RemoveCredentialHandler(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	credentialID, err := decodeCredentialID(chi.URLParam(r, "credentialID"))
	if err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "credential id is not valid base64url", http.StatusBadRequest)
		return
	}

	removed, err := h.service.RemoveCredential(r.Context(), username, credentialID)
	if err != nil {
		handleError(w, err)
		return
	}
	if removed {
		metrics.RecordCredentialsRemoved(1)
	}
	writeJSON(w, RemoveResponse{Removed: removed}, http.StatusOK)
}

// RemoveAllCredentialsHandler deletes every credential for a username.
//
//	DELETE /api/v1/users/{username}/credentials
func (h *HandlerContext) RemoveAllCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	removed, err := h.service.RemoveAllCredentials(r.Context(), username)
	if err != nil {
		handleError(w, err)
		return
	}
	metrics.RecordCredentialsRemoved(removed)
	writeJSON(w, RemoveAllResponse{Removed: removed}, http.StatusOK)
}

// decodeCredentialID decodes a base64url credential id path segment,
// accepting both padded and unpadded forms.
func decodeCredentialID(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("empty credential id")
	}
	if id, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return id, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

// errorType buckets an error for the ceremony error counter.
func errorType(err error) string {
	switch mapErrorToStatusCode(err) {
	case http.StatusBadRequest:
		return "invalid_input"
	case http.StatusNotFound:
		return "no_such_ceremony"
	case http.StatusConflict:
		return "duplicate_credential"
	case http.StatusUnauthorized:
		return "verification_failed"
	default:
		return "internal"
	}
}
