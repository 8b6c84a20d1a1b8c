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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey/pkg/ceremony"
	"github.com/jeremyhahn/go-passkey/pkg/registry"
	"github.com/jeremyhahn/go-passkey/pkg/relyingparty"
	"github.com/jeremyhahn/go-passkey/pkg/storage"
)

const (
	testRPID     = "example.com"
	testRPName   = "Example Corp"
	testRPOrigin = "https://example.com"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	backend := storage.NewMemory()
	svc, err := relyingparty.NewService(relyingparty.ServiceParams{
		Config: &relyingparty.Config{
			RPID:          testRPID,
			RPDisplayName: testRPName,
			RPOrigins:     []string{testRPOrigin},
		},
		Ceremonies: ceremony.NewBackendStore(backend),
		Registry:   registry.NewBackendStore(backend),
	})
	require.NoError(t, err)

	server, err := NewServer(&Config{
		Service: svc,
		Version: "test",
	})
	require.NoError(t, err)
	return server
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)

	_, err = NewServer(&Config{})
	assert.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	health := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
}

func TestStartRegistration_MissingFields(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/registration/start",
		relyingparty.StartRegistrationRequest{Username: "alice"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	errResp := decodeBody[ErrorResponse](t, rec)
	assert.Contains(t, errResp.Error, "displayName")
	assert.Equal(t, http.StatusBadRequest, errResp.Code)
}

func TestStartRegistration_MalformedJSON(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/registration/start",
		bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFinishRegistration_MissingToken(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/registration/finish",
		FinishRegistrationRequest{Response: json.RawMessage(`{}`)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/api/v1/registration/finish",
		FinishRegistrationRequest{Token: "some-token"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartAuthentication_UnknownUser(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/authentication/start",
		relyingparty.StartAuthenticationRequest{Username: "nobody"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCredentials_EmptyList(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/users/nobody/credentials", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	summaries := decodeBody[[]relyingparty.CredentialSummary](t, rec)
	assert.Empty(t, summaries)
}

func TestUpdateNickname_BadCredentialID(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPut,
		"/api/v1/users/alice/credentials/%21%21not-base64%21%21/nickname",
		UpdateNicknameRequest{Nickname: "name"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateNickname_UnknownCredential(t *testing.T) {
	server := newTestServer(t)

	credentialID := base64.RawURLEncoding.EncodeToString([]byte("missing"))
	rec := doJSON(t, server, http.MethodPut,
		"/api/v1/users/alice/credentials/"+credentialID+"/nickname",
		UpdateNicknameRequest{Nickname: "name"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveCredential_AbsentReportsFalse(t *testing.T) {
	server := newTestServer(t)

	credentialID := base64.RawURLEncoding.EncodeToString([]byte("missing"))
	rec := doJSON(t, server, http.MethodDelete,
		"/api/v1/users/alice/credentials/"+credentialID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[RemoveResponse](t, rec)
	assert.False(t, resp.Removed)
}

// TestFullCeremonyOverREST drives registration, authentication and credential
// management through the HTTP surface with a virtual authenticator.
func TestFullCeremonyOverREST(t *testing.T) {
	server := newTestServer(t)

	rp := virtualwebauthn.RelyingParty{
		Name:   testRPName,
		ID:     testRPID,
		Origin: testRPOrigin,
	}
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	// === REGISTRATION ===

	residentKey := false
	rec := doJSON(t, server, http.MethodPost, "/api/v1/registration/start",
		relyingparty.StartRegistrationRequest{
			Username:    "rest@example.com",
			DisplayName: "REST User",
			Nickname:    "security key",
			ResidentKey: &residentKey,
		})
	require.Equal(t, http.StatusOK, rec.Code)

	var regStart struct {
		Token   string                      `json:"token"`
		Options protocol.CredentialCreation `json:"options"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&regStart))
	require.NotEmpty(t, regStart.Token)

	optionsJSON, err := json.Marshal(regStart.Options.Response)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)
	attestation := virtualwebauthn.CreateAttestationResponse(rp, authenticator, credential, *parsedOptions)

	rec = doJSON(t, server, http.MethodPost, "/api/v1/registration/finish",
		FinishRegistrationRequest{
			Token:    regStart.Token,
			Response: json.RawMessage(attestation),
		})
	require.Equal(t, http.StatusOK, rec.Code)

	regResult := decodeBody[relyingparty.RegistrationResult](t, rec)
	assert.Equal(t, "rest@example.com", regResult.Username)
	assert.Equal(t, "security key", regResult.Nickname)
	require.NotEmpty(t, regResult.CredentialID)

	authenticator.AddCredential(credential)

	// Replaying the finish call returns 404: the token is spent.
	rec = doJSON(t, server, http.MethodPost, "/api/v1/registration/finish",
		FinishRegistrationRequest{
			Token:    regStart.Token,
			Response: json.RawMessage(attestation),
		})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// === AUTHENTICATION ===

	rec = doJSON(t, server, http.MethodPost, "/api/v1/authentication/start",
		relyingparty.StartAuthenticationRequest{Username: "rest@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	var authStart struct {
		Token   string                       `json:"token"`
		Options protocol.CredentialAssertion `json:"options"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&authStart))
	require.Len(t, authStart.Options.Response.AllowedCredentials, 1)

	assertOptionsJSON, err := json.Marshal(authStart.Options.Response)
	require.NoError(t, err)
	parsedAssertOptions, err := virtualwebauthn.ParseAssertionOptions(string(assertOptionsJSON))
	require.NoError(t, err)

	credential.Counter++
	assertion := virtualwebauthn.CreateAssertionResponse(rp, authenticator, credential, *parsedAssertOptions)

	rec = doJSON(t, server, http.MethodPost, "/api/v1/authentication/finish",
		FinishAuthenticationRequest{
			Token:    authStart.Token,
			Response: json.RawMessage(assertion),
		})
	require.Equal(t, http.StatusOK, rec.Code)

	authResult := decodeBody[relyingparty.AuthenticationResult](t, rec)
	assert.True(t, authResult.Success)
	assert.Equal(t, "rest@example.com", authResult.Username)
	assert.False(t, authResult.CounterAnomaly)

	// === CREDENTIAL MANAGEMENT ===

	rec = doJSON(t, server, http.MethodGet, "/api/v1/users/rest@example.com/credentials", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summaries := decodeBody[[]relyingparty.CredentialSummary](t, rec)
	require.Len(t, summaries, 1)
	assert.Equal(t, "security key", summaries[0].Nickname)

	credentialID := base64.RawURLEncoding.EncodeToString(regResult.CredentialID)
	rec = doJSON(t, server, http.MethodPut,
		"/api/v1/users/rest@example.com/credentials/"+credentialID+"/nickname",
		UpdateNicknameRequest{Nickname: "renamed key"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server, http.MethodDelete, "/api/v1/users/rest@example.com/credentials", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	removeAll := decodeBody[RemoveAllResponse](t, rec)
	assert.Equal(t, 1, removeAll.Removed)

	rec = doJSON(t, server, http.MethodPost, "/api/v1/authentication/start",
		relyingparty.StartAuthenticationRequest{Username: "rest@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing field", relyingparty.MissingField("username"), http.StatusBadRequest},
		{"bad handle encoding", relyingparty.ErrInvalidHandleEncoding, http.StatusBadRequest},
		{"no such ceremony", relyingparty.ErrNoSuchCeremony, http.StatusNotFound},
		{"unknown user", relyingparty.ErrUnknownUser, http.StatusNotFound},
		{"credential not found", registry.ErrCredentialNotFound, http.StatusNotFound},
		{"duplicate credential", registry.ErrCredentialExists, http.StatusConflict},
		{"registration failed", relyingparty.ErrRegistrationFailed, http.StatusUnauthorized},
		{"assertion failed", relyingparty.ErrAssertionFailed, http.StatusUnauthorized},
		{"collaborator failure", storage.ErrClosed, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapErrorToStatusCode(tt.err))
		})
	}
}
