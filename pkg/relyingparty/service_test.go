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
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey/pkg/ceremony"
	"github.com/jeremyhahn/go-passkey/pkg/registry"
	"github.com/jeremyhahn/go-passkey/pkg/storage"
)

func testConfig() *Config {
	return &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	backend := storage.NewMemory()
	svc, err := NewService(ServiceParams{
		Config:     testConfig(),
		Ceremonies: ceremony.NewBackendStore(backend),
		Registry:   registry.NewBackendStore(backend),
	})
	require.NoError(t, err)
	return svc
}

func boolPtr(b bool) *bool {
	return &b
}

func TestNewService_RequiredParams(t *testing.T) {
	backend := storage.NewMemory()

	_, err := NewService(ServiceParams{
		Ceremonies: ceremony.NewBackendStore(backend),
		Registry:   registry.NewBackendStore(backend),
	})
	assert.Error(t, err)

	_, err = NewService(ServiceParams{
		Config:   testConfig(),
		Registry: registry.NewBackendStore(backend),
	})
	assert.Error(t, err)

	_, err = NewService(ServiceParams{
		Config:     testConfig(),
		Ceremonies: ceremony.NewBackendStore(backend),
	})
	assert.Error(t, err)
}

func TestNewService_InvalidConfig(t *testing.T) {
	backend := storage.NewMemory()

	_, err := NewService(ServiceParams{
		Config:     &Config{RPID: "example.com"},
		Ceremonies: ceremony.NewBackendStore(backend),
		Registry:   registry.NewBackendStore(backend),
	})
	assert.Error(t, err)
}

func TestService_ZeroValueNotConfigured(t *testing.T) {
	var svc Service

	_, err := svc.StartRegistration(context.Background(), &StartRegistrationRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.StartAuthentication(context.Background(), &StartAuthenticationRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStartRegistration_MissingFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   *StartRegistrationRequest
		field string
	}{
		{
			"missing username",
			&StartRegistrationRequest{DisplayName: "Alice", Nickname: "laptop", ResidentKey: boolPtr(false)},
			"username",
		},
		{
			"missing display name",
			&StartRegistrationRequest{Username: "alice", Nickname: "laptop", ResidentKey: boolPtr(false)},
			"displayName",
		},
		{
			"missing nickname",
			&StartRegistrationRequest{Username: "alice", DisplayName: "Alice", ResidentKey: boolPtr(false)},
			"nickname",
		},
		{
			"missing resident key",
			&StartRegistrationRequest{Username: "alice", DisplayName: "Alice", Nickname: "laptop"},
			"residentKey",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StartRegistration(ctx, tt.req)
			require.ErrorIs(t, err, ErrMissingField)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestStartRegistration_InvalidHandleSeed(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.StartRegistration(context.Background(), &StartRegistrationRequest{
		Username:    "alice",
		DisplayName: "Alice",
		Nickname:    "laptop",
		ResidentKey: boolPtr(false),
		UserHandle:  "not!!valid##base64",
	})
	assert.ErrorIs(t, err, ErrInvalidHandleEncoding)
}

func TestStartRegistration_HandleSeedAccepted(t *testing.T) {
	svc := newTestService(t)

	seed := base64.RawURLEncoding.EncodeToString([]byte("chosen-handle"))
	result, err := svc.StartRegistration(context.Background(), &StartRegistrationRequest{
		Username:    "alice",
		DisplayName: "Alice",
		Nickname:    "laptop",
		ResidentKey: boolPtr(false),
		UserHandle:  seed,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Options)
	assert.NotEmpty(t, result.Token)
}

func TestStartRegistration_OptionsShape(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.StartRegistration(context.Background(), &StartRegistrationRequest{
		Username:    "alice",
		DisplayName: "Alice Example",
		Nickname:    "laptop",
		ResidentKey: boolPtr(false),
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.NotNil(t, result.Options)

	assert.Equal(t, "example.com", result.Options.Response.RelyingParty.ID)
	assert.Equal(t, "Example Corp", result.Options.Response.RelyingParty.Name)
	assert.Equal(t, "alice", result.Options.Response.User.Name)
	assert.Equal(t, "Alice Example", result.Options.Response.User.DisplayName)
	assert.NotEmpty(t, result.Options.Response.Challenge)
	assert.Empty(t, result.Options.Response.CredentialExcludeList)
}

func TestStartRegistration_TokensAreUnique(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	req := &StartRegistrationRequest{
		Username:    "alice",
		DisplayName: "Alice",
		Nickname:    "laptop",
		ResidentKey: boolPtr(false),
	}

	first, err := svc.StartRegistration(ctx, req)
	require.NoError(t, err)
	second, err := svc.StartRegistration(ctx, req)
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
}

func TestFinishRegistration_UnknownToken(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.FinishRegistration(context.Background(), "never-issued", nil)
	assert.ErrorIs(t, err, ErrNoSuchCeremony)
	assert.True(t, IsNoSuchCeremony(err))
}

func TestStartAuthentication_UnknownUser(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.StartAuthentication(context.Background(), &StartAuthenticationRequest{
		Username: "nobody",
	})
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestStartAuthentication_Discoverable(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.StartAuthentication(context.Background(), &StartAuthenticationRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.NotNil(t, result.Options)

	// Usernameless flow advertises an empty allow list.
	assert.Empty(t, result.Options.Response.AllowedCredentials)
	assert.Equal(t, "example.com", result.Options.Response.RelyingPartyID)
}

func TestFinishAuthentication_UnknownToken(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.FinishAuthentication(context.Background(), "never-issued", nil)
	assert.ErrorIs(t, err, ErrNoSuchCeremony)
}

func TestCredentials_RequiresUsername(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Credentials(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestCredentials_EmptyForUnknownUser(t *testing.T) {
	svc := newTestService(t)

	summaries, err := svc.Credentials(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestUpdateNickname_Validation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	err := svc.UpdateNickname(ctx, "", []byte("cred"), "name")
	assert.ErrorIs(t, err, ErrMissingField)

	err = svc.UpdateNickname(ctx, "alice", nil, "name")
	assert.ErrorIs(t, err, ErrMissingField)

	err = svc.UpdateNickname(ctx, "alice", []byte("cred"), "")
	assert.ErrorIs(t, err, ErrMissingField)

	err = svc.UpdateNickname(ctx, "alice", []byte("cred"), "name")
	assert.ErrorIs(t, err, registry.ErrCredentialNotFound)
}

func TestRemoveCredential_AbsentIsNotAnError(t *testing.T) {
	svc := newTestService(t)

	removed, err := svc.RemoveCredential(context.Background(), "alice", []byte("missing"))
	require.NoError(t, err)
	assert.False(t, removed)

	count, err := svc.RemoveAllCredentials(context.Background(), "alice")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCeremonyUser(t *testing.T) {
	now := time.Now()
	regs := []*registry.CredentialRegistration{
		{
			CredentialID:     []byte("cred-1"),
			PublicKey:        []byte{0x01},
			RegistrationTime: now,
		},
	}

	user := newCeremonyUser([]byte("handle"), "alice", "Alice", regs)
	assert.Equal(t, []byte("handle"), user.WebAuthnID())
	assert.Equal(t, "alice", user.WebAuthnName())
	assert.Equal(t, "Alice", user.WebAuthnDisplayName())
	assert.Len(t, user.WebAuthnCredentials(), 1)

	// Display name falls back to the username.
	user = newCeremonyUser([]byte("handle"), "alice", "", nil)
	assert.Equal(t, "alice", user.WebAuthnDisplayName())
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError("op", nil))

	wrapped := WrapError("load registrations", registry.ErrUserNotFound)
	assert.ErrorIs(t, wrapped, registry.ErrUserNotFound)
	assert.Contains(t, wrapped.Error(), "load registrations")
}
