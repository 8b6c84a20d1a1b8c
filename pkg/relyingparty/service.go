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
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/jeremyhahn/go-passkey/pkg/ceremony"
	"github.com/jeremyhahn/go-passkey/pkg/metadata"
	"github.com/jeremyhahn/go-passkey/pkg/registry"
)

// UserHandleLength is the size of a freshly minted user handle.
const UserHandleLength = 32

// Service drives registration and authentication ceremonies.
type Service struct {
	webauthn   *webauthn.WebAuthn
	config     *Config
	ceremonies ceremony.Store
	registry   registry.Store
	resolver   metadata.Resolver // optional
	tokens     TokenGenerator    // optional
	logger     *slog.Logger
	clock      func() time.Time
	configured bool
}

// ServiceParams contains dependencies for creating a relying party service.
type ServiceParams struct {
	// Config is the relying party configuration (required).
	Config *Config

	// Ceremonies is the pending-ceremony store (required).
	Ceremonies ceremony.Store

	// Registry is the credential registry (required).
	Registry registry.Store

	// Resolver is the optional attestation metadata resolver. If nil,
	// registrations are committed without device metadata.
	Resolver metadata.Resolver

	// Tokens is an optional post-authentication token generator.
	Tokens TokenGenerator

	// Logger receives structured operational logs. Defaults to
	// slog.Default when nil.
	Logger *slog.Logger
}

// NewService creates a relying party service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Ceremonies == nil {
		return nil, fmt.Errorf("ceremony store is required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("credential registry is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(params.Config.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn verifier: %w", err)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		webauthn:   wa,
		config:     params.Config,
		ceremonies: params.Ceremonies,
		registry:   params.Registry,
		resolver:   params.Resolver,
		tokens:     params.Tokens,
		logger:     logger,
		clock:      time.Now,
		configured: true,
	}, nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// StartRegistration opens a registration ceremony. The returned token is
// single-use and expires with the pending-ceremony TTL.
func (s *Service) StartRegistration(ctx context.Context, req *StartRegistrationRequest) (*StartRegistrationResult, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if req.Username == "" {
		return nil, MissingField("username")
	}
	if req.DisplayName == "" {
		return nil, MissingField("displayName")
	}
	if req.Nickname == "" {
		return nil, MissingField("nickname")
	}
	if req.ResidentKey == nil {
		return nil, MissingField("residentKey")
	}

	handle, regs, err := s.resolveUserHandle(ctx, req.Username, req.UserHandle)
	if err != nil {
		return nil, err
	}

	user := newCeremonyUser(handle, req.Username, req.DisplayName, regs)

	// Repeat registrations exclude already-enrolled authenticators.
	excludeList := make([]protocol.CredentialDescriptor, len(regs))
	for i, reg := range regs {
		excludeList[i] = reg.Descriptor()
	}

	options, session, err := s.webauthn.BeginRegistration(user,
		webauthn.WithExclusions(excludeList),
		webauthn.WithAuthenticatorSelection(s.authenticatorSelection(*req.ResidentKey, req.Attachment)),
	)
	if err != nil {
		return nil, WrapError("begin registration", err)
	}

	token, err := ceremony.NewToken()
	if err != nil {
		return nil, WrapError("mint ceremony token", err)
	}

	pending := &ceremony.PendingRegistration{
		Token:       token,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Nickname:    req.Nickname,
		ResidentKey: *req.ResidentKey,
		UserHandle:  handle,
		Options:     options,
		Session:     *session,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.ceremonies.PutRegistration(ctx, pending); err != nil {
		return nil, WrapError("store pending registration", err)
	}

	s.logger.Debug("registration ceremony started",
		"username", req.Username,
		"resident_key", *req.ResidentKey)

	return &StartRegistrationResult{Token: token, Options: options}, nil
}

// FinishRegistration consumes the ceremony token, verifies the signed
// response and commits the credential. A second call with the same token
// fails with ErrNoSuchCeremony; it never re-runs verification.
func (s *Service) FinishRegistration(ctx context.Context, token string, response *protocol.ParsedCredentialCreationData) (*RegistrationResult, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	pending, err := s.ceremonies.ConsumeRegistration(ctx, token)
	if err != nil {
		if errors.Is(err, ceremony.ErrTokenNotFound) || errors.Is(err, ceremony.ErrEmptyToken) {
			return nil, ErrNoSuchCeremony
		}
		return nil, WrapError("consume pending registration", err)
	}

	regs, err := s.registry.ByUsername(ctx, pending.Username)
	if err != nil {
		return nil, WrapError("load registrations", err)
	}
	user := newCeremonyUser(pending.UserHandle, pending.Username, pending.DisplayName, regs)

	credential, err := s.webauthn.CreateCredential(user, pending.Session, response)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	identity := registry.UserIdentity{
		ID:          pending.UserHandle,
		Name:        pending.Username,
		DisplayName: pending.DisplayName,
	}
	row := registry.FromVerifiedCredential(identity, pending.Nickname, credential, s.clock().UTC())

	if err := s.registry.Add(ctx, pending.Username, row); err != nil {
		if errors.Is(err, registry.ErrCredentialExists) {
			return nil, registry.ErrCredentialExists
		}
		return nil, WrapError("store registration", err)
	}

	s.enrich(ctx, pending.Username, row)

	s.logger.Info("credential registered",
		"username", pending.Username,
		"nickname", pending.Nickname,
		"attestation", credential.AttestationType)

	result := &RegistrationResult{
		Username:     pending.Username,
		CredentialID: credential.ID,
		Nickname:     pending.Nickname,
		Registration: row,
	}
	if s.tokens != nil {
		authToken, err := s.tokens.GenerateToken(ctx, pending.Username, pending.UserHandle)
		if err != nil {
			return nil, WrapError("generate auth token", err)
		}
		result.AuthToken = authToken
	}
	return result, nil
}

// StartAuthentication opens an assertion ceremony. With a username the
// options are scoped to that user's credentials; without one the options
// carry an empty allow list for the discoverable-credential flow.
func (s *Service) StartAuthentication(ctx context.Context, req *StartAuthenticationRequest) (*StartAuthenticationResult, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	var options *protocol.CredentialAssertion
	var session *webauthn.SessionData
	var err error

	if req.Username == "" {
		options, session, err = s.webauthn.BeginDiscoverableLogin()
	} else {
		regs, regErr := s.registry.ByUsername(ctx, req.Username)
		if regErr != nil {
			return nil, WrapError("load registrations", regErr)
		}
		if len(regs) == 0 {
			return nil, ErrUnknownUser
		}
		user := newCeremonyUser(
			regs[0].UserIdentity.ID,
			req.Username,
			regs[0].UserIdentity.DisplayName,
			regs,
		)
		options, session, err = s.webauthn.BeginLogin(user)
	}
	if err != nil {
		return nil, WrapError("begin authentication", err)
	}

	token, err := ceremony.NewToken()
	if err != nil {
		return nil, WrapError("mint ceremony token", err)
	}

	pending := &ceremony.PendingAssertion{
		Token:     token,
		Username:  req.Username,
		Options:   options,
		Session:   *session,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.ceremonies.PutAssertion(ctx, pending); err != nil {
		return nil, WrapError("store pending assertion", err)
	}

	s.logger.Debug("authentication ceremony started",
		"username", req.Username,
		"discoverable", req.Username == "")

	return &StartAuthenticationResult{Token: token, Options: options}, nil
}

// FinishAuthentication consumes the ceremony token and verifies the signed
// assertion. Counter persistence is best-effort: a storage failure after a
// verified assertion is logged and the authentication still succeeds.
func (s *Service) FinishAuthentication(ctx context.Context, token string, response *protocol.ParsedCredentialAssertionData) (*AuthenticationResult, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	pending, err := s.ceremonies.ConsumeAssertion(ctx, token)
	if err != nil {
		if errors.Is(err, ceremony.ErrTokenNotFound) || errors.Is(err, ceremony.ErrEmptyToken) {
			return nil, ErrNoSuchCeremony
		}
		return nil, WrapError("consume pending assertion", err)
	}

	var username string
	var credential *webauthn.Credential

	if pending.Username == "" {
		// Discoverable flow. The user handle in the assertion picks
		// the account; the registry resolves it back to a username.
		credential, err = s.webauthn.ValidateDiscoverableLogin(
			s.discoverableUserHandler(ctx, &username),
			pending.Session,
			response,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAssertionFailed, err)
		}
	} else {
		username = pending.Username
		regs, regErr := s.registry.ByUsername(ctx, username)
		if regErr != nil {
			return nil, WrapError("load registrations", regErr)
		}
		if len(regs) == 0 {
			return nil, ErrUnknownUser
		}
		user := newCeremonyUser(
			regs[0].UserIdentity.ID,
			username,
			regs[0].UserIdentity.DisplayName,
			regs,
		)
		credential, err = s.webauthn.ValidateLogin(user, pending.Session, response)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAssertionFailed, err)
		}
	}

	if credential.Authenticator.CloneWarning {
		s.logger.Warn("signature counter anomaly, possible cloned authenticator",
			"username", username,
			"credential_id", base64.RawURLEncoding.EncodeToString(credential.ID))
	}

	// Best-effort counter update. The user already proved possession;
	// a persistence failure must not flip the outcome.
	if err := s.registry.UpdateSignatureCount(ctx, username, credential.ID, credential.Authenticator.SignCount); err != nil {
		s.logger.Error("failed to persist signature counter",
			"username", username,
			"error", err)
	}

	s.logger.Info("authentication succeeded",
		"username", username,
		"counter_anomaly", credential.Authenticator.CloneWarning)

	result := &AuthenticationResult{
		Success:        true,
		Username:       username,
		CredentialID:   credential.ID,
		CounterAnomaly: credential.Authenticator.CloneWarning,
	}
	if s.tokens != nil {
		handle, handleErr := s.registry.UserHandleForUsername(ctx, username)
		if handleErr != nil {
			return nil, WrapError("resolve user handle", handleErr)
		}
		authToken, tokenErr := s.tokens.GenerateToken(ctx, username, handle)
		if tokenErr != nil {
			return nil, WrapError("generate auth token", tokenErr)
		}
		result.AuthToken = authToken
	}
	return result, nil
}

// Credentials lists the credential summaries registered to a username.
func (s *Service) Credentials(ctx context.Context, username string) ([]CredentialSummary, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if username == "" {
		return nil, MissingField("username")
	}

	regs, err := s.registry.ByUsername(ctx, username)
	if err != nil {
		return nil, WrapError("load registrations", err)
	}
	summaries := make([]CredentialSummary, len(regs))
	for i, reg := range regs {
		summaries[i] = summarize(reg)
	}
	return summaries, nil
}

// Registrations lists the full registration rows for a username.
func (s *Service) Registrations(ctx context.Context, username string) ([]*registry.CredentialRegistration, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if username == "" {
		return nil, MissingField("username")
	}

	regs, err := s.registry.ByUsername(ctx, username)
	if err != nil {
		return nil, WrapError("load registrations", err)
	}
	return regs, nil
}

// UpdateNickname renames a credential owned by the username. A credential
// that does not belong to the username fails with
// registry.ErrCredentialNotFound and leaves storage unchanged.
func (s *Service) UpdateNickname(ctx context.Context, username string, credentialID []byte, nickname string) error {
	if !s.configured {
		return ErrNotConfigured
	}
	if username == "" {
		return MissingField("username")
	}
	if len(credentialID) == 0 {
		return MissingField("credentialId")
	}
	if nickname == "" {
		return MissingField("nickname")
	}

	if err := s.registry.UpdateNickname(ctx, username, credentialID, nickname); err != nil {
		if errors.Is(err, registry.ErrCredentialNotFound) {
			return registry.ErrCredentialNotFound
		}
		return WrapError("update nickname", err)
	}
	return nil
}

// RemoveCredential deletes one credential. Idempotent; removing an absent
// credential reports removed=false without error.
func (s *Service) RemoveCredential(ctx context.Context, username string, credentialID []byte) (bool, error) {
	if !s.configured {
		return false, ErrNotConfigured
	}
	if username == "" {
		return false, MissingField("username")
	}
	if len(credentialID) == 0 {
		return false, MissingField("credentialId")
	}

	removed, err := s.registry.Remove(ctx, username, credentialID)
	if err != nil {
		return false, WrapError("remove credential", err)
	}
	if removed {
		s.logger.Info("credential removed", "username", username)
	}
	return removed, nil
}

// RemoveAllCredentials deletes every credential for a username and returns
// the count removed. Idempotent.
func (s *Service) RemoveAllCredentials(ctx context.Context, username string) (int, error) {
	if !s.configured {
		return 0, ErrNotConfigured
	}
	if username == "" {
		return 0, MissingField("username")
	}

	removed, err := s.registry.RemoveAll(ctx, username)
	if err != nil {
		return 0, WrapError("remove all credentials", err)
	}
	if removed > 0 {
		s.logger.Info("all credentials removed", "username", username, "count", removed)
	}
	return removed, nil
}

// resolveUserHandle reuses the existing handle when the username already has
// registrations, decodes the caller-supplied seed otherwise, and mints a
// random handle when neither is available. Also returns the user's current
// registrations so the caller can build the exclude list in one pass.
func (s *Service) resolveUserHandle(ctx context.Context, username, seed string) ([]byte, []*registry.CredentialRegistration, error) {
	regs, err := s.registry.ByUsername(ctx, username)
	if err != nil {
		return nil, nil, WrapError("load registrations", err)
	}
	if len(regs) > 0 {
		return regs[0].UserIdentity.ID, regs, nil
	}

	if seed != "" {
		handle, err := base64.RawURLEncoding.DecodeString(seed)
		if err != nil {
			// Accept padded input too before rejecting.
			handle, err = base64.URLEncoding.DecodeString(seed)
			if err != nil {
				return nil, nil, ErrInvalidHandleEncoding
			}
			return handle, regs, nil
		}
		return handle, regs, nil
	}

	handle := make([]byte, UserHandleLength)
	if _, err := rand.Read(handle); err != nil {
		return nil, nil, WrapError("mint user handle", err)
	}
	return handle, regs, nil
}

// authenticatorSelection merges the per-request registration preferences
// over the configured defaults.
func (s *Service) authenticatorSelection(residentKey bool, attachment string) protocol.AuthenticatorSelection {
	selection := s.webauthn.Config.AuthenticatorSelection

	if residentKey {
		selection.ResidentKey = protocol.ResidentKeyRequirementRequired
		rrk := true
		selection.RequireResidentKey = &rrk
		// Discoverable credentials need user verification to be useful.
		selection.UserVerification = protocol.VerificationRequired
	} else {
		selection.ResidentKey = protocol.ResidentKeyRequirementDiscouraged
	}

	switch attachment {
	case "platform":
		selection.AuthenticatorAttachment = protocol.Platform
	case "cross-platform":
		selection.AuthenticatorAttachment = protocol.CrossPlatform
	}

	return selection
}

// discoverableUserHandler resolves the account selected by the
// authenticator's user handle and reports the username back through out.
func (s *Service) discoverableUserHandler(ctx context.Context, out *string) func(rawID, userHandle []byte) (webauthn.User, error) {
	return func(rawID, userHandle []byte) (webauthn.User, error) {
		username, err := s.registry.UsernameForUserHandle(ctx, userHandle)
		if err != nil {
			return nil, err
		}
		regs, err := s.registry.ByUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		if len(regs) == 0 {
			return nil, registry.ErrUserNotFound
		}
		*out = username
		return newCeremonyUser(userHandle, username, regs[0].UserIdentity.DisplayName, regs), nil
	}
}
