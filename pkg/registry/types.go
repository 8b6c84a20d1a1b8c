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

// Package registry provides the durable credential registry: one row per
// enrolled authenticator, indexed by username, user handle, and credential id.
// Rows are created only by a successful finish-registration and mutated only
// through the narrow write surface (signature counter, nickname, removal).
package registry

import (
	"bytes"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// UserIdentity is the stable identity a credential is registered under.
// All registrations for a username share the same handle.
type UserIdentity struct {
	// ID is the opaque, stable user handle.
	ID []byte `json:"id"`

	// Name is the human-readable username.
	Name string `json:"name"`

	// DisplayName is the name shown during ceremonies.
	DisplayName string `json:"display_name"`
}

// DeviceMetadata is the reduced attestation projection attached after trust
// resolution. Absent when the attestation was untrusted or unavailable.
type DeviceMetadata struct {
	// Identifier is the authenticator model identifier (AAGUID).
	Identifier string `json:"identifier"`

	// Description is the manufacturer's device description.
	Description string `json:"description"`

	// Attachment hints how the authenticator attaches (platform, cross-platform).
	Attachment string `json:"attachment,omitempty"`

	// Icon is an optional data URL or link to the device icon.
	Icon string `json:"icon,omitempty"`
}

// CredentialRegistration is one enrolled authenticator. The public key is
// immutable once stored; SignatureCount and LastUsedTime change only on a
// successful authentication, Nickname and LastUpdatedTime only on rename.
type CredentialRegistration struct {
	// UserIdentity identifies the owning user.
	UserIdentity UserIdentity `json:"user_identity"`

	// CredentialID is the authenticator-chosen public credential id.
	CredentialID []byte `json:"credential_id"`

	// PublicKey is the COSE-encoded credential public key.
	PublicKey []byte `json:"public_key"`

	// SignatureCount is the authenticator-reported usage counter.
	SignatureCount uint32 `json:"signature_count"`

	// AttestationType records how the authenticator attested (none, packed, ...).
	AttestationType string `json:"attestation_type,omitempty"`

	// Transports lists the transports reported at registration.
	Transports []protocol.AuthenticatorTransport `json:"transports,omitempty"`

	// AAGUID is the authenticator model identifier from the attestation.
	AAGUID []byte `json:"aaguid,omitempty"`

	// BackupEligible and BackupState mirror the authenticator flags.
	BackupEligible bool `json:"backup_eligible"`
	BackupState    bool `json:"backup_state"`

	// Nickname is the user-editable label.
	Nickname string `json:"nickname,omitempty"`

	// RegistrationTime is when the credential was enrolled.
	RegistrationTime time.Time `json:"registration_time"`

	// LastUsedTime is when the credential last authenticated.
	LastUsedTime time.Time `json:"last_used_time"`

	// LastUpdatedTime is when the registration was last edited.
	LastUpdatedTime time.Time `json:"last_updated_time"`

	// Attestation is the optional trust-service enrichment.
	Attestation *DeviceMetadata `json:"attestation_metadata,omitempty"`
}

// Descriptor returns the credential descriptor used in allow and exclude lists.
func (r *CredentialRegistration) Descriptor() protocol.CredentialDescriptor {
	return protocol.CredentialDescriptor{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: r.CredentialID,
		Transport:    r.Transports,
	}
}

// WebAuthnCredential converts the registration to the verifier's credential type.
func (r *CredentialRegistration) WebAuthnCredential() webauthn.Credential {
	return webauthn.Credential{
		ID:              r.CredentialID,
		PublicKey:       r.PublicKey,
		AttestationType: r.AttestationType,
		Transport:       r.Transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: r.BackupEligible,
			BackupState:    r.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    r.AAGUID,
			SignCount: r.SignatureCount,
		},
	}
}

// AAGUIDString renders the AAGUID in its canonical UUID form, or empty when
// the authenticator reported none (all zero bytes).
func (r *CredentialRegistration) AAGUIDString() string {
	if len(r.AAGUID) != 16 || bytes.Equal(r.AAGUID, make([]byte, 16)) {
		return ""
	}
	id, err := uuid.FromBytes(r.AAGUID)
	if err != nil {
		return ""
	}
	return id.String()
}

// FromVerifiedCredential builds a registration row from a credential the
// verifier has accepted.
func FromVerifiedCredential(identity UserIdentity, nickname string, cred *webauthn.Credential, now time.Time) *CredentialRegistration {
	return &CredentialRegistration{
		UserIdentity:     identity,
		CredentialID:     cred.ID,
		PublicKey:        cred.PublicKey,
		SignatureCount:   cred.Authenticator.SignCount,
		AttestationType:  cred.AttestationType,
		Transports:       cred.Transport,
		AAGUID:           cred.Authenticator.AAGUID,
		BackupEligible:   cred.Flags.BackupEligible,
		BackupState:      cred.Flags.BackupState,
		Nickname:         nickname,
		RegistrationTime: now,
		LastUsedTime:     now,
		LastUpdatedTime:  now,
	}
}
