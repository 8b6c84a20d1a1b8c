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

package registry

import (
	"context"

	"github.com/go-webauthn/webauthn/protocol"
)

// Store is the credential registry contract. It exposes the administrative
// write surface and the lookup surface the ceremony verifier needs
// mid-verification. Implementations must serialize Add calls racing on the
// same (username, credentialID) so that exactly one succeeds.
type Store interface {
	// Add inserts a new registration for the username.
	// Returns ErrCredentialExists if the (username, credentialID) pair
	// already exists.
	Add(ctx context.Context, username string, reg *CredentialRegistration) error

	// ByUsername returns all registrations for a username.
	// Returns an empty slice when the user has none.
	ByUsername(ctx context.Context, username string) ([]*CredentialRegistration, error)

	// ByUsernameAndCredentialID returns the single matching registration.
	// Returns ErrCredentialNotFound when absent.
	ByUsernameAndCredentialID(ctx context.Context, username string, credentialID []byte) (*CredentialRegistration, error)

	// ByCredentialID returns every registration with the given credential
	// id, across all users. Credential ids are not contractually unique;
	// callers disambiguate with the user handle.
	ByCredentialID(ctx context.Context, credentialID []byte) ([]*CredentialRegistration, error)

	// DescriptorsForUsername returns the credential descriptors for a
	// username, for allow and exclude lists.
	DescriptorsForUsername(ctx context.Context, username string) ([]protocol.CredentialDescriptor, error)

	// UserHandleForUsername resolves the stable user handle.
	// Returns ErrUserNotFound when the username has no registrations.
	UserHandleForUsername(ctx context.Context, username string) ([]byte, error)

	// UsernameForUserHandle resolves a user handle back to its username.
	// Returns ErrUserNotFound when unknown.
	UsernameForUserHandle(ctx context.Context, userHandle []byte) (string, error)

	// UserExists reports whether the username has at least one registration.
	UserExists(ctx context.Context, username string) (bool, error)

	// UpdateSignatureCount stores the new counter value and stamps
	// LastUsedTime. Returns ErrCredentialNotFound when absent. The
	// registry does not check monotonicity; the verifier does that before
	// this call is reached.
	UpdateSignatureCount(ctx context.Context, username string, credentialID []byte, count uint32) error

	// UpdateNickname renames a credential and stamps LastUpdatedTime.
	// Returns ErrCredentialNotFound when the credential does not belong
	// to the username.
	UpdateNickname(ctx context.Context, username string, credentialID []byte, nickname string) error

	// Remove deletes one registration. Idempotent: removing an absent
	// credential returns false, nil.
	Remove(ctx context.Context, username string, credentialID []byte) (bool, error)

	// RemoveAll deletes every registration for a username and returns the
	// number removed. Idempotent: a user with no credentials yields 0, nil.
	RemoveAll(ctx context.Context, username string) (int, error)

	// AttachMetadata stores the attestation enrichment on an existing
	// registration. Returns ErrCredentialNotFound when absent.
	AttachMetadata(ctx context.Context, username string, credentialID []byte, meta *DeviceMetadata) error
}
