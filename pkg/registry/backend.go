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
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"context"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/jeremyhahn/go-passkey/pkg/storage"
)

// Key layout:
//
//	registrations/<hex username>/<hex credential id> -> registration row (JSON)
//	credentials/<hex credential id>/<hex username>   -> row reference (empty)
//	handles/<hex user handle>                        -> username (raw bytes)
//
// The credentials/ index makes lookup-by-credential-id across users a prefix
// scan; the handles/ index gives handle -> username resolution for
// discoverable-credential logins.
const (
	rowPrefix    = "registrations/"
	credPrefix   = "credentials/"
	handlePrefix = "handles/"
)

// BackendStore implements Store on a storage.Backend. A single mutex
// serializes writes so the (username, credentialID) uniqueness check and the
// subsequent insert are one step; racing Add calls see exactly one winner.
type BackendStore struct {
	mu      sync.Mutex
	backend storage.Backend
	clock   func() time.Time
}

// NewBackendStore creates a credential registry over the given backend.
func NewBackendStore(backend storage.Backend) *BackendStore {
	return &BackendStore{
		backend: backend,
		clock:   time.Now,
	}
}

// SetClock overrides the registry's time source. Intended for tests.
func (s *BackendStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func rowKey(username string, credentialID []byte) string {
	return rowPrefix + hex.EncodeToString([]byte(username)) + "/" + hex.EncodeToString(credentialID)
}

func credKey(credentialID []byte, username string) string {
	return credPrefix + hex.EncodeToString(credentialID) + "/" + hex.EncodeToString([]byte(username))
}

func handleKey(userHandle []byte) string {
	return handlePrefix + hex.EncodeToString(userHandle)
}

// Add inserts a new registration for the username.
func (s *BackendStore) Add(ctx context.Context, username string, reg *CredentialRegistration) error {
	if username == "" {
		return fmt.Errorf("registry: empty username")
	}
	if len(reg.CredentialID) == 0 {
		return fmt.Errorf("registry: empty credential id")
	}

	data, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("registry: encode registration: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := rowKey(username, reg.CredentialID)
	exists, err := s.backend.Exists(key)
	if err != nil {
		return fmt.Errorf("registry: check registration: %w", err)
	}
	if exists {
		return ErrCredentialExists
	}

	if err := s.backend.Put(key, data, storage.DefaultOptions()); err != nil {
		return fmt.Errorf("registry: store registration: %w", err)
	}
	if err := s.backend.Put(credKey(reg.CredentialID, username), nil, storage.DefaultOptions()); err != nil {
		return fmt.Errorf("registry: store credential index: %w", err)
	}
	if len(reg.UserIdentity.ID) > 0 {
		if err := s.backend.Put(handleKey(reg.UserIdentity.ID), []byte(username), storage.DefaultOptions()); err != nil {
			return fmt.Errorf("registry: store handle index: %w", err)
		}
	}
	return nil
}

// ByUsername returns all registrations for a username.
func (s *BackendStore) ByUsername(ctx context.Context, username string) ([]*CredentialRegistration, error) {
	keys, err := s.backend.List(rowPrefix + hex.EncodeToString([]byte(username)) + "/")
	if err != nil {
		return nil, fmt.Errorf("registry: list registrations: %w", err)
	}

	regs := make([]*CredentialRegistration, 0, len(keys))
	for _, key := range keys {
		reg, err := s.readRow(key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue // removed between list and read
			}
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

// ByUsernameAndCredentialID returns the single matching registration.
func (s *BackendStore) ByUsernameAndCredentialID(ctx context.Context, username string, credentialID []byte) (*CredentialRegistration, error) {
	reg, err := s.readRow(rowKey(username, credentialID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return reg, nil
}

// ByCredentialID returns every registration with the given credential id.
func (s *BackendStore) ByCredentialID(ctx context.Context, credentialID []byte) ([]*CredentialRegistration, error) {
	prefix := credPrefix + hex.EncodeToString(credentialID) + "/"
	keys, err := s.backend.List(prefix)
	if err != nil {
		return nil, fmt.Errorf("registry: list credential index: %w", err)
	}

	regs := make([]*CredentialRegistration, 0, len(keys))
	for _, key := range keys {
		usernameBytes, err := hex.DecodeString(key[len(prefix):])
		if err != nil {
			continue
		}
		reg, err := s.readRow(rowKey(string(usernameBytes), credentialID))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

// DescriptorsForUsername returns the credential descriptors for a username.
func (s *BackendStore) DescriptorsForUsername(ctx context.Context, username string) ([]protocol.CredentialDescriptor, error) {
	regs, err := s.ByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	descriptors := make([]protocol.CredentialDescriptor, len(regs))
	for i, reg := range regs {
		descriptors[i] = reg.Descriptor()
	}
	return descriptors, nil
}

// UserHandleForUsername resolves the stable user handle.
func (s *BackendStore) UserHandleForUsername(ctx context.Context, username string) ([]byte, error) {
	regs, err := s.ByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return nil, ErrUserNotFound
	}
	return regs[0].UserIdentity.ID, nil
}

// UsernameForUserHandle resolves a user handle back to its username.
func (s *BackendStore) UsernameForUserHandle(ctx context.Context, userHandle []byte) (string, error) {
	data, err := s.backend.Get(handleKey(userHandle))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("registry: read handle index: %w", err)
	}
	return string(data), nil
}

// UserExists reports whether the username has at least one registration.
func (s *BackendStore) UserExists(ctx context.Context, username string) (bool, error) {
	keys, err := s.backend.List(rowPrefix + hex.EncodeToString([]byte(username)) + "/")
	if err != nil {
		return false, fmt.Errorf("registry: list registrations: %w", err)
	}
	return len(keys) > 0, nil
}

// UpdateSignatureCount stores the new counter value and stamps LastUsedTime.
func (s *BackendStore) UpdateSignatureCount(ctx context.Context, username string, credentialID []byte, count uint32) error {
	return s.mutateRow(username, credentialID, func(reg *CredentialRegistration) {
		reg.SignatureCount = count
		reg.LastUsedTime = s.clock().UTC()
	})
}

// UpdateNickname renames a credential and stamps LastUpdatedTime.
func (s *BackendStore) UpdateNickname(ctx context.Context, username string, credentialID []byte, nickname string) error {
	return s.mutateRow(username, credentialID, func(reg *CredentialRegistration) {
		reg.Nickname = nickname
		reg.LastUpdatedTime = s.clock().UTC()
	})
}

// AttachMetadata stores the attestation enrichment on an existing registration.
func (s *BackendStore) AttachMetadata(ctx context.Context, username string, credentialID []byte, meta *DeviceMetadata) error {
	return s.mutateRow(username, credentialID, func(reg *CredentialRegistration) {
		reg.Attestation = meta
		reg.LastUpdatedTime = s.clock().UTC()
	})
}

// Remove deletes one registration. Idempotent.
func (s *BackendStore) Remove(ctx context.Context, username string, credentialID []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, err := s.readRow(rowKey(username, credentialID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := s.backend.Delete(rowKey(username, credentialID)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("registry: delete registration: %w", err)
	}
	if err := s.backend.Delete(credKey(credentialID, username)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("registry: delete credential index: %w", err)
	}

	return true, s.dropHandleIfOrphaned(username, reg.UserIdentity.ID)
}

// RemoveAll deletes every registration for a username.
func (s *BackendStore) RemoveAll(ctx context.Context, username string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.backend.List(rowPrefix + hex.EncodeToString([]byte(username)) + "/")
	if err != nil {
		return 0, fmt.Errorf("registry: list registrations: %w", err)
	}

	removed := 0
	var userHandle []byte
	for _, key := range keys {
		reg, err := s.readRow(key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return removed, err
		}
		userHandle = reg.UserIdentity.ID

		if err := s.backend.Delete(key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return removed, fmt.Errorf("registry: delete registration: %w", err)
		}
		if err := s.backend.Delete(credKey(reg.CredentialID, username)); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return removed, fmt.Errorf("registry: delete credential index: %w", err)
		}
		removed++
	}

	if removed > 0 {
		if err := s.dropHandleIfOrphaned(username, userHandle); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (s *BackendStore) readRow(key string) (*CredentialRegistration, error) {
	data, err := s.backend.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("registry: read registration: %w", err)
	}
	var reg CredentialRegistration
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("registry: decode registration: %w", err)
	}
	return &reg, nil
}

func (s *BackendStore) mutateRow(username string, credentialID []byte, mutate func(*CredentialRegistration)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rowKey(username, credentialID)
	reg, err := s.readRow(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrCredentialNotFound
		}
		return err
	}

	mutate(reg)

	data, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("registry: encode registration: %w", err)
	}
	if err := s.backend.Put(key, data, storage.DefaultOptions()); err != nil {
		return fmt.Errorf("registry: store registration: %w", err)
	}
	return nil
}

// dropHandleIfOrphaned removes the handle index entry once a user has no
// registrations left, so a deleted account's handle cannot resolve.
func (s *BackendStore) dropHandleIfOrphaned(username string, userHandle []byte) error {
	if len(userHandle) == 0 {
		return nil
	}
	keys, err := s.backend.List(rowPrefix + hex.EncodeToString([]byte(username)) + "/")
	if err != nil {
		return fmt.Errorf("registry: list registrations: %w", err)
	}
	if len(keys) > 0 {
		return nil
	}
	if err := s.backend.Delete(handleKey(userHandle)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("registry: delete handle index: %w", err)
	}
	return nil
}
