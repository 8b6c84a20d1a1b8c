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

package ceremony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/storage"
)

const (
	registrationPrefix = "ceremonies/registration/"
	assertionPrefix    = "ceremonies/assertion/"
)

// Store holds in-flight ceremonies keyed by their single-use token.
// Every consume is a destructive read; there is no peek.
type Store interface {
	// PutRegistration inserts a pending registration.
	// Returns ErrDuplicateToken if the token is already present.
	PutRegistration(ctx context.Context, reg *PendingRegistration) error

	// ConsumeRegistration atomically reads and deletes a pending
	// registration. Returns ErrTokenNotFound if the token is absent,
	// expired, or already consumed.
	ConsumeRegistration(ctx context.Context, token string) (*PendingRegistration, error)

	// PutAssertion inserts a pending assertion.
	// Returns ErrDuplicateToken if the token is already present.
	PutAssertion(ctx context.Context, assertion *PendingAssertion) error

	// ConsumeAssertion atomically reads and deletes a pending assertion.
	// Returns ErrTokenNotFound if the token is absent, expired, or
	// already consumed.
	ConsumeAssertion(ctx context.Context, token string) (*PendingAssertion, error)

	// SweepExpired removes every entry older than the TTL and returns the
	// number removed. Put and consume call this opportunistically, so no
	// background timer is required.
	SweepExpired(ctx context.Context) (int, error)
}

// BackendStore implements Store on top of a storage.Backend. The store's own
// mutex serializes consume-and-delete so that two racing finish calls for the
// same token can never both observe the entry; the backend only needs plain
// get/put/delete.
type BackendStore struct {
	mu      sync.Mutex
	backend storage.Backend
	ttl     time.Duration
	clock   func() time.Time
}

// NewBackendStore creates a ceremony store over the given backend with the
// default one hour TTL.
func NewBackendStore(backend storage.Backend) *BackendStore {
	return NewBackendStoreWithTTL(backend, DefaultTTL)
}

// NewBackendStoreWithTTL creates a ceremony store with a custom TTL.
func NewBackendStoreWithTTL(backend storage.Backend, ttl time.Duration) *BackendStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &BackendStore{
		backend: backend,
		ttl:     ttl,
		clock:   time.Now,
	}
}

// SetClock overrides the store's time source. Intended for tests.
func (s *BackendStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// PutRegistration inserts a pending registration.
func (s *BackendStore) PutRegistration(ctx context.Context, reg *PendingRegistration) error {
	return s.put(reg.Token, registrationPrefix+reg.Token, reg)
}

// PutAssertion inserts a pending assertion.
func (s *BackendStore) PutAssertion(ctx context.Context, assertion *PendingAssertion) error {
	return s.put(assertion.Token, assertionPrefix+assertion.Token, assertion)
}

func (s *BackendStore) put(token, key string, entry any) error {
	if token == "" {
		return ErrEmptyToken
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("ceremony: encode entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	exists, err := s.backend.Exists(key)
	if err != nil {
		return fmt.Errorf("ceremony: check token: %w", err)
	}
	if exists {
		return ErrDuplicateToken
	}

	if err := s.backend.Put(key, data, storage.DefaultOptions()); err != nil {
		return fmt.Errorf("ceremony: store entry: %w", err)
	}
	return nil
}

// ConsumeRegistration atomically reads and deletes a pending registration.
func (s *BackendStore) ConsumeRegistration(ctx context.Context, token string) (*PendingRegistration, error) {
	var reg PendingRegistration
	if err := s.consume(token, registrationPrefix+token, &reg); err != nil {
		return nil, err
	}
	if s.expired(reg.CreatedAt) {
		return nil, ErrTokenNotFound
	}
	return &reg, nil
}

// ConsumeAssertion atomically reads and deletes a pending assertion.
func (s *BackendStore) ConsumeAssertion(ctx context.Context, token string) (*PendingAssertion, error) {
	var assertion PendingAssertion
	if err := s.consume(token, assertionPrefix+token, &assertion); err != nil {
		return nil, err
	}
	if s.expired(assertion.CreatedAt) {
		return nil, ErrTokenNotFound
	}
	return &assertion, nil
}

func (s *BackendStore) consume(token, key string, out any) error {
	if token == "" {
		return ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	data, err := s.backend.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("ceremony: read entry: %w", err)
	}

	// Destructive read: the entry is gone even if decoding fails below,
	// so a malformed entry cannot be retried into a replay.
	if err := s.backend.Delete(key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("ceremony: delete entry: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("ceremony: decode entry: %w", err)
	}
	return nil
}

// SweepExpired removes all entries older than the TTL.
func (s *BackendStore) SweepExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sweepLocked(), nil
}

func (s *BackendStore) sweepLocked() int {
	removed := 0
	for _, prefix := range []string{registrationPrefix, assertionPrefix} {
		keys, err := s.backend.List(prefix)
		if err != nil {
			continue
		}
		for _, key := range keys {
			data, err := s.backend.Get(key)
			if err != nil {
				continue
			}
			var stamp struct {
				CreatedAt time.Time `json:"created_at"`
			}
			if err := json.Unmarshal(data, &stamp); err != nil || s.expired(stamp.CreatedAt) {
				if err := s.backend.Delete(key); err == nil {
					removed++
				}
			}
		}
	}
	return removed
}

func (s *BackendStore) expired(created time.Time) bool {
	return s.clock().Sub(created) > s.ttl
}
