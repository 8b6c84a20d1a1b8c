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
	"errors"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-passkey/pkg/metadata"
	"github.com/jeremyhahn/go-passkey/pkg/registry"
)

// enrich attaches device metadata to a committed registration. Attach if
// available: no resolver, an unconveyed attestation, an unknown device or
// an unreachable trust source all leave the registration as committed.
func (s *Service) enrich(ctx context.Context, username string, row *registry.CredentialRegistration) {
	if s.resolver == nil {
		return
	}
	// Self-attested or unconveyed attestations carry no provenance worth
	// resolving.
	if row.AttestationType == "" || row.AttestationType == "none" {
		return
	}
	if len(row.AAGUID) != 16 {
		return
	}
	aaguid, err := uuid.FromBytes(row.AAGUID)
	if err != nil || aaguid == uuid.Nil {
		return
	}

	meta, err := s.resolver.Resolve(ctx, aaguid)
	if err != nil {
		if !errors.Is(err, metadata.ErrNotFound) {
			s.logger.Warn("attestation metadata lookup failed",
				"username", username,
				"aaguid", aaguid.String(),
				"error", err)
		}
		return
	}

	device := &registry.DeviceMetadata{
		Identifier:  meta.AAGUID.String(),
		Description: meta.Description,
		Attachment:  meta.Attachment,
		Icon:        meta.Icon,
	}
	if err := s.registry.AttachMetadata(ctx, username, row.CredentialID, device); err != nil {
		s.logger.Warn("failed to attach attestation metadata",
			"username", username,
			"error", err)
		return
	}
	row.Attestation = device

	s.logger.Debug("attestation metadata attached",
		"username", username,
		"device", meta.Description)
}
