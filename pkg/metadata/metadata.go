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

// Package metadata resolves authenticator model identifiers (AAGUIDs) to
// human-readable device metadata. Resolution is best effort; an unresolved
// AAGUID is not an error condition for the caller's ceremony.
package metadata

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no resolver recognizes the AAGUID.
var ErrNotFound = errors.New("metadata: no metadata for authenticator")

// Metadata describes an authenticator model.
type Metadata struct {
	// AAGUID is the canonical UUID form of the model identifier.
	AAGUID uuid.UUID `json:"aaguid"`

	// Description is the vendor's device description.
	Description string `json:"description"`

	// Attachment hints how the authenticator attaches
	// (platform, cross-platform). Optional.
	Attachment string `json:"attachment,omitempty"`

	// Icon is an optional data URL for the device icon.
	Icon string `json:"icon,omitempty"`
}

// Resolver looks up device metadata by AAGUID.
type Resolver interface {
	// Resolve returns metadata for the AAGUID, or ErrNotFound.
	Resolve(ctx context.Context, aaguid uuid.UUID) (*Metadata, error)
}
