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

import "errors"

var (
	// ErrDuplicateToken is returned when a token is already present in the
	// store. With 32 bytes of entropy this should never happen; the store
	// rejects it rather than silently overwriting a colliding ceremony.
	ErrDuplicateToken = errors.New("ceremony: duplicate token")

	// ErrTokenNotFound is returned when a token is absent, expired, or has
	// already been consumed. Callers cannot distinguish the three cases.
	ErrTokenNotFound = errors.New("ceremony: no such ceremony in progress")

	// ErrEmptyToken is returned when an empty token is supplied.
	ErrEmptyToken = errors.New("ceremony: empty token")
)
