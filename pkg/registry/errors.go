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

import "errors"

var (
	// ErrCredentialExists is returned when a (username, credentialID) pair
	// is already registered. This is the duplicate-registration guard.
	ErrCredentialExists = errors.New("registry: credential already registered")

	// ErrCredentialNotFound is returned when no matching registration exists.
	ErrCredentialNotFound = errors.New("registry: credential not found")

	// ErrUserNotFound is returned when a username has no registrations.
	ErrUserNotFound = errors.New("registry: user not found")
)
