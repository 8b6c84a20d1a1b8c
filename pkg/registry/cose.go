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
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// coseKeyHeader carries the two labels needed to describe a stored public
// key. Labels per RFC 9052: 1 = kty, 3 = alg.
type coseKeyHeader struct {
	Kty int64 `cbor:"1,keyasint"`
	Alg int64 `cbor:"3,keyasint,omitempty"`
}

var coseAlgNames = map[int64]string{
	-7:   "ES256",
	-8:   "EdDSA",
	-35:  "ES384",
	-36:  "ES512",
	-37:  "PS256",
	-38:  "PS384",
	-39:  "PS512",
	-47:  "ES256K",
	-257: "RS256",
	-258: "RS384",
	-259: "RS512",
}

var coseKtyNames = map[int64]string{
	1: "OKP",
	2: "EC2",
	3: "RSA",
}

// KeyAlgorithm decodes the COSE key header of a stored public key and returns
// a human-readable algorithm name for the credential listing surface.
// Returns "unknown" when the key cannot be decoded; the stored key material
// itself is never touched.
func KeyAlgorithm(publicKey []byte) string {
	var hdr coseKeyHeader
	if err := cbor.Unmarshal(publicKey, &hdr); err != nil {
		return "unknown"
	}

	alg, ok := coseAlgNames[hdr.Alg]
	if !ok {
		if hdr.Alg == 0 {
			alg = "unspecified"
		} else {
			alg = fmt.Sprintf("COSE(%d)", hdr.Alg)
		}
	}

	if kty, ok := coseKtyNames[hdr.Kty]; ok {
		return fmt.Sprintf("%s (%s)", alg, kty)
	}
	return alg
}
