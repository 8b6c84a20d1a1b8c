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
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey/pkg/metadata"
	"github.com/jeremyhahn/go-passkey/pkg/registry"
)

var yubikeyAAGUID = uuid.MustParse("ee882879-721c-4913-9775-3dfcce97072a")

func addRegistration(t *testing.T, rig *testRig, username string, row *registry.CredentialRegistration) {
	t.Helper()
	require.NoError(t, rig.registry.Add(context.Background(), username, row))
}

func attestedRow(credentialID []byte, attestationType string, aaguid []byte) *registry.CredentialRegistration {
	now := time.Now().UTC()
	return &registry.CredentialRegistration{
		UserIdentity: registry.UserIdentity{
			ID:   []byte("handle"),
			Name: "alice",
		},
		CredentialID:     credentialID,
		PublicKey:        []byte{0x01},
		AttestationType:  attestationType,
		AAGUID:           aaguid,
		RegistrationTime: now,
	}
}

func TestEnrich_AttachesKnownDevice(t *testing.T) {
	rig := newTestRig(t, func(p *ServiceParams) {
		p.Resolver = metadata.NewEmbeddedResolver()
	})
	ctx := context.Background()

	row := attestedRow([]byte("cred-1"), "packed", yubikeyAAGUID[:])
	addRegistration(t, rig, "alice", row)

	rig.svc.enrich(ctx, "alice", row)

	require.NotNil(t, row.Attestation)
	assert.Equal(t, yubikeyAAGUID.String(), row.Attestation.Identifier)
	assert.NotEmpty(t, row.Attestation.Description)

	// The enrichment was persisted, not just set on the in-memory row.
	stored, err := rig.registry.ByUsernameAndCredentialID(ctx, "alice", []byte("cred-1"))
	require.NoError(t, err)
	require.NotNil(t, stored.Attestation)
	assert.Equal(t, row.Attestation.Description, stored.Attestation.Description)
}

func TestEnrich_SkipsUnconveyedAttestation(t *testing.T) {
	rig := newTestRig(t, func(p *ServiceParams) {
		p.Resolver = metadata.NewEmbeddedResolver()
	})
	ctx := context.Background()

	for _, attestationType := range []string{"", "none"} {
		row := attestedRow([]byte("cred-"+attestationType), attestationType, yubikeyAAGUID[:])
		addRegistration(t, rig, "alice", row)

		rig.svc.enrich(ctx, "alice", row)
		assert.Nil(t, row.Attestation, "attestation type %q", attestationType)
	}
}

func TestEnrich_SkipsZeroAAGUID(t *testing.T) {
	rig := newTestRig(t, func(p *ServiceParams) {
		p.Resolver = metadata.NewEmbeddedResolver()
	})
	ctx := context.Background()

	row := attestedRow([]byte("cred-1"), "packed", make([]byte, 16))
	addRegistration(t, rig, "alice", row)

	rig.svc.enrich(ctx, "alice", row)
	assert.Nil(t, row.Attestation)
}

func TestEnrich_UnknownDeviceLeavesRowAlone(t *testing.T) {
	rig := newTestRig(t, func(p *ServiceParams) {
		p.Resolver = metadata.NewEmbeddedResolver()
	})
	ctx := context.Background()

	unknown := uuid.MustParse("99999999-9999-9999-9999-999999999999")
	row := attestedRow([]byte("cred-1"), "packed", unknown[:])
	addRegistration(t, rig, "alice", row)

	rig.svc.enrich(ctx, "alice", row)
	assert.Nil(t, row.Attestation)
}

func TestEnrich_NoResolverIsNoOp(t *testing.T) {
	rig := newTestRig(t, nil)

	row := attestedRow([]byte("cred-1"), "packed", yubikeyAAGUID[:])
	addRegistration(t, rig, "alice", row)

	rig.svc.enrich(context.Background(), "alice", row)
	assert.Nil(t, row.Attestation)
}
