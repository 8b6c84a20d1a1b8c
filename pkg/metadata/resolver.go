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

package metadata

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

//go:embed devices.json
var embeddedDevices []byte

// StaticResolver resolves AAGUIDs from an in-memory table. The table is
// read-only after construction, so lookups need no locking.
type StaticResolver struct {
	devices map[uuid.UUID]*Metadata
}

// NewStaticResolver builds a resolver from a JSON array of Metadata entries.
func NewStaticResolver(table []byte) (*StaticResolver, error) {
	var entries []Metadata
	if err := json.Unmarshal(table, &entries); err != nil {
		return nil, fmt.Errorf("metadata: parse device table: %w", err)
	}
	devices := make(map[uuid.UUID]*Metadata, len(entries))
	for i := range entries {
		devices[entries[i].AAGUID] = &entries[i]
	}
	return &StaticResolver{devices: devices}, nil
}

// NewEmbeddedResolver builds a resolver from the device table shipped with
// the binary.
func NewEmbeddedResolver() *StaticResolver {
	resolver, err := NewStaticResolver(embeddedDevices)
	if err != nil {
		// The embedded table is validated by tests; a parse failure here
		// means a broken build.
		panic(err)
	}
	return resolver
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(ctx context.Context, aaguid uuid.UUID) (*Metadata, error) {
	meta, ok := r.devices[aaguid]
	if !ok {
		return nil, ErrNotFound
	}
	return meta, nil
}

// CompositeResolver tries each child resolver in order and returns the first
// hit. ErrNotFound from a child moves on to the next; any other error stops
// the chain.
type CompositeResolver struct {
	resolvers []Resolver
}

// NewCompositeResolver chains resolvers, first match wins.
func NewCompositeResolver(resolvers ...Resolver) *CompositeResolver {
	return &CompositeResolver{resolvers: resolvers}
}

// Resolve implements Resolver.
func (r *CompositeResolver) Resolve(ctx context.Context, aaguid uuid.UUID) (*Metadata, error) {
	for _, child := range r.resolvers {
		meta, err := child.Resolve(ctx, aaguid)
		if err == nil {
			return meta, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}
