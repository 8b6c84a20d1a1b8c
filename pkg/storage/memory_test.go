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

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_PutGet(t *testing.T) {
	backend := NewMemory()

	err := backend.Put("registrations/alice", []byte("value"), DefaultOptions())
	require.NoError(t, err)

	value, err := backend.Get("registrations/alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)
}

func TestMemoryBackend_GetNotFound(t *testing.T) {
	backend := NewMemory()

	_, err := backend.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackend_GetReturnsCopy(t *testing.T) {
	backend := NewMemory()

	require.NoError(t, backend.Put("key", []byte("original"), nil))

	value, err := backend.Get("key")
	require.NoError(t, err)
	value[0] = 'X'

	again, err := backend.Get("key")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func TestMemoryBackend_Delete(t *testing.T) {
	backend := NewMemory()

	require.NoError(t, backend.Put("key", []byte("value"), nil))
	require.NoError(t, backend.Delete("key"))

	_, err := backend.Get("key")
	assert.ErrorIs(t, err, ErrNotFound)

	err = backend.Delete("key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackend_List(t *testing.T) {
	backend := NewMemory()

	require.NoError(t, backend.Put("ceremonies/registration/a", []byte("1"), nil))
	require.NoError(t, backend.Put("ceremonies/registration/b", []byte("2"), nil))
	require.NoError(t, backend.Put("ceremonies/assertion/c", []byte("3"), nil))

	keys, err := backend.List("ceremonies/registration/")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	all, err := backend.List("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryBackend_Exists(t *testing.T) {
	backend := NewMemory()

	exists, err := backend.Exists("key")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, backend.Put("key", []byte("value"), nil))

	exists, err = backend.Exists("key")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryBackend_Closed(t *testing.T) {
	backend := NewMemory()
	require.NoError(t, backend.Close())

	_, err := backend.Get("key")
	assert.ErrorIs(t, err, ErrClosed)

	err = backend.Put("key", []byte("value"), nil)
	assert.ErrorIs(t, err, ErrClosed)

	err = backend.Close()
	assert.ErrorIs(t, err, ErrClosed)
}
