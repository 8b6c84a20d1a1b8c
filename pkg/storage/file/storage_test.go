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

package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey/pkg/storage"
)

func newTestBackend(t *testing.T) storage.Backend {
	t.Helper()
	backend, err := New(t.TempDir())
	require.NoError(t, err)
	return backend
}

func TestFileBackend_PutGet(t *testing.T) {
	backend := newTestBackend(t)

	err := backend.Put("registrations/alice/cred1", []byte(`{"nickname":"laptop"}`), storage.DefaultOptions())
	require.NoError(t, err)

	value, err := backend.Get("registrations/alice/cred1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"nickname":"laptop"}`), value)
}

func TestFileBackend_GetNotFound(t *testing.T) {
	backend := newTestBackend(t)

	_, err := backend.Get("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFileBackend_Overwrite(t *testing.T) {
	backend := newTestBackend(t)

	require.NoError(t, backend.Put("key", []byte("first"), nil))
	require.NoError(t, backend.Put("key", []byte("second"), nil))

	value, err := backend.Get("key")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), value)
}

func TestFileBackend_Delete(t *testing.T) {
	backend := newTestBackend(t)

	require.NoError(t, backend.Put("key", []byte("value"), nil))
	require.NoError(t, backend.Delete("key"))

	_, err := backend.Get("key")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = backend.Delete("key")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFileBackend_ListSorted(t *testing.T) {
	backend := newTestBackend(t)

	require.NoError(t, backend.Put("handles/bb", []byte("2"), nil))
	require.NoError(t, backend.Put("handles/aa", []byte("1"), nil))
	require.NoError(t, backend.Put("credentials/cc", []byte("3"), nil))

	keys, err := backend.List("handles/")
	require.NoError(t, err)
	assert.Equal(t, []string{"handles/aa", "handles/bb"}, keys)

	all, err := backend.List("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFileBackend_Exists(t *testing.T) {
	backend := newTestBackend(t)

	exists, err := backend.Exists("key")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, backend.Put("key", []byte("value"), nil))

	exists, err = backend.Exists("key")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFileBackend_InvalidKeys(t *testing.T) {
	backend := newTestBackend(t)

	for _, key := range []string{"", ".", "..", "../escape", "/absolute"} {
		err := backend.Put(key, []byte("value"), nil)
		assert.ErrorIs(t, err, storage.ErrInvalidKey, "key %q", key)
	}
}

func TestFileBackend_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	backend, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, backend.Put("registrations/alice/cred1", []byte("row"), nil))
	require.NoError(t, backend.Close())

	reopened, err := New(dir)
	require.NoError(t, err)

	value, err := reopened.Get("registrations/alice/cred1")
	require.NoError(t, err)
	assert.Equal(t, []byte("row"), value)
}
