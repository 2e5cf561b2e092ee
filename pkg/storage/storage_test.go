// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-enclave.
//
// go-enclave is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends under test share one behavioral contract
func backends(t *testing.T) map[string]Backend {
	t.Helper()
	file, err := NewFile(t.TempDir())
	require.NoError(t, err)
	return map[string]Backend{
		"memory": NewMemory(),
		"file":   file,
	}
}

func TestBackend_PutGetRoundTrip(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.Put("keys/group/tag.p8", []byte("der bytes")))

			value, err := b.Get("keys/group/tag.p8")
			require.NoError(t, err)
			assert.Equal(t, []byte("der bytes"), value)

			exists, err := b.Exists("keys/group/tag.p8")
			require.NoError(t, err)
			assert.True(t, exists)
		})
	}
}

func TestBackend_GetMissing(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Get("keys/missing")
			assert.ErrorIs(t, err, ErrNotFound)

			exists, err := b.Exists("keys/missing")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestBackend_Overwrite(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.Put("k", []byte("v1")))
			require.NoError(t, b.Put("k", []byte("v2")))

			value, err := b.Get("k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), value)
		})
	}
}

func TestBackend_Delete(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.Put("k", []byte("v")))
			require.NoError(t, b.Delete("k"))

			_, err := b.Get("k")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, b.Delete("k"), ErrNotFound)
		})
	}
}

func TestMemoryStorage_Closed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Put("k", []byte("v")))
	require.NoError(t, m.Close())

	_, err := m.Get("k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Put("k", nil), ErrClosed)
}

func TestMemoryStorage_CopiesValues(t *testing.T) {
	m := NewMemory()
	original := []byte("secret")
	require.NoError(t, m.Put("k", original))
	original[0] = 'X'

	value, err := m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), value)
}

func TestFileStorage_Permissions(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)

	require.NoError(t, f.Put("keys/group/tag.p8", []byte("key material")))

	info, err := os.Stat(filepath.Join(dir, "keys", "group", "tag.p8"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStorage_RejectsTraversal(t *testing.T) {
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, f.Put("../escape", []byte("v")))
	_, err = f.Get("../../etc/passwd")
	assert.Error(t, err)
}

func TestFileStorage_EmptyRoot(t *testing.T) {
	_, err := NewFile("")
	assert.Error(t, err)
}
