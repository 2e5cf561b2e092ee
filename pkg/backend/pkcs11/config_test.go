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

//go:build pkcs11

package pkcs11

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLibrary creates a file standing in for a PKCS#11 module so path
// validation passes.
func fakeLibrary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "libsofthsm2.so")
	require.NoError(t, os.WriteFile(path, []byte{}, 0644))
	return path
}

func TestConfig_Validate(t *testing.T) {
	var nilConfig *Config
	assert.ErrorIs(t, nilConfig.Validate(), ErrInvalidConfig)

	assert.ErrorIs(t, (&Config{}).Validate(), ErrInvalidConfig)

	assert.ErrorIs(t, (&Config{
		Library:    "/nonexistent/libsofthsm2.so",
		TokenLabel: "enclave",
	}).Validate(), ErrLibraryNotFound)

	library := fakeLibrary(t)

	assert.ErrorIs(t, (&Config{Library: library}).Validate(), ErrInvalidConfig)

	assert.ErrorIs(t, (&Config{
		Library:    library,
		TokenLabel: "enclave",
		PIN:        "123",
	}).Validate(), ErrInvalidPINLength)

	assert.NoError(t, (&Config{
		Library:    library,
		TokenLabel: "enclave",
		PIN:        "1234",
	}).Validate())
}

func TestKeyLabel(t *testing.T) {
	label := keyLabel("com.example.app.shared", []byte("com.example.key1"))
	assert.Equal(t, []byte("com.example.app.shared/com.example.key1"), label)
}
