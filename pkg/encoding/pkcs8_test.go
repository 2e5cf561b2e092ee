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

package encoding

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestPKCS8_PlaintextRoundTrip(t *testing.T) {
	key := generateKey(t)

	der, err := EncodePKCS8(key, nil)
	require.NoError(t, err)

	decoded, err := DecodePKCS8(der, nil)
	require.NoError(t, err)
	assert.True(t, key.Equal(decoded))
}

func TestPKCS8_EncryptedRoundTrip(t *testing.T) {
	key := generateKey(t)
	password := []byte("correct horse battery staple")

	der, err := EncodePKCS8(key, password)
	require.NoError(t, err)

	decoded, err := DecodePKCS8(der, password)
	require.NoError(t, err)
	assert.True(t, key.Equal(decoded))
}

func TestPKCS8_WrongPassword(t *testing.T) {
	key := generateKey(t)

	der, err := EncodePKCS8(key, []byte("right"))
	require.NoError(t, err)

	_, err = DecodePKCS8(der, []byte("wrong"))
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestPKCS8_InvalidInputs(t *testing.T) {
	_, err := EncodePKCS8(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)

	_, err = DecodePKCS8(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = DecodePKCS8([]byte("garbage"), nil)
	assert.Error(t, err)
}

func TestPKIX_RoundTrip(t *testing.T) {
	key := generateKey(t)

	der, err := EncodePublicKeyPKIX(&key.PublicKey)
	require.NoError(t, err)

	decoded, err := DecodePublicKeyPKIX(der)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(decoded))
}

func TestPKIX_InvalidInputs(t *testing.T) {
	_, err := EncodePublicKeyPKIX(nil)
	assert.ErrorIs(t, err, ErrInvalidPublicKey)

	_, err = DecodePublicKeyPKIX(nil)
	assert.ErrorIs(t, err, ErrInvalidData)
}
