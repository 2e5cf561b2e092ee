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

package enclave_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jeremyhahn/go-enclave/pkg/enclave"
	"github.com/jeremyhahn/go-enclave/pkg/enclave/mocks"
	"github.com/jeremyhahn/go-enclave/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, ks types.Keystore) *enclave.Service {
	t.Helper()
	svc, err := enclave.NewService(&enclave.Config{
		Tag:        "com.example.key1",
		Identifier: "com.example.app",
		Group:      "shared",
		Prompt:     "Authenticate to use the signing key",
		Keystore:   ks,
	})
	require.NoError(t, err)
	return svc
}

func TestNewService_Validation(t *testing.T) {
	ks := mocks.NewMockKeystore()

	_, err := enclave.NewService(nil)
	assert.ErrorIs(t, err, enclave.ErrInvalidIdentity)

	_, err = enclave.NewService(&enclave.Config{
		Tag: "t", Identifier: "i", Group: "g", Prompt: "p",
	})
	assert.ErrorIs(t, err, enclave.ErrKeystoreRequired)

	_, err = enclave.NewService(&enclave.Config{
		Tag: "t", Identifier: "i", Group: "g", Keystore: ks,
	})
	assert.ErrorIs(t, err, enclave.ErrInvalidIdentity)

	_, err = enclave.NewService(&enclave.Config{
		Tag: "", Identifier: "i", Group: "g", Prompt: "p", Keystore: ks,
	})
	assert.ErrorIs(t, err, enclave.ErrInvalidIdentity)

	assert.Equal(t, 0, ks.KeystoreCalls(), "construction must not touch the keystore")
}

func TestService_HardwareBacked(t *testing.T) {
	ks := mocks.NewMockKeystore()
	svc := newTestService(t, ks)
	assert.False(t, svc.HardwareBacked())

	ks.CapabilitiesFunc = func() types.Capabilities {
		return types.NewHardwareCapabilities()
	}
	assert.True(t, svc.HardwareBacked())
}

// TestService_SignVerifyRoundTrip covers the primary scenario: the key pair
// is created on first use, a three byte message is signed into the fixed
// block, and the signature verifies with the matching public key.
func TestService_SignVerifyRoundTrip(t *testing.T) {
	ks := mocks.NewMockKeystore()
	svc := newTestService(t, ks)

	message := []byte{0x01, 0x02, 0x03}
	signature, err := svc.Sign(message)
	require.NoError(t, err)
	require.NotEmpty(t, signature)
	assert.LessOrEqual(t, len(signature), types.SignatureBlockSize)
	assert.Equal(t, 1, ks.CreateKeyCalls, "first sign creates the key pair")

	valid, err := svc.Verify(signature, message)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = svc.Verify(signature, []byte{0x01, 0x02, 0x04})
	require.NoError(t, err, "mismatch is a result, not an error")
	assert.False(t, valid)
}

// TestService_SignMessageSizeBoundary checks both sides of the maximum
// signable input: the limit itself signs, one byte over is rejected before
// any keystore round trip.
func TestService_SignMessageSizeBoundary(t *testing.T) {
	ks := mocks.NewMockKeystore()
	svc := newTestService(t, ks)

	atLimit := bytes.Repeat([]byte{0xAB}, types.MaxSignatureInput)
	signature, err := svc.Sign(atLimit)
	require.NoError(t, err)

	valid, err := svc.Verify(signature, atLimit)
	require.NoError(t, err)
	assert.True(t, valid)

	callsBefore := ks.KeystoreCalls()
	overLimit := bytes.Repeat([]byte{0xAB}, types.MaxSignatureInput+1)
	_, err = svc.Sign(overLimit)
	assert.ErrorIs(t, err, enclave.ErrMessageTooLarge)
	assert.Equal(t, callsBefore, ks.KeystoreCalls(),
		"oversized input must be rejected client-side")
}

// TestService_SignTooLargeBeforeResolution pins the validation ordering: an
// oversized message on a fresh service fails without resolving or creating
// any key.
func TestService_SignTooLargeBeforeResolution(t *testing.T) {
	ks := mocks.NewMockKeystore()
	svc := newTestService(t, ks)

	_, err := svc.Sign(make([]byte, types.MaxSignatureInput+1))
	assert.ErrorIs(t, err, enclave.ErrMessageTooLarge)
	assert.Equal(t, 0, ks.KeystoreCalls())
}

func TestService_SignTruncatesToWrittenLength(t *testing.T) {
	ks := mocks.NewMockKeystore()
	ks.SignFunc = func(types.KeyRef, types.SignatureScheme, []byte) ([]byte, int, error) {
		block := make([]byte, types.SignatureBlockSize)
		copy(block, []byte("sig"))
		return block, 3, nil
	}
	ks.CreateKeyFunc = func(*types.KeyAttributes) (types.KeyRef, error) {
		return &mocks.PrivateKeyRef{}, nil
	}

	svc := newTestService(t, ks)
	signature, err := svc.Sign([]byte("msg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("sig"), signature, "trailing block padding must be stripped")
}

func TestService_SignErrors(t *testing.T) {
	ks := mocks.NewMockKeystore()
	ks.SignFunc = func(types.KeyRef, types.SignatureScheme, []byte) ([]byte, int, error) {
		return nil, 0, types.ErrInvalidSigningParams
	}
	svc := newTestService(t, ks)
	_, err := svc.Sign([]byte("msg"))
	assert.ErrorIs(t, err, enclave.ErrInvalidSigningParameters)

	ks2 := mocks.NewMockKeystore()
	ks2.SignFunc = func(types.KeyRef, types.SignatureScheme, []byte) ([]byte, int, error) {
		return nil, 0, &types.KeystoreError{Op: "sign", Message: "user cancelled"}
	}
	svc2 := newTestService(t, ks2)
	_, err = svc2.Sign([]byte("msg"))
	assert.ErrorIs(t, err, enclave.ErrSigningFailed)
}

func TestService_SignKeyUnavailable(t *testing.T) {
	ks := mocks.NewMockKeystore()
	ks.CreateKeyFunc = func(*types.KeyAttributes) (types.KeyRef, error) {
		return nil, &types.KeystoreError{Op: "create", Message: "token removed"}
	}
	svc := newTestService(t, ks)

	_, err := svc.Sign([]byte("msg"))
	assert.ErrorIs(t, err, enclave.ErrKeyUnavailable)
	assert.Equal(t, 0, ks.SignCalls)
}

// TestService_EncryptDecryptRoundTrip verifies ciphertext produced against
// the handle's public key decrypts with its private key.
func TestService_EncryptDecryptRoundTrip(t *testing.T) {
	ks := mocks.NewMockKeystore()
	svc := newTestService(t, ks)

	plaintext := []byte("attack at dawn")
	ciphertext, err := svc.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)
	assert.Greater(t, len(ciphertext), len(plaintext),
		"ciphertext carries ephemeral key and tag")

	recovered, err := svc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)

	assert.Equal(t, 1, ks.CreateKeyCalls, "both operations share one key pair")
}

func TestService_DecryptEmptyPlaintext(t *testing.T) {
	ks := mocks.NewMockKeystore()
	svc := newTestService(t, ks)

	ciphertext, err := svc.Encrypt(nil)
	require.NoError(t, err)

	recovered, err := svc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.NotNil(t, recovered, "legitimate empty plaintext is non-nil")
	assert.Empty(t, recovered)
}

// TestService_DecryptNilResultIsFailure verifies a backend returning no
// data and no error is surfaced as a decryption failure, never as an empty
// message.
func TestService_DecryptNilResultIsFailure(t *testing.T) {
	ks := mocks.NewMockKeystore()
	ks.DecryptFunc = func(types.KeyRef, types.EncryptionAlgorithm, []byte) ([]byte, error) {
		return nil, nil
	}
	svc := newTestService(t, ks)

	_, err := svc.Decrypt([]byte("anything"))
	assert.ErrorIs(t, err, enclave.ErrDecryptionFailed)
}

func TestService_DecryptGarbageCiphertext(t *testing.T) {
	ks := mocks.NewMockKeystore()
	svc := newTestService(t, ks)

	_, err := svc.Decrypt([]byte("not a ciphertext"))
	require.Error(t, err)

	var kerr *types.KeystoreError
	assert.True(t, errors.As(err, &kerr), "backend failure surfaces unwrapped")
}

func TestService_EncryptKeyUnavailable(t *testing.T) {
	ks := mocks.NewMockKeystore()
	ks.CreateKeyFunc = func(*types.KeyAttributes) (types.KeyRef, error) {
		return nil, &types.KeystoreError{Op: "create", Message: "no token"}
	}
	svc := newTestService(t, ks)

	_, err := svc.Encrypt([]byte("data"))
	assert.ErrorIs(t, err, enclave.ErrKeyUnavailable)
	assert.Equal(t, 0, ks.EncryptCalls)
}

// TestService_VerifyTamperedSignature verifies that corrupting any part of
// a valid signature yields (false, nil), not an error.
func TestService_VerifyTamperedSignature(t *testing.T) {
	ks := mocks.NewMockKeystore()
	svc := newTestService(t, ks)

	message := []byte("signed payload")
	signature, err := svc.Sign(message)
	require.NoError(t, err)

	tampered := append([]byte{}, signature...)
	tampered[len(tampered)/2] ^= 0x01

	valid, err := svc.Verify(tampered, message)
	require.NoError(t, err)
	assert.False(t, valid)
}

// TestService_VerifyUnresolvableKey verifies an unresolvable public key
// degrades to (false, nil): the caller sees the same uniform boolean as for
// a mismatch.
func TestService_VerifyUnresolvableKey(t *testing.T) {
	ks := mocks.NewMockKeystore()
	ks.FindKeyFunc = func(*types.KeyQuery) (types.KeyRef, error) {
		return nil, &types.KeystoreError{Op: "find", Message: "session lost"}
	}
	svc := newTestService(t, ks)

	valid, err := svc.Verify([]byte("sig"), []byte("msg"))
	require.NoError(t, err)
	assert.False(t, valid)
}

// TestService_VerifyOperationalFailure verifies a backend failure during
// verification surfaces as *VerificationError carrying the backend status.
func TestService_VerifyOperationalFailure(t *testing.T) {
	ks := mocks.NewMockKeystore()
	ks.VerifyFunc = func(types.KeyRef, types.SignatureScheme, []byte, []byte) error {
		return &types.KeystoreError{Op: "verify", Message: "device error", Status: types.Status(0x30)}
	}
	svc := newTestService(t, ks)

	valid, err := svc.Verify([]byte("sig"), []byte("msg"))
	assert.False(t, valid)
	require.Error(t, err)

	var verr *enclave.VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, types.Status(0x30), verr.Status)
}

// TestService_KeyScopedByQualifiedGroup verifies every keystore round trip
// is scoped by identifier.group, never by the raw group.
func TestService_KeyScopedByQualifiedGroup(t *testing.T) {
	ks := mocks.NewMockKeystore()
	var groups []string
	ks.FindKeyFunc = func(q *types.KeyQuery) (types.KeyRef, error) {
		groups = append(groups, q.AccessGroup)
		return nil, types.ErrKeyNotFound
	}
	ks.CreateKeyFunc = func(attrs *types.KeyAttributes) (types.KeyRef, error) {
		groups = append(groups, attrs.AccessGroup)
		return &mocks.PrivateKeyRef{}, nil
	}
	ks.DeleteKeyFunc = func(q *types.KeyQuery) error {
		groups = append(groups, q.AccessGroup)
		return nil
	}

	svc := newTestService(t, ks)
	_, err := svc.Handle().PrivateKey()
	require.NoError(t, err)
	require.NoError(t, svc.Handle().DeletePrivateKey())

	require.NotEmpty(t, groups)
	for _, group := range groups {
		assert.Equal(t, "com.example.app.shared", group)
	}
}

// TestService_TerminalFailureShortCircuits verifies all operations fail
// fast once resolution has failed, with no further keystore calls.
func TestService_TerminalFailureShortCircuits(t *testing.T) {
	ks := mocks.NewMockKeystore()
	ks.CreateKeyFunc = func(*types.KeyAttributes) (types.KeyRef, error) {
		return nil, &types.KeystoreError{Op: "create", Message: "token removed"}
	}
	svc := newTestService(t, ks)

	_, err := svc.Sign([]byte("msg"))
	require.ErrorIs(t, err, enclave.ErrKeyUnavailable)

	calls := ks.KeystoreCalls()
	_, err = svc.Decrypt([]byte("data"))
	assert.ErrorIs(t, err, enclave.ErrKeyUnavailable)
	_, err = svc.Encrypt([]byte("data"))
	assert.ErrorIs(t, err, enclave.ErrKeyUnavailable)
	assert.Equal(t, calls, ks.KeystoreCalls(), "terminal failure is cached")
}
