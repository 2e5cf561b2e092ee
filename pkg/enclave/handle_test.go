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
	"sync"
	"testing"

	"github.com/jeremyhahn/go-enclave/pkg/enclave"
	"github.com/jeremyhahn/go-enclave/pkg/enclave/mocks"
	"github.com/jeremyhahn/go-enclave/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIdentity() enclave.Identity {
	return enclave.Identity{
		Tag:        []byte("com.example.key1"),
		Identifier: "com.example.app",
		Group:      "shared",
	}
}

func newTestHandle(ks types.Keystore) *enclave.KeyHandle {
	return enclave.NewKeyHandle(ks, testIdentity(), types.DefaultAccessPolicy(),
		types.NewAuthContext("test prompt"), nil)
}

func TestIdentity_QualifiedGroup(t *testing.T) {
	identity := testIdentity()
	assert.Equal(t, "com.example.app.shared", identity.QualifiedGroup())
}

func TestIdentity_Validate(t *testing.T) {
	require.NoError(t, testIdentity().Validate())

	noTag := testIdentity()
	noTag.Tag = nil
	assert.ErrorIs(t, noTag.Validate(), enclave.ErrInvalidIdentity)

	noIdentifier := testIdentity()
	noIdentifier.Identifier = ""
	assert.ErrorIs(t, noIdentifier.Validate(), enclave.ErrInvalidIdentity)

	noGroup := testIdentity()
	noGroup.Group = ""
	assert.ErrorIs(t, noGroup.Validate(), enclave.ErrInvalidIdentity)
}

// TestKeyHandle_CreatesWhenAbsent verifies the find-or-create path: a
// missing key triggers exactly one lookup followed by one creation.
func TestKeyHandle_CreatesWhenAbsent(t *testing.T) {
	ks := mocks.NewMockKeystore()
	handle := newTestHandle(ks)

	ref, err := handle.PrivateKey()
	require.NoError(t, err)
	require.NotNil(t, ref)

	assert.Equal(t, 1, ks.FindKeyCalls)
	assert.Equal(t, 1, ks.CreateKeyCalls)
}

// TestKeyHandle_AtMostOnceCreation verifies repeated resolution reuses the
// cached reference without further keystore round trips.
func TestKeyHandle_AtMostOnceCreation(t *testing.T) {
	ks := mocks.NewMockKeystore()
	handle := newTestHandle(ks)

	first, err := handle.PrivateKey()
	require.NoError(t, err)

	second, err := handle.PrivateKey()
	require.NoError(t, err)

	assert.Same(t, first.(*mocks.PrivateKeyRef), second.(*mocks.PrivateKeyRef))
	assert.Equal(t, 1, ks.CreateKeyCalls)
	assert.Equal(t, 1, ks.FindKeyCalls)
}

// TestKeyHandle_FindsExisting verifies an existing key is reused, not
// recreated.
func TestKeyHandle_FindsExisting(t *testing.T) {
	ks := mocks.NewMockKeystore()

	// A previous process lifetime created the key.
	warmup := newTestHandle(ks)
	_, err := warmup.PrivateKey()
	require.NoError(t, err)

	ks2 := ks // same durable store, fresh handle
	handle := newTestHandle(ks2)
	_, err = handle.PrivateKey()
	require.NoError(t, err)

	assert.Equal(t, 1, ks.CreateKeyCalls, "second handle must find, not create")
	assert.Equal(t, 2, ks.FindKeyCalls)
}

// TestKeyHandle_RetriesFindOnCreateRace verifies the already-exists
// creation failure is treated as retryable: lookup is re-attempted once.
func TestKeyHandle_RetriesFindOnCreateRace(t *testing.T) {
	ks := mocks.NewMockKeystore()

	// Simulate another process winning the creation race between our
	// lookup and our create.
	raceKey := mocks.NewMockKeystore()
	seeded := newTestHandle(raceKey)
	_, err := seeded.PrivateKey()
	require.NoError(t, err)

	finds := 0
	ks.FindKeyFunc = func(q *types.KeyQuery) (types.KeyRef, error) {
		finds++
		if finds == 1 {
			return nil, types.ErrKeyNotFound
		}
		return raceKey.FindKey(q)
	}
	ks.CreateKeyFunc = func(*types.KeyAttributes) (types.KeyRef, error) {
		return nil, types.ErrKeyAlreadyExists
	}

	handle := newTestHandle(ks)
	ref, err := handle.PrivateKey()
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, 2, finds, "lookup must be retried exactly once")
}

// TestKeyHandle_ResolutionFailureIsTerminal verifies a failed resolution is
// cached: subsequent calls short-circuit without touching the keystore.
func TestKeyHandle_ResolutionFailureIsTerminal(t *testing.T) {
	ks := mocks.NewMockKeystore()
	kerr := &types.KeystoreError{Op: "create", Message: "token removed", Status: types.Status(0x32)}
	ks.CreateKeyFunc = func(*types.KeyAttributes) (types.KeyRef, error) {
		return nil, kerr
	}

	handle := newTestHandle(ks)

	_, err := handle.PrivateKey()
	require.Error(t, err)

	callsAfterFirst := ks.KeystoreCalls()
	_, err2 := handle.PrivateKey()
	require.Error(t, err2)
	assert.Equal(t, err, err2, "failure must be cached, not recomputed")
	assert.Equal(t, callsAfterFirst, ks.KeystoreCalls(), "no automatic retry")
}

// TestKeyHandle_PublicKeyDerivedAndCached verifies the public key is
// derived from the private key once and cached.
func TestKeyHandle_PublicKeyDerivedAndCached(t *testing.T) {
	ks := mocks.NewMockKeystore()
	handle := newTestHandle(ks)

	pub, err := handle.PublicKey()
	require.NoError(t, err)
	require.NotNil(t, pub)

	pub2, err := handle.PublicKey()
	require.NoError(t, err)
	assert.Same(t, pub.(*mocks.PublicKeyRef), pub2.(*mocks.PublicKeyRef))
	assert.Equal(t, 1, ks.PublicKeyCalls)
	assert.Equal(t, 1, ks.CreateKeyCalls, "public derivation must not recreate the key")
}

// TestKeyHandle_PublicKeyFailsWhenPrivateFails verifies public resolution
// returns an error only when private resolution failed.
func TestKeyHandle_PublicKeyFailsWhenPrivateFails(t *testing.T) {
	ks := mocks.NewMockKeystore()
	ks.CreateKeyFunc = func(*types.KeyAttributes) (types.KeyRef, error) {
		return nil, &types.KeystoreError{Op: "create", Message: "no token"}
	}

	handle := newTestHandle(ks)
	_, err := handle.PublicKey()
	require.Error(t, err)
}

// TestKeyHandle_DeleteThenFreshHandleCreates verifies deletion is terminal
// for the keystore entry: a fresh handle with the same identity creates a
// new key rather than finding the old one.
func TestKeyHandle_DeleteThenFreshHandleCreates(t *testing.T) {
	ks := mocks.NewMockKeystore()

	handle := newTestHandle(ks)
	_, err := handle.PrivateKey()
	require.NoError(t, err)
	assert.Equal(t, 1, ks.CreateKeyCalls)

	require.NoError(t, handle.DeletePrivateKey())
	require.NoError(t, handle.DeletePublicKey())

	fresh := newTestHandle(ks)
	_, err = fresh.PrivateKey()
	require.NoError(t, err)
	assert.Equal(t, 2, ks.CreateKeyCalls, "post-delete resolution must create, not find")
}

// TestKeyHandle_DeleteDoesNotClearCache documents the stale-cache hazard:
// a handle that resolved before deletion keeps returning the cached
// reference without touching the keystore.
func TestKeyHandle_DeleteDoesNotClearCache(t *testing.T) {
	ks := mocks.NewMockKeystore()
	handle := newTestHandle(ks)

	ref, err := handle.PrivateKey()
	require.NoError(t, err)

	require.NoError(t, handle.DeletePrivateKey())

	stale, err := handle.PrivateKey()
	require.NoError(t, err)
	assert.Same(t, ref.(*mocks.PrivateKeyRef), stale.(*mocks.PrivateKeyRef))
}

// TestKeyHandle_ConcurrentFirstResolution verifies concurrent first calls
// are serialized into a single creation.
func TestKeyHandle_ConcurrentFirstResolution(t *testing.T) {
	ks := mocks.NewMockKeystore()
	handle := newTestHandle(ks)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := handle.PrivateKey()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ks.CreateKeyCalls)
}
