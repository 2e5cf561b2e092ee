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

// Package mocks provides a call-counting in-memory keystore for testing the
// enclave core without hardware.
package mocks

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-enclave/pkg/crypto/ecies"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// PrivateKeyRef is the opaque private key reference handed out by the mock.
type PrivateKeyRef struct {
	Key *ecdsa.PrivateKey
}

// PublicKeyRef is the opaque public key reference handed out by the mock.
type PublicKeyRef struct {
	Key *ecdsa.PublicKey
}

// MockKeystore is an in-memory implementation of types.Keystore for testing.
// By default it behaves like a real software keystore: it generates P-256
// keys, signs into the fixed signature block, and performs real ECIES.
// Every method can be overridden per-test, and every call is counted so
// tests can assert properties like at-most-once creation and the absence of
// keystore calls on client-side validation failures.
type MockKeystore struct {
	mu sync.Mutex

	// Storage keyed by accessGroup + ":" + tag
	keys map[string]*ecdsa.PrivateKey

	// Configurable behavior
	CapabilitiesFunc func() types.Capabilities
	FindKeyFunc      func(*types.KeyQuery) (types.KeyRef, error)
	CreateKeyFunc    func(*types.KeyAttributes) (types.KeyRef, error)
	DeleteKeyFunc    func(*types.KeyQuery) error
	PublicKeyFunc    func(types.KeyRef) (types.KeyRef, error)
	EncryptFunc      func(types.KeyRef, types.EncryptionAlgorithm, []byte) ([]byte, error)
	DecryptFunc      func(types.KeyRef, types.EncryptionAlgorithm, []byte) ([]byte, error)
	SignFunc         func(types.KeyRef, types.SignatureScheme, []byte) ([]byte, int, error)
	VerifyFunc       func(types.KeyRef, types.SignatureScheme, []byte, []byte) error

	// Call tracking
	FindKeyCalls   int
	CreateKeyCalls int
	DeleteKeyCalls []string
	PublicKeyCalls int
	EncryptCalls   int
	DecryptCalls   int
	SignCalls      int
	VerifyCalls    int
	CloseCalls     int
}

// NewMockKeystore creates a new MockKeystore with default behavior.
func NewMockKeystore() *MockKeystore {
	return &MockKeystore{
		keys: make(map[string]*ecdsa.PrivateKey),
	}
}

// KeystoreCalls returns the total number of keystore round trips made.
func (m *MockKeystore) KeystoreCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FindKeyCalls + m.CreateKeyCalls + len(m.DeleteKeyCalls) +
		m.PublicKeyCalls + m.EncryptCalls + m.DecryptCalls + m.SignCalls + m.VerifyCalls
}

// Type returns the backend type.
func (m *MockKeystore) Type() types.BackendType {
	return types.BackendTypeSoftware
}

// Capabilities returns keystore capabilities.
func (m *MockKeystore) Capabilities() types.Capabilities {
	if m.CapabilitiesFunc != nil {
		return m.CapabilitiesFunc()
	}
	return types.NewSoftwareCapabilities()
}

func storageKey(accessGroup string, tag []byte) string {
	return accessGroup + ":" + string(tag)
}

// FindKey returns an existing key or types.ErrKeyNotFound.
func (m *MockKeystore) FindKey(query *types.KeyQuery) (types.KeyRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FindKeyCalls++

	if m.FindKeyFunc != nil {
		return m.FindKeyFunc(query)
	}

	key, ok := m.keys[storageKey(query.AccessGroup, query.Tag)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrKeyNotFound, query.Tag)
	}
	return &PrivateKeyRef{Key: key}, nil
}

// CreateKey generates a new P-256 key or returns types.ErrKeyAlreadyExists.
func (m *MockKeystore) CreateKey(attrs *types.KeyAttributes) (types.KeyRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateKeyCalls++

	if m.CreateKeyFunc != nil {
		return m.CreateKeyFunc(attrs)
	}

	id := storageKey(attrs.AccessGroup, attrs.Tag)
	if _, ok := m.keys[id]; ok {
		return nil, fmt.Errorf("%w: %s", types.ErrKeyAlreadyExists, attrs.Tag)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	m.keys[id] = key
	return &PrivateKeyRef{Key: key}, nil
}

// DeleteKey removes a stored key. Public key deletes are a no-op because the
// mock stores the pair as one entry.
func (m *MockKeystore) DeleteKey(query *types.KeyQuery) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DeleteKeyCalls = append(m.DeleteKeyCalls, query.Class.String())

	if m.DeleteKeyFunc != nil {
		return m.DeleteKeyFunc(query)
	}

	if query.Class == types.KeyClassPrivate {
		delete(m.keys, storageKey(query.AccessGroup, query.Tag))
	}
	return nil
}

// PublicKey derives the public half from a private key reference.
func (m *MockKeystore) PublicKey(priv types.KeyRef) (types.KeyRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PublicKeyCalls++

	if m.PublicKeyFunc != nil {
		return m.PublicKeyFunc(priv)
	}

	ref, ok := priv.(*PrivateKeyRef)
	if !ok {
		return nil, fmt.Errorf("mock: foreign private key reference %T", priv)
	}
	return &PublicKeyRef{Key: &ref.Key.PublicKey}, nil
}

// Encrypt performs real ECIES encryption with the referenced public key.
func (m *MockKeystore) Encrypt(pub types.KeyRef, alg types.EncryptionAlgorithm, plaintext []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.EncryptCalls++

	if m.EncryptFunc != nil {
		return m.EncryptFunc(pub, alg, plaintext)
	}

	ref, ok := pub.(*PublicKeyRef)
	if !ok {
		return nil, fmt.Errorf("mock: foreign public key reference %T", pub)
	}
	return ecies.Encrypt(rand.Reader, ref.Key, plaintext)
}

// Decrypt performs real ECIES decryption with the referenced private key.
func (m *MockKeystore) Decrypt(priv types.KeyRef, alg types.EncryptionAlgorithm, ciphertext []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DecryptCalls++

	if m.DecryptFunc != nil {
		return m.DecryptFunc(priv, alg, ciphertext)
	}

	ref, ok := priv.(*PrivateKeyRef)
	if !ok {
		return nil, fmt.Errorf("mock: foreign private key reference %T", priv)
	}
	plaintext, err := ecies.Decrypt(ref.Key, ciphertext)
	if err != nil {
		return nil, &types.KeystoreError{Op: "decrypt", Message: err.Error()}
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// Sign writes a DER-encoded ECDSA signature into the fixed signature block
// and reports the written length.
func (m *MockKeystore) Sign(priv types.KeyRef, scheme types.SignatureScheme, message []byte) ([]byte, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SignCalls++

	if m.SignFunc != nil {
		return m.SignFunc(priv, scheme, message)
	}

	ref, ok := priv.(*PrivateKeyRef)
	if !ok {
		return nil, 0, fmt.Errorf("mock: foreign private key reference %T", priv)
	}

	digest := sha256.Sum256(message)
	der, err := ecdsa.SignASN1(rand.Reader, ref.Key, digest[:])
	if err != nil {
		return nil, 0, &types.KeystoreError{Op: "sign", Message: err.Error()}
	}

	block := make([]byte, types.SignatureBlockSize)
	copy(block, der)
	return block, len(der), nil
}

// Verify checks a DER-encoded ECDSA signature, returning
// types.ErrVerificationMismatch on a mismatch.
func (m *MockKeystore) Verify(pub types.KeyRef, scheme types.SignatureScheme, message, signature []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.VerifyCalls++

	if m.VerifyFunc != nil {
		return m.VerifyFunc(pub, scheme, message, signature)
	}

	ref, ok := pub.(*PublicKeyRef)
	if !ok {
		return fmt.Errorf("mock: foreign public key reference %T", pub)
	}

	digest := sha256.Sum256(message)
	if !ecdsa.VerifyASN1(ref.Key, digest[:], signature) {
		return types.ErrVerificationMismatch
	}
	return nil
}

// Close records the call and returns nil.
func (m *MockKeystore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	return nil
}
