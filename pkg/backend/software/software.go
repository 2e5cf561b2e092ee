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

// Package software provides a pure-software implementation of the keystore
// interface. Keys are ECDSA P-256 pairs persisted through a storage.Backend
// as PKCS#8 (optionally passphrase-encrypted) and PKIX DER.
//
// This backend has no secure element: user-presence policies are simulated
// by honoring the authentication context's reuse window and logging where a
// hardware backend would display the OS prompt. It exists for development,
// testing, and hosts without a PKCS#11 token.
package software

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-enclave/pkg/crypto/ecies"
	"github.com/jeremyhahn/go-enclave/pkg/encoding"
	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/storage"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// storageKey formats: keys/<accessGroup>/<tag>.p8 and .pub
const (
	privateKeySuffix = ".p8"
	publicKeySuffix  = ".pub"
)

// privateKeyRef is the opaque private key reference handed out by this
// backend. It carries the policy and authentication context captured at
// resolution so protected operations can enforce the reuse window.
type privateKeyRef struct {
	key    *ecdsa.PrivateKey
	policy types.AccessPolicy
	auth   *types.AuthContext
}

// publicKeyRef is the opaque public key reference.
type publicKeyRef struct {
	key *ecdsa.PublicKey
}

// Keystore is a software implementation of types.Keystore backed by a
// storage.Backend. Thread-safe.
type Keystore struct {
	store    storage.Backend
	password types.Password
	logger   *logging.Logger

	mu     sync.RWMutex
	closed bool
}

// New creates a software keystore with the given configuration.
func New(config *Config) (*Keystore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	return &Keystore{
		store:    config.KeyStorage,
		password: config.Password,
		logger:   logger,
	}, nil
}

// Type returns the backend type identifier.
func (k *Keystore) Type() types.BackendType {
	return types.BackendTypeSoftware
}

// Capabilities returns what this backend supports. HardwareBacked is always
// false; user presence is simulated, not enforced.
func (k *Keystore) Capabilities() types.Capabilities {
	return types.NewSoftwareCapabilities()
}

func privateStorageKey(accessGroup string, tag []byte) string {
	return fmt.Sprintf("keys/%s/%s%s", accessGroup, tag, privateKeySuffix)
}

func publicStorageKey(accessGroup string, tag []byte) string {
	return fmt.Sprintf("keys/%s/%s%s", accessGroup, tag, publicKeySuffix)
}

// FindKey looks up an existing key scoped by access group and tag. Returns
// types.ErrKeyNotFound if no key has been created under that identity.
func (k *Keystore) FindKey(query *types.KeyQuery) (types.KeyRef, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return nil, types.ErrKeystoreClosed
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	switch query.Class {
	case types.KeyClassPublic:
		return k.loadPublicKey(query)
	default:
		return k.loadPrivateKey(query)
	}
}

func (k *Keystore) loadPrivateKey(query *types.KeyQuery) (types.KeyRef, error) {
	der, err := k.store.Get(privateStorageKey(query.AccessGroup, query.Tag))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", types.ErrKeyNotFound, query.Tag)
		}
		return nil, &types.KeystoreError{Op: "find", Message: err.Error()}
	}

	key, err := encoding.DecodePKCS8(der, k.passwordBytes())
	if err != nil {
		return nil, &types.KeystoreError{Op: "find", Message: err.Error()}
	}

	// Stored keys carry no policy metadata; found keys are treated as
	// protected by the reference policy.
	return &privateKeyRef{
		key:    key,
		policy: types.DefaultAccessPolicy(),
		auth:   query.Auth,
	}, nil
}

func (k *Keystore) loadPublicKey(query *types.KeyQuery) (types.KeyRef, error) {
	der, err := k.store.Get(publicStorageKey(query.AccessGroup, query.Tag))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", types.ErrKeyNotFound, query.Tag)
		}
		return nil, &types.KeystoreError{Op: "find", Message: err.Error()}
	}

	key, err := encoding.DecodePublicKeyPKIX(der)
	if err != nil {
		return nil, &types.KeystoreError{Op: "find", Message: err.Error()}
	}
	return &publicKeyRef{key: key}, nil
}

// CreateKey generates a new ECDSA P-256 key pair and persists both halves.
// Returns types.ErrKeyAlreadyExists if a key already exists under the same
// access group and tag.
func (k *Keystore) CreateKey(attrs *types.KeyAttributes) (types.KeyRef, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil, types.ErrKeystoreClosed
	}
	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	if attrs.TokenBound {
		return nil, fmt.Errorf("%w: software keystore cannot bind keys to a token", types.ErrNotSupported)
	}

	privKey := privateStorageKey(attrs.AccessGroup, attrs.Tag)
	exists, err := k.store.Exists(privKey)
	if err != nil {
		return nil, &types.KeystoreError{Op: "create", Message: err.Error()}
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", types.ErrKeyAlreadyExists, attrs.Tag)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, &types.KeystoreError{Op: "create", Message: err.Error()}
	}

	privDER, err := encoding.EncodePKCS8(key, k.passwordBytes())
	if err != nil {
		return nil, &types.KeystoreError{Op: "create", Message: err.Error()}
	}
	pubDER, err := encoding.EncodePublicKeyPKIX(&key.PublicKey)
	if err != nil {
		return nil, &types.KeystoreError{Op: "create", Message: err.Error()}
	}

	if err := k.store.Put(privKey, privDER); err != nil {
		return nil, &types.KeystoreError{Op: "create", Message: err.Error()}
	}
	if err := k.store.Put(publicStorageKey(attrs.AccessGroup, attrs.Tag), pubDER); err != nil {
		return nil, &types.KeystoreError{Op: "create", Message: err.Error()}
	}

	k.logger.Debugf("software: created key pair %s in group %s", attrs.Tag, attrs.AccessGroup)

	return &privateKeyRef{
		key:    key,
		policy: attrs.Policy,
		auth:   attrs.Auth,
	}, nil
}

// DeleteKey removes the selected half of the key pair from storage.
// Deleting an absent key is not an error.
func (k *Keystore) DeleteKey(query *types.KeyQuery) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return types.ErrKeystoreClosed
	}
	if err := query.Validate(); err != nil {
		return err
	}

	storageKey := privateStorageKey(query.AccessGroup, query.Tag)
	if query.Class == types.KeyClassPublic {
		storageKey = publicStorageKey(query.AccessGroup, query.Tag)
	}

	if err := k.store.Delete(storageKey); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return &types.KeystoreError{Op: "delete", Message: err.Error()}
	}

	k.logger.Debugf("software: deleted %s key %s in group %s", query.Class, query.Tag, query.AccessGroup)
	return nil
}

// PublicKey derives the public half from a private key reference.
func (k *Keystore) PublicKey(priv types.KeyRef) (types.KeyRef, error) {
	ref, err := k.privateRef(priv)
	if err != nil {
		return nil, err
	}
	return &publicKeyRef{key: &ref.key.PublicKey}, nil
}

// Encrypt encrypts plaintext to the referenced public key using ECIES.
// Encryption needs no authentication: only the public key is involved.
func (k *Keystore) Encrypt(pub types.KeyRef, alg types.EncryptionAlgorithm, plaintext []byte) ([]byte, error) {
	if alg != types.EncryptionECIESX963AESGCM {
		return nil, fmt.Errorf("%w: encryption algorithm %q", types.ErrNotSupported, alg)
	}
	ref, err := k.publicRef(pub)
	if err != nil {
		return nil, err
	}
	return ecies.Encrypt(rand.Reader, ref.key, plaintext)
}

// Decrypt recovers plaintext with the referenced private key, enforcing the
// key's user-presence policy first. A successful decrypt of an empty
// message returns a non-nil empty slice.
func (k *Keystore) Decrypt(priv types.KeyRef, alg types.EncryptionAlgorithm, ciphertext []byte) ([]byte, error) {
	if alg != types.EncryptionECIESX963AESGCM {
		return nil, fmt.Errorf("%w: encryption algorithm %q", types.ErrNotSupported, alg)
	}
	ref, err := k.privateRef(priv)
	if err != nil {
		return nil, err
	}
	if err := k.authenticate(ref, "decrypt"); err != nil {
		return nil, err
	}

	plaintext, err := ecies.Decrypt(ref.key, ciphertext)
	if err != nil {
		return nil, &types.KeystoreError{Op: "decrypt", Message: err.Error()}
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// Sign signs the SHA-256 digest of the message, enforcing the key's
// user-presence policy first. The DER-encoded signature is returned in a
// fixed-size block along with the number of bytes written.
func (k *Keystore) Sign(priv types.KeyRef, scheme types.SignatureScheme, message []byte) ([]byte, int, error) {
	if scheme != types.SignatureECDSASHA256 {
		return nil, 0, fmt.Errorf("%w: signature scheme %q", types.ErrInvalidSigningParams, scheme)
	}
	ref, err := k.privateRef(priv)
	if err != nil {
		return nil, 0, err
	}
	if err := k.authenticate(ref, "sign"); err != nil {
		return nil, 0, err
	}

	digest := sha256.Sum256(message)
	der, err := ecdsa.SignASN1(rand.Reader, ref.key, digest[:])
	if err != nil {
		return nil, 0, &types.KeystoreError{Op: "sign", Message: err.Error()}
	}
	if len(der) > types.SignatureBlockSize {
		return nil, 0, fmt.Errorf("%w: signature of %d bytes exceeds block",
			types.ErrInvalidSigningParams, len(der))
	}

	block := make([]byte, types.SignatureBlockSize)
	copy(block, der)
	return block, len(der), nil
}

// Verify checks a DER-encoded ECDSA signature over the SHA-256 digest of
// the message. Returns types.ErrVerificationMismatch when the signature does
// not verify; verification never prompts.
func (k *Keystore) Verify(pub types.KeyRef, scheme types.SignatureScheme, message, signature []byte) error {
	if scheme != types.SignatureECDSASHA256 {
		return fmt.Errorf("%w: signature scheme %q", types.ErrInvalidSigningParams, scheme)
	}
	ref, err := k.publicRef(pub)
	if err != nil {
		return err
	}

	digest := sha256.Sum256(message)
	if !ecdsa.VerifyASN1(ref.key, digest[:], signature) {
		return types.ErrVerificationMismatch
	}
	return nil
}

// Close marks the keystore closed and clears the at-rest password from
// memory. The underlying storage backend is not closed; the caller owns it.
func (k *Keystore) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true
	if k.password != nil {
		k.password.Clear()
	}
	return nil
}

// authenticate simulates the OS user-presence prompt: when the key's policy
// requires presence and the reuse window has lapsed, the prompt is logged
// and the context marked authenticated. A hardware backend blocks here.
func (k *Keystore) authenticate(ref *privateKeyRef, op string) error {
	if !ref.policy.Flags.Has(types.AccessUserPresence) {
		return nil
	}
	if ref.auth == nil {
		return &types.KeystoreError{
			Op:      op,
			Message: "key requires user presence but no authentication context was provided",
		}
	}
	if ref.auth.NeedsAuthentication() {
		k.logger.Infof("software: simulating user-presence prompt %q (session %s)",
			ref.auth.Prompt, ref.auth.SessionID)
		ref.auth.MarkAuthenticated()
	}
	return nil
}

func (k *Keystore) privateRef(priv types.KeyRef) (*privateKeyRef, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return nil, types.ErrKeystoreClosed
	}
	ref, ok := priv.(*privateKeyRef)
	if !ok || ref.key == nil {
		return nil, fmt.Errorf("software: foreign private key reference %T", priv)
	}
	return ref, nil
}

func (k *Keystore) publicRef(pub types.KeyRef) (*publicKeyRef, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return nil, types.ErrKeystoreClosed
	}
	ref, ok := pub.(*publicKeyRef)
	if !ok || ref.key == nil {
		return nil, fmt.Errorf("software: foreign public key reference %T", pub)
	}
	return ref, nil
}

func (k *Keystore) passwordBytes() []byte {
	if k.password == nil {
		return nil
	}
	return k.password.Bytes()
}
