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
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/ThalesGroup/crypto11"
	"github.com/jeremyhahn/go-enclave/pkg/crypto/ecies"
	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/types"
	"github.com/miekg/pkcs11"
)

// Derived secret length for ECIES: the full P-256 x-coordinate.
const sharedSecretLen = 32

// privateKeyRef is the opaque private key reference for token-held keys.
// The signer wraps the token object; the private scalar never leaves the
// HSM.
type privateKeyRef struct {
	signer crypto.Signer
	label  []byte
	auth   *types.AuthContext
}

// publicKeyRef is the opaque public key reference.
type publicKeyRef struct {
	key *ecdsa.PublicKey
}

// Keystore is a hardware-backed implementation of types.Keystore on a
// PKCS#11 token. Thread-safe.
type Keystore struct {
	config *Config
	logger *logging.Logger

	// crypto11 context for key pair lifecycle and signing
	ctx *crypto11.Context

	// raw module, session for derive and class-scoped deletion
	module  *pkcs11.Ctx
	session pkcs11.SessionHandle

	mu     sync.Mutex
	closed bool
}

// New creates a keystore bound to the configured PKCS#11 token. The token
// session is established eagerly so misconfiguration fails at startup, not
// on the first key operation.
func New(config *Config) (*Keystore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	ctx, err := crypto11.Configure(&crypto11.Config{
		Path:       config.Library,
		TokenLabel: config.TokenLabel,
		Pin:        config.PIN,
	})
	if err != nil {
		return nil, fmt.Errorf("pkcs11: failed to configure token context: %w", err)
	}

	k := &Keystore{
		config: config,
		logger: logger,
		ctx:    ctx,
	}
	if err := k.openRawSession(); err != nil {
		ctx.Close()
		return nil, err
	}

	logger.Debugf("pkcs11: session established with token %q", config.TokenLabel)
	return k, nil
}

// openRawSession opens the low-level module session used for ECDH derive
// and object deletion, operations crypto11 does not expose.
func (k *Keystore) openRawSession() error {
	module := pkcs11.New(k.config.Library)
	if module == nil {
		return fmt.Errorf("%w: %s", ErrLibraryNotFound, k.config.Library)
	}

	if err := module.Initialize(); err != nil {
		// crypto11 already initialized the module within this process
		if err != pkcs11.Error(pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED) {
			return ckrError("initialize", err)
		}
	}

	slot, err := k.findSlot(module)
	if err != nil {
		return err
	}

	session, err := module.OpenSession(slot, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		return ckrError("open-session", err)
	}

	if k.config.PIN != "" {
		if err := module.Login(session, pkcs11.CKU_USER, k.config.PIN); err != nil {
			if err != pkcs11.Error(pkcs11.CKR_USER_ALREADY_LOGGED_IN) {
				module.CloseSession(session)
				return ckrError("login", err)
			}
		}
	}

	k.module = module
	k.session = session
	return nil
}

// findSlot locates the token slot by configured number or token label.
func (k *Keystore) findSlot(module *pkcs11.Ctx) (uint, error) {
	slots, err := module.GetSlotList(true)
	if err != nil {
		return 0, ckrError("slot-list", err)
	}
	if len(slots) == 0 {
		return 0, ErrTokenNotFound
	}

	if k.config.Slot != nil {
		return uint(*k.config.Slot), nil
	}

	for _, slot := range slots {
		info, err := module.GetTokenInfo(slot)
		if err != nil {
			continue
		}
		if info.Label == k.config.TokenLabel {
			return slot, nil
		}
	}
	return 0, fmt.Errorf("%w: no slot holds token %q", ErrTokenNotFound, k.config.TokenLabel)
}

// Type returns the backend type identifier.
func (k *Keystore) Type() types.BackendType {
	return types.BackendTypePKCS11
}

// Capabilities returns what this backend supports. The token holds the
// keys and enforces its PIN policy on protected operations.
func (k *Keystore) Capabilities() types.Capabilities {
	return types.NewHardwareCapabilities()
}

// keyLabel builds the CKA_LABEL/CKA_ID value scoping a key to its access
// group.
func keyLabel(accessGroup string, tag []byte) []byte {
	return []byte(fmt.Sprintf("%s/%s", accessGroup, tag))
}

// FindKey looks up an existing key pair on the token by label.
func (k *Keystore) FindKey(query *types.KeyQuery) (types.KeyRef, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil, types.ErrKeystoreClosed
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	label := keyLabel(query.AccessGroup, query.Tag)
	signer, err := k.ctx.FindKeyPair(nil, label)
	if err != nil {
		return nil, ckrError("find", err)
	}
	if signer == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrKeyNotFound, query.Tag)
	}

	if query.Class == types.KeyClassPublic {
		pub, ok := signer.Public().(*ecdsa.PublicKey)
		if !ok {
			return nil, &types.KeystoreError{Op: "find", Message: "token key is not ECDSA"}
		}
		return &publicKeyRef{key: pub}, nil
	}

	return &privateKeyRef{signer: signer, label: label, auth: query.Auth}, nil
}

// CreateKey generates a new ECDSA P-256 key pair on the token. The token
// guarantees creation atomicity across processes.
func (k *Keystore) CreateKey(attrs *types.KeyAttributes) (types.KeyRef, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil, types.ErrKeystoreClosed
	}
	if err := attrs.Validate(); err != nil {
		return nil, err
	}

	label := keyLabel(attrs.AccessGroup, attrs.Tag)

	existing, err := k.ctx.FindKeyPair(nil, label)
	if err != nil {
		return nil, ckrError("create", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrKeyAlreadyExists, attrs.Tag)
	}

	signer, err := k.ctx.GenerateECDSAKeyPairWithLabel(label, label, elliptic.P256())
	if err != nil {
		return nil, ckrError("create", err)
	}

	k.logger.Debugf("pkcs11: generated key pair %s on token %q", label, k.config.TokenLabel)
	return &privateKeyRef{signer: signer, label: label, auth: attrs.Auth}, nil
}

// DeleteKey destroys the selected half of the key pair on the token.
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

	class := uint(pkcs11.CKO_PRIVATE_KEY)
	if query.Class == types.KeyClassPublic {
		class = pkcs11.CKO_PUBLIC_KEY
	}

	handles, err := k.findObjects([]*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, class),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, keyLabel(query.AccessGroup, query.Tag)),
	})
	if err != nil {
		return ckrError("delete", err)
	}

	for _, handle := range handles {
		if err := k.module.DestroyObject(k.session, handle); err != nil {
			return ckrError("delete", err)
		}
	}
	if len(handles) > 0 {
		k.logger.Debugf("pkcs11: destroyed %d %s object(s) for %s",
			len(handles), query.Class, query.Tag)
	}
	return nil
}

// PublicKey derives the public half from a private key reference.
func (k *Keystore) PublicKey(priv types.KeyRef) (types.KeyRef, error) {
	ref, err := k.privateRef(priv)
	if err != nil {
		return nil, err
	}
	pub, ok := ref.signer.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, &types.KeystoreError{Op: "public-key", Message: "token key is not ECDSA"}
	}
	return &publicKeyRef{key: pub}, nil
}

// Encrypt encrypts plaintext to the referenced public key using ECIES.
// Only the public key is involved; no token operation is needed.
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

// Decrypt recovers ECIES plaintext. The key agreement runs inside the
// token via CKM_ECDH1_DERIVE; only the derived shared secret leaves the
// HSM, never the private key.
func (k *Keystore) Decrypt(priv types.KeyRef, alg types.EncryptionAlgorithm, ciphertext []byte) ([]byte, error) {
	if alg != types.EncryptionECIESX963AESGCM {
		return nil, fmt.Errorf("%w: encryption algorithm %q", types.ErrNotSupported, alg)
	}
	ref, err := k.privateRef(priv)
	if err != nil {
		return nil, err
	}

	ephemeralPub, err := ecies.EphemeralPublicKey(ciphertext)
	if err != nil {
		return nil, &types.KeystoreError{Op: "decrypt", Message: err.Error()}
	}

	sharedSecret, err := k.deriveSharedSecret(ref.label, ephemeralPub)
	if err != nil {
		return nil, err
	}

	plaintext, err := ecies.DecryptWithSecret(sharedSecret, ciphertext)
	if err != nil {
		return nil, &types.KeystoreError{Op: "decrypt", Message: err.Error()}
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	k.touchAuth(ref)
	return plaintext, nil
}

// deriveSharedSecret performs ECDH between the token-held private key and
// the ephemeral public point, returning the raw x-coordinate.
func (k *Keystore) deriveSharedSecret(label, ephemeralPub []byte) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil, types.ErrKeystoreClosed
	}

	handles, err := k.findObjects([]*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
	})
	if err != nil {
		return nil, ckrError("derive", err)
	}
	if len(handles) == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrKeyNotFound, label)
	}

	params := pkcs11.NewECDH1DeriveParams(pkcs11.CKD_NULL, nil, ephemeralPub)
	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_ECDH1_DERIVE, params)}

	// Session-only, extractable secret; destroyed as soon as it is read.
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_SECRET_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_GENERIC_SECRET),
		pkcs11.NewAttribute(pkcs11.CKA_VALUE_LEN, sharedSecretLen),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, false),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, false),
		pkcs11.NewAttribute(pkcs11.CKA_EXTRACTABLE, true),
	}

	derived, err := k.module.DeriveKey(k.session, mech, handles[0], template)
	if err != nil {
		return nil, ckrError("derive", err)
	}
	defer k.module.DestroyObject(k.session, derived)

	attrs, err := k.module.GetAttributeValue(k.session, derived, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_VALUE, nil),
	})
	if err != nil {
		return nil, ckrError("derive", err)
	}
	return attrs[0].Value, nil
}

// Sign signs the SHA-256 digest of the message on the token. The token
// enforces its PIN policy before using the key. The DER-encoded signature
// is returned in a fixed-size block with the number of bytes written.
func (k *Keystore) Sign(priv types.KeyRef, scheme types.SignatureScheme, message []byte) ([]byte, int, error) {
	if scheme != types.SignatureECDSASHA256 {
		return nil, 0, fmt.Errorf("%w: signature scheme %q", types.ErrInvalidSigningParams, scheme)
	}
	ref, err := k.privateRef(priv)
	if err != nil {
		return nil, 0, err
	}

	digest := sha256.Sum256(message)
	der, err := ref.signer.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return nil, 0, ckrError("sign", err)
	}
	if len(der) > types.SignatureBlockSize {
		return nil, 0, fmt.Errorf("%w: signature of %d bytes exceeds block",
			types.ErrInvalidSigningParams, len(der))
	}

	block := make([]byte, types.SignatureBlockSize)
	copy(block, der)
	k.touchAuth(ref)
	return block, len(der), nil
}

// Verify checks a DER-encoded ECDSA signature locally against the public
// key. Verification never touches the token.
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

// Close releases the token session and module. Safe to call twice.
func (k *Keystore) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true

	if k.module != nil {
		k.module.Logout(k.session)
		k.module.CloseSession(k.session)
		k.module.Destroy()
	}
	if k.ctx != nil {
		return k.ctx.Close()
	}
	return nil
}

// touchAuth records a completed protected operation: the token satisfied
// its policy, so the reuse window starts now.
func (k *Keystore) touchAuth(ref *privateKeyRef) {
	if ref.auth != nil {
		ref.auth.MarkAuthenticated()
	}
}

// findObjects runs a complete find cycle for the given template. Caller
// must hold k.mu.
func (k *Keystore) findObjects(template []*pkcs11.Attribute) ([]pkcs11.ObjectHandle, error) {
	if err := k.module.FindObjectsInit(k.session, template); err != nil {
		return nil, err
	}
	handles, _, err := k.module.FindObjects(k.session, 16)
	if ferr := k.module.FindObjectsFinal(k.session); err == nil {
		err = ferr
	}
	return handles, err
}

func (k *Keystore) privateRef(priv types.KeyRef) (*privateKeyRef, error) {
	ref, ok := priv.(*privateKeyRef)
	if !ok || ref.signer == nil {
		return nil, fmt.Errorf("pkcs11: foreign private key reference %T", priv)
	}
	return ref, nil
}

func (k *Keystore) publicRef(pub types.KeyRef) (*publicKeyRef, error) {
	ref, ok := pub.(*publicKeyRef)
	if !ok || ref.key == nil {
		return nil, fmt.Errorf("pkcs11: foreign public key reference %T", pub)
	}
	return ref, nil
}
