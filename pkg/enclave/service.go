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

package enclave

import (
	"errors"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/metrics"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// Config provides configuration for creating a new Service. The four
// strings are the entire configuration surface of the core; they are
// validated only for non-emptiness.
type Config struct {
	// Tag is the application-scoped key label, e.g. "com.example.key1".
	Tag string

	// Identifier is the application/bundle scope, e.g. "com.example.app".
	Identifier string

	// Group is the sharing scope within the identifier, e.g. "shared".
	Group string

	// Prompt is the text shown by the user-presence authentication dialog.
	Prompt string

	// Keystore is the backend holding the key material. Required.
	Keystore types.Keystore

	// Policy is the access control policy bound to the key at creation.
	// Defaults to DefaultAccessPolicy.
	Policy *types.AccessPolicy

	// ReuseWindow overrides the authentication reuse duration.
	// Defaults to types.DefaultReuseWindow.
	ReuseWindow time.Duration

	// Logger receives resolution and operation logs. Defaults to the
	// package default logger.
	Logger *logging.Logger
}

// Service exposes encrypt, decrypt, sign and verify over the key pair named
// by its identity. Operations are stateless; all key state lives in the
// underlying KeyHandle, which resolves the pair lazily on first use and
// then caches it for the lifetime of the service instance.
//
// Once resolution has failed, every operation short-circuits to
// ErrKeyUnavailable; construct a new Service to retry.
type Service struct {
	handle   *KeyHandle
	keystore types.Keystore
	logger   *logging.Logger
}

// NewService creates a service bound to the given identity and keystore.
// No keystore round trip is made until the first cryptographic call.
func NewService(config *Config) (*Service, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidIdentity)
	}
	if config.Keystore == nil {
		return nil, ErrKeystoreRequired
	}
	if config.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidIdentity)
	}

	identity := Identity{
		Tag:        []byte(config.Tag),
		Identifier: config.Identifier,
		Group:      config.Group,
	}
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	policy := types.DefaultAccessPolicy()
	if config.Policy != nil {
		policy = *config.Policy
	}

	auth := types.NewAuthContext(config.Prompt)
	if config.ReuseWindow > 0 {
		auth.ReuseWindow = config.ReuseWindow
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	return &Service{
		handle:   NewKeyHandle(config.Keystore, identity, policy, auth, logger),
		keystore: config.Keystore,
		logger:   logger,
	}, nil
}

// Handle returns the underlying key handle for lifecycle operations
// (deletion, identity inspection).
func (s *Service) Handle() *KeyHandle {
	return s.handle
}

// HardwareBacked reports whether the key material is held in secure
// hardware. False means the keystore fell back to software-backed keys,
// which do not provide equivalent security.
func (s *Service) HardwareBacked() bool {
	return s.keystore.Capabilities().HardwareBacked
}

// Encrypt encrypts plaintext to the service's public key using the ECIES
// cofactor variable-IV scheme. Fails with ErrKeyUnavailable if the public
// key cannot be resolved; encryption cannot proceed without it.
func (s *Service) Encrypt(plaintext []byte) ([]byte, error) {
	backend := string(s.keystore.Type())
	defer metrics.ObserveDuration(metrics.OpEncrypt, backend, time.Now())

	pub, err := s.handle.PublicKey()
	if err != nil {
		metrics.RecordError(metrics.OpEncrypt, backend, "key_unavailable")
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	ciphertext, err := s.keystore.Encrypt(pub, types.EncryptionECIESX963AESGCM, plaintext)
	if err != nil {
		metrics.RecordOperation(metrics.OpEncrypt, backend, metrics.StatusError)
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	metrics.RecordOperation(metrics.OpEncrypt, backend, metrics.StatusSuccess)
	return ciphertext, nil
}

// Decrypt recovers the plaintext from an ECIES ciphertext using the
// service's private key. The first call may block on a user-presence
// prompt. A decrypt that yields no data is reported as
// ErrDecryptionFailed, never as an empty plaintext: a cancelled prompt or
// invalid ciphertext must remain distinguishable from a legitimately empty
// message.
func (s *Service) Decrypt(ciphertext []byte) ([]byte, error) {
	backend := string(s.keystore.Type())
	defer metrics.ObserveDuration(metrics.OpDecrypt, backend, time.Now())

	priv, err := s.handle.PrivateKey()
	if err != nil {
		metrics.RecordError(metrics.OpDecrypt, backend, "key_unavailable")
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	plaintext, err := s.keystore.Decrypt(priv, types.EncryptionECIESX963AESGCM, ciphertext)
	if err != nil {
		metrics.RecordOperation(metrics.OpDecrypt, backend, metrics.StatusError)
		return nil, err
	}
	if plaintext == nil {
		metrics.RecordOperation(metrics.OpDecrypt, backend, metrics.StatusError)
		return nil, ErrDecryptionFailed
	}

	metrics.RecordOperation(metrics.OpDecrypt, backend, metrics.StatusSuccess)
	return plaintext, nil
}

// Sign signs the message with the service's private key and returns exactly
// the bytes the keystore reports as written out of the fixed signature
// block. Messages longer than types.MaxSignatureInput fail with
// ErrMessageTooLarge before any keystore call is made, so an oversized
// input never costs the user an authentication prompt.
func (s *Service) Sign(message []byte) ([]byte, error) {
	backend := string(s.keystore.Type())

	// Client-side validation runs first: no key resolution, no prompt.
	if len(message) > types.MaxSignatureInput {
		metrics.RecordError(metrics.OpSign, backend, "message_too_large")
		return nil, fmt.Errorf("%w: %d bytes exceeds maximum of %d",
			ErrMessageTooLarge, len(message), types.MaxSignatureInput)
	}

	defer metrics.ObserveDuration(metrics.OpSign, backend, time.Now())

	priv, err := s.handle.PrivateKey()
	if err != nil {
		metrics.RecordError(metrics.OpSign, backend, "key_unavailable")
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	sig, written, err := s.keystore.Sign(priv, types.SignatureECDSASHA256, message)
	if err != nil {
		metrics.RecordOperation(metrics.OpSign, backend, metrics.StatusError)
		if errors.Is(err, types.ErrInvalidSigningParams) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSigningParameters, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	metrics.RecordOperation(metrics.OpSign, backend, metrics.StatusSuccess)
	return sig[:written], nil
}

// Verify checks the signature over the message with the service's public
// key. The contract is a uniform boolean result: a cryptographic mismatch
// returns (false, nil), as does an unresolvable public key; only an
// operational keystore failure returns a non-nil *VerificationError,
// carrying the backend-native status.
func (s *Service) Verify(signature, message []byte) (bool, error) {
	backend := string(s.keystore.Type())
	defer metrics.ObserveDuration(metrics.OpVerify, backend, time.Now())

	pub, err := s.handle.PublicKey()
	if err != nil {
		s.logger.Debugf("enclave: verify without resolvable public key: %v", err)
		metrics.RecordError(metrics.OpVerify, backend, "key_unavailable")
		return false, nil
	}

	err = s.keystore.Verify(pub, types.SignatureECDSASHA256, message, signature)
	if err == nil {
		metrics.RecordOperation(metrics.OpVerify, backend, metrics.StatusSuccess)
		return true, nil
	}
	if errors.Is(err, types.ErrVerificationMismatch) {
		metrics.RecordOperation(metrics.OpVerify, backend, metrics.StatusSuccess)
		return false, nil
	}

	metrics.RecordOperation(metrics.OpVerify, backend, metrics.StatusError)
	var kerr *types.KeystoreError
	if errors.As(err, &kerr) {
		return false, &VerificationError{Status: kerr.Status, Err: err}
	}
	return false, &VerificationError{Err: err}
}
