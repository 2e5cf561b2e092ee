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

// Package encoding provides DER encoding and decoding for key material at
// rest: PKCS#8 for private keys, optionally passphrase-encrypted, and PKIX
// for public keys.
package encoding

import (
	"crypto/ecdsa"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	"github.com/youmark/pkcs8"
)

var (
	// ErrInvalidPrivateKey is returned when a private key is nil or not a
	// supported type.
	ErrInvalidPrivateKey = errors.New("encoding: invalid private key")

	// ErrInvalidPublicKey is returned when a public key is nil or not a
	// supported type.
	ErrInvalidPublicKey = errors.New("encoding: invalid public key")

	// ErrInvalidData is returned when decoding empty or malformed data.
	ErrInvalidData = errors.New("encoding: invalid data")

	// ErrInvalidPassword is returned when decrypting PKCS#8 data with the
	// wrong passphrase.
	ErrInvalidPassword = errors.New("encoding: invalid password")
)

// EncodePKCS8 encodes an ECDSA private key to ASN.1 DER PKCS#8. A non-empty
// password produces an encrypted PKCS#8 structure; an empty password
// produces plaintext PKCS#8.
func EncodePKCS8(key *ecdsa.PrivateKey, password []byte) ([]byte, error) {
	if key == nil {
		return nil, ErrInvalidPrivateKey
	}

	if len(password) == 0 {
		password = nil
	}
	der, err := pkcs8.MarshalPrivateKey(key, password, nil)
	if err != nil {
		return nil, fmt.Errorf("encoding: failed to marshal PKCS#8: %w", err)
	}
	return der, nil
}

// DecodePKCS8 decodes ASN.1 DER PKCS#8 data to an ECDSA private key,
// decrypting with the given password when the data is encrypted.
func DecodePKCS8(data, password []byte) (*ecdsa.PrivateKey, error) {
	if len(data) == 0 {
		return nil, ErrInvalidData
	}

	if len(password) == 0 {
		password = nil
	}
	key, err := pkcs8.ParsePKCS8PrivateKey(data, password)
	if err != nil {
		if isPasswordError(err) {
			return nil, ErrInvalidPassword
		}
		return nil, fmt.Errorf("encoding: failed to parse PKCS#8: %w", err)
	}

	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected key type %T", ErrInvalidPrivateKey, key)
	}
	return ecKey, nil
}

// EncodePublicKeyPKIX encodes an ECDSA public key to ASN.1 DER PKIX
// (SubjectPublicKeyInfo).
func EncodePublicKeyPKIX(key *ecdsa.PublicKey) ([]byte, error) {
	if key == nil {
		return nil, ErrInvalidPublicKey
	}

	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("encoding: failed to marshal PKIX public key: %w", err)
	}
	return der, nil
}

// DecodePublicKeyPKIX decodes ASN.1 DER PKIX data to an ECDSA public key.
func DecodePublicKeyPKIX(data []byte) (*ecdsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, ErrInvalidData
	}

	key, err := x509.ParsePKIXPublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("encoding: failed to parse PKIX public key: %w", err)
	}

	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected key type %T", ErrInvalidPublicKey, key)
	}
	return ecKey, nil
}

// isPasswordError checks if an error from youmark/pkcs8 indicates a wrong
// passphrase. The package reports these with varying messages.
func isPasswordError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	for _, fragment := range []string{
		"incorrect password",
		"asn1: structure error",
		"tags don't match",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
