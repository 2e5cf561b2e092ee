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

// Package ecies implements the Elliptic Curve Integrated Encryption Scheme
// used for enclave public key encryption: the cofactor variant with a
// variable IV.
//
// ECIES combines:
//  1. Cofactor ECDH for key agreement (ephemeral-static, P-256)
//  2. ANSI X9.63 KDF over SHA-256 for key derivation
//  3. AES-256-GCM for authenticated encryption
//
// The KDF derives both the AES key and the GCM IV from the shared secret,
// with the ephemeral public key as shared info, so no IV travels on the
// wire. The encryption format is:
//
//	[ephemeral_public_key || ciphertext || tag]
//
// Where:
//   - ephemeral_public_key: Uncompressed EC point (65 bytes for P-256)
//   - ciphertext: variable length
//   - tag: 16 bytes (GCM authentication tag)
//
// Example usage:
//
//	// Generate recipient key pair
//	recipientPriv, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
//
//	// Encrypt message with recipient's public key
//	ciphertext, _ := ecies.Encrypt(rand.Reader, &recipientPriv.PublicKey, plaintext)
//
//	// Decrypt with recipient's private key
//	decrypted, _ := ecies.Decrypt(recipientPriv, ciphertext)
package ecies

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"io"
)

const (
	// Key size for AES-256
	aesKeySize = 32

	// GCM IV size. The variable-IV variant derives a full 16-byte IV
	// from the KDF instead of the 12-byte GCM default.
	ivSize = 16

	// GCM tag size (128 bits / 16 bytes)
	tagSize = 16

	// Uncompressed P-256 point: 1 (format) + 32 (x) + 32 (y)
	pubKeySize = 65
)

// Encrypt encrypts plaintext using ECIES with the recipient's public key.
//
// The encryption process:
//  1. Generate ephemeral P-256 key pair
//  2. Perform cofactor ECDH with ephemeral private key and recipient's public key
//  3. Derive AES-256 key and GCM IV using the X9.63 KDF, with the ephemeral
//     public key as shared info
//  4. Encrypt plaintext using AES-256-GCM
//  5. Return: ephemeral_public_key || ciphertext || tag
//
// Only P-256 keys are supported; that is the only curve the enclave
// keystore generates.
func Encrypt(random io.Reader, publicKey *ecdsa.PublicKey, plaintext []byte) ([]byte, error) {
	if random == nil {
		return nil, fmt.Errorf("random source cannot be nil")
	}
	if publicKey == nil {
		return nil, fmt.Errorf("public key cannot be nil")
	}

	recipient, err := publicKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("unsupported public key: %w", err)
	}
	if recipient.Curve() != ecdh.P256() {
		return nil, fmt.Errorf("unsupported curve: ECIES requires P-256")
	}

	// Generate ephemeral key pair on the same curve
	ephemeral, err := ecdh.P256().GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	ephemeralPub := ephemeral.PublicKey().Bytes()

	// ECDH: ephemeral_private x recipient_public. P-256 has cofactor 1,
	// so the cofactor variant coincides with plain ECDH here.
	sharedSecret, err := ephemeral.ECDH(recipient)
	if err != nil {
		return nil, fmt.Errorf("ECDH failed: %w", err)
	}

	gcm, iv, err := deriveCipher(sharedSecret, ephemeralPub)
	if err != nil {
		return nil, err
	}

	// Encrypt plaintext (GCM appends the tag to the ciphertext)
	sealed := gcm.Seal(nil, iv, plaintext, nil)

	// Build final output: ephemeral_pub || ciphertext || tag
	result := make([]byte, 0, pubKeySize+len(sealed))
	result = append(result, ephemeralPub...)
	result = append(result, sealed...)

	return result, nil
}

// Decrypt decrypts ECIES ciphertext using the recipient's private key.
//
// The decryption process:
//  1. Extract the ephemeral public key from the ciphertext
//  2. Perform cofactor ECDH with the recipient's private key
//  3. Derive the AES-256 key and GCM IV using the X9.63 KDF
//  4. Decrypt and authenticate using AES-256-GCM
//
// Returns the original plaintext or an error if authentication fails.
func Decrypt(privateKey *ecdsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key cannot be nil")
	}
	if len(ciphertext) < pubKeySize+tagSize {
		return nil, fmt.Errorf("ciphertext too short: got %d bytes, need at least %d",
			len(ciphertext), pubKeySize+tagSize)
	}

	priv, err := privateKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("unsupported private key: %w", err)
	}

	ephemeralPub := ciphertext[:pubKeySize]
	sealed := ciphertext[pubKeySize:]

	ephemeral, err := ecdh.P256().NewPublicKey(ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ephemeral public key: %w", err)
	}

	// ECDH: recipient_private x ephemeral_public
	sharedSecret, err := priv.ECDH(ephemeral)
	if err != nil {
		return nil, fmt.Errorf("ECDH failed: %w", err)
	}

	gcm, iv, err := deriveCipher(sharedSecret, ephemeralPub)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (authentication error): %w", err)
	}

	return plaintext, nil
}

// EphemeralPublicKey extracts the uncompressed ephemeral public key point
// from an ECIES ciphertext. Keystores that perform the key agreement inside
// a hardware token feed this point to the token's derive operation.
func EphemeralPublicKey(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < pubKeySize+tagSize {
		return nil, fmt.Errorf("ciphertext too short: got %d bytes, need at least %d",
			len(ciphertext), pubKeySize+tagSize)
	}
	return ciphertext[:pubKeySize], nil
}

// DecryptWithSecret decrypts ECIES ciphertext given the raw ECDH shared
// secret (the x-coordinate of the agreed point). Used when the private key
// is held by a hardware token that performs the agreement itself and
// releases only the derived secret.
func DecryptWithSecret(sharedSecret, ciphertext []byte) ([]byte, error) {
	if len(sharedSecret) == 0 {
		return nil, fmt.Errorf("shared secret cannot be empty")
	}

	ephemeralPub, err := EphemeralPublicKey(ciphertext)
	if err != nil {
		return nil, err
	}
	sealed := ciphertext[pubKeySize:]

	gcm, iv, err := deriveCipher(sharedSecret, ephemeralPub)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (authentication error): %w", err)
	}
	return plaintext, nil
}

// deriveCipher derives the AES-256-GCM cipher and IV from the ECDH shared
// secret. The X9.63 KDF output is key || IV, with the ephemeral public key
// bound in as shared info.
func deriveCipher(sharedSecret, ephemeralPub []byte) (cipher.AEAD, []byte, error) {
	keyAndIV := DeriveX963(sha256.New, sharedSecret, ephemeralPub, aesKeySize+ivSize)

	block, err := aes.NewCipher(keyAndIV[:aesKeySize])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm, keyAndIV[aesKeySize:], nil
}
