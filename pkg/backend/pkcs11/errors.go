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
	"errors"

	"github.com/jeremyhahn/go-enclave/pkg/types"
	"github.com/miekg/pkcs11"
)

var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("pkcs11: invalid configuration")

	// ErrLibraryNotFound is returned when the PKCS#11 library cannot be found.
	ErrLibraryNotFound = errors.New("pkcs11: library not found")

	// ErrTokenNotFound is returned when the specified token cannot be found.
	ErrTokenNotFound = errors.New("pkcs11: token not found")

	// ErrNotInitialized is returned when operating on a keystore whose
	// token session is not established.
	ErrNotInitialized = errors.New("pkcs11: token session not initialized")

	// ErrInvalidPINLength is returned when the user PIN is too short.
	// PKCS#11 typically requires PINs to be at least 4 characters.
	ErrInvalidPINLength = errors.New("pkcs11: invalid pin length, must be at least 4 characters")
)

// ckrError wraps a PKCS#11 failure as a keystore error. When the underlying
// error is a cryptoki return value, its CKR_* code becomes the status so
// callers can surface the backend-native code.
func ckrError(op string, err error) *types.KeystoreError {
	var status types.Status
	var ckr pkcs11.Error
	if errors.As(err, &ckr) {
		status = types.Status(uint(ckr))
	}
	return &types.KeystoreError{
		Op:      op,
		Message: err.Error(),
		Status:  status,
	}
}
