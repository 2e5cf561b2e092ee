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

	"github.com/jeremyhahn/go-enclave/pkg/types"
)

var (
	// ErrKeyUnavailable indicates the operation needs a key reference that
	// could not be resolved. The handle is terminally failed; construct a
	// new service instance to retry resolution.
	ErrKeyUnavailable = errors.New("enclave: key unavailable")

	// ErrMessageTooLarge indicates a sign input exceeding the maximum
	// message length for the fixed signature block. This is a client-side
	// pre-check; no keystore call is made.
	ErrMessageTooLarge = errors.New("enclave: message too large for signature block")

	// ErrInvalidSigningParameters indicates the keystore rejected the
	// signing parameters.
	ErrInvalidSigningParameters = errors.New("enclave: invalid signing parameters")

	// ErrSigningFailed indicates a signing failure other than a parameter
	// rejection.
	ErrSigningFailed = errors.New("enclave: signing failed")

	// ErrDecryptionFailed indicates the keystore decrypt operation yielded
	// no data. This is reported as an error rather than an empty plaintext
	// so that a cancelled authentication prompt or an invalid ciphertext
	// is never mistaken for a legitimately empty message.
	ErrDecryptionFailed = errors.New("enclave: decryption produced no data")

	// ErrEncryptionFailed indicates the keystore encrypt operation failed.
	ErrEncryptionFailed = errors.New("enclave: encryption failed")

	// ErrInvalidIdentity indicates a missing tag, identifier, group or
	// prompt at construction time.
	ErrInvalidIdentity = errors.New("enclave: invalid key identity")

	// ErrKeystoreRequired indicates a keystore backend is required but was
	// not provided.
	ErrKeystoreRequired = errors.New("enclave: keystore is required")
)

// VerificationError reports a verify operation that failed for an
// operational reason, as opposed to a signature mismatch, which Verify
// reports as a false result. The backend-native status is attached for
// diagnostics.
type VerificationError struct {
	// Status is the backend-native status code, if one was reported.
	Status types.Status

	// Err is the underlying keystore error.
	Err error
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	if e.Status != types.StatusSuccess {
		return fmt.Sprintf("enclave: verification failed (status %s): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("enclave: verification failed: %v", e.Err)
}

// Unwrap returns the underlying keystore error.
func (e *VerificationError) Unwrap() error {
	return e.Err
}
