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

// Package types contains the shared type definitions used across go-enclave,
// including key queries and attributes, access control policies, the keystore
// contract, and the native status codes carried on keystore errors. This
// package has no dependencies on pkg/enclave or pkg/backend to prevent
// import cycles.
package types

import (
	"errors"
	"fmt"
)

// =============================================================================
// Signature Block Contract
// =============================================================================

const (
	// SignatureBlockSize is the fixed capacity, in bytes, of the raw
	// signature block produced by keystore Sign operations. Backends may
	// write fewer bytes than the block holds; the written length is
	// reported alongside the signature.
	SignatureBlockSize = 256

	// SignaturePaddingOverhead is the PKCS#1 padding overhead reserved
	// inside the signature block.
	SignaturePaddingOverhead = 11

	// MaxSignatureInput is the largest message, in bytes, accepted by the
	// raw signing scheme. Longer inputs must be rejected before any
	// keystore round trip is made.
	MaxSignatureInput = SignatureBlockSize - SignaturePaddingOverhead
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrKeyNotFound is returned by FindKey when no key matches the query.
	ErrKeyNotFound = errors.New("types: key not found")

	// ErrKeyAlreadyExists is returned by CreateKey when a key with the same
	// tag and access group already exists in the keystore. Callers treat
	// this as a retryable condition equivalent to re-attempting FindKey.
	ErrKeyAlreadyExists = errors.New("types: key already exists")

	// ErrVerificationMismatch is returned by Verify when the signature does
	// not match the message. This is distinct from an operational failure,
	// which is reported as a *KeystoreError.
	ErrVerificationMismatch = errors.New("types: signature mismatch")

	// ErrInvalidSigningParams is returned by Sign when the keystore rejects
	// the signing parameters rather than the operation failing outright.
	ErrInvalidSigningParams = errors.New("types: invalid signing parameters")

	// ErrNotSupported is returned when an operation is not supported by the
	// keystore. Commonly returned by hardware tokens without ECDH support.
	ErrNotSupported = errors.New("types: operation not supported")

	// ErrInvalidAttributes is returned when key attributes are invalid
	// or incomplete.
	ErrInvalidAttributes = errors.New("types: invalid key attributes")

	// ErrInvalidQuery is returned when a key query is invalid or incomplete.
	ErrInvalidQuery = errors.New("types: invalid key query")

	// ErrKeystoreClosed is returned when the keystore has been closed and
	// cannot service further operations.
	ErrKeystoreClosed = errors.New("types: keystore is closed")
)

// Status is a backend-native status code attached to keystore errors for
// diagnostics. For PKCS#11 backends this is the CKR_* return value; the
// software backend uses its own small code space. Zero always means success.
type Status int64

// StatusSuccess is the zero status reported by successful operations.
const StatusSuccess Status = 0

// String returns the status formatted for diagnostics.
func (s Status) String() string {
	return fmt.Sprintf("0x%08X", int64(s))
}

// KeystoreError reports a non-success status from a keystore operation,
// carrying the backend-native status code so callers can log or display it.
type KeystoreError struct {
	// Op is the keystore operation that failed (find, create, delete, ...).
	Op string

	// Message describes the failure.
	Message string

	// Status is the backend-native status code, if one was reported.
	Status Status
}

// Error implements the error interface.
func (e *KeystoreError) Error() string {
	if e.Status != StatusSuccess {
		return fmt.Sprintf("keystore: %s: %s (status %s)", e.Op, e.Message, e.Status)
	}
	return fmt.Sprintf("keystore: %s: %s", e.Op, e.Message)
}

// =============================================================================
// Key Class
// =============================================================================

// KeyClass identifies which half of the key pair a query targets.
type KeyClass uint8

const (
	// Key class constants
	KeyClassPrivate KeyClass = 1 + iota
	KeyClassPublic
)

// String returns the string representation of the key class.
func (kc KeyClass) String() string {
	switch kc {
	case KeyClassPrivate:
		return "PRIVATE"
	case KeyClassPublic:
		return "PUBLIC"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", kc)
	}
}

// =============================================================================
// Access Control
// =============================================================================

// ProtectionClass determines when the keystore will release a key without
// re-authentication. All classes are device-bound: protected keys never
// migrate to another device.
type ProtectionClass uint8

const (
	// ProtectionAfterFirstUnlockThisDeviceOnly releases the key any time
	// after the first unlock following boot.
	ProtectionAfterFirstUnlockThisDeviceOnly ProtectionClass = 1 + iota

	// ProtectionWhenPasscodeSetThisDeviceOnly releases the key only while
	// a device passcode is configured.
	ProtectionWhenPasscodeSetThisDeviceOnly

	// ProtectionWhenUnlockedThisDeviceOnly releases the key only while the
	// device is unlocked.
	ProtectionWhenUnlockedThisDeviceOnly
)

// String returns the string representation of the protection class.
func (pc ProtectionClass) String() string {
	switch pc {
	case ProtectionAfterFirstUnlockThisDeviceOnly:
		return "AFTER_FIRST_UNLOCK_THIS_DEVICE_ONLY"
	case ProtectionWhenPasscodeSetThisDeviceOnly:
		return "WHEN_PASSCODE_SET_THIS_DEVICE_ONLY"
	case ProtectionWhenUnlockedThisDeviceOnly:
		return "WHEN_UNLOCKED_THIS_DEVICE_ONLY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", pc)
	}
}

// AccessFlag is a bitmask of authentication conditions attached to a key's
// access control policy.
type AccessFlag uint32

const (
	// AccessUserPresence requires the user to authenticate (biometry or
	// passcode) before each protected operation, subject to the
	// authentication context's reuse window.
	AccessUserPresence AccessFlag = 1 << iota

	// AccessPrivateKeyUsage marks the key as usable for private key
	// operations inside the secure element.
	AccessPrivateKeyUsage

	// AccessBiometryAny accepts any enrolled biometry for authentication.
	AccessBiometryAny

	// AccessDevicePasscode accepts the device passcode for authentication.
	AccessDevicePasscode
)

// Has returns true if all bits in flag are set.
func (af AccessFlag) Has(flag AccessFlag) bool {
	return af&flag == flag
}

// AccessPolicy is the rule bundle determining under what authentication
// conditions the keystore will perform an operation using a key. The policy
// is bound to the key at creation time and enforced by the keystore, not by
// this process.
type AccessPolicy struct {
	// Protection determines when the key is available at all.
	Protection ProtectionClass

	// Flags are the authentication conditions required for key usage.
	Flags AccessFlag
}

// DefaultAccessPolicy returns the reference policy: the key is available
// after first unlock and every private key operation requires user presence.
func DefaultAccessPolicy() AccessPolicy {
	return AccessPolicy{
		Protection: ProtectionAfterFirstUnlockThisDeviceOnly,
		Flags:      AccessUserPresence | AccessPrivateKeyUsage,
	}
}

// String returns a human-readable representation of the policy.
func (p AccessPolicy) String() string {
	return fmt.Sprintf("AccessPolicy{Protection: %s, Flags: 0x%X}", p.Protection, uint32(p.Flags))
}

// =============================================================================
// Algorithms
// =============================================================================

// KeyAlgorithm identifies the asymmetric key algorithm. The enclave key pair
// is always elliptic-curve; P-256 is the only curve secure elements commonly
// support.
type KeyAlgorithm string

const (
	// AlgorithmECDSAP256 is a 256-bit elliptic-curve key on NIST P-256.
	AlgorithmECDSAP256 KeyAlgorithm = "ecdsa-p256"
)

// String returns the string representation of the key algorithm.
func (ka KeyAlgorithm) String() string {
	return string(ka)
}

// EncryptionAlgorithm identifies the hybrid public key encryption scheme.
type EncryptionAlgorithm string

const (
	// EncryptionECIESX963AESGCM is the ECIES cofactor variant with a
	// variable IV: X9.63 key derivation over SHA-256 and AES-256-GCM
	// payload encryption.
	EncryptionECIESX963AESGCM EncryptionAlgorithm = "ecies-cofactor-x963-sha256-aes256-gcm"
)

// SignatureScheme identifies the signing scheme used by raw sign and
// verify operations.
type SignatureScheme string

const (
	// SignatureECDSASHA256 signs the SHA-256 digest of the message and
	// encodes the signature into the fixed signature block.
	SignatureECDSASHA256 SignatureScheme = "ecdsa-sha256"
)

// =============================================================================
// Key Query and Attributes
// =============================================================================

// KeyRef is an opaque reference to key material held by a keystore. The
// concrete type is backend-specific and must never be inspected by callers;
// a reference obtained from one keystore instance is only meaningful when
// passed back to that instance.
type KeyRef any

// KeyQuery identifies an existing key in the keystore. Queries replace the
// reference platform's dictionary-literal attribute construction with a
// typed record.
type KeyQuery struct {
	// Class selects the private or public half of the key pair.
	Class KeyClass

	// Tag is the application-scoped label, unique per logical key.
	Tag []byte

	// AccessGroup is the fully qualified sharing scope
	// (identifier + "." + group).
	AccessGroup string

	// Auth carries the authentication context for operations that may
	// prompt the user. Optional for public key queries.
	Auth *AuthContext
}

// Validate checks that the query has all required fields.
func (q *KeyQuery) Validate() error {
	if q.Class != KeyClassPrivate && q.Class != KeyClassPublic {
		return fmt.Errorf("%w: key class is required", ErrInvalidQuery)
	}
	if len(q.Tag) == 0 {
		return fmt.Errorf("%w: tag is required", ErrInvalidQuery)
	}
	if q.AccessGroup == "" {
		return fmt.Errorf("%w: access group is required", ErrInvalidQuery)
	}
	return nil
}

// KeyAttributes contains all configuration parameters for creating a key
// pair inside the keystore.
type KeyAttributes struct {
	// Tag is the application-scoped label, unique per logical key.
	Tag []byte

	// AccessGroup is the fully qualified sharing scope.
	AccessGroup string

	// Algorithm specifies the key algorithm. Defaults to ECDSA P-256.
	Algorithm KeyAlgorithm

	// Permanent stores the key durably in the keystore so it survives
	// process restarts. Always true for enclave keys.
	Permanent bool

	// TokenBound binds key generation to the secure-element token. When
	// the backend has no hardware token this must be false and the key is
	// software-backed.
	TokenBound bool

	// Policy is the access control policy bound to the private key.
	Policy AccessPolicy

	// Auth carries the authentication context used during creation.
	Auth *AuthContext
}

// Validate checks that the attributes have all required fields.
func (a *KeyAttributes) Validate() error {
	if len(a.Tag) == 0 {
		return fmt.Errorf("%w: tag is required", ErrInvalidAttributes)
	}
	if a.AccessGroup == "" {
		return fmt.Errorf("%w: access group is required", ErrInvalidAttributes)
	}
	if a.Algorithm != AlgorithmECDSAP256 {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidAttributes, a.Algorithm)
	}
	return nil
}

// Query returns the key query matching these attributes for the given class.
func (a *KeyAttributes) Query(class KeyClass) *KeyQuery {
	return &KeyQuery{
		Class:       class,
		Tag:         a.Tag,
		AccessGroup: a.AccessGroup,
		Auth:        a.Auth,
	}
}

// =============================================================================
// Backend Capabilities
// =============================================================================

// BackendType identifies the type of keystore backend.
type BackendType string

const (
	BackendTypeSoftware BackendType = "software" // Software-backed keys, no secure element
	BackendTypePKCS11   BackendType = "pkcs11"   // PKCS#11 hardware security module
)

// Capabilities declares what features a keystore backend supports. The
// HardwareBacked flag is resolved at startup so callers can always query
// whether hardware backing was actually used rather than assumed.
type Capabilities struct {
	// Keys indicates the backend supports key generation and storage.
	Keys bool

	// HardwareBacked indicates private keys live in isolated hardware and
	// never enter this process in plaintext.
	HardwareBacked bool

	// Signing indicates the backend supports raw sign/verify.
	Signing bool

	// ECIES indicates the backend supports hybrid public key
	// encryption and decryption.
	ECIES bool

	// UserPresence indicates the backend enforces user-presence
	// authentication itself. Software backends only simulate it.
	UserPresence bool
}

// IsHardwareBacked returns true if keys are stored in hardware.
func (c Capabilities) IsHardwareBacked() bool {
	return c.HardwareBacked
}

// String returns a string representation of the capabilities.
func (c Capabilities) String() string {
	return fmt.Sprintf("Capabilities{Keys: %v, HardwareBacked: %v, Signing: %v, ECIES: %v, UserPresence: %v}",
		c.Keys, c.HardwareBacked, c.Signing, c.ECIES, c.UserPresence)
}

// NewSoftwareCapabilities returns capabilities for a software-based backend.
func NewSoftwareCapabilities() Capabilities {
	return Capabilities{
		Keys:           true,
		HardwareBacked: false,
		Signing:        true,
		ECIES:          true,
		UserPresence:   false,
	}
}

// NewHardwareCapabilities returns capabilities for a hardware-based backend.
func NewHardwareCapabilities() Capabilities {
	return Capabilities{
		Keys:           true,
		HardwareBacked: true,
		Signing:        true,
		ECIES:          true,
		UserPresence:   true,
	}
}

// =============================================================================
// Keystore Contract
// =============================================================================

// Keystore is the hardware keystore contract the enclave core depends on.
// Implementations own durable key storage; keys created through this
// interface survive process restarts and are destroyed only by DeleteKey.
//
// Error contract:
//   - FindKey returns ErrKeyNotFound when no key matches.
//   - CreateKey returns ErrKeyAlreadyExists when the (tag, access group)
//     pair is already occupied; callers retry FindKey once.
//   - Verify returns nil on success, ErrVerificationMismatch on a
//     signature mismatch, and *KeystoreError on operational failure.
//   - All other non-success conditions are reported as *KeystoreError
//     carrying the backend-native status.
//
// Implementations must be safe for concurrent use; atomicity of
// create-vs-lookup races across processes is the keystore's obligation.
type Keystore interface {
	// Type returns the backend type identifier.
	Type() BackendType

	// Capabilities returns what features this backend supports.
	Capabilities() Capabilities

	// FindKey returns a reference to an existing key matching the query.
	FindKey(query *KeyQuery) (KeyRef, error)

	// CreateKey generates a new key pair with the given attributes and
	// returns a reference to the private key.
	CreateKey(attrs *KeyAttributes) (KeyRef, error)

	// DeleteKey removes the key identified by the query from durable
	// storage. Deletion is terminal for that keystore entry.
	DeleteKey(query *KeyQuery) error

	// PublicKey derives the public key reference from a private key
	// reference obtained from this keystore.
	PublicKey(priv KeyRef) (KeyRef, error)

	// Encrypt encrypts plaintext to the public key using the given
	// hybrid encryption algorithm.
	Encrypt(pub KeyRef, alg EncryptionAlgorithm, plaintext []byte) ([]byte, error)

	// Decrypt recovers plaintext with the private key. May block on a
	// user-presence prompt, bounded by the authentication reuse window.
	Decrypt(priv KeyRef, alg EncryptionAlgorithm, ciphertext []byte) ([]byte, error)

	// Sign signs the message with the private key and returns the raw
	// signature block along with the number of bytes actually written.
	// May block on a user-presence prompt.
	Sign(priv KeyRef, scheme SignatureScheme, message []byte) (sig []byte, written int, err error)

	// Verify checks the signature over the message with the public key.
	Verify(pub KeyRef, scheme SignatureScheme, message, signature []byte) error

	// Close releases any resources held by the keystore.
	Close() error
}
