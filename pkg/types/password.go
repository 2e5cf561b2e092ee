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

package types

// Password provides access to a credential used to protect key material at
// rest. The software backend uses it to encrypt stored private keys; the
// PKCS#11 backend uses it as the token PIN.
type Password interface {
	// Bytes returns the password as a byte slice.
	Bytes() []byte

	// String returns the password as a string.
	String() (string, error)

	// Clear zeros out the password from memory.
	Clear()
}

// ClearPassword is a simple in-memory implementation of the Password
// interface that stores the password in clear text. Use only where the
// security model explicitly accepts holding the credential in memory.
type ClearPassword struct {
	password []byte
}

// NewPassword creates a new clear text password stored in memory.
// The password is copied to prevent external modification.
func NewPassword(password []byte) Password {
	p := make([]byte, len(password))
	copy(p, password)
	return &ClearPassword{password: p}
}

// NewPasswordFromString creates a new clear text password from a string.
func NewPasswordFromString(password string) Password {
	return &ClearPassword{password: []byte(password)}
}

// String returns the password as a string.
func (p *ClearPassword) String() (string, error) {
	return string(p.password), nil
}

// Bytes returns a copy of the password bytes.
func (p *ClearPassword) Bytes() []byte {
	b := make([]byte, len(p.password))
	copy(b, p.password)
	return b
}

// Clear overwrites the password memory with zeros.
func (p *ClearPassword) Clear() {
	for i := range p.password {
		p.password[i] = 0
	}
}
