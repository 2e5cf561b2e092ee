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

// Package enclave manages a single hardware-backed asymmetric key pair and
// exposes encrypt, decrypt, sign and verify operations gated by
// user-presence authentication.
//
// The package has two layers. KeyHandle owns the key identity (tag plus
// qualified access group) and resolves the private key lazily with
// find-or-create semantics against a keystore backend; the result, success
// or failure, is cached for the lifetime of the handle. Service sits on top
// of a handle and provides the cryptographic operation contract: size
// limits, algorithm selection, and a typed error taxonomy.
//
// A service is bound at construction to four plain strings (tag, identifier,
// group, authentication prompt) and a keystore backend. The first
// cryptographic call triggers the keystore round trip, which may block on a
// user-presence prompt for human-scale latency; callers are expected to
// invoke it from a background goroutine and to layer any timeout themselves.
// Subsequent calls reuse the cached key references.
//
// Example:
//
//	ks, _ := software.New(&software.Config{KeyStorage: storage.NewMemory()})
//	svc, _ := enclave.NewService(&enclave.Config{
//	    Tag:        "com.example.key1",
//	    Identifier: "com.example.app",
//	    Group:      "shared",
//	    Prompt:     "Authenticate to use the signing key",
//	    Keystore:   ks,
//	})
//	sig, _ := svc.Sign([]byte("message"))
//	ok, _ := svc.Verify(sig, []byte("message"))
package enclave
