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

// Package pkcs11 provides a hardware-backed keystore on top of a PKCS#11
// token (SoftHSM, YubiKey, TPM with PKCS#11 shim, network HSM). Private
// keys are generated on the token and never enter this process.
//
// Two API levels are used: ThalesGroup/crypto11 for key pair lifecycle and
// signing, and the raw miekg/pkcs11 module for the operations crypto11 does
// not expose, class-scoped object deletion and CKM_ECDH1_DERIVE for ECIES
// decryption.
//
// Build with the pkcs11 tag to enable this backend:
//
//	go build -tags pkcs11 ./...
package pkcs11
