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

//go:build !pkcs11

package cli

import (
	"errors"

	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// createPKCS11Keystore reports that PKCS#11 support is not compiled in.
func createPKCS11Keystore() (types.Keystore, error) {
	return nil, errors.New("PKCS#11 support not compiled in; rebuild with: go build -tags pkcs11")
}
