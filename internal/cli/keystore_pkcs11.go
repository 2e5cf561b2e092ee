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

package cli

import (
	"github.com/jeremyhahn/go-enclave/pkg/backend/pkcs11"
	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/types"
	"github.com/spf13/viper"
)

// createPKCS11Keystore creates the PKCS#11 hardware keystore, prompting for
// the token PIN when none is configured.
func createPKCS11Keystore() (types.Keystore, error) {
	pin := viper.GetString("pkcs11.pin")
	if pin == "" {
		prompted, err := promptSecret("PKCS#11 PIN")
		if err != nil {
			return nil, err
		}
		pin = prompted
	}

	return pkcs11.New(&pkcs11.Config{
		Library:    viper.GetString("pkcs11.library"),
		TokenLabel: viper.GetString("pkcs11.label"),
		PIN:        pin,
		Logger:     logging.NewLogger(verbose),
	})
}
