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

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// backendsCmd lists the available keystore backends
var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List available keystore backends",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Available backends:")
		fmt.Println("  software  ECDSA P-256 keys stored as encrypted PKCS#8 files (no secure element)")
		fmt.Println("  pkcs11    ECDSA P-256 keys on a PKCS#11 token; private keys never leave the HSM")
		fmt.Println()
		fmt.Println("The configured backend can be inspected with 'enclave key info'.")
	},
}

func init() {
	rootCmd.AddCommand(backendsCmd)
}
