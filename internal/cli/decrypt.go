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
	"github.com/spf13/cobra"
)

var (
	decryptInput  string
	decryptOutput string
)

// decryptCmd decrypts data with the enclave private key
var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Decrypt data with the enclave private key",
	Long: `Decrypts ECIES ciphertext with the enclave private key. May prompt
for user authentication depending on the backend and key policy.`,
	Run: func(cmd *cobra.Command, args []string) {
		ciphertext, err := readInput(decryptInput)
		if err != nil {
			handleError(err)
		}

		service, err := newService()
		if err != nil {
			handleError(err)
		}

		plaintext, err := service.Decrypt(ciphertext)
		if err != nil {
			handleError(err)
		}

		if err := writeOutput(decryptOutput, plaintext); err != nil {
			handleError(err)
		}
	},
}

func init() {
	decryptCmd.Flags().StringVarP(&decryptInput, "in", "i", "-", "ciphertext file (- for stdin)")
	decryptCmd.Flags().StringVarP(&decryptOutput, "out", "o", "-", "plaintext file (- for stdout)")
	rootCmd.AddCommand(decryptCmd)
}
