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
	encryptInput  string
	encryptOutput string
)

// encryptCmd encrypts data to the enclave public key
var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt data to the enclave public key",
	Long: `Encrypts data to the enclave public key using ECIES. Only the
matching private key, held by the backend, can decrypt the output.
Encryption never prompts for authentication.`,
	Run: func(cmd *cobra.Command, args []string) {
		plaintext, err := readInput(encryptInput)
		if err != nil {
			handleError(err)
		}

		service, err := newService()
		if err != nil {
			handleError(err)
		}

		ciphertext, err := service.Encrypt(plaintext)
		if err != nil {
			handleError(err)
		}
		printVerbose("ciphertext: %d bytes", len(ciphertext))

		if err := writeOutput(encryptOutput, ciphertext); err != nil {
			handleError(err)
		}
	},
}

func init() {
	encryptCmd.Flags().StringVarP(&encryptInput, "in", "i", "-", "plaintext file (- for stdin)")
	encryptCmd.Flags().StringVarP(&encryptOutput, "out", "o", "-", "ciphertext file (- for stdout)")
	rootCmd.AddCommand(encryptCmd)
}
