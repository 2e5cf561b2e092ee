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
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	verifyInput     string
	verifySignature string
	verifyRaw       bool
)

// verifyCmd verifies a signature with the enclave public key
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a signature with the enclave public key",
	Long: `Verifies a signature over a message with the enclave public key.
Prints the verdict and exits non-zero when the signature is invalid.
Verification never prompts for authentication.`,
	Run: func(cmd *cobra.Command, args []string) {
		message, err := readInput(verifyInput)
		if err != nil {
			handleError(err)
		}
		signature, err := readInput(verifySignature)
		if err != nil {
			handleError(err)
		}
		if !verifyRaw {
			decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(signature)))
			if err != nil {
				handleError(fmt.Errorf("signature is not valid base64: %w", err))
			}
			signature = decoded
		}

		service, err := newService()
		if err != nil {
			handleError(err)
		}

		valid, err := service.Verify(signature, message)
		if err != nil {
			handleError(err)
		}
		if !valid {
			fmt.Println("Signature: INVALID")
			os.Exit(1)
		}
		fmt.Println("Signature: valid")
	},
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyInput, "in", "i", "-", "message file (- for stdin)")
	verifyCmd.Flags().StringVarP(&verifySignature, "signature", "s", "", "signature file (required)")
	verifyCmd.Flags().BoolVar(&verifyRaw, "raw", false, "signature file holds raw bytes instead of base64")
	_ = verifyCmd.MarkFlagRequired("signature")
	rootCmd.AddCommand(verifyCmd)
}
