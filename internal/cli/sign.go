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

	"github.com/jeremyhahn/go-enclave/pkg/types"
	"github.com/spf13/cobra"
)

var (
	signInput  string
	signOutput string
	signRaw    bool
)

// signCmd signs a message with the enclave private key
var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a message with the enclave private key",
	Long: fmt.Sprintf(`Signs a message with the enclave private key. The message is limited
to %d bytes; sign a digest of larger payloads instead.

The first use may prompt for user authentication depending on the
backend and key policy. Output is base64 unless --raw is given.`,
		types.MaxSignatureInput),
	Run: func(cmd *cobra.Command, args []string) {
		message, err := readInput(signInput)
		if err != nil {
			handleError(err)
		}

		service, err := newService()
		if err != nil {
			handleError(err)
		}

		signature, err := service.Sign(message)
		if err != nil {
			handleError(err)
		}
		printVerbose("signature: %d bytes", len(signature))

		if !signRaw {
			signature = []byte(base64.StdEncoding.EncodeToString(signature) + "\n")
		}
		if err := writeOutput(signOutput, signature); err != nil {
			handleError(err)
		}
	},
}

func init() {
	signCmd.Flags().StringVarP(&signInput, "in", "i", "-", "message file (- for stdin)")
	signCmd.Flags().StringVarP(&signOutput, "out", "o", "-", "signature file (- for stdout)")
	signCmd.Flags().BoolVar(&signRaw, "raw", false, "write raw signature bytes instead of base64")
	rootCmd.AddCommand(signCmd)
}
