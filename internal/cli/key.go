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
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-enclave/pkg/enclave"
	"github.com/jeremyhahn/go-enclave/pkg/types"
	"github.com/spf13/cobra"
)

// keyCmd groups key lifecycle operations
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Key pair lifecycle operations",
}

// keyCreateCmd resolves the key pair, creating it if absent
var keyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the key pair for the configured identity",
	Long: `Resolves the key pair for the configured identity, creating it on
the backend if it does not exist. Running create on an existing
identity is a no-op.`,
	Run: func(cmd *cobra.Command, args []string) {
		service, err := newService()
		if err != nil {
			handleError(err)
		}

		if _, err := service.Handle().PrivateKey(); err != nil {
			handleError(err)
		}

		identity := service.Handle().Identity()
		fmt.Printf("Key pair ready: %s\n", identity)
		fmt.Printf("Hardware-backed: %v\n", service.HardwareBacked())
	},
}

// keyDeleteCmd deletes both halves of the key pair
var keyDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the key pair for the configured identity",
	Long: `Deletes both halves of the key pair from the backend. Deletion is
permanent; data encrypted to this key becomes unrecoverable.`,
	Run: func(cmd *cobra.Command, args []string) {
		service, err := newService()
		if err != nil {
			handleError(err)
		}

		handle := service.Handle()
		if err := handle.DeletePrivateKey(); err != nil {
			handleError(err)
		}
		if err := handle.DeletePublicKey(); err != nil {
			handleError(err)
		}

		fmt.Printf("Deleted key pair: %s\n", handle.Identity())
	},
}

// keyInfoCmd prints identity and backend details
var keyInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show identity and backend information",
	Run: func(cmd *cobra.Command, args []string) {
		service, err := newService()
		if err != nil {
			handleError(err)
		}

		identity := service.Handle().Identity()
		fmt.Printf("Tag:             %s\n", identity.Tag)
		fmt.Printf("Identifier:      %s\n", identity.Identifier)
		fmt.Printf("Group:           %s\n", identity.Group)
		fmt.Printf("Access group:    %s\n", identity.QualifiedGroup())
		fmt.Printf("Hardware-backed: %v\n", service.HardwareBacked())
		fmt.Printf("Key pair:        %s\n", keyStatus(service))
	},
}

// keyStatus reports whether the key pair exists without creating it.
func keyStatus(service *enclave.Service) string {
	keystore, err := createKeystore()
	if err != nil {
		return fmt.Sprintf("unknown (%v)", err)
	}
	defer keystore.Close()

	identity := service.Handle().Identity()
	_, err = keystore.FindKey(&types.KeyQuery{
		Class:       types.KeyClassPrivate,
		Tag:         identity.Tag,
		AccessGroup: identity.QualifiedGroup(),
	})
	switch {
	case err == nil:
		return "exists"
	case errors.Is(err, types.ErrKeyNotFound):
		return "not created"
	default:
		return fmt.Sprintf("unknown (%v)", err)
	}
}

func init() {
	keyCmd.AddCommand(keyCreateCmd)
	keyCmd.AddCommand(keyDeleteCmd)
	keyCmd.AddCommand(keyInfoCmd)
	rootCmd.AddCommand(keyCmd)
}
