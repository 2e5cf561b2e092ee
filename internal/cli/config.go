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
	"os"

	"github.com/jeremyhahn/go-enclave/pkg/backend/software"
	"github.com/jeremyhahn/go-enclave/pkg/enclave"
	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/storage"
	"github.com/jeremyhahn/go-enclave/pkg/types"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// createKeystore creates the configured keystore backend.
func createKeystore() (types.Keystore, error) {
	backend := viper.GetString("backend")
	switch backend {
	case "software":
		return createSoftwareKeystore()
	case "pkcs11":
		return createPKCS11Keystore()
	default:
		return nil, fmt.Errorf("unknown backend: %s", backend)
	}
}

// createSoftwareKeystore creates the software keystore with file storage.
func createSoftwareKeystore() (types.Keystore, error) {
	store, err := storage.NewFile(viper.GetString("key_dir"))
	if err != nil {
		return nil, fmt.Errorf("failed to create key storage: %w", err)
	}

	var password types.Password
	if p := viper.GetString("password"); p != "" {
		password = types.NewPasswordFromString(p)
	}

	return software.New(&software.Config{
		KeyStorage: store,
		Password:   password,
		Logger:     logging.NewLogger(verbose),
	})
}

// newService builds the crypto service from the configured identity and
// keystore.
func newService() (*enclave.Service, error) {
	keystore, err := createKeystore()
	if err != nil {
		return nil, err
	}

	service, err := enclave.NewService(&enclave.Config{
		Tag:        viper.GetString("identity.tag"),
		Identifier: viper.GetString("identity.identifier"),
		Group:      viper.GetString("identity.group"),
		Prompt:     viper.GetString("auth.prompt"),
		Keystore:   keystore,
		Logger:     logging.NewLogger(verbose),
	})
	if err != nil {
		keystore.Close()
		return nil, err
	}

	printVerbose("backend=%s hardware-backed=%v",
		keystore.Type(), service.HardwareBacked())
	return service, nil
}

// promptSecret reads a secret from the terminal without echo. Returns an
// error when stdin is not a terminal.
func promptSecret(label string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("%s required but stdin is not a terminal", label)
	}
	fmt.Fprintf(os.Stderr, "%s: ", label)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", label, err)
	}
	return string(secret), nil
}
