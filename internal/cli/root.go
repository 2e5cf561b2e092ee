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
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "enclave",
	Short: "go-enclave CLI - Hardware-backed key pair management",
	Long: `go-enclave CLI manages a hardware-backed asymmetric key pair and
performs encrypt, decrypt, sign and verify operations with it.

Keys are resolved lazily: the first protected operation finds the
existing key pair for the configured identity or creates one.

Supported backends:
  - software: ECDSA keys stored as encrypted PKCS#8 files
  - pkcs11:   PKCS#11 HSM keys (build with -tags pkcs11)`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.enclave.yaml)")
	rootCmd.PersistentFlags().String("backend", "software",
		"keystore backend (software, pkcs11)")
	rootCmd.PersistentFlags().String("key-dir", defaultKeyDir(),
		"directory for key storage (software backend)")
	rootCmd.PersistentFlags().String("tag", "",
		"key tag, e.g. com.example.key1")
	rootCmd.PersistentFlags().String("identifier", "",
		"application identifier, e.g. com.example.app")
	rootCmd.PersistentFlags().String("group", "shared",
		"access group within the identifier")
	rootCmd.PersistentFlags().String("auth-prompt", "Authenticate to use the enclave key",
		"text shown by the user-presence authentication dialog")
	rootCmd.PersistentFlags().String("pkcs11-library", "",
		"path to the PKCS#11 library (pkcs11 backend)")
	rootCmd.PersistentFlags().String("pkcs11-label", "enclave",
		"PKCS#11 token label (pkcs11 backend)")
	rootCmd.PersistentFlags().String("password", "",
		"password protecting software keys at rest (or use ENCLAVE_PASSWORD env var)")
	rootCmd.PersistentFlags().String("pkcs11-pin", "",
		"PKCS#11 user PIN (or use ENCLAVE_PKCS11_PIN env var; prompts if empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output")

	// Bind flags to viper
	bindFlagOrPanic("backend", "backend")
	bindFlagOrPanic("key_dir", "key-dir")
	bindFlagOrPanic("identity.tag", "tag")
	bindFlagOrPanic("identity.identifier", "identifier")
	bindFlagOrPanic("identity.group", "group")
	bindFlagOrPanic("auth.prompt", "auth-prompt")
	bindFlagOrPanic("pkcs11.library", "pkcs11-library")
	bindFlagOrPanic("pkcs11.label", "pkcs11-label")
	bindFlagOrPanic("password", "password")
	bindFlagOrPanic("pkcs11.pin", "pkcs11-pin")
}

func bindFlagOrPanic(configKey, flagName string) {
	if err := viper.BindPFlag(configKey, rootCmd.PersistentFlags().Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", flagName, err))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".enclave")
	}

	viper.SetEnvPrefix("ENCLAVE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Config file not found is fine; defaults and env vars apply
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	}
}

func defaultKeyDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".enclave/keys"
	}
	return home + "/.enclave/keys"
}

// handleError prints an error and exits with code 1
func handleError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// printVerbose prints a message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] "+format+"\n", args...)
	}
}
