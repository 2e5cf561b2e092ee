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

package pkcs11

import (
	"fmt"
	"os"

	"github.com/jeremyhahn/go-enclave/pkg/logging"
)

// Config contains configuration for the PKCS#11 keystore. It specifies the
// PKCS#11 library to use, token identification, and authentication
// credentials.
type Config struct {
	// Library is the path to the PKCS#11 library file.
	// Examples:
	//   - /usr/lib/softhsm/libsofthsm2.so (SoftHSM)
	//   - /usr/lib/libykcs11.so (YubiKey)
	//   - /opt/nfast/toolkits/pkcs11/libcknfast.so (nCipher)
	Library string `yaml:"library" json:"library" mapstructure:"library"`

	// TokenLabel is the label of the PKCS#11 token to use.
	TokenLabel string `yaml:"label" json:"label" mapstructure:"label"`

	// Slot is the slot number where the token is located. Optional; when
	// nil the slot is located by TokenLabel.
	Slot *int `yaml:"slot,omitempty" json:"slot,omitempty" mapstructure:"slot"`

	// PIN is the user PIN for the PKCS#11 token.
	PIN string `yaml:"pin,omitempty" json:"pin,omitempty" mapstructure:"pin"`

	// Logger receives operation logs. Defaults to the package default
	// logger.
	Logger *logging.Logger `yaml:"-" json:"-" mapstructure:"-"`
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return ErrInvalidConfig
	}
	if c.Library == "" {
		return fmt.Errorf("%w: library path is required", ErrInvalidConfig)
	}
	if _, err := os.Stat(c.Library); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrLibraryNotFound, c.Library)
	}
	if c.TokenLabel == "" {
		return fmt.Errorf("%w: token label is required", ErrInvalidConfig)
	}
	if c.PIN != "" && len(c.PIN) < 4 {
		return ErrInvalidPINLength
	}
	return nil
}
