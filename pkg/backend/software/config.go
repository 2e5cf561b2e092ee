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

package software

import (
	"fmt"

	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/storage"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// Config contains configuration for the software keystore.
type Config struct {
	// KeyStorage is the underlying storage for encoded key material. This
	// can be file-based, memory-based, or any implementation of the
	// storage.Backend interface.
	KeyStorage storage.Backend

	// Password encrypts private keys at rest (PKCS#8 encryption). If nil,
	// keys are stored as plaintext PKCS#8.
	Password types.Password

	// Logger receives operation logs, including the simulated
	// user-presence prompts. Defaults to the package default logger.
	Logger *logging.Logger
}

// Validate checks if the Config is valid.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("software: config is nil")
	}
	if c.KeyStorage == nil {
		return fmt.Errorf("software: KeyStorage is required")
	}
	return nil
}
