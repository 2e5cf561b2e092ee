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

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// Directory permissions, owner only
	dirPerms = 0700

	// Key material file permissions, owner rw only
	filePerms = 0600
)

// FileStorage is a file-based implementation of Backend. Each key maps to
// one file under the root directory; slashes in keys become directories.
// Thread-safe within a single process.
type FileStorage struct {
	mu      sync.RWMutex
	rootDir string
}

// NewFile creates a file storage backend rooted at rootDir. The directory
// is created with 0700 permissions if it does not exist.
func NewFile(rootDir string) (*FileStorage, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("storage: root directory cannot be empty")
	}
	if err := os.MkdirAll(rootDir, dirPerms); err != nil {
		return nil, fmt.Errorf("storage: failed to create root directory: %w", err)
	}
	return &FileStorage{rootDir: rootDir}, nil
}

// keyToPath maps a storage key to a path under the root, rejecting keys
// that would escape it.
func (f *FileStorage) keyToPath(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return filepath.Join(f.rootDir, filepath.FromSlash(key)), nil
}

// Get retrieves the value for the given key.
func (f *FileStorage) Get(key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	path, err := f.keyToPath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to read key %q: %w", key, err)
	}
	return data, nil
}

// Put stores the value for the given key, creating parent directories as
// needed. Files are written with 0600 permissions.
func (f *FileStorage) Put(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path, err := f.keyToPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return fmt.Errorf("storage: failed to create directory for key %q: %w", key, err)
	}
	if err := os.WriteFile(path, value, filePerms); err != nil {
		return fmt.Errorf("storage: failed to write key %q: %w", key, err)
	}
	return nil
}

// Delete removes the key and its value.
func (f *FileStorage) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path, err := f.keyToPath(key)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("storage: failed to stat key %q: %w", key, err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("storage: failed to delete key %q: %w", key, err)
	}
	return nil
}

// Exists checks if a key exists.
func (f *FileStorage) Exists(key string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	path, err := f.keyToPath(key)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: failed to check key %q: %w", key, err)
	}
	return true, nil
}

// Close is a no-op for file storage.
func (f *FileStorage) Close() error {
	return nil
}
