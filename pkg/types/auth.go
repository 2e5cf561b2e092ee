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

package types

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultReuseWindow is the reference authentication-reuse duration. A
// successful user-presence authentication satisfies subsequent protected
// operations for this long before the keystore prompts again.
const DefaultReuseWindow = 15 * time.Second

// AuthContext is the authentication context shared by all operations on a
// key handle. It carries the prompt shown to the user and the single tunable
// the core exposes: the allowable re-authentication reuse duration.
//
// Safe for concurrent use.
type AuthContext struct {
	// SessionID identifies this authentication session in logs and
	// diagnostics.
	SessionID uuid.UUID

	// Prompt is the text displayed by the OS authentication dialog.
	Prompt string

	// ReuseWindow is how long a successful authentication remains valid.
	ReuseWindow time.Duration

	mu              sync.Mutex
	authenticatedAt time.Time
}

// NewAuthContext returns an authentication context with the reference reuse
// window and a fresh session ID.
func NewAuthContext(prompt string) *AuthContext {
	return &AuthContext{
		SessionID:   uuid.New(),
		Prompt:      prompt,
		ReuseWindow: DefaultReuseWindow,
	}
}

// MarkAuthenticated records a successful user-presence authentication at the
// current time. Called by backends after the OS prompt completes.
func (a *AuthContext) MarkAuthenticated() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.authenticatedAt = time.Now()
}

// NeedsAuthentication returns true if no authentication has occurred within
// the reuse window and the next protected operation will prompt the user.
func (a *AuthContext) NeedsAuthentication() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.authenticatedAt.IsZero() {
		return true
	}
	return time.Since(a.authenticatedAt) > a.ReuseWindow
}
