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

package enclave

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// Identity names a logical key. It is immutable for the lifetime of a
// handle. The keystore scopes every operation, lookups and deletes alike,
// by the qualified group; the identifier/group halves are never used
// separately.
type Identity struct {
	// Tag is the application-scoped label, unique per logical key.
	Tag []byte

	// Identifier is the application/bundle scope.
	Identifier string

	// Group is the sharing scope within the identifier.
	Group string
}

// QualifiedGroup returns the fully qualified access group:
// identifier + "." + group.
func (i Identity) QualifiedGroup() string {
	return i.Identifier + "." + i.Group
}

// Validate checks the identity fields for non-emptiness. No further
// parsing or validation is performed.
func (i Identity) Validate() error {
	if len(i.Tag) == 0 {
		return fmt.Errorf("%w: tag is required", ErrInvalidIdentity)
	}
	if i.Identifier == "" {
		return fmt.Errorf("%w: identifier is required", ErrInvalidIdentity)
	}
	if i.Group == "" {
		return fmt.Errorf("%w: group is required", ErrInvalidIdentity)
	}
	return nil
}

// String returns the identity formatted for logs.
func (i Identity) String() string {
	return fmt.Sprintf("%s@%s", i.Tag, i.QualifiedGroup())
}

// resolveState is the key resolution state machine. Resolution happens at
// most once per handle; both outcomes are terminal.
type resolveState uint8

const (
	stateUninitialized resolveState = iota
	stateReady
	stateFailed
)

// KeyHandle resolves, lazily and exactly once, a reference to the private
// key backing an identity, with find-or-create semantics. The matching
// public key reference is derived from the private one and cached alongside
// it.
//
// A mutex serializes resolution, so concurrent first calls cannot issue
// duplicate creation attempts against the keystore. Races with other
// processes sharing the access group are resolved by the keystore's own
// create/lookup atomicity plus a single retry when creation reports
// already-exists.
type KeyHandle struct {
	identity Identity
	policy   types.AccessPolicy
	auth     *types.AuthContext
	keystore types.Keystore
	logger   *logging.Logger

	mu         sync.Mutex
	state      resolveState
	privRef    types.KeyRef
	pubRef     types.KeyRef
	resolveErr error
}

// NewKeyHandle creates a handle for the given identity. The key material is
// not touched until the first PrivateKey or PublicKey call.
func NewKeyHandle(keystore types.Keystore, identity Identity, policy types.AccessPolicy, auth *types.AuthContext, logger *logging.Logger) *KeyHandle {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &KeyHandle{
		identity: identity,
		policy:   policy,
		auth:     auth,
		keystore: keystore,
		logger:   logger,
	}
}

// Identity returns the identity this handle is bound to.
func (h *KeyHandle) Identity() Identity {
	return h.identity
}

// PrivateKey returns a reference to the private key backing this identity,
// resolving it on first use. Resolution queries the keystore for an
// existing key and creates one if absent; the first call may block on a
// user-presence prompt. Once resolution has succeeded or failed the outcome
// is cached and subsequent calls are side-effect-free.
func (h *KeyHandle) PrivateKey() (types.KeyRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.privateKeyLocked()
}

// privateKeyLocked implements the resolution state machine. Caller must
// hold h.mu.
func (h *KeyHandle) privateKeyLocked() (types.KeyRef, error) {
	switch h.state {
	case stateReady:
		return h.privRef, nil
	case stateFailed:
		return nil, h.resolveErr
	}

	ref, err := h.resolve()
	if err != nil {
		h.state = stateFailed
		h.resolveErr = err
		return nil, err
	}

	h.state = stateReady
	h.privRef = ref
	return ref, nil
}

// resolve performs the find-or-create round trip. Caller must hold h.mu.
func (h *KeyHandle) resolve() (types.KeyRef, error) {
	query := &types.KeyQuery{
		Class:       types.KeyClassPrivate,
		Tag:         h.identity.Tag,
		AccessGroup: h.identity.QualifiedGroup(),
		Auth:        h.auth,
	}

	ref, err := h.keystore.FindKey(query)
	if err == nil {
		h.logger.Debugf("enclave: found existing key %s", h.identity)
		return ref, nil
	}
	if !errors.Is(err, types.ErrKeyNotFound) {
		return nil, err
	}

	caps := h.keystore.Capabilities()
	if !caps.HardwareBacked {
		h.logger.Warnf("enclave: keystore %q has no secure element; creating software-backed key %s",
			h.keystore.Type(), h.identity)
	}

	attrs := &types.KeyAttributes{
		Tag:         h.identity.Tag,
		AccessGroup: h.identity.QualifiedGroup(),
		Algorithm:   types.AlgorithmECDSAP256,
		Permanent:   true,
		TokenBound:  caps.HardwareBacked,
		Policy:      h.policy,
		Auth:        h.auth,
	}

	ref, err = h.keystore.CreateKey(attrs)
	if err == nil {
		h.logger.Debugf("enclave: created key %s", h.identity)
		return ref, nil
	}
	if errors.Is(err, types.ErrKeyAlreadyExists) {
		// Lost the creation race to another process sharing the access
		// group; the entry exists now, so one lookup retry settles it.
		return h.keystore.FindKey(query)
	}

	return nil, err
}

// PublicKey returns a reference to the public key, deriving it from the
// private key on first use. Returns an error only if private key
// resolution failed.
func (h *KeyHandle) PublicKey() (types.KeyRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pubRef != nil {
		return h.pubRef, nil
	}

	priv, err := h.privateKeyLocked()
	if err != nil {
		return nil, err
	}

	pub, err := h.keystore.PublicKey(priv)
	if err != nil {
		return nil, err
	}

	h.pubRef = pub
	return pub, nil
}

// DeletePrivateKey removes the private key entry from the keystore.
//
// Deletion does not clear this handle's cached reference: a handle that has
// already resolved keeps operating on the stale reference until discarded.
// Callers that delete a key must discard the owning handle (and service)
// and construct a new one.
func (h *KeyHandle) DeletePrivateKey() error {
	return h.deleteKey(types.KeyClassPrivate)
}

// DeletePublicKey removes the public key entry from the keystore. The same
// stale-cache hazard as DeletePrivateKey applies.
func (h *KeyHandle) DeletePublicKey() error {
	return h.deleteKey(types.KeyClassPublic)
}

func (h *KeyHandle) deleteKey(class types.KeyClass) error {
	err := h.keystore.DeleteKey(&types.KeyQuery{
		Class:       class,
		Tag:         h.identity.Tag,
		AccessGroup: h.identity.QualifiedGroup(),
		Auth:        h.auth,
	})
	if err != nil {
		return err
	}
	h.logger.Debugf("enclave: deleted %s key %s", class, h.identity)
	return nil
}
