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

package ecies

import (
	"encoding/binary"
	"hash"
)

// DeriveX963 implements the ANSI X9.63 key derivation function.
//
// The output is the concatenation of hash(secret || counter || sharedInfo)
// for counter = 1, 2, ..., truncated to length bytes. The counter is a
// 32-bit big-endian integer.
func DeriveX963(newHash func() hash.Hash, secret, sharedInfo []byte, length int) []byte {
	h := newHash()
	out := make([]byte, 0, length)
	var counter [4]byte

	for i := uint32(1); len(out) < length; i++ {
		binary.BigEndian.PutUint32(counter[:], i)
		h.Reset()
		h.Write(secret)
		h.Write(counter[:])
		h.Write(sharedInfo)
		out = h.Sum(out)
	}

	return out[:length]
}
