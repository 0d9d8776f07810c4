// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 hash of a snapshot's canonical JSON form.
// Two snapshots with the same digest serialize identically, whatever
// order their deltas arrived in.
type Digest [32]byte

// String returns the lower-case hex encoding.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// digestKey is the BLAKE3 key for snapshot digests: the ASCII domain
// name zero-padded to 32 bytes.
var digestKey = [32]byte{
	'e', 'v', 'a', 'l', 'u', 'a', 't', 'o', 'r', '.', 's', 'n', 'a', 'p', 's', 'h',
	'o', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Digest hashes the snapshot's wire form. encoding/json writes map
// keys sorted, so the JSON text is canonical for a given state.
func (s *Snapshot) Digest() (Digest, error) {
	data, err := json.Marshal(s.Wire())
	if err != nil {
		return Digest{}, fmt.Errorf("encoding snapshot for digest: %w", err)
	}
	return digestBytes(data), nil
}

func digestBytes(data []byte) Digest {
	hasher, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		panic("snapshot: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}
