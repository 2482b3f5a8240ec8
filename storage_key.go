/*
 * Lazystore - Lazy Storage Collections
 *
 * Copyright Flow Foundation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *   http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package lazystore

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const StorageKeyLength = 32

// StorageKey addresses one ledger entry.
type StorageKey [StorageKeyLength]byte

var StorageKeyUndefined = StorageKey{}

func (k StorageKey) String() string {
	return fmt.Sprintf("0x%x", k[:])
}

// RootKey is the manually chosen base key of a collection. Two collections
// sharing a RootKey share storage.
type RootKey uint32

// KeyComposer derives storage keys from a root key and a list of sub-keys.
//
// The key material is the deterministic CBOR encoding of the tuple
// [root, part_0, ..., part_n] with every part encoded as a byte string.
// Material that fits into StorageKeyLength bytes is used directly (zero padded),
// longer material is hashed. CBOR data items are self-delimiting, so padding
// can't make two different tuples equal.
//
// Collisions between hashed keys are not detected.
type KeyComposer struct {
	hasher  Hasher
	encMode cbor.EncMode
}

func NewKeyComposer(hasher Hasher) KeyComposer {
	return KeyComposer{hasher: hasher, encMode: defaultEncMode}
}

var DefaultKeyComposer = NewKeyComposer(Blake2x256{})

// Material returns the encoded tuple used to derive the storage key.
func (c KeyComposer) Material(root RootKey, parts ...[]byte) ([]byte, error) {
	tuple := make([]any, 0, len(parts)+1)
	tuple = append(tuple, uint64(root))
	for _, part := range parts {
		if part == nil {
			// nil slices are encoded as CBOR null.
			part = []byte{}
		}
		tuple = append(tuple, part)
	}

	b, err := c.encMode.Marshal(tuple)
	if err != nil {
		return nil, NewEncodingError(err)
	}
	return b, nil
}

// Compose returns the storage key for root and parts.
func (c KeyComposer) Compose(root RootKey, parts ...[]byte) (StorageKey, error) {
	material, err := c.Material(root, parts...)
	if err != nil {
		// Don't need to wrap error as external error because err is already categorized by Material().
		return StorageKeyUndefined, err
	}

	if len(material) <= StorageKeyLength {
		var key StorageKey
		copy(key[:], material)
		return key, nil
	}

	return c.hasher.Hash256(material), nil
}
