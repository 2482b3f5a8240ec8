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
	"crypto/sha256"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Hasher derives 256-bit storage keys from key material that is too long
// to be used as a storage key directly.
type Hasher interface {
	Hash256(data []byte) StorageKey
}

// Blake2x256 is the default Hasher.
type Blake2x256 struct{}

var _ Hasher = Blake2x256{}

func (Blake2x256) Hash256(data []byte) StorageKey {
	return StorageKey(blake2b.Sum256(data))
}

// Keccak256 uses the legacy Keccak-256 (pre-standard SHA-3 padding).
type Keccak256 struct{}

var _ Hasher = Keccak256{}

func (Keccak256) Hash256(data []byte) StorageKey {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(data)

	var key StorageKey
	h.Sum(key[:0])
	return key
}

type Blake3x256 struct{}

var _ Hasher = Blake3x256{}

func (Blake3x256) Hash256(data []byte) StorageKey {
	return StorageKey(blake3.Sum256(data))
}

type Sha2x256 struct{}

var _ Hasher = Sha2x256{}

func (Sha2x256) Hash256(data []byte) StorageKey {
	return StorageKey(sha256.Sum256(data))
}
