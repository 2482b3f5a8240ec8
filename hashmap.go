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

	"go.uber.org/zap"
)

// hashMapValuesPrefix separates value entries from the key stash below the
// same root key.
var hashMapValuesPrefix = []byte("hmap")

// ValueEntry is a stored map value plus the index of its key in the key stash.
type ValueEntry[V any] struct {
	Value    V
	KeyIndex uint32
}

type encodedValueEntry struct {
	_        struct{} `cbor:",toarray"`
	Value    []byte
	KeyIndex uint32
}

type valueEntryCodec[V any] struct {
	valueCodec Codec[V]
}

var _ Codec[ValueEntry[uint32]] = valueEntryCodec[uint32]{}

func (c valueEntryCodec[V]) Encode(entry ValueEntry[V]) ([]byte, error) {
	value, err := encodeWith(c.valueCodec, entry.Value)
	if err != nil {
		// Don't need to wrap error as external error because err is already categorized by encodeWith().
		return nil, err
	}

	b, err := defaultEncMode.Marshal(encodedValueEntry{Value: value, KeyIndex: entry.KeyIndex})
	if err != nil {
		return nil, NewEncodingError(err)
	}
	return b, nil
}

func (c valueEntryCodec[V]) Decode(data []byte) (ValueEntry[V], error) {
	var encoded encodedValueEntry
	err := defaultDecMode.Unmarshal(data, &encoded)
	if err != nil {
		return ValueEntry[V]{}, NewDecodingError(err)
	}

	value, err := decodeWith(c.valueCodec, encoded.Value)
	if err != nil {
		// Don't need to wrap error as external error because err is already categorized by decodeWith().
		return ValueEntry[V]{}, err
	}
	return ValueEntry[V]{Value: value, KeyIndex: encoded.KeyIndex}, nil
}

// HashMap is a lazily loaded hash map.
//
// Values live in a LazyHashMap at composed keys, so a lookup never touches
// more than one ledger entry. The backend can't enumerate keys, so the set
// of keys is kept in a Stash. Every ValueEntry points at the stash entry
// holding its key and every mutation keeps both sides in sync.
//
// Hashed storage keys are not checked for collisions.
type HashMap[K, V any] struct {
	storage *Storage
	root    RootKey
	keys    *Stash[K]
	values  *LazyHashMap[K, ValueEntry[V]]

	// generation is bumped by every structural mutation to invalidate
	// outstanding entries.
	generation uint64
}

// HashMapIterationFunc is called for every key and value in key stash order.
type HashMapIterationFunc[K, V any] func(key K, value V) (resume bool, err error)

// HashMapKeyIterationFunc is called for every key in key stash order.
type HashMapKeyIterationFunc[K any] func(key K) (resume bool, err error)

// NewHashMap returns the map stored below root. Nothing is read except the
// key stash header.
func NewHashMap[K, V any](
	storage *Storage,
	root RootKey,
	keyCodec Codec[K],
	valueCodec Codec[V],
) (*HashMap[K, V], error) {
	keys, err := NewStash(storage, root, keyCodec)
	if err != nil {
		return nil, err
	}

	values := NewLazyHashMap(
		storage,
		root,
		hashMapValuesPrefix,
		keyCodec,
		Codec[ValueEntry[V]](valueEntryCodec[V]{valueCodec: valueCodec}),
	)

	return &HashMap[K, V]{
		storage: storage,
		root:    root,
		keys:    keys,
		values:  values,
	}, nil
}

func (m *HashMap[K, V]) Root() RootKey {
	return m.root
}

// Len returns the number of keys.
func (m *HashMap[K, V]) Len() uint32 {
	return m.keys.Len()
}

func (m *HashMap[K, V]) IsEmpty() bool {
	return m.keys.IsEmpty()
}

// Insert sets the value for key and returns the previous value.
// Replacing an existing value keeps its key stash entry.
func (m *HashMap[K, V]) Insert(key K, value V) (V, bool, error) {
	var zero V

	entry, err := m.values.GetMut(key)
	if err != nil {
		return zero, false, err
	}

	m.generation++

	if entry != nil {
		old := entry.Value
		entry.Value = value
		return old, true, nil
	}

	keyIndex, err := m.keys.Put(key)
	if err != nil {
		return zero, false, err
	}

	err = m.values.Put(key, &ValueEntry[V]{Value: value, KeyIndex: keyIndex})
	if err != nil {
		return zero, false, err
	}

	return zero, false, nil
}

// Take removes key and returns its value.
func (m *HashMap[K, V]) Take(key K) (V, bool, error) {
	var zero V

	entry, found, err := m.values.PutGet(key, nil)
	if err != nil {
		return zero, false, err
	}
	if !found {
		return zero, false, nil
	}

	m.generation++

	_, taken, err := m.keys.Take(entry.KeyIndex)
	if err != nil {
		return zero, false, err
	}
	if !taken {
		panic(NewCollectionInvariantErrorf("key stash entry %d of a stored value is vacant", entry.KeyIndex))
	}

	return entry.Value, true, nil
}

// Get returns the value for key. A stored value that can't be decoded is fatal.
func (m *HashMap[K, V]) Get(key K) (V, bool, error) {
	entry, found, err := m.values.Get(key)
	if err != nil || !found {
		var zero V
		return zero, false, err
	}
	return entry.Value, true, nil
}

// TryGet is like Get but returns buffer and decoding errors.
func (m *HashMap[K, V]) TryGet(key K) (V, bool, error) {
	entry, found, err := m.values.TryGet(key)
	if err != nil || !found {
		var zero V
		return zero, false, err
	}
	return entry.Value, true, nil
}

// GetMut returns a pointer to the cached value for key, or nil if absent.
// The value is pushed on the next Commit.
func (m *HashMap[K, V]) GetMut(key K) (*V, error) {
	entry, err := m.values.GetMut(key)
	if err != nil || entry == nil {
		return nil, err
	}
	return &entry.Value, nil
}

// ContainsKey returns true if a value is stored for key.
func (m *HashMap[K, V]) ContainsKey(key K) (bool, error) {
	_, found, err := m.values.Get(key)
	return found, err
}

// Defrag frees up to maxIterations key stash entries and returns the
// number freed. Relocated keys get their value entry patched.
func (m *HashMap[K, V]) Defrag(maxIterations uint32) (uint32, error) {
	if maxIterations == 0 {
		return 0, nil
	}

	freed, err := m.keys.Defrag(maxIterations, func(from, to uint32, key K) error {
		entry, err := m.values.GetMut(key)
		if err != nil {
			return err
		}
		if entry == nil {
			panic(NewCollectionInvariantErrorf("key at stash entry %d has no stored value", from))
		}
		if debugChecks && entry.KeyIndex != from {
			panic(NewCollectionInvariantErrorf("value entry points at stash entry %d, want %d", entry.KeyIndex, from))
		}
		entry.KeyIndex = to
		return nil
	})

	if freed > 0 {
		m.generation++
	}

	return freed, err
}

// DefragAll frees every vacant key stash entry.
func (m *HashMap[K, V]) DefragAll() (uint32, error) {
	return m.Defrag(m.keys.Capacity() - m.keys.Len())
}

// Iterate calls fn for every key and value in key stash order.
func (m *HashMap[K, V]) Iterate(fn HashMapIterationFunc[K, V]) error {
	return m.keys.Iterate(func(index uint32, key K) (bool, error) {
		entry, found, err := m.values.Get(key)
		if err != nil {
			return false, err
		}
		if !found {
			panic(NewCollectionInvariantErrorf("key at stash entry %d has no stored value", index))
		}
		return fn(key, entry.Value)
	})
}

// IterateKeys calls fn for every key in key stash order without loading values.
func (m *HashMap[K, V]) IterateKeys(fn HashMapKeyIterationFunc[K]) error {
	return m.keys.Iterate(func(_ uint32, key K) (bool, error) {
		return fn(key)
	})
}

// Commit pushes every mutation made through this map to the ledger.
func (m *HashMap[K, V]) Commit() error {
	err := m.keys.Commit()
	if err != nil {
		return err
	}

	err = m.values.Commit()
	if err != nil {
		return err
	}

	m.storage.Logger().Debug(
		"hash map committed",
		zap.Uint32("root", uint32(m.root)),
		zap.Uint32("len", m.keys.Len()),
	)
	return nil
}

// Clear removes every key and value from the ledger, including uncommitted
// ones. It costs one ledger write per value and per key stash entry.
func (m *HashMap[K, V]) Clear() error {
	m.generation++

	err := m.keys.Iterate(func(_ uint32, key K) (bool, error) {
		return true, m.values.ClearAt(key)
	})
	if err != nil {
		return err
	}

	err = m.values.ClearCached()
	if err != nil {
		return err
	}

	return m.keys.ClearCells()
}

func (m *HashMap[K, V]) String() string {
	return fmt.Sprintf("HashMap(root: %d, %s)", m.root, m.keys)
}
