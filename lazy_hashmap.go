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
	"bytes"
	"sort"

	"go.uber.org/zap"
)

type entryState uint8

const (
	// entryStatePreserved means the cached entry matches the ledger.
	entryStatePreserved entryState = iota
	// entryStateMutated means the cached entry must be pushed on Commit.
	entryStateMutated
)

type lazyEntry[K, V any] struct {
	key   K
	value *V // nil means absent
	state entryState
}

// LazyHashMap maps keys to values stored at composed storage keys. Entries
// are loaded on first access and cached until Commit pushes the mutated ones
// back to the ledger. The map can't be enumerated.
type LazyHashMap[K, V any] struct {
	storage    *Storage
	root       RootKey
	prefix     []byte
	keyCodec   Codec[K]
	valueCodec Codec[V]
	cache      map[StorageKey]*lazyEntry[K, V]
}

// NewLazyHashMap returns a map storing the value for key k at [root, prefix, enc(k)],
// or at [root, enc(k)] if prefix is nil.
func NewLazyHashMap[K, V any](
	storage *Storage,
	root RootKey,
	prefix []byte,
	keyCodec Codec[K],
	valueCodec Codec[V],
) *LazyHashMap[K, V] {
	return &LazyHashMap[K, V]{
		storage:    storage,
		root:       root,
		prefix:     prefix,
		keyCodec:   keyCodec,
		valueCodec: valueCodec,
		cache:      make(map[StorageKey]*lazyEntry[K, V]),
	}
}

// StorageKey returns the ledger key holding the value for key.
func (m *LazyHashMap[K, V]) StorageKey(key K) (StorageKey, error) {
	encodedKey, err := encodeWith(m.keyCodec, key)
	if err != nil {
		// Don't need to wrap error as external error because err is already categorized by encodeWith().
		return StorageKeyUndefined, err
	}
	if m.prefix == nil {
		return m.storage.Composer().Compose(m.root, encodedKey)
	}
	return m.storage.Composer().Compose(m.root, m.prefix, encodedKey)
}

// load returns the cached entry for key, fetching it from the ledger on a miss.
func (m *LazyHashMap[K, V]) load(key K) (StorageKey, *lazyEntry[K, V], error) {
	storageKey, err := m.StorageKey(key)
	if err != nil {
		return StorageKeyUndefined, nil, err
	}

	if entry, ok := m.cache[storageKey]; ok {
		return storageKey, entry, nil
	}

	v, found, err := getValue(m.storage, storageKey, m.valueCodec)
	if err != nil {
		// Don't need to wrap error as external error because err is already categorized by getValue().
		return StorageKeyUndefined, nil, err
	}

	entry := &lazyEntry[K, V]{key: key, state: entryStatePreserved}
	if found {
		entry.value = &v
	}
	m.cache[storageKey] = entry

	return storageKey, entry, nil
}

// Get returns the value for key. A stored value that can't be decoded is fatal.
func (m *LazyHashMap[K, V]) Get(key K) (V, bool, error) {
	v, found, err := m.TryGet(key)
	return v, found, escalateValueError(err)
}

// TryGet is like Get but returns buffer and decoding errors.
func (m *LazyHashMap[K, V]) TryGet(key K) (V, bool, error) {
	var zero V

	_, entry, err := m.load(key)
	if err != nil {
		return zero, false, err
	}
	if entry.value == nil {
		return zero, false, nil
	}
	return *entry.value, true, nil
}

// GetMut returns a pointer to the cached value for key, or nil if absent.
// The entry is pushed on the next Commit.
func (m *LazyHashMap[K, V]) GetMut(key K) (*V, error) {
	_, entry, err := m.load(key)
	if err != nil {
		return nil, escalateValueError(err)
	}
	if entry.value == nil {
		return nil, nil
	}
	entry.state = entryStateMutated
	return entry.value, nil
}

// Put sets the value for key without fetching the previous one.
// A nil value removes the entry.
func (m *LazyHashMap[K, V]) Put(key K, value *V) error {
	storageKey, err := m.StorageKey(key)
	if err != nil {
		return escalateValueError(err)
	}
	if entry, ok := m.cache[storageKey]; ok {
		entry.value = value
		entry.state = entryStateMutated
		return nil
	}
	m.cache[storageKey] = &lazyEntry[K, V]{
		key:   key,
		value: value,
		state: entryStateMutated,
	}
	return nil
}

// PutGet sets the value for key and returns the previous one.
// A nil value removes the entry.
func (m *LazyHashMap[K, V]) PutGet(key K, value *V) (V, bool, error) {
	var zero V

	_, entry, err := m.load(key)
	if err != nil {
		return zero, false, escalateValueError(err)
	}

	old := entry.value
	entry.value = value
	entry.state = entryStateMutated

	if old == nil {
		return zero, false, nil
	}
	return *old, true, nil
}

// Swap exchanges the values of keys a and b.
func (m *LazyHashMap[K, V]) Swap(a, b K) error {
	storageKeyA, entryA, err := m.load(a)
	if err != nil {
		return escalateValueError(err)
	}
	storageKeyB, entryB, err := m.load(b)
	if err != nil {
		return escalateValueError(err)
	}

	if storageKeyA == storageKeyB {
		return nil
	}
	if entryA.value == nil && entryB.value == nil {
		return nil
	}

	entryA.value, entryB.value = entryB.value, entryA.value
	entryA.state = entryStateMutated
	entryB.state = entryStateMutated
	return nil
}

// ClearAt removes the value for key from the ledger immediately and drops
// its cached entry.
func (m *LazyHashMap[K, V]) ClearAt(key K) error {
	storageKey, err := m.StorageKey(key)
	if err != nil {
		return escalateValueError(err)
	}

	delete(m.cache, storageKey)

	return m.storage.Clear(storageKey)
}

// Entry looks key up once and returns a handle to its slot.
func (m *LazyHashMap[K, V]) Entry(key K) (*LazyEntry[K, V], error) {
	storageKey, entry, err := m.load(key)
	if err != nil {
		return nil, escalateValueError(err)
	}
	return &LazyEntry[K, V]{storageKey: storageKey, entry: entry}, nil
}

// Commit pushes every mutated entry to the ledger in storage key order.
func (m *LazyHashMap[K, V]) Commit() error {
	keys := make([]StorageKey, 0, len(m.cache))
	for storageKey, entry := range m.cache {
		if entry.state == entryStateMutated {
			keys = append(keys, storageKey)
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})

	for _, storageKey := range keys {
		entry := m.cache[storageKey]

		var err error
		if entry.value == nil {
			err = m.storage.Clear(storageKey)
		} else {
			err = setValue(m.storage, storageKey, m.valueCodec, *entry.value)
		}
		if err != nil {
			return escalateValueError(err)
		}

		entry.state = entryStatePreserved
	}

	if len(keys) > 0 {
		m.storage.Logger().Debug(
			"lazy map committed",
			zap.Uint32("root", uint32(m.root)),
			zap.Int("entries", len(keys)),
		)
	}

	return nil
}

// CachedLen returns the number of cached entries, present or absent.
func (m *LazyHashMap[K, V]) CachedLen() int {
	return len(m.cache)
}

// ClearCached removes every cached entry that is present or was mutated
// from the ledger and drops the cache.
func (m *LazyHashMap[K, V]) ClearCached() error {
	for storageKey, entry := range m.cache {
		if entry.value == nil && entry.state == entryStatePreserved {
			continue
		}
		err := m.storage.Clear(storageKey)
		if err != nil {
			return err
		}
	}
	m.DropCache()
	return nil
}

// DropCache discards every cached entry, including uncommitted mutations.
func (m *LazyHashMap[K, V]) DropCache() {
	m.cache = make(map[StorageKey]*lazyEntry[K, V])
}

// LazyEntry is the result of a single LazyHashMap lookup.
type LazyEntry[K, V any] struct {
	storageKey StorageKey
	entry      *lazyEntry[K, V]
}

func (e *LazyEntry[K, V]) Key() K {
	return e.entry.key
}

func (e *LazyEntry[K, V]) StorageKey() StorageKey {
	return e.storageKey
}

func (e *LazyEntry[K, V]) IsOccupied() bool {
	return e.entry.value != nil
}

func (e *LazyEntry[K, V]) Get() (V, bool) {
	if e.entry.value == nil {
		var zero V
		return zero, false
	}
	return *e.entry.value, true
}

// GetMut returns a pointer to the value, or nil if the entry is vacant.
func (e *LazyEntry[K, V]) GetMut() *V {
	if e.entry.value == nil {
		return nil
	}
	e.entry.state = entryStateMutated
	return e.entry.value
}

// Insert sets the value and returns a pointer to it.
func (e *LazyEntry[K, V]) Insert(value V) *V {
	e.entry.value = &value
	e.entry.state = entryStateMutated
	return e.entry.value
}

// Remove empties the entry and returns the previous value.
func (e *LazyEntry[K, V]) Remove() (V, bool) {
	old := e.entry.value
	e.entry.value = nil
	e.entry.state = entryStateMutated
	if old == nil {
		var zero V
		return zero, false
	}
	return *old, true
}

// OrInsert inserts value if the entry is vacant and returns a pointer to
// the entry's value.
func (e *LazyEntry[K, V]) OrInsert(value V) *V {
	if e.entry.value != nil {
		return e.GetMut()
	}
	return e.Insert(value)
}
