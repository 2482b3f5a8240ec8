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

// Mapping maps keys to values stored at composed keys below a root key.
// It holds no state: every operation goes straight to the ledger.
type Mapping[K, V any] struct {
	storage    *Storage
	root       RootKey
	keyCodec   Codec[K]
	valueCodec Codec[V]
}

func NewMapping[K, V any](
	storage *Storage,
	root RootKey,
	keyCodec Codec[K],
	valueCodec Codec[V],
) *Mapping[K, V] {
	return &Mapping[K, V]{
		storage:    storage,
		root:       root,
		keyCodec:   keyCodec,
		valueCodec: valueCodec,
	}
}

func (m *Mapping[K, V]) Root() RootKey {
	return m.root
}

// storageKey returns the composed storage key and the encoded key.
func (m *Mapping[K, V]) storageKey(key K) (StorageKey, []byte, error) {
	encodedKey, err := encodeWith(m.keyCodec, key)
	if err != nil {
		// Don't need to wrap error as external error because err is already categorized by encodeWith().
		return StorageKeyUndefined, nil, err
	}

	storageKey, err := m.storage.Composer().Compose(m.root, encodedKey)
	if err != nil {
		// Don't need to wrap error as external error because err is already categorized by KeyComposer.Compose().
		return StorageKeyUndefined, nil, err
	}

	return storageKey, encodedKey, nil
}

// StorageKey returns the ledger key used for key.
func (m *Mapping[K, V]) StorageKey(key K) (StorageKey, error) {
	storageKey, _, err := m.storageKey(key)
	return storageKey, err
}

// Insert stores value at key. A value that doesn't fit into the transfer buffer is fatal.
func (m *Mapping[K, V]) Insert(key K, value V) error {
	return escalateValueError(m.TryInsert(key, value))
}

// TryInsert is like Insert but returns BufferTooSmallError if the encoded key
// and value don't fit into the transfer buffer together.
func (m *Mapping[K, V]) TryInsert(key K, value V) error {
	storageKey, encodedKey, err := m.storageKey(key)
	if err != nil {
		return err
	}

	bufferSize := uint64(m.storage.BufferSize())
	keySize := uint64(len(encodedKey))
	if keySize > bufferSize {
		return NewBufferTooSmallError(keySize, bufferSize)
	}

	data, err := encodeWith(m.valueCodec, value)
	if err != nil {
		return err
	}

	if keySize+uint64(len(data)) > bufferSize {
		return NewBufferTooSmallError(keySize+uint64(len(data)), bufferSize)
	}

	return m.storage.Set(storageKey, data)
}

// Get returns the value stored at key. A stored value that can't be decoded is fatal.
func (m *Mapping[K, V]) Get(key K) (V, bool, error) {
	var zero V

	storageKey, _, err := m.storageKey(key)
	if err != nil {
		return zero, false, escalateValueError(err)
	}

	v, found, err := getValue(m.storage, storageKey, m.valueCodec)
	return v, found, escalateValueError(err)
}

// TryGet is like Get but checks the stored size against the transfer
// buffer before fetching, and returns decoding errors.
func (m *Mapping[K, V]) TryGet(key K) (V, bool, error) {
	var zero V

	storageKey, encodedKey, err := m.storageKey(key)
	if err != nil {
		return zero, false, err
	}

	err = m.checkTransferSize(storageKey, encodedKey)
	if err != nil {
		return zero, false, err
	}

	return getValue(m.storage, storageKey, m.valueCodec)
}

func (m *Mapping[K, V]) checkTransferSize(storageKey StorageKey, encodedKey []byte) error {
	bufferSize := uint64(m.storage.BufferSize())
	keySize := uint64(len(encodedKey))
	if keySize > bufferSize {
		return NewBufferTooSmallError(keySize, bufferSize)
	}

	valueSize, found, err := m.storage.Size(storageKey)
	if err != nil {
		return err
	}
	if found && keySize+uint64(valueSize) > bufferSize {
		return NewBufferTooSmallError(keySize+uint64(valueSize), bufferSize)
	}
	return nil
}

// Take removes and returns the value stored at key.
func (m *Mapping[K, V]) Take(key K) (V, bool, error) {
	v, found, err := m.take(key, false)
	return v, found, escalateValueError(err)
}

// TryTake is like Take but returns buffer and decoding errors. The value is
// left in place when it can't be decoded.
func (m *Mapping[K, V]) TryTake(key K) (V, bool, error) {
	return m.take(key, true)
}

func (m *Mapping[K, V]) take(key K, checkSize bool) (V, bool, error) {
	var zero V

	storageKey, encodedKey, err := m.storageKey(key)
	if err != nil {
		return zero, false, err
	}

	if checkSize {
		err = m.checkTransferSize(storageKey, encodedKey)
		if err != nil {
			return zero, false, err
		}
	}

	v, found, err := getValue(m.storage, storageKey, m.valueCodec)
	if err != nil || !found {
		return zero, false, err
	}

	err = m.storage.Clear(storageKey)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Contains returns true if a value is stored at key.
func (m *Mapping[K, V]) Contains(key K) (bool, error) {
	storageKey, _, err := m.storageKey(key)
	if err != nil {
		return false, escalateValueError(err)
	}
	return m.storage.Contains(storageKey)
}

// Size returns the encoded size of the value stored at key.
func (m *Mapping[K, V]) Size(key K) (uint32, bool, error) {
	storageKey, _, err := m.storageKey(key)
	if err != nil {
		return 0, false, escalateValueError(err)
	}
	return m.storage.Size(storageKey)
}

// Remove clears the value stored at key without reading it.
func (m *Mapping[K, V]) Remove(key K) error {
	storageKey, _, err := m.storageKey(key)
	if err != nil {
		return escalateValueError(err)
	}
	return m.storage.Clear(storageKey)
}
