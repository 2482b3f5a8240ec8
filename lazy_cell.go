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
)

// LazyCell holds a single optional value at one storage key.
//
// The value is fetched on first access and cached for the lifetime of the
// cell. Writes go straight through to the ledger and update the cache.
type LazyCell[V any] struct {
	storage *Storage
	key     StorageKey
	codec   Codec[V]

	loaded bool
	cached *V
}

// NewLazyCell returns a cell stored at the root key itself.
func NewLazyCell[V any](storage *Storage, root RootKey, codec Codec[V]) (*LazyCell[V], error) {
	key, err := storage.Composer().Compose(root)
	if err != nil {
		// Don't need to wrap error as external error because err is already categorized by KeyComposer.Compose().
		return nil, err
	}
	return NewLazyCellAt(storage, key, codec), nil
}

// NewLazyCellAt returns a cell stored at an already composed key.
func NewLazyCellAt[V any](storage *Storage, key StorageKey, codec Codec[V]) *LazyCell[V] {
	return &LazyCell[V]{
		storage: storage,
		key:     key,
		codec:   codec,
	}
}

func (c *LazyCell[V]) Key() StorageKey {
	return c.key
}

func (c *LazyCell[V]) load() error {
	if c.loaded {
		return nil
	}

	v, found, err := getValue(c.storage, c.key, c.codec)
	if err != nil {
		// Don't need to wrap error as external error because err is already categorized by getValue().
		return err
	}

	c.loaded = true
	if found {
		c.cached = &v
	} else {
		c.cached = nil
	}
	return nil
}

// Get returns the cell value. A stored value that can't be decoded or
// doesn't fit into the transfer buffer is fatal.
func (c *LazyCell[V]) Get() (V, bool, error) {
	v, found, err := c.TryGet()
	return v, found, escalateValueError(err)
}

// TryGet is like Get but returns decoding and buffer errors.
func (c *LazyCell[V]) TryGet() (V, bool, error) {
	var zero V

	err := c.load()
	if err != nil {
		return zero, false, err
	}
	if c.cached == nil {
		return zero, false, nil
	}
	return *c.cached, true, nil
}

// Set writes value through to the ledger. A value that doesn't fit into the
// transfer buffer is fatal.
func (c *LazyCell[V]) Set(value V) error {
	return escalateValueError(c.TrySet(value))
}

// TrySet is like Set but returns encoding and buffer errors.
func (c *LazyCell[V]) TrySet(value V) error {
	err := setValue(c.storage, c.key, c.codec, value)
	if err != nil {
		// Don't need to wrap error as external error because err is already categorized by setValue().
		return err
	}

	c.loaded = true
	c.cached = &value
	return nil
}

// Clear removes the value from the ledger.
func (c *LazyCell[V]) Clear() error {
	err := c.storage.Clear(c.key)
	if err != nil {
		// Don't need to wrap error as external error because err is already categorized by Storage.Clear().
		return err
	}

	c.loaded = true
	c.cached = nil
	return nil
}

// verifyCache compares the cached value with the ledger. A mismatch means
// the ledger was modified behind the cell's back.
func (c *LazyCell[V]) verifyCache() error {
	if !c.loaded {
		return nil
	}

	data, found, err := c.storage.Get(c.key)
	if err != nil {
		// Don't need to wrap error as external error because err is already categorized by Storage.Get().
		return err
	}

	if c.cached == nil {
		if found {
			return NewCollectionInvariantErrorf("cell %s is cached as empty but stored in ledger", c.key)
		}
		return nil
	}

	want, err := encodeWith(c.codec, *c.cached)
	if err != nil {
		// Don't need to wrap error as external error because err is already categorized by encodeWith().
		return err
	}
	if !found || !bytes.Equal(want, data) {
		return NewCollectionInvariantErrorf("cell %s cache is inconsistent with ledger", c.key)
	}
	return nil
}
