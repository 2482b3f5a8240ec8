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
	"errors"
	"math"
)

// StorageVec is a vector whose elements are stored at their own composed
// keys below the root key, next to a length cell at the root key itself.
//
// Reading or writing an element costs the same regardless of the vector
// length, but elements can only be pushed and popped at the back. Elements
// below Len may be missing after ClearAt.
//
// Two vectors created with the same root key share their contents.
type StorageVec[V any] struct {
	len      *LazyCell[uint32]
	elements *Mapping[uint32, V]
}

// StorageVecIterationFunc is called for every present element in index order.
type StorageVecIterationFunc[V any] func(index uint32, value V) (resume bool, err error)

func NewStorageVec[V any](storage *Storage, root RootKey, codec Codec[V]) (*StorageVec[V], error) {
	length, err := NewLazyCell(storage, root, Codec[uint32](NewCBORCodec[uint32]()))
	if err != nil {
		return nil, err
	}

	return &StorageVec[V]{
		len:      length,
		elements: NewMapping(storage, root, Codec[uint32](NewCBORCodec[uint32]()), codec),
	}, nil
}

// Len returns the number of elements. The length is read from the ledger
// once and cached.
func (v *StorageVec[V]) Len() (uint32, error) {
	if debugChecks {
		err := v.len.verifyCache()
		if err != nil {
			var fatalError *FatalError
			if errors.As(err, &fatalError) {
				panic(err)
			}
			return 0, escalateValueError(err)
		}
	}

	length, _, err := v.len.Get()
	return length, err
}

func (v *StorageVec[V]) IsEmpty() (bool, error) {
	length, err := v.Len()
	return length == 0, err
}

func (v *StorageVec[V]) setLen(length uint32) error {
	return v.len.Set(length)
}

// Push appends value. A value that doesn't fit into the transfer buffer is fatal.
func (v *StorageVec[V]) Push(value V) error {
	return escalateValueError(v.TryPush(value))
}

// TryPush is like Push but returns BufferTooSmallError if the value doesn't
// fit into the transfer buffer. The vector is unchanged on error.
func (v *StorageVec[V]) TryPush(value V) error {
	slot, err := v.Len()
	if err != nil {
		return err
	}
	if slot == math.MaxUint32 {
		panic(NewCollectionInvariantErrorf("vector length overflow"))
	}

	occupied, err := v.elements.Contains(slot)
	if err != nil {
		return err
	}
	if occupied {
		panic(NewCollectionInvariantErrorf("vector slot %d is already occupied", slot))
	}

	err = v.elements.TryInsert(slot, value)
	if err != nil {
		return err
	}

	return v.setLen(slot + 1)
}

// Pop removes and returns the last element. A hole at the last index
// shrinks the vector but returns no value.
func (v *StorageVec[V]) Pop() (V, bool, error) {
	value, found, err := v.pop(false)
	return value, found, escalateValueError(err)
}

// TryPop is like Pop but returns buffer and decoding errors. The vector is
// unchanged on error.
func (v *StorageVec[V]) TryPop() (V, bool, error) {
	return v.pop(true)
}

func (v *StorageVec[V]) pop(try bool) (V, bool, error) {
	var zero V

	length, err := v.Len()
	if err != nil || length == 0 {
		return zero, false, err
	}

	slot := length - 1

	var value V
	var found bool
	if try {
		value, found, err = v.elements.TryTake(slot)
	} else {
		value, found, err = v.elements.Take(slot)
	}
	if err != nil {
		return zero, false, err
	}

	err = v.setLen(slot)
	if err != nil {
		return zero, false, err
	}
	return value, found, nil
}

// Peek returns the last element without removing it.
func (v *StorageVec[V]) Peek() (V, bool, error) {
	value, found, err := v.TryPeek()
	return value, found, escalateValueError(err)
}

// TryPeek is like Peek but returns buffer and decoding errors.
func (v *StorageVec[V]) TryPeek() (V, bool, error) {
	var zero V

	length, err := v.Len()
	if err != nil || length == 0 {
		return zero, false, err
	}
	return v.elements.TryGet(length - 1)
}

// Get returns the element at index. Missing elements and indexes past the
// end are reported as not found.
func (v *StorageVec[V]) Get(index uint32) (V, bool, error) {
	return v.elements.Get(index)
}

// TryGet is like Get but returns buffer and decoding errors.
func (v *StorageVec[V]) TryGet(index uint32) (V, bool, error) {
	return v.elements.TryGet(index)
}

// Set replaces the element at index. Panics if index is out of bounds or
// the value doesn't fit into the transfer buffer.
func (v *StorageVec[V]) Set(index uint32, value V) error {
	err := v.checkBounds(index)
	if err != nil {
		return err
	}
	return v.elements.Insert(index, value)
}

// TrySet is like Set but returns KeyNotFoundError if index is out of bounds
// and BufferTooSmallError if the value doesn't fit into the transfer buffer.
func (v *StorageVec[V]) TrySet(index uint32, value V) error {
	length, err := v.Len()
	if err != nil {
		return err
	}
	if index >= length {
		return NewKeyNotFoundError(index)
	}
	return v.elements.TryInsert(index, value)
}

// ClearAt removes the element at index without changing the length.
// Panics if index is out of bounds.
func (v *StorageVec[V]) ClearAt(index uint32) error {
	err := v.checkBounds(index)
	if err != nil {
		return err
	}
	return v.elements.Remove(index)
}

func (v *StorageVec[V]) checkBounds(index uint32) error {
	length, err := v.Len()
	if err != nil {
		return err
	}
	if index >= length {
		panic(NewFatalError(NewIndexOutOfBoundsError(uint64(index), 0, uint64(length))))
	}
	return nil
}

// Clear removes every element and resets the length. It costs one ledger
// write per element, see ClearBounded for large vectors.
func (v *StorageVec[V]) Clear() error {
	length, err := v.Len()
	if err != nil {
		return err
	}

	for i := uint32(0); i < length; i++ {
		err = v.elements.Remove(i)
		if err != nil {
			return err
		}
	}

	return v.setLen(0)
}

// ClearBounded removes up to maxElements elements from the back and returns
// the remaining length. Calling it until it returns 0 clears the vector.
func (v *StorageVec[V]) ClearBounded(maxElements uint32) (uint32, error) {
	length, err := v.Len()
	if err != nil {
		return 0, err
	}

	newLen := length
	for n := uint32(0); n < maxElements && newLen > 0; n++ {
		err = v.elements.Remove(newLen - 1)
		if err != nil {
			// Elements removed so far are holes below the stored length.
			return length, err
		}
		newLen--
	}

	if newLen == length {
		return length, nil
	}

	err = v.setLen(newLen)
	if err != nil {
		return length, err
	}
	return newLen, nil
}

// Iterate calls fn for every present element in index order.
func (v *StorageVec[V]) Iterate(fn StorageVecIterationFunc[V]) error {
	length, err := v.Len()
	if err != nil {
		return err
	}

	for i := uint32(0); i < length; i++ {
		value, found, err := v.elements.Get(i)
		if err != nil {
			return err
		}
		if !found {
			continue
		}

		resume, err := fn(i, value)
		if err != nil {
			// Wrap err as external error (if needed) because err is returned by StorageVecIterationFunc callback.
			return wrapErrorAsExternalErrorIfNeeded(err)
		}
		if !resume {
			return nil
		}
	}
	return nil
}
