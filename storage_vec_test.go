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

package lazystore_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onflow/lazystore"
	"github.com/onflow/lazystore/test_utils"
)

const testVecRoot = lazystore.RootKey(2)

func newTestStorageVec[V any](t *testing.T, storage *lazystore.Storage, codec lazystore.Codec[V]) *lazystore.StorageVec[V] {
	v, err := lazystore.NewStorageVec(storage, testVecRoot, codec)
	require.NoError(t, err)
	return v
}

func requireVecLen[V any](t *testing.T, v *lazystore.StorageVec[V], expected uint32) {
	length, err := v.Len()
	require.NoError(t, err)
	require.Equal(t, expected, length)
}

func TestStorageVecPushPop(t *testing.T) {
	storage, _ := newTestStorage(t)
	v := newTestStorageVec(t, storage, stringCodec)

	empty, err := v.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)

	require.NoError(t, v.Push("test"))
	requireVecLen(t, v, 1)

	empty, err = v.IsEmpty()
	require.NoError(t, err)
	require.False(t, empty)

	value, found, err := v.Pop()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "test", value)
	requireVecLen(t, v, 0)

	storage.ResetReporter()

	_, found, err = v.Pop()
	require.NoError(t, err)
	require.False(t, found)
	requireVecLen(t, v, 0)
	require.Equal(t, 0, storage.Writes())
}

func TestStorageVecStackOrder(t *testing.T) {
	r := newRand(t)

	storage, _ := newTestStorage(t)
	v := newTestStorageVec(t, storage, stringCodec)

	var expected []string
	for i := 0; i < 1000; i++ {
		if len(expected) == 0 || r.Intn(3) != 0 {
			value := randStr(r, r.Intn(64))
			require.NoError(t, v.Push(value))
			expected = append(expected, value)
		} else {
			value, found, err := v.Pop()
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, expected[len(expected)-1], value)
			expected = expected[:len(expected)-1]
		}
		requireVecLen(t, v, uint32(len(expected)))

		if r.Intn(50) == 0 {
			v = newTestStorageVec(t, storage, stringCodec)
		}
	}

	for len(expected) > 0 {
		value, found, err := v.Pop()
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, expected[len(expected)-1], value)
		expected = expected[:len(expected)-1]
	}
	requireVecLen(t, v, 0)
}

func TestStorageVecClearAt(t *testing.T) {
	storage, _ := newTestStorage(t)
	v := newTestStorageVec(t, storage, uint32Codec)

	for i := uint32(0); i < 1024; i++ {
		require.NoError(t, v.Push(i))
	}

	require.NoError(t, v.ClearAt(0))
	requireVecLen(t, v, 1024)

	_, found, err := v.Get(0)
	require.NoError(t, err)
	require.False(t, found)

	value, found, err := v.Get(1023)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint32(1023), value)

	value, found, err = v.Get(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint32(1), value)

	requireFatalPanic[*lazystore.IndexOutOfBoundsError](t, func() {
		_ = v.ClearAt(1024)
	})
}

func TestStorageVecSharedRoot(t *testing.T) {
	storage, _ := newTestStorage(t)

	v1 := newTestStorageVec(t, storage, stringCodec)
	v2 := newTestStorageVec(t, storage, stringCodec)

	require.NoError(t, v1.Push("shared"))

	value, found, err := v2.Pop()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "shared", value)
}

func TestStorageVecGetSet(t *testing.T) {
	storage, _ := newTestStorage(t)
	v := newTestStorageVec(t, storage, stringCodec)

	require.NoError(t, v.Push("a"))
	require.NoError(t, v.Push("b"))
	require.NoError(t, v.Push("c"))

	require.NoError(t, v.Set(1, "B"))

	value, found, err := v.Get(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "B", value)

	require.NoError(t, v.TrySet(2, "C"))

	value, found, err = v.TryGet(2)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "C", value)

	// Indexes past the end are not found.
	_, found, err = v.Get(3)
	require.NoError(t, err)
	require.False(t, found)

	// Set can fill a hole.
	require.NoError(t, v.ClearAt(0))
	require.NoError(t, v.Set(0, "A"))

	equal, err := test_utils.StorageVecEqual(
		test_utils.ExpectedStorageVec[string]{valueOf("A"), valueOf("B"), valueOf("C")},
		v,
	)
	require.NoError(t, err)
	require.True(t, equal)

	t.Run("out of bounds", func(t *testing.T) {
		requireFatalPanic[*lazystore.IndexOutOfBoundsError](t, func() {
			_ = v.Set(3, "D")
		})

		err := v.TrySet(3, "D")
		var keyNotFoundError *lazystore.KeyNotFoundError
		require.ErrorAs(t, err, &keyNotFoundError)

		var userError *lazystore.UserError
		require.ErrorAs(t, err, &userError)

		requireVecLen(t, v, 3)
	})
}

func TestStorageVecPeek(t *testing.T) {
	storage, _ := newTestStorage(t)
	v := newTestStorageVec(t, storage, stringCodec)

	_, found, err := v.Peek()
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, v.Push("a"))
	require.NoError(t, v.Push("b"))

	value, found, err := v.Peek()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "b", value)

	value, found, err = v.TryPeek()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "b", value)

	requireVecLen(t, v, 2)
}

func TestStorageVecPopHole(t *testing.T) {
	storage, _ := newTestStorage(t)
	v := newTestStorageVec(t, storage, stringCodec)

	require.NoError(t, v.Push("a"))
	require.NoError(t, v.Push("b"))
	require.NoError(t, v.ClearAt(1))

	_, found, err := v.Peek()
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = v.Pop()
	require.NoError(t, err)
	require.False(t, found)
	requireVecLen(t, v, 1)

	value, found, err := v.Pop()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "a", value)
	requireVecLen(t, v, 0)
}

func TestStorageVecValueTooLarge(t *testing.T) {

	t.Run("push", func(t *testing.T) {
		storage, ledger := newTestStorage(t, lazystore.WithBufferSize(64))
		v := newTestStorageVec(t, storage, stringCodec)

		// Encoded index (1 byte) and encoded value (2 + 61 bytes) fill the buffer.
		require.NoError(t, v.TryPush(strings.Repeat("a", 61)))
		requireVecLen(t, v, 1)

		err := v.TryPush(strings.Repeat("a", 62))
		var bufferTooSmallError *lazystore.BufferTooSmallError
		require.ErrorAs(t, err, &bufferTooSmallError)
		requireVecLen(t, v, 1)
		require.Equal(t, 2, ledger.Count())

		requireFatalPanic[*lazystore.BufferTooSmallError](t, func() {
			_ = v.Push(strings.Repeat("a", 62))
		})
		requireVecLen(t, v, 1)

		err = v.TrySet(0, strings.Repeat("a", 62))
		require.ErrorAs(t, err, &bufferTooSmallError)

		requireFatalPanic[*lazystore.BufferTooSmallError](t, func() {
			_ = v.Set(0, strings.Repeat("a", 62))
		})
	})

	t.Run("pop", func(t *testing.T) {
		storage, ledger := newTestStorage(t)
		v := newTestStorageVec(t, storage, stringCodec)
		require.NoError(t, v.Push(strings.Repeat("a", 100)))

		small := lazystore.NewStorage(ledger, lazystore.WithBufferSize(64))
		v = newTestStorageVec(t, small, stringCodec)

		var bufferTooSmallError *lazystore.BufferTooSmallError

		_, _, err := v.TryPeek()
		require.ErrorAs(t, err, &bufferTooSmallError)

		_, _, err = v.TryGet(0)
		require.ErrorAs(t, err, &bufferTooSmallError)

		_, _, err = v.TryPop()
		require.ErrorAs(t, err, &bufferTooSmallError)
		requireVecLen(t, v, 1)

		requireFatalPanic[*lazystore.BufferTooSmallError](t, func() {
			_, _, _ = v.Pop()
		})

		requireFatalPanic[*lazystore.BufferTooSmallError](t, func() {
			_, _, _ = v.Get(0)
		})
	})
}

func TestStorageVecDecodingError(t *testing.T) {
	storage, ledger := newTestStorage(t)
	v := newTestStorageVec(t, storage, stringCodec)

	require.NoError(t, v.Push("a"))

	encodedIndex, err := uint32Codec.Encode(0)
	require.NoError(t, err)
	key, err := storage.Composer().Compose(testVecRoot, encodedIndex)
	require.NoError(t, err)

	// CBOR unsigned integer can't be decoded into a string.
	require.NoError(t, ledger.SetValue(key, []byte{0x01}))

	_, _, err = v.TryGet(0)
	var decodingError *lazystore.DecodingError
	require.ErrorAs(t, err, &decodingError)

	// TryPop leaves the value in place.
	_, _, err = v.TryPop()
	require.ErrorAs(t, err, &decodingError)
	requireVecLen(t, v, 1)

	requireFatalPanic[*lazystore.DecodingError](t, func() {
		_, _, _ = v.Get(0)
	})
}

func TestStorageVecClear(t *testing.T) {
	storage, ledger := newTestStorage(t)
	v := newTestStorageVec(t, storage, uint32Codec)

	for i := uint32(0); i < 10; i++ {
		require.NoError(t, v.Push(i))
	}
	require.Equal(t, 11, ledger.Count())

	require.NoError(t, v.Clear())
	requireVecLen(t, v, 0)

	// Only the length is left.
	require.Equal(t, 1, ledger.Count())

	requireVecLen(t, newTestStorageVec(t, storage, uint32Codec), 0)
}

func TestStorageVecClearBounded(t *testing.T) {
	storage, ledger := newTestStorage(t)
	v := newTestStorageVec(t, storage, uint32Codec)

	for i := uint32(0); i < 10; i++ {
		require.NoError(t, v.Push(i))
	}

	remaining, err := v.ClearBounded(0)
	require.NoError(t, err)
	require.Equal(t, uint32(10), remaining)

	for _, expected := range []uint32{6, 2, 0, 0} {
		remaining, err := v.ClearBounded(4)
		require.NoError(t, err)
		require.Equal(t, expected, remaining)
		requireVecLen(t, v, expected)

		for i := uint32(0); i < expected; i++ {
			value, found, err := v.Get(i)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, i, value)
		}
	}

	require.Equal(t, 1, ledger.Count())
}

func TestStorageVecIterate(t *testing.T) {
	storage, _ := newTestStorage(t)
	v := newTestStorageVec(t, storage, uint32Codec)

	for i := uint32(0); i < 5; i++ {
		require.NoError(t, v.Push(i*10))
	}
	require.NoError(t, v.ClearAt(2))

	t.Run("skips holes", func(t *testing.T) {
		var indexes []uint32
		var values []uint32
		err := v.Iterate(func(index uint32, value uint32) (bool, error) {
			indexes = append(indexes, index)
			values = append(values, value)
			return true, nil
		})
		require.NoError(t, err)
		require.Equal(t, []uint32{0, 1, 3, 4}, indexes)
		require.Equal(t, []uint32{0, 10, 30, 40}, values)
	})

	t.Run("stop", func(t *testing.T) {
		count := 0
		err := v.Iterate(func(uint32, uint32) (bool, error) {
			count++
			return count < 3, nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, count)
	})

	t.Run("callback error", func(t *testing.T) {
		testErr := errors.New("test")
		err := v.Iterate(func(uint32, uint32) (bool, error) {
			return false, testErr
		})

		var externalError *lazystore.ExternalError
		require.ErrorAs(t, err, &externalError)
		require.ErrorIs(t, err, testErr)
	})
}

func TestStorageVecDebugChecks(t *testing.T) {
	prev := lazystore.SetDebugChecks(true)
	defer lazystore.SetDebugChecks(prev)

	storage, ledger := newTestStorage(t)
	v := newTestStorageVec(t, storage, uint32Codec)

	require.NoError(t, v.Push(1))
	requireVecLen(t, v, 1)

	// Modify the length behind the vector's back.
	key, err := storage.Composer().Compose(testVecRoot)
	require.NoError(t, err)
	encodedLen, err := uint32Codec.Encode(5)
	require.NoError(t, err)
	require.NoError(t, ledger.SetValue(key, encodedLen))

	requireFatalPanic[*lazystore.CollectionInvariantError](t, func() {
		_, _ = v.Len()
	})
}

func TestStorageVecRandomOps(t *testing.T) {
	r := newRand(t)

	storage, _ := newTestStorage(t)
	v := newTestStorageVec(t, storage, uint64Codec)

	var expected test_utils.ExpectedStorageVec[uint64]

	for i := 0; i < 2000; i++ {
		switch r.Intn(6) {
		case 0, 1:
			value := r.Uint64()
			require.NoError(t, v.Push(value))
			expected = append(expected, valueOf(value))

		case 2:
			value, found, err := v.Pop()
			require.NoError(t, err)
			if len(expected) == 0 {
				require.False(t, found)
				break
			}
			last := expected[len(expected)-1]
			require.Equal(t, last != nil, found)
			if found {
				require.Equal(t, *last, value)
			}
			expected = expected[:len(expected)-1]

		case 3:
			if len(expected) == 0 {
				break
			}
			index := r.Intn(len(expected))
			value := r.Uint64()
			require.NoError(t, v.Set(uint32(index), value))
			expected[index] = valueOf(value)

		case 4:
			if len(expected) == 0 {
				break
			}
			index := r.Intn(len(expected))
			require.NoError(t, v.ClearAt(uint32(index)))
			expected[index] = nil

		case 5:
			v = newTestStorageVec(t, storage, uint64Codec)
		}

		requireVecLen(t, v, uint32(len(expected)))
	}

	equal, err := test_utils.StorageVecEqual(expected, v)
	require.NoError(t, err)
	require.True(t, equal)
}
