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
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onflow/lazystore"
	"github.com/onflow/lazystore/test_utils"
)

const testLazyHashMapRoot = lazystore.RootKey(5)

func newTestLazyHashMap(t *testing.T, storage *lazystore.Storage, prefix []byte) *lazystore.LazyHashMap[string, uint64] {
	return lazystore.NewLazyHashMap(storage, testLazyHashMapRoot, prefix, stringCodec, uint64Codec)
}

func requireLazyGet(t *testing.T, m *lazystore.LazyHashMap[string, uint64], key string, expected uint64) {
	value, found, err := m.Get(key)
	require.NoError(t, err)
	require.True(t, found, "key %s not found", key)
	require.Equal(t, expected, value)
}

func requireLazyNotFound(t *testing.T, m *lazystore.LazyHashMap[string, uint64], key string) {
	_, found, err := m.Get(key)
	require.NoError(t, err)
	require.False(t, found, "key %s found", key)
}

// orderLedger records the order of SetValue calls.
type orderLedger struct {
	*test_utils.InMemLedger
	keys []lazystore.StorageKey
}

func (l *orderLedger) SetValue(key lazystore.StorageKey, value []byte) error {
	l.keys = append(l.keys, key)
	return l.InMemLedger.SetValue(key, value)
}

func TestLazyHashMapPutGet(t *testing.T) {
	storage, ledger := newTestStorage(t)
	m := newTestLazyHashMap(t, storage, nil)

	requireLazyNotFound(t, m, "A")

	require.NoError(t, m.Put("A", valueOf(uint64(1))))
	require.NoError(t, m.Put("B", valueOf(uint64(2))))
	requireLazyGet(t, m, "A", 1)
	requireLazyGet(t, m, "B", 2)
	require.Equal(t, 2, m.CachedLen())

	// Nothing is written before Commit.
	require.Equal(t, 0, ledger.Count())
	requireLazyNotFound(t, newTestLazyHashMap(t, storage, nil), "A")

	require.NoError(t, m.Commit())
	require.Equal(t, 2, ledger.Count())

	reloaded := newTestLazyHashMap(t, storage, nil)
	requireLazyGet(t, reloaded, "A", 1)
	requireLazyGet(t, reloaded, "B", 2)

	require.NoError(t, reloaded.Put("A", nil))
	requireLazyNotFound(t, reloaded, "A")
	require.NoError(t, reloaded.Commit())
	require.Equal(t, 1, ledger.Count())
}

func TestLazyHashMapStorageKey(t *testing.T) {
	storage, _ := newTestStorage(t)

	encodedKey, err := stringCodec.Encode("A")
	require.NoError(t, err)

	t.Run("no prefix", func(t *testing.T) {
		expected, err := storage.Composer().Compose(testLazyHashMapRoot, encodedKey)
		require.NoError(t, err)

		key, err := newTestLazyHashMap(t, storage, nil).StorageKey("A")
		require.NoError(t, err)
		require.Equal(t, expected, key)

		// Same layout as a Mapping.
		key, err = lazystore.NewMapping(storage, testLazyHashMapRoot, stringCodec, uint64Codec).StorageKey("A")
		require.NoError(t, err)
		require.Equal(t, expected, key)
	})

	t.Run("prefix", func(t *testing.T) {
		prefix := []byte("prefix")
		expected, err := storage.Composer().Compose(testLazyHashMapRoot, prefix, encodedKey)
		require.NoError(t, err)

		key, err := newTestLazyHashMap(t, storage, prefix).StorageKey("A")
		require.NoError(t, err)
		require.Equal(t, expected, key)

		unprefixed, err := newTestLazyHashMap(t, storage, nil).StorageKey("A")
		require.NoError(t, err)
		require.NotEqual(t, unprefixed, key)
	})
}

func TestLazyHashMapGetMut(t *testing.T) {
	storage, _ := newTestStorage(t)
	m := newTestLazyHashMap(t, storage, nil)

	require.NoError(t, m.Put("A", valueOf(uint64(1))))
	require.NoError(t, m.Commit())

	m = newTestLazyHashMap(t, storage, nil)

	value, err := m.GetMut("A")
	require.NoError(t, err)
	*value = 5

	value, err = m.GetMut("B")
	require.NoError(t, err)
	require.Nil(t, value)

	require.NoError(t, m.Commit())
	requireLazyGet(t, newTestLazyHashMap(t, storage, nil), "A", 5)
}

func TestLazyHashMapPutGetPrevious(t *testing.T) {
	storage, _ := newTestStorage(t)
	m := newTestLazyHashMap(t, storage, nil)

	_, found, err := m.PutGet("A", valueOf(uint64(1)))
	require.NoError(t, err)
	require.False(t, found)

	old, found, err := m.PutGet("A", valueOf(uint64(2)))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(1), old)

	old, found, err = m.PutGet("A", nil)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(2), old)

	requireLazyNotFound(t, m, "A")
}

func TestLazyHashMapSwap(t *testing.T) {
	storage, ledger := newTestStorage(t)
	m := newTestLazyHashMap(t, storage, nil)

	require.NoError(t, m.Put("A", valueOf(uint64(1))))
	require.NoError(t, m.Put("B", valueOf(uint64(2))))

	require.NoError(t, m.Swap("A", "B"))
	requireLazyGet(t, m, "A", 2)
	requireLazyGet(t, m, "B", 1)

	// Swapping with an absent key moves the value.
	require.NoError(t, m.Swap("A", "C"))
	requireLazyNotFound(t, m, "A")
	requireLazyGet(t, m, "C", 2)

	require.NoError(t, m.Swap("B", "B"))
	requireLazyGet(t, m, "B", 1)

	require.NoError(t, m.Commit())
	require.Equal(t, 2, ledger.Count())

	reloaded := newTestLazyHashMap(t, storage, nil)
	requireLazyNotFound(t, reloaded, "A")
	requireLazyGet(t, reloaded, "B", 1)
	requireLazyGet(t, reloaded, "C", 2)

	// Swapping two absent keys writes nothing.
	storage.ResetReporter()
	require.NoError(t, reloaded.Swap("X", "Y"))
	require.NoError(t, reloaded.Commit())
	require.Equal(t, 0, storage.Writes())
}

func TestLazyHashMapClearAt(t *testing.T) {
	storage, ledger := newTestStorage(t)
	m := newTestLazyHashMap(t, storage, nil)

	require.NoError(t, m.Put("A", valueOf(uint64(1))))
	require.NoError(t, m.Commit())
	require.Equal(t, 1, ledger.Count())

	require.NoError(t, m.ClearAt("A"))
	require.Equal(t, 0, ledger.Count())
	require.Equal(t, 0, m.CachedLen())
	requireLazyNotFound(t, m, "A")

	// Commit doesn't resurrect the value.
	require.NoError(t, m.Commit())
	require.Equal(t, 0, ledger.Count())
}

func TestLazyHashMapEntry(t *testing.T) {
	storage, _ := newTestStorage(t)
	m := newTestLazyHashMap(t, storage, nil)

	entry, err := m.Entry("A")
	require.NoError(t, err)
	require.Equal(t, "A", entry.Key())
	require.False(t, entry.IsOccupied())
	require.Nil(t, entry.GetMut())

	expectedKey, err := m.StorageKey("A")
	require.NoError(t, err)
	require.Equal(t, expectedKey, entry.StorageKey())

	value := entry.OrInsert(1)
	require.Equal(t, uint64(1), *value)

	value = entry.OrInsert(2)
	require.Equal(t, uint64(1), *value)
	*value = 3

	current, ok := entry.Get()
	require.True(t, ok)
	require.Equal(t, uint64(3), current)

	// The entry shares the map's cached slot.
	requireLazyGet(t, m, "A", 3)
	require.NoError(t, m.Put("A", valueOf(uint64(4))))
	current, ok = entry.Get()
	require.True(t, ok)
	require.Equal(t, uint64(4), current)

	old, ok := entry.Remove()
	require.True(t, ok)
	require.Equal(t, uint64(4), old)
	require.False(t, entry.IsOccupied())

	_, ok = entry.Remove()
	require.False(t, ok)

	value = entry.Insert(5)
	require.Equal(t, uint64(5), *value)

	require.NoError(t, m.Commit())
	requireLazyGet(t, newTestLazyHashMap(t, storage, nil), "A", 5)
}

func TestLazyHashMapCommitOrder(t *testing.T) {
	ledger := &orderLedger{InMemLedger: test_utils.NewInMemLedger()}
	storage := lazystore.NewStorage(ledger)
	m := newTestLazyHashMap(t, storage, nil)

	r := newRand(t)
	for i := 0; i < 50; i++ {
		require.NoError(t, m.Put(randStr(r, r.Intn(40)+1), valueOf(r.Uint64())))
	}

	require.NoError(t, m.Commit())
	require.Equal(t, m.CachedLen(), len(ledger.keys))

	for i := 1; i < len(ledger.keys); i++ {
		require.Equal(t, -1, bytes.Compare(ledger.keys[i-1][:], ledger.keys[i][:]))
	}

	// Committed entries are not written again.
	ledger.keys = nil
	require.NoError(t, m.Commit())
	require.Empty(t, ledger.keys)
}

func TestLazyHashMapClearCached(t *testing.T) {
	storage, ledger := newTestStorage(t)
	m := newTestLazyHashMap(t, storage, nil)

	require.NoError(t, m.Put("A", valueOf(uint64(1))))
	require.NoError(t, m.Put("B", valueOf(uint64(2))))
	require.NoError(t, m.Commit())

	// Pending removal of B and pending insert of C.
	require.NoError(t, m.Put("B", nil))
	require.NoError(t, m.Put("C", valueOf(uint64(3))))
	requireLazyNotFound(t, m, "D")

	storage.ResetReporter()
	require.NoError(t, m.ClearCached())
	require.Equal(t, 0, m.CachedLen())
	require.Equal(t, 0, ledger.Count())

	// Absent and unchanged D isn't cleared.
	require.Equal(t, 3, storage.Writes())
}

func TestLazyHashMapDropCache(t *testing.T) {
	storage, ledger := newTestStorage(t)
	m := newTestLazyHashMap(t, storage, nil)

	require.NoError(t, m.Put("A", valueOf(uint64(1))))
	m.DropCache()
	require.Equal(t, 0, m.CachedLen())

	require.NoError(t, m.Commit())
	require.Equal(t, 0, ledger.Count())
	requireLazyNotFound(t, m, "A")
}
