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

// entryHandle ties an entry to the map state it was looked up in.
// It is shared by an Entry and the OccupiedEntry or VacantEntry derived from it.
type entryHandle[K, V any] struct {
	m          *HashMap[K, V]
	lazy       *LazyEntry[K, ValueEntry[V]]
	generation uint64
	consumed   bool
}

func (h *entryHandle[K, V]) check() {
	if h.consumed || h.generation != h.m.generation {
		panic(NewStaleEntryError(h.lazy.Key()))
	}
}

func (h *entryHandle[K, V]) consume() {
	h.consumed = true
	h.m.generation++
}

// Entry is the result of a single HashMap lookup: either occupied or vacant.
//
// An entry is valid until it is consumed or the map is mutated through any
// other path. Using an invalid entry panics with StaleEntryError.
type Entry[K, V any] struct {
	handle *entryHandle[K, V]
}

// OccupiedEntry is an entry whose key has a value.
type OccupiedEntry[K, V any] struct {
	handle *entryHandle[K, V]
}

// VacantEntry is an entry whose key has no value.
type VacantEntry[K, V any] struct {
	handle *entryHandle[K, V]
}

// Entry looks key up once. Nothing is written until the entry is used.
func (m *HashMap[K, V]) Entry(key K) (*Entry[K, V], error) {
	lazy, err := m.values.Entry(key)
	if err != nil {
		return nil, err
	}
	return &Entry[K, V]{
		handle: &entryHandle[K, V]{
			m:          m,
			lazy:       lazy,
			generation: m.generation,
		},
	}, nil
}

func (e *Entry[K, V]) Key() K {
	return e.handle.lazy.Key()
}

func (e *Entry[K, V]) IsOccupied() bool {
	e.handle.check()
	return e.handle.lazy.IsOccupied()
}

func (e *Entry[K, V]) Occupied() (*OccupiedEntry[K, V], bool) {
	if !e.IsOccupied() {
		return nil, false
	}
	return &OccupiedEntry[K, V]{handle: e.handle}, true
}

func (e *Entry[K, V]) Vacant() (*VacantEntry[K, V], bool) {
	if e.IsOccupied() {
		return nil, false
	}
	return &VacantEntry[K, V]{handle: e.handle}, true
}

// OrInsert inserts value if the entry is vacant and returns a pointer to
// the value for the key.
func (e *Entry[K, V]) OrInsert(value V) (*V, error) {
	return e.OrInsertWithKey(func(K) V { return value })
}

// OrInsertWith is like OrInsert but only calls f if the entry is vacant.
func (e *Entry[K, V]) OrInsertWith(f func() V) (*V, error) {
	return e.OrInsertWithKey(func(K) V { return f() })
}

// OrInsertWithKey is like OrInsertWith but passes the key to f.
func (e *Entry[K, V]) OrInsertWithKey(f func(key K) V) (*V, error) {
	if occupied, ok := e.Occupied(); ok {
		return occupied.IntoMut(), nil
	}
	vacant, _ := e.Vacant()
	return vacant.Insert(f(vacant.Key()))
}

// OrDefault inserts the zero value if the entry is vacant.
func (e *Entry[K, V]) OrDefault() (*V, error) {
	var zero V
	return e.OrInsert(zero)
}

// AndModify calls f with the value if the entry is occupied.
func (e *Entry[K, V]) AndModify(f func(value *V)) *Entry[K, V] {
	if occupied, ok := e.Occupied(); ok {
		f(occupied.GetMut())
	}
	return e
}

func (e *VacantEntry[K, V]) Key() K {
	return e.handle.lazy.Key()
}

// IntoKey consumes the entry and returns its key.
func (e *VacantEntry[K, V]) IntoKey() K {
	e.handle.check()
	e.handle.consumed = true
	return e.handle.lazy.Key()
}

// Insert stores value for the entry's key and consumes the entry. The key
// stash entry and the value entry are written together.
func (e *VacantEntry[K, V]) Insert(value V) (*V, error) {
	e.handle.check()

	m := e.handle.m
	keyIndex, err := m.keys.Put(e.handle.lazy.Key())
	if err != nil {
		return nil, err
	}

	entry := e.handle.lazy.Insert(ValueEntry[V]{Value: value, KeyIndex: keyIndex})
	e.handle.consume()

	return &entry.Value, nil
}

func (e *OccupiedEntry[K, V]) Key() K {
	return e.handle.lazy.Key()
}

func (e *OccupiedEntry[K, V]) Get() V {
	e.handle.check()
	entry, _ := e.handle.lazy.Get()
	return entry.Value
}

// GetMut returns a pointer to the value. The value is pushed on the next Commit.
func (e *OccupiedEntry[K, V]) GetMut() *V {
	e.handle.check()
	return &e.handle.lazy.GetMut().Value
}

// Insert replaces the value and returns the previous one.
// The key stash entry is kept.
func (e *OccupiedEntry[K, V]) Insert(value V) V {
	e.handle.check()

	entry := e.handle.lazy.GetMut()
	old := entry.Value
	entry.Value = value

	// Resync this entry after invalidating all others.
	e.handle.m.generation++
	e.handle.generation = e.handle.m.generation

	return old
}

// RemoveEntry removes the key and its value and consumes the entry.
func (e *OccupiedEntry[K, V]) RemoveEntry() (K, V, error) {
	e.handle.check()

	var zero V
	key := e.handle.lazy.Key()

	entry, _ := e.handle.lazy.Remove()
	e.handle.consume()

	_, taken, err := e.handle.m.keys.Take(entry.KeyIndex)
	if err != nil {
		return key, zero, err
	}
	if !taken {
		panic(NewCollectionInvariantErrorf("key stash entry %d of a stored value is vacant", entry.KeyIndex))
	}

	return key, entry.Value, nil
}

// Remove removes the key and its value and consumes the entry.
func (e *OccupiedEntry[K, V]) Remove() (V, error) {
	_, value, err := e.RemoveEntry()
	return value, err
}

// IntoMut consumes the entry and returns a pointer to the value.
func (e *OccupiedEntry[K, V]) IntoMut() *V {
	e.handle.check()
	value := &e.handle.lazy.GetMut().Value
	e.handle.consume()
	return value
}
