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
	"go.uber.org/zap"
)

// stashHeader is stored at the stash root key.
//
// LastVacant is the entry point into the free list. It is only meaningful
// while Len < LenEntries. LenEntries counts occupied and vacant entries.
type stashHeader struct {
	_          struct{} `cbor:",toarray"`
	LastVacant uint32
	Len        uint32
	LenEntries uint32
}

// stashVacantEntry links a vacant entry into the circular free list.
// A single vacant entry points to itself.
type stashVacantEntry struct {
	_    struct{} `cbor:",toarray"`
	Next uint32
	Prev uint32
}

type stashEntry[K any] struct {
	occupied bool
	key      K
	vacant   stashVacantEntry
}

func newOccupiedStashEntry[K any](key K) *stashEntry[K] {
	return &stashEntry[K]{occupied: true, key: key}
}

func newVacantStashEntry[K any](prev, next uint32) *stashEntry[K] {
	return &stashEntry[K]{vacant: stashVacantEntry{Next: next, Prev: prev}}
}

// stashEntryCodec encodes occupied entries as a tagged byte string holding
// the encoded key, and vacant entries as a tagged [next, prev] array.
type stashEntryCodec[K any] struct {
	keyCodec Codec[K]
}

var _ Codec[stashEntry[uint32]] = stashEntryCodec[uint32]{}

func (c stashEntryCodec[K]) Encode(entry stashEntry[K]) ([]byte, error) {
	var content any
	var tagNum uint64

	if entry.occupied {
		encodedKey, err := encodeWith(c.keyCodec, entry.key)
		if err != nil {
			// Don't need to wrap error as external error because err is already categorized by encodeWith().
			return nil, err
		}
		tagNum = CBORTagStashOccupiedEntry
		content = encodedKey
	} else {
		tagNum = CBORTagStashVacantEntry
		content = entry.vacant
	}

	b, err := defaultEncMode.Marshal(cbor.Tag{Number: tagNum, Content: content})
	if err != nil {
		return nil, NewEncodingError(err)
	}
	return b, nil
}

func (c stashEntryCodec[K]) Decode(data []byte) (stashEntry[K], error) {
	var raw cbor.RawTag
	err := defaultDecMode.Unmarshal(data, &raw)
	if err != nil {
		return stashEntry[K]{}, NewDecodingError(err)
	}

	switch raw.Number {
	case CBORTagStashOccupiedEntry:
		var encodedKey []byte
		err = defaultDecMode.Unmarshal(raw.Content, &encodedKey)
		if err != nil {
			return stashEntry[K]{}, NewDecodingError(err)
		}
		key, err := decodeWith(c.keyCodec, encodedKey)
		if err != nil {
			// Don't need to wrap error as external error because err is already categorized by decodeWith().
			return stashEntry[K]{}, err
		}
		return stashEntry[K]{occupied: true, key: key}, nil

	case CBORTagStashVacantEntry:
		var vacant stashVacantEntry
		err = defaultDecMode.Unmarshal(raw.Content, &vacant)
		if err != nil {
			return stashEntry[K]{}, NewDecodingError(err)
		}
		return stashEntry[K]{vacant: vacant}, nil

	default:
		return stashEntry[K]{}, NewDecodingErrorf("invalid stash entry tag number %d", raw.Number)
	}
}

// Stash is a slot recycling arena of keys. Vacant entries form a circular
// doubly linked free list. Put reuses the vacant entry the header points at
// before growing, and Defrag compacts the arena from the back.
//
// The header is loaded when the stash is created. Entries are loaded on
// access and pushed with the header on Commit.
type Stash[K any] struct {
	storage         *Storage
	root            RootKey
	headerKey       StorageKey
	header          stashHeader
	committedHeader stashHeader
	entries         *LazyHashMap[uint32, stashEntry[K]]
}

// StashIterationFunc is called for every occupied entry in index order.
type StashIterationFunc[K any] func(index uint32, key K) (resume bool, err error)

// StashRelocationFunc is called by Defrag before the key at from is moved to to.
type StashRelocationFunc[K any] func(from, to uint32, key K) error

func NewStash[K any](storage *Storage, root RootKey, keyCodec Codec[K]) (*Stash[K], error) {
	headerKey, err := storage.Composer().Compose(root)
	if err != nil {
		// Don't need to wrap error as external error because err is already categorized by KeyComposer.Compose().
		return nil, err
	}

	header, _, err := getValue(storage, headerKey, NewCBORCodec[stashHeader]())
	if err != nil {
		return nil, escalateValueError(err)
	}

	return &Stash[K]{
		storage:         storage,
		root:            root,
		headerKey:       headerKey,
		header:          header,
		committedHeader: header,
		entries: NewLazyHashMap(
			storage,
			root,
			nil,
			Codec[uint32](NewCBORCodec[uint32]()),
			Codec[stashEntry[K]](stashEntryCodec[K]{keyCodec: keyCodec}),
		),
	}, nil
}

// Len returns the number of occupied entries.
func (s *Stash[K]) Len() uint32 {
	return s.header.Len
}

func (s *Stash[K]) IsEmpty() bool {
	return s.header.Len == 0
}

// Capacity returns the number of occupied and vacant entries.
func (s *Stash[K]) Capacity() uint32 {
	return s.header.LenEntries
}

func (s *Stash[K]) hasVacantEntries() bool {
	return s.header.Len != s.header.LenEntries
}

func (s *Stash[K]) lastVacantIndex() (uint32, bool) {
	if s.hasVacantEntries() {
		return s.header.LastVacant, true
	}
	return 0, false
}

// Get returns the key stored at index.
func (s *Stash[K]) Get(index uint32) (K, bool, error) {
	var zero K

	if index >= s.header.LenEntries {
		return zero, false, nil
	}

	entry, found, err := s.entries.Get(index)
	if err != nil {
		return zero, false, err
	}
	if !found || !entry.occupied {
		return zero, false, nil
	}
	return entry.key, true, nil
}

// GetMut returns a pointer to the key stored at index, or nil if the entry
// is vacant.
func (s *Stash[K]) GetMut(index uint32) (*K, error) {
	if index >= s.header.LenEntries {
		return nil, nil
	}

	entry, err := s.entries.GetMut(index)
	if err != nil {
		return nil, err
	}
	if entry == nil || !entry.occupied {
		return nil, nil
	}
	return &entry.key, nil
}

// vacantEntryAt returns the free list links of the vacant entry at index.
// The caller must know the entry is vacant.
func (s *Stash[K]) vacantEntryAt(index uint32) (*stashVacantEntry, error) {
	entry, err := s.entries.GetMut(index)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.occupied {
		panic(NewCollectionInvariantErrorf("stash entry %d must be vacant", index))
	}
	return &entry.vacant, nil
}

// removeVacantEntry unlinks the vacant entry at removedIndex from the free list.
func (s *Stash[K]) removeVacantEntry(removedIndex uint32, vacant stashVacantEntry) error {
	prevVacant := vacant.Prev
	nextVacant := vacant.Next

	if prevVacant == removedIndex && nextVacant == removedIndex {
		// Removed the last vacant entry.
		s.header.LastVacant = s.header.Len
		return nil
	}

	if prevVacant == nextVacant {
		// Two vacant entries left: the remaining one points to itself.
		entry, err := s.vacantEntryAt(prevVacant)
		if err != nil {
			return err
		}
		if debugChecks && (entry.Prev != removedIndex || entry.Next != removedIndex) {
			panic(NewCollectionInvariantErrorf("stash entry %d is not linked to %d", prevVacant, removedIndex))
		}
		entry.Prev = prevVacant
		entry.Next = prevVacant
	} else {
		prev, err := s.vacantEntryAt(prevVacant)
		if err != nil {
			return err
		}
		if debugChecks && prev.Next != removedIndex {
			panic(NewCollectionInvariantErrorf("stash entry %d is not linked to %d", prevVacant, removedIndex))
		}
		prev.Next = nextVacant

		next, err := s.vacantEntryAt(nextVacant)
		if err != nil {
			return err
		}
		if debugChecks && next.Prev != removedIndex {
			panic(NewCollectionInvariantErrorf("stash entry %d is not linked to %d", nextVacant, removedIndex))
		}
		next.Prev = prevVacant
	}

	if removedIndex == s.header.LastVacant {
		s.header.LastVacant = min(prevVacant, nextVacant)
	}
	return nil
}

// prevAndNextVacant returns the free list neighbors for a new vacant entry at index.
func (s *Stash[K]) prevAndNextVacant(index uint32) (uint32, uint32, error) {
	lastVacant, ok := s.lastVacantIndex()
	if !ok {
		return index, index, nil
	}

	root, err := s.vacantEntryAt(lastVacant)
	if err != nil {
		return 0, 0, err
	}

	if index < lastVacant {
		return root.Prev, lastVacant, nil
	}
	if index < root.Next {
		return lastVacant, root.Next, nil
	}
	return root.Prev, lastVacant, nil
}

// linkVacantEntry points the free list neighbors prev and next at index.
func (s *Stash[K]) linkVacantEntry(prev, next, index uint32) error {
	if prev == next {
		entry, err := s.vacantEntryAt(next)
		if err != nil {
			return err
		}
		entry.Prev = index
		entry.Next = index
		return nil
	}

	prevEntry, err := s.vacantEntryAt(prev)
	if err != nil {
		return err
	}
	prevEntry.Next = index

	nextEntry, err := s.vacantEntryAt(next)
	if err != nil {
		return err
	}
	nextEntry.Prev = index
	return nil
}

// Put stores key in the header's last vacant entry, or appends a new entry if
// there is none, and returns the index used.
func (s *Stash[K]) Put(key K) (uint32, error) {
	var newIndex uint32

	if index, ok := s.lastVacantIndex(); ok {
		old, found, err := s.entries.PutGet(index, newOccupiedStashEntry(key))
		if err != nil {
			return 0, err
		}
		if !found || old.occupied {
			panic(NewCollectionInvariantErrorf("stash entry %d must be vacant", index))
		}

		err = s.removeVacantEntry(index, old.vacant)
		if err != nil {
			return 0, err
		}
		newIndex = index

	} else {
		newIndex = s.header.LenEntries
		err := s.entries.Put(newIndex, newOccupiedStashEntry(key))
		if err != nil {
			return 0, err
		}
		s.header.LastVacant++
		s.header.LenEntries++
	}

	s.header.Len++
	return newIndex, nil
}

// Take removes and returns the key stored at index.
func (s *Stash[K]) Take(index uint32) (K, bool, error) {
	var zero K

	if index >= s.header.LenEntries {
		return zero, false, nil
	}

	prev, next, err := s.prevAndNextVacant(index)
	if err != nil {
		return zero, false, err
	}

	entry, err := s.entries.GetMut(index)
	if err != nil {
		return zero, false, err
	}
	if entry == nil {
		panic(NewCollectionInvariantErrorf("stash entry %d is missing", index))
	}
	if !entry.occupied {
		return zero, false, nil
	}

	key := entry.key
	*entry = *newVacantStashEntry[K](prev, next)

	err = s.linkVacantEntry(prev, next, index)
	if err != nil {
		return zero, false, err
	}

	s.header.LastVacant = min(s.header.LastVacant, index, prev, next)
	s.header.Len--

	return key, true, nil
}

// RemoveOccupied marks the entry at index vacant without loading it.
// The caller must know the entry is occupied.
func (s *Stash[K]) RemoveOccupied(index uint32) (bool, error) {
	if index >= s.header.LenEntries {
		return false, nil
	}

	prev, next, err := s.prevAndNextVacant(index)
	if err != nil {
		return false, err
	}

	err = s.entries.Put(index, newVacantStashEntry[K](prev, next))
	if err != nil {
		return false, err
	}

	err = s.linkVacantEntry(prev, next, index)
	if err != nil {
		return false, err
	}

	s.header.LastVacant = min(s.header.LastVacant, index, prev, next)
	s.header.Len--

	return true, nil
}

// Defrag frees up to maxIterations entries from the back of the stash.
// A vacant entry is unlinked from the free list, an occupied one is moved
// into the header's last vacant entry after relocate is called. Defrag stops early
// when no vacant entries are left and returns the number of freed entries.
func (s *Stash[K]) Defrag(maxIterations uint32, relocate StashRelocationFunc[K]) (uint32, error) {
	lenEntries := s.header.LenEntries
	var freed uint32

	for i := uint32(0); i < maxIterations && i < lenEntries; i++ {
		if !s.hasVacantEntries() {
			break
		}

		index := lenEntries - 1 - i

		old, found, err := s.entries.Get(index)
		if err != nil {
			return freed, err
		}
		if !found {
			panic(NewCollectionInvariantErrorf("stash entry %d is missing", index))
		}

		// The callback runs before anything is modified, so a failing
		// callback leaves the stash untouched.
		vacantIndex, _ := s.lastVacantIndex()
		if old.occupied && relocate != nil {
			err = relocate(index, vacantIndex, old.key)
			if err != nil {
				// Wrap err as external error (if needed) because err is returned by StashRelocationFunc callback.
				return freed, wrapErrorfAsExternalErrorIfNeeded(err, "stash relocation callback failed")
			}
		}

		err = s.entries.Put(index, nil)
		if err != nil {
			return freed, err
		}

		if !old.occupied {
			err = s.removeVacantEntry(index, old.vacant)
			if err != nil {
				return freed, err
			}
		} else {
			vacant, found, err := s.entries.PutGet(vacantIndex, newOccupiedStashEntry(old.key))
			if err != nil {
				return freed, err
			}
			if !found || vacant.occupied {
				panic(NewCollectionInvariantErrorf("stash entry %d must be vacant", vacantIndex))
			}

			err = s.removeVacantEntry(vacantIndex, vacant.vacant)
			if err != nil {
				return freed, err
			}
		}

		s.header.LenEntries--
		freed++
	}

	if freed > 0 {
		s.storage.Logger().Debug(
			"stash defragmented",
			zap.Uint32("root", uint32(s.root)),
			zap.Uint32("freed", freed),
			zap.Uint32("len", s.header.Len),
		)
	}

	return freed, nil
}

// DefragAll frees every vacant entry.
func (s *Stash[K]) DefragAll(relocate StashRelocationFunc[K]) (uint32, error) {
	return s.Defrag(s.header.LenEntries, relocate)
}

// Iterate calls fn for every occupied entry in index order.
func (s *Stash[K]) Iterate(fn StashIterationFunc[K]) error {
	for index := uint32(0); index < s.header.LenEntries; index++ {
		key, found, err := s.Get(index)
		if err != nil {
			return err
		}
		if !found {
			continue
		}

		resume, err := fn(index, key)
		if err != nil {
			// Wrap err as external error (if needed) because err is returned by StashIterationFunc callback.
			return wrapErrorAsExternalErrorIfNeeded(err)
		}
		if !resume {
			return nil
		}
	}
	return nil
}

// Commit pushes mutated entries and the header to the ledger.
func (s *Stash[K]) Commit() error {
	err := s.entries.Commit()
	if err != nil {
		return err
	}

	if s.header == s.committedHeader {
		return nil
	}

	err = setValue(s.storage, s.headerKey, NewCBORCodec[stashHeader](), s.header)
	if err != nil {
		return escalateValueError(err)
	}
	s.committedHeader = s.header
	return nil
}

// ClearCells removes every entry and the header from the ledger and resets
// the stash to empty.
func (s *Stash[K]) ClearCells() error {
	for index := uint32(0); index < s.header.LenEntries; index++ {
		err := s.entries.ClearAt(index)
		if err != nil {
			return err
		}
	}

	err := s.storage.Clear(s.headerKey)
	if err != nil {
		return err
	}

	err = s.entries.ClearCached()
	if err != nil {
		return err
	}

	s.header = stashHeader{}
	s.committedHeader = stashHeader{}
	return nil
}

func (s *Stash[K]) String() string {
	return fmt.Sprintf(
		"Stash(root: %d, len: %d, capacity: %d, last vacant: %d)",
		s.root,
		s.header.Len,
		s.header.LenEntries,
		s.header.LastVacant,
	)
}
