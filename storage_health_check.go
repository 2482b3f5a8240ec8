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

import "fmt"

// CheckStashHealth checks the shape of a stash:
// - The number of occupied entries equals Len
// - Every vacant entry is linked to vacant neighbors that link back to it
// - The free list starting at the header's last vacant entry visits every vacant entry once
// It returns the occupied keys by index.
// This should be used for testing purposes only, as it loads every entry.
func CheckStashHealth[K any](s *Stash[K]) (map[uint32]K, error) {
	header := s.header

	if header.Len > header.LenEntries {
		return nil, NewFatalError(
			fmt.Errorf(
				"stash len %d exceeds number of entries %d",
				header.Len,
				header.LenEntries,
			))
	}

	occupied := make(map[uint32]K)
	vacant := make(map[uint32]stashVacantEntry)

	for index := uint32(0); index < header.LenEntries; index++ {
		entry, found, err := s.entries.TryGet(index)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, NewFatalError(fmt.Errorf("stash entry %d is missing", index))
		}
		if entry.occupied {
			occupied[index] = entry.key
		} else {
			vacant[index] = entry.vacant
		}
	}

	if uint32(len(occupied)) != header.Len {
		return nil, NewFatalError(
			fmt.Errorf(
				"number of occupied stash entries doesn't match: expected %d, got %d",
				header.Len,
				len(occupied),
			))
	}

	if len(vacant) == 0 {
		return occupied, nil
	}

	for index, entry := range vacant {
		next, ok := vacant[entry.Next]
		if !ok {
			return nil, NewFatalError(fmt.Errorf("vacant stash entry %d links to non-vacant next %d", index, entry.Next))
		}
		if next.Prev != index {
			return nil, NewFatalError(fmt.Errorf("vacant stash entry %d is not linked back from next %d", index, entry.Next))
		}

		prev, ok := vacant[entry.Prev]
		if !ok {
			return nil, NewFatalError(fmt.Errorf("vacant stash entry %d links to non-vacant prev %d", index, entry.Prev))
		}
		if prev.Next != index {
			return nil, NewFatalError(fmt.Errorf("vacant stash entry %d is not linked back from prev %d", index, entry.Prev))
		}
	}

	if _, ok := vacant[header.LastVacant]; !ok {
		return nil, NewFatalError(fmt.Errorf("last vacant stash entry %d is not vacant", header.LastVacant))
	}

	visited := make(map[uint32]struct{})
	index := header.LastVacant
	for {
		if _, ok := visited[index]; ok {
			break
		}
		visited[index] = struct{}{}
		index = vacant[index].Next
	}

	if index != header.LastVacant || len(visited) != len(vacant) {
		return nil, NewFatalError(
			fmt.Errorf(
				"stash free list visits %d of %d vacant entries",
				len(visited),
				len(vacant),
			))
	}

	return occupied, nil
}

// CheckHashMapHealth checks the key stash of a map with CheckStashHealth and
// that every key has a value entry pointing back at the key's stash entry.
// This should be used for testing purposes only, as it loads every entry.
func CheckHashMapHealth[K, V any](m *HashMap[K, V]) error {
	keys, err := CheckStashHealth(m.keys)
	if err != nil {
		return err
	}

	for index, key := range keys {
		entry, found, err := m.values.TryGet(key)
		if err != nil {
			return err
		}
		if !found {
			return NewFatalError(fmt.Errorf("key at stash entry %d has no value entry", index))
		}
		if entry.KeyIndex != index {
			return NewFatalError(
				fmt.Errorf(
					"value entry for key at stash entry %d points at stash entry %d",
					index,
					entry.KeyIndex,
				))
		}
	}

	return nil
}
