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

// Exported functions of non-exported package members for testing.

func GetHashMapKeys[K, V any](m *HashMap[K, V]) *Stash[K] {
	return m.keys
}

func GetHashMapValues[K, V any](m *HashMap[K, V]) *LazyHashMap[K, ValueEntry[V]] {
	return m.values
}

func GetHashMapGeneration[K, V any](m *HashMap[K, V]) uint64 {
	return m.generation
}

// GetStashHeader returns the in-memory header of s.
func GetStashHeader[K any](s *Stash[K]) (lastVacant, length, lenEntries uint32) {
	return s.header.LastVacant, s.header.Len, s.header.LenEntries
}

func SetStashLen[K any](s *Stash[K], length uint32) {
	s.header.Len = length
}

func GetStashLastVacantIndex[K any](s *Stash[K]) (uint32, bool) {
	return s.lastVacantIndex()
}

// GetStashVacantLinks returns the free list links of the entry at index.
// ok is false if the entry is occupied.
func GetStashVacantLinks[K any](s *Stash[K], index uint32) (prev, next uint32, ok bool, err error) {
	entry, found, err := s.entries.TryGet(index)
	if err != nil {
		return 0, 0, false, err
	}
	if !found || entry.occupied {
		return 0, 0, false, nil
	}
	return entry.vacant.Prev, entry.vacant.Next, true, nil
}

func VerifyLazyCellCache[V any](c *LazyCell[V]) error {
	return c.verifyCache()
}
