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

package test_utils

import (
	"fmt"
	"reflect"

	"github.com/onflow/lazystore"
)

// ExpectedHashMap is the plain Go model of a lazystore.HashMap.
type ExpectedHashMap[K comparable, V any] map[K]V

// ExpectedStorageVec is the plain Go model of a lazystore.StorageVec.
// A nil element is a hole.
type ExpectedStorageVec[V any] []*V

func HashMapEqual[K comparable, V any](expected ExpectedHashMap[K, V], actual *lazystore.HashMap[K, V]) (bool, error) {
	if uint32(len(expected)) != actual.Len() {
		return false, nil
	}

	i := 0
	equal := true
	err := actual.Iterate(func(key K, value V) (bool, error) {
		expectedValue, exist := expected[key]
		if !exist || !reflect.DeepEqual(expectedValue, value) {
			equal = false
			return false, nil
		}
		i++
		return true, nil
	})
	if err != nil || !equal {
		return false, err
	}

	if len(expected) != i {
		return false, fmt.Errorf("HashMapEqual failed: iterated %d time, expected %d elements", i, len(expected))
	}

	// Lookups go through the value entries, not the key stash.
	for key, expectedValue := range expected {
		value, found, err := actual.Get(key)
		if err != nil {
			return false, err
		}
		if !found || !reflect.DeepEqual(expectedValue, value) {
			return false, nil
		}
	}

	return true, nil
}

func StorageVecEqual[V any](expected ExpectedStorageVec[V], actual *lazystore.StorageVec[V]) (bool, error) {
	length, err := actual.Len()
	if err != nil {
		return false, err
	}
	if uint32(len(expected)) != length {
		return false, nil
	}

	for i, expectedValue := range expected {
		value, found, err := actual.Get(uint32(i))
		if err != nil {
			return false, err
		}
		if found != (expectedValue != nil) {
			return false, nil
		}
		if found && !reflect.DeepEqual(*expectedValue, value) {
			return false, nil
		}
	}

	return true, nil
}
