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

package main

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/onflow/lazystore"
	"github.com/onflow/lazystore/test_utils"
)

const (
	mapInsertOp = iota
	mapTakeOp
	mapEntryOrInsertOp
	mapEntryAndModifyOp
	mapGetOp
	mapDefragOp
	maxMapOp
)

const (
	mapRoot = lazystore.RootKey(1)

	maxMapDefragIterations = 16
)

type mapStatus struct {
	lock sync.RWMutex

	startTime time.Time

	count uint64 // number of elements in map

	insertOps  uint64
	takeOps    uint64
	entryOps   uint64
	getOps     uint64
	defragOps  uint64
	freedSlots uint64
	commits    uint64
}

var _ Status = &mapStatus{}

func newMapStatus() *mapStatus {
	return &mapStatus{startTime: time.Now()}
}

func (status *mapStatus) String() string {
	status.lock.RLock()
	defer status.lock.RUnlock()

	duration := time.Since(status.startTime)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return fmt.Sprintf("duration %s, heapAlloc %d MiB, %d elements, %d inserts, %d takes, %d entries, %d gets, %d defrags (%d freed), %d commits",
		duration.Truncate(time.Second).String(),
		m.Alloc/1024/1024,
		status.count,
		status.insertOps,
		status.takeOps,
		status.entryOps,
		status.getOps,
		status.defragOps,
		status.freedSlots,
		status.commits,
	)
}

func (status *mapStatus) update(f func(status *mapStatus)) {
	status.lock.Lock()
	defer status.lock.Unlock()

	f(status)
}

func (status *mapStatus) Write() {
	writeStatus(status.String())
}

func openMap(storage *lazystore.Storage) (*lazystore.HashMap[string, string], error) {
	return lazystore.NewHashMap(
		storage,
		mapRoot,
		lazystore.Codec[string](lazystore.NewCBORCodec[string]()),
		lazystore.Codec[string](lazystore.NewCBORCodec[string]()),
	)
}

func verifyMap(expected test_utils.ExpectedHashMap[string, string], m *lazystore.HashMap[string, string]) error {
	err := lazystore.CheckHashMapHealth(m)
	if err != nil {
		return err
	}

	equal, err := test_utils.HashMapEqual(expected, m)
	if err != nil {
		return err
	}
	if !equal {
		return fmt.Errorf("map doesn't match %d expected elements", len(expected))
	}
	return nil
}

func testMap(storage *lazystore.Storage, cfg config, status *mapStatus, logger *zap.Logger) error {

	m, err := openMap(storage)
	if err != nil {
		return fmt.Errorf("failed to create map: %w", err)
	}

	// expected contains inserted keys and values. It is used to check data loss.
	expected := make(test_utils.ExpectedHashMap[string, string])

	// keys contains inserted keys. It is used to select random keys for removal.
	keys := make([]string, 0, cfg.maxLength)

	removeKey := func(i int) {
		keys[i] = keys[len(keys)-1]
		keys = keys[:len(keys)-1]
	}

	opCount := uint64(0)

	for !done(opCount, cfg) {

		nextOp := r.Intn(maxMapOp)

		if uint64(m.Len()) >= cfg.maxLength {
			nextOp = mapTakeOp
		}

		opCount++

		switch nextOp {

		case mapInsertOp:
			k, v := randomKey(), randomValue()

			old, existed, err := m.Insert(k, v)
			if err != nil {
				return fmt.Errorf("failed to insert %s: %w", k, err)
			}

			expectedOld, expectedExisted := expected[k]
			if existed != expectedExisted || old != expectedOld {
				return fmt.Errorf("insert %s returned (%q, %t), want (%q, %t)", k, old, existed, expectedOld, expectedExisted)
			}

			expected[k] = v
			if !existed {
				keys = append(keys, k)
			}

			status.update(func(status *mapStatus) {
				status.insertOps++
				if !existed {
					status.count++
				}
			})

		case mapTakeOp:
			if len(keys) == 0 {
				break
			}

			i := r.Intn(len(keys))
			k := keys[i]

			v, found, err := m.Take(k)
			if err != nil {
				return fmt.Errorf("failed to take %s: %w", k, err)
			}
			if !found || v != expected[k] {
				return fmt.Errorf("take %s returned (%q, %t), want (%q, true)", k, v, found, expected[k])
			}

			delete(expected, k)
			removeKey(i)

			status.update(func(status *mapStatus) {
				status.takeOps++
				status.count--
			})

		case mapEntryOrInsertOp:
			k, v := randomKey(), randomValue()

			entry, err := m.Entry(k)
			if err != nil {
				return fmt.Errorf("failed to get entry %s: %w", k, err)
			}

			value, err := entry.OrInsert(v)
			if err != nil {
				return fmt.Errorf("failed to insert entry %s: %w", k, err)
			}

			expectedValue, existed := expected[k]
			if !existed {
				expected[k] = v
				expectedValue = v
				keys = append(keys, k)
			}
			if *value != expectedValue {
				return fmt.Errorf("entry %s holds %q, want %q", k, *value, expectedValue)
			}

			status.update(func(status *mapStatus) {
				status.entryOps++
				if !existed {
					status.count++
				}
			})

		case mapEntryAndModifyOp:
			if len(keys) == 0 {
				break
			}

			k := keys[r.Intn(len(keys))]
			suffix := randStr(1)

			entry, err := m.Entry(k)
			if err != nil {
				return fmt.Errorf("failed to get entry %s: %w", k, err)
			}
			entry.AndModify(func(value *string) {
				*value += suffix
			})

			expected[k] += suffix

			status.update(func(status *mapStatus) {
				status.entryOps++
			})

		case mapGetOp:
			k := randomKey()

			v, found, err := m.Get(k)
			if err != nil {
				return fmt.Errorf("failed to get %s: %w", k, err)
			}

			expectedValue, expectedFound := expected[k]
			if found != expectedFound || v != expectedValue {
				return fmt.Errorf("get %s returned (%q, %t), want (%q, %t)", k, v, found, expectedValue, expectedFound)
			}

			status.update(func(status *mapStatus) {
				status.getOps++
			})

		case mapDefragOp:
			freed, err := m.Defrag(uint32(r.Intn(maxMapDefragIterations)))
			if err != nil {
				return fmt.Errorf("failed to defrag map: %w", err)
			}

			status.update(func(status *mapStatus) {
				status.defragOps++
				status.freedSlots += uint64(freed)
			})
		}

		if shouldCommit(opCount, cfg) || done(opCount, cfg) {
			err = m.Commit()
			if err != nil {
				return fmt.Errorf("failed to commit map: %w", err)
			}

			status.update(func(status *mapStatus) {
				status.commits++
			})

			if shouldReopen(opCount, cfg) || done(opCount, cfg) {
				// A new map value starts with an empty cache, like a new invocation.
				m, err = openMap(storage)
				if err != nil {
					return fmt.Errorf("failed to reopen map: %w", err)
				}

				err = verifyMap(expected, m)
				if err != nil {
					return fmt.Errorf("failed to verify map after %d operations: %w", opCount, err)
				}

				logger.Debug("map verified", zap.Uint64("ops", opCount), zap.Uint32("len", m.Len()))
			}
		}
	}

	return nil
}
