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
	vecPushOp = iota
	vecPopOp
	vecSetOp
	vecClearAtOp
	vecPeekOp
	vecClearBoundedOp
	maxVecOp
)

const (
	vecRoot = lazystore.RootKey(2)

	maxVecClearBounded = 8
)

type vecStatus struct {
	lock sync.RWMutex

	startTime time.Time

	length uint64

	pushOps  uint64
	popOps   uint64
	setOps   uint64
	clearOps uint64
	peekOps  uint64
}

var _ Status = &vecStatus{}

func newVecStatus() *vecStatus {
	return &vecStatus{startTime: time.Now()}
}

func (status *vecStatus) String() string {
	status.lock.RLock()
	defer status.lock.RUnlock()

	duration := time.Since(status.startTime)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return fmt.Sprintf("duration %s, heapAlloc %d MiB, length %d, %d pushes, %d pops, %d sets, %d clears, %d peeks",
		duration.Truncate(time.Second).String(),
		m.Alloc/1024/1024,
		status.length,
		status.pushOps,
		status.popOps,
		status.setOps,
		status.clearOps,
		status.peekOps,
	)
}

func (status *vecStatus) update(f func(status *vecStatus)) {
	status.lock.Lock()
	defer status.lock.Unlock()

	f(status)
}

func (status *vecStatus) Write() {
	writeStatus(status.String())
}

func openVec(storage *lazystore.Storage) (*lazystore.StorageVec[string], error) {
	return lazystore.NewStorageVec(storage, vecRoot, lazystore.Codec[string](lazystore.NewCBORCodec[string]()))
}

func testVec(storage *lazystore.Storage, cfg config, status *vecStatus, logger *zap.Logger) error {

	v, err := openVec(storage)
	if err != nil {
		return fmt.Errorf("failed to create vector: %w", err)
	}

	// expected mirrors the vector, nil elements are holes.
	expected := make(test_utils.ExpectedStorageVec[string], 0, cfg.maxLength)

	opCount := uint64(0)

	for !done(opCount, cfg) {

		nextOp := r.Intn(maxVecOp)

		if uint64(len(expected)) >= cfg.maxLength {
			nextOp = vecPopOp
		}

		opCount++

		switch nextOp {

		case vecPushOp:
			value := randomValue()

			err = v.Push(value)
			if err != nil {
				return fmt.Errorf("failed to push: %w", err)
			}

			expected = append(expected, &value)

		case vecPopOp:
			value, found, err := v.Pop()
			if err != nil {
				return fmt.Errorf("failed to pop: %w", err)
			}

			if len(expected) == 0 {
				if found {
					return fmt.Errorf("pop on empty vector returned %q", value)
				}
				break
			}

			last := expected[len(expected)-1]
			expected = expected[:len(expected)-1]

			if found != (last != nil) || (found && value != *last) {
				return fmt.Errorf("pop returned (%q, %t), want %v", value, found, last)
			}

		case vecSetOp, vecClearAtOp:
			if len(expected) == 0 {
				break
			}

			index := r.Intn(len(expected))

			if nextOp == vecSetOp {
				value := randomValue()
				err = v.Set(uint32(index), value)
				expected[index] = &value
			} else {
				err = v.ClearAt(uint32(index))
				expected[index] = nil
			}
			if err != nil {
				return fmt.Errorf("failed to write index %d: %w", index, err)
			}

		case vecPeekOp:
			value, found, err := v.Peek()
			if err != nil {
				return fmt.Errorf("failed to peek: %w", err)
			}

			var last *string
			if len(expected) > 0 {
				last = expected[len(expected)-1]
			}
			if found != (last != nil) || (found && value != *last) {
				return fmt.Errorf("peek returned (%q, %t), want %v", value, found, last)
			}

		case vecClearBoundedOp:
			n := r.Intn(maxVecClearBounded)

			remaining, err := v.ClearBounded(uint32(n))
			if err != nil {
				return fmt.Errorf("failed to clear %d elements: %w", n, err)
			}

			expected = expected[:max(0, len(expected)-n)]
			if remaining != uint32(len(expected)) {
				return fmt.Errorf("bounded clear left %d elements, want %d", remaining, len(expected))
			}
		}

		status.update(func(status *vecStatus) {
			status.length = uint64(len(expected))
			switch nextOp {
			case vecPushOp:
				status.pushOps++
			case vecPopOp:
				status.popOps++
			case vecSetOp:
				status.setOps++
			case vecClearAtOp, vecClearBoundedOp:
				status.clearOps++
			case vecPeekOp:
				status.peekOps++
			}
		})

		if shouldReopen(opCount, cfg) || done(opCount, cfg) {
			// The vector writes through, reopening only drops the cached length.
			v, err = openVec(storage)
			if err != nil {
				return fmt.Errorf("failed to reopen vector: %w", err)
			}

			equal, err := test_utils.StorageVecEqual(expected, v)
			if err != nil {
				return fmt.Errorf("failed to verify vector: %w", err)
			}
			if !equal {
				return fmt.Errorf("vector doesn't match %d expected elements after %d operations", len(expected), opCount)
			}

			logger.Debug("vector verified", zap.Uint64("ops", opCount), zap.Int("len", len(expected)))
		}
	}

	return nil
}
