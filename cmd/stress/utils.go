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
	"math/rand"
	"time"
)

const (
	maxKeyLength   = 48
	maxValueLength = 256
)

var (
	letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

	r *rand.Rand
)

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	fmt.Printf("rand seed 0x%x\n", seed)
	return rand.New(rand.NewSource(seed))
}

func randStr(n int) string {
	runes := make([]rune, n)
	for i := range runes {
		runes[i] = letters[r.Intn(len(letters))]
	}
	return string(runes)
}

// randomKey returns short keys most of the time so that keys get reused,
// and long keys whose storage keys are hashed otherwise.
func randomKey() string {
	if r.Intn(4) == 0 {
		return randStr(r.Intn(maxKeyLength) + 1)
	}
	return randStr(2)
}

func randomValue() string {
	return randStr(r.Intn(maxValueLength))
}

// shouldCommit returns true at the end of a simulated invocation.
func shouldCommit(opCount uint64, cfg config) bool {
	return opCount%uint64(cfg.opsPerCommit) == 0
}

// shouldReopen returns true when the collection must be reloaded from the ledger.
func shouldReopen(opCount uint64, cfg config) bool {
	return opCount%(uint64(cfg.opsPerCommit)*uint64(cfg.reopenEvery)) == 0
}

func done(opCount uint64, cfg config) bool {
	return cfg.maxOps > 0 && opCount >= cfg.maxOps
}
