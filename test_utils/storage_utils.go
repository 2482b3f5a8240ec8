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
	"maps"

	"github.com/onflow/lazystore"
)

// InMemLedger is a map backed lazystore.Ledger recording how it is accessed.
type InMemLedger struct {
	values         map[lazystore.StorageKey][]byte
	bytesRetrieved int
	bytesStored    int
	keysReturned   map[lazystore.StorageKey]struct{}
	keysUpdated    map[lazystore.StorageKey]struct{}
	keysTouched    map[lazystore.StorageKey]struct{}
}

var _ lazystore.Ledger = &InMemLedger{}

func NewInMemLedger() *InMemLedger {
	return NewInMemLedgerFromMap(
		make(map[lazystore.StorageKey][]byte),
	)
}

func NewInMemLedgerFromMap(values map[lazystore.StorageKey][]byte) *InMemLedger {
	return &InMemLedger{
		values:       values,
		keysReturned: make(map[lazystore.StorageKey]struct{}),
		keysUpdated:  make(map[lazystore.StorageKey]struct{}),
		keysTouched:  make(map[lazystore.StorageKey]struct{}),
	}
}

func (l *InMemLedger) GetValue(key lazystore.StorageKey) ([]byte, error) {
	value := l.values[key]
	l.bytesRetrieved += len(value)
	l.keysReturned[key] = struct{}{}
	l.keysTouched[key] = struct{}{}
	return value, nil
}

func (l *InMemLedger) SetValue(key lazystore.StorageKey, value []byte) error {
	l.keysUpdated[key] = struct{}{}
	l.keysTouched[key] = struct{}{}
	if len(value) == 0 {
		delete(l.values, key)
		return nil
	}
	l.values[key] = append([]byte(nil), value...)
	l.bytesStored += len(value)
	return nil
}

func (l *InMemLedger) ValueExists(key lazystore.StorageKey) (bool, error) {
	l.keysTouched[key] = struct{}{}
	_, ok := l.values[key]
	return ok, nil
}

// Values returns a copy of every stored key and value.
func (l *InMemLedger) Values() map[lazystore.StorageKey][]byte {
	return maps.Clone(l.values)
}

func (l *InMemLedger) Count() int {
	return len(l.values)
}

func (l *InMemLedger) Size() int {
	total := 0
	for _, value := range l.values {
		total += len(value)
	}
	return total
}

func (l *InMemLedger) BytesRetrieved() int {
	return l.bytesRetrieved
}

func (l *InMemLedger) BytesStored() int {
	return l.bytesStored
}

func (l *InMemLedger) KeysReturned() int {
	return len(l.keysReturned)
}

func (l *InMemLedger) KeysUpdated() int {
	return len(l.keysUpdated)
}

func (l *InMemLedger) KeysTouched() int {
	return len(l.keysTouched)
}

func (l *InMemLedger) ResetReporter() {
	l.bytesStored = 0
	l.bytesRetrieved = 0
	l.keysReturned = make(map[lazystore.StorageKey]struct{})
	l.keysUpdated = make(map[lazystore.StorageKey]struct{})
	l.keysTouched = make(map[lazystore.StorageKey]struct{})
}
