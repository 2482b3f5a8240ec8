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
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/circlehash"
)

const checksumSize = 8

// ChecksumLedger is a Ledger decorator appending a CircleHash64 checksum of
// every stored value. Values failing verification on read are reported as
// DecodingError, so corruption is caught before values are decoded.
type ChecksumLedger struct {
	ledger Ledger
	seed   uint64
}

var _ Ledger = &ChecksumLedger{}

func NewChecksumLedger(ledger Ledger, seed uint64) *ChecksumLedger {
	return &ChecksumLedger{ledger: ledger, seed: seed}
}

// checksum covers the storage key and the value, so a value copied to
// another key fails verification.
func (l *ChecksumLedger) checksum(key StorageKey, value []byte) uint64 {
	data := make([]byte, 0, len(key)+len(value))
	data = append(data, key[:]...)
	data = append(data, value...)
	return circlehash.Hash64(data, l.seed)
}

func (l *ChecksumLedger) GetValue(key StorageKey) ([]byte, error) {
	data, err := l.ledger.GetValue(key)
	if err != nil {
		// Wrap err as external error (if needed) because err is returned by Ledger interface.
		return nil, wrapErrorfAsExternalErrorIfNeeded(err, fmt.Sprintf("failed to get value %s", key))
	}
	if len(data) == 0 {
		return nil, nil
	}

	if len(data) <= checksumSize {
		return nil, NewDecodingErrorf("value %s is too short to carry a checksum: %d bytes", key, len(data))
	}

	value := data[:len(data)-checksumSize]
	want := binary.BigEndian.Uint64(data[len(data)-checksumSize:])

	if got := l.checksum(key, value); got != want {
		return nil, NewDecodingErrorf("value %s checksum mismatch: stored %x, computed %x", key, want, got)
	}

	return value, nil
}

func (l *ChecksumLedger) SetValue(key StorageKey, value []byte) error {
	var data []byte
	if len(value) > 0 {
		data = make([]byte, len(value), len(value)+checksumSize)
		copy(data, value)
		data = binary.BigEndian.AppendUint64(data, l.checksum(key, value))
	}

	err := l.ledger.SetValue(key, data)
	if err != nil {
		// Wrap err as external error (if needed) because err is returned by Ledger interface.
		return wrapErrorfAsExternalErrorIfNeeded(err, fmt.Sprintf("failed to set value %s", key))
	}
	return nil
}

func (l *ChecksumLedger) ValueExists(key StorageKey) (bool, error) {
	exists, err := l.ledger.ValueExists(key)
	if err != nil {
		// Wrap err as external error (if needed) because err is returned by Ledger interface.
		return false, wrapErrorfAsExternalErrorIfNeeded(err, fmt.Sprintf("failed to check value %s", key))
	}
	return exists, nil
}
