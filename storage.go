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

	"go.uber.org/zap"
)

// Ledger is the host key/value store. Every collection of this package is
// decomposed into ledger entries addressed by StorageKey.
type Ledger interface {
	// GetValue gets the value for the given key. Absent keys return an empty value.
	GetValue(key StorageKey) (value []byte, err error)
	// SetValue sets the value for the given key. An empty value removes the key.
	SetValue(key StorageKey, value []byte) (err error)
	// ValueExists returns true if the given key exists in the ledger.
	ValueExists(key StorageKey) (exists bool, err error)
}

type StorageUsageReporter interface {
	BytesRetrieved() int
	BytesStored() int
	Reads() int
	Writes() int
	ResetReporter()
}

// Storage is the accessor every collection uses to reach the Ledger.
// It bounds every transfer by the buffer size and reports usage.
type Storage struct {
	ledger     Ledger
	composer   KeyComposer
	bufferSize int
	logger     *zap.Logger

	bytesRetrieved int
	bytesStored    int
	reads          int
	writes         int
}

var _ StorageUsageReporter = &Storage{}

type StorageOption func(st *Storage) *Storage

// WithBufferSize sets the transfer buffer size.
func WithBufferSize(size int) StorageOption {
	return func(st *Storage) *Storage {
		st.bufferSize = size
		return st
	}
}

// WithHasher sets the Hasher used to derive long storage keys.
func WithHasher(hasher Hasher) StorageOption {
	return func(st *Storage) *Storage {
		st.composer = NewKeyComposer(hasher)
		return st
	}
}

func WithLogger(logger *zap.Logger) StorageOption {
	return func(st *Storage) *Storage {
		st.logger = logger
		return st
	}
}

func NewStorage(ledger Ledger, opts ...StorageOption) *Storage {
	storage := &Storage{
		ledger:     ledger,
		composer:   DefaultKeyComposer,
		bufferSize: defaultBufferSize,
		logger:     zap.NewNop(),
	}

	for _, applyOption := range opts {
		storage = applyOption(storage)
	}

	return storage
}

func (s *Storage) Composer() KeyComposer {
	return s.composer
}

func (s *Storage) BufferSize() int {
	return s.bufferSize
}

func (s *Storage) Logger() *zap.Logger {
	return s.logger
}

// Get returns the raw value stored at key. Values larger than the transfer
// buffer are refused with BufferTooSmallError.
func (s *Storage) Get(key StorageKey) ([]byte, bool, error) {
	s.reads++

	v, err := s.ledger.GetValue(key)
	if err != nil {
		// Wrap err as external error (if needed) because err is returned by Ledger interface.
		return nil, false, wrapErrorfAsExternalErrorIfNeeded(err, fmt.Sprintf("failed to get value %s", key))
	}

	s.bytesRetrieved += len(v)

	if len(v) > s.bufferSize {
		return nil, false, NewBufferTooSmallError(uint64(len(v)), uint64(s.bufferSize))
	}

	s.logger.Debug("ledger get", zap.Stringer("key", key), zap.Int("size", len(v)))

	return v, len(v) > 0, nil
}

// Size returns the size of the value stored at key without bounding it by
// the transfer buffer.
func (s *Storage) Size(key StorageKey) (uint32, bool, error) {
	s.reads++

	v, err := s.ledger.GetValue(key)
	if err != nil {
		// Wrap err as external error (if needed) because err is returned by Ledger interface.
		return 0, false, wrapErrorfAsExternalErrorIfNeeded(err, fmt.Sprintf("failed to get value %s", key))
	}

	return uint32(len(v)), len(v) > 0, nil
}

// Set stores data at key.
func (s *Storage) Set(key StorageKey, data []byte) error {
	if len(data) > s.bufferSize {
		return NewBufferTooSmallError(uint64(len(data)), uint64(s.bufferSize))
	}
	if len(data) == 0 {
		return NewEncodingErrorf("cannot store empty value at %s", key)
	}

	s.writes++
	s.bytesStored += len(data)

	err := s.ledger.SetValue(key, data)
	if err != nil {
		// Wrap err as external error (if needed) because err is returned by Ledger interface.
		return wrapErrorfAsExternalErrorIfNeeded(err, fmt.Sprintf("failed to set value %s", key))
	}

	s.logger.Debug("ledger set", zap.Stringer("key", key), zap.Int("size", len(data)))

	return nil
}

// Clear removes the value stored at key. Clearing an absent key is a no-op.
func (s *Storage) Clear(key StorageKey) error {
	s.writes++

	err := s.ledger.SetValue(key, nil)
	if err != nil {
		// Wrap err as external error (if needed) because err is returned by Ledger interface.
		return wrapErrorfAsExternalErrorIfNeeded(err, fmt.Sprintf("failed to clear value %s", key))
	}

	s.logger.Debug("ledger clear", zap.Stringer("key", key))

	return nil
}

// Contains returns true if a value is stored at key.
func (s *Storage) Contains(key StorageKey) (bool, error) {
	s.reads++

	exists, err := s.ledger.ValueExists(key)
	if err != nil {
		// Wrap err as external error (if needed) because err is returned by Ledger interface.
		return false, wrapErrorfAsExternalErrorIfNeeded(err, fmt.Sprintf("failed to check value %s", key))
	}
	return exists, nil
}

func (s *Storage) BytesRetrieved() int {
	return s.bytesRetrieved
}

func (s *Storage) BytesStored() int {
	return s.bytesStored
}

// Reads returns the number of ledger round trips that read data.
func (s *Storage) Reads() int {
	return s.reads
}

// Writes returns the number of ledger round trips that wrote or removed data.
func (s *Storage) Writes() int {
	return s.writes
}

func (s *Storage) ResetReporter() {
	s.bytesRetrieved = 0
	s.bytesStored = 0
	s.reads = 0
	s.writes = 0
}

// getValue reads and decodes the value stored at key.
func getValue[V any](s *Storage, key StorageKey, codec Codec[V]) (V, bool, error) {
	var zero V

	data, found, err := s.Get(key)
	if err != nil {
		// Don't need to wrap error as external error because err is already categorized by Storage.Get().
		return zero, false, err
	}
	if !found {
		return zero, false, nil
	}

	v, err := decodeWith(codec, data)
	if err != nil {
		// Don't need to wrap error as external error because err is already categorized by decodeWith().
		return zero, false, err
	}
	return v, true, nil
}

// setValue encodes value and stores it at key.
func setValue[V any](s *Storage, key StorageKey, codec Codec[V], value V) error {
	data, err := encodeWith(codec, value)
	if err != nil {
		// Don't need to wrap error as external error because err is already categorized by encodeWith().
		return err
	}
	return s.Set(key, data)
}
