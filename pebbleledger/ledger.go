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

// Package pebbleledger implements a lazystore.Ledger on top of Pebble.
package pebbleledger

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"go.uber.org/zap"

	"github.com/onflow/lazystore"
)

// Ledger stores every storage key as a 32 byte Pebble key.
type Ledger struct {
	db           *pebble.DB
	writeOptions *pebble.WriteOptions
	logger       *zap.Logger
}

var _ lazystore.Ledger = &Ledger{}

type Option func(l *Ledger)

// WithSync makes every write wait for the WAL to reach stable storage.
func WithSync(sync bool) Option {
	return func(l *Ledger) {
		if sync {
			l.writeOptions = pebble.Sync
		} else {
			l.writeOptions = pebble.NoSync
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// Open opens or creates the database in dir.
func Open(dir string, opts ...Option) (*Ledger, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, lazystore.NewExternalError(err, fmt.Sprintf("failed to open pebble %s", dir))
	}
	l := newLedger(db, opts...)
	l.logger.Info("pebble ledger opened", zap.String("dir", dir))
	return l, nil
}

// OpenInMemory opens a database on an in-memory file system.
func OpenInMemory(opts ...Option) (*Ledger, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, lazystore.NewExternalError(err, "failed to open in-memory pebble")
	}
	return newLedger(db, opts...), nil
}

func newLedger(db *pebble.DB, opts ...Option) *Ledger {
	l := &Ledger{
		db:           db,
		writeOptions: pebble.Sync,
		logger:       zap.NewNop(),
	}
	for _, applyOption := range opts {
		applyOption(l)
	}
	return l
}

func (l *Ledger) GetValue(key lazystore.StorageKey) ([]byte, error) {
	value, closer, err := l.db.Get(key[:])
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, lazystore.NewExternalError(err, fmt.Sprintf("failed to read %s", key))
	}
	defer closer.Close()

	// value is only valid until closer is closed.
	data := make([]byte, len(value))
	copy(data, value)
	return data, nil
}

// SetValue stores value at key. An empty value deletes key.
func (l *Ledger) SetValue(key lazystore.StorageKey, value []byte) error {
	var err error
	if len(value) == 0 {
		err = l.db.Delete(key[:], l.writeOptions)
	} else {
		err = l.db.Set(key[:], value, l.writeOptions)
	}
	if err != nil {
		return lazystore.NewExternalError(err, fmt.Sprintf("failed to write %s", key))
	}
	return nil
}

func (l *Ledger) ValueExists(key lazystore.StorageKey) (bool, error) {
	_, closer, err := l.db.Get(key[:])
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, lazystore.NewExternalError(err, fmt.Sprintf("failed to read %s", key))
	}
	closer.Close()
	return true, nil
}

// Count returns the number of stored keys.
func (l *Ledger) Count() (int, error) {
	iter, err := l.db.NewIter(nil)
	if err != nil {
		return 0, lazystore.NewExternalError(err, "failed to iterate pebble")
	}

	count := 0
	for iter.First(); iter.Valid(); iter.Next() {
		count++
	}

	err = iter.Close()
	if err != nil {
		return 0, lazystore.NewExternalError(err, "failed to iterate pebble")
	}
	return count, nil
}

func (l *Ledger) Close() error {
	err := l.db.Close()
	if err != nil {
		return lazystore.NewExternalError(err, "failed to close pebble")
	}
	return nil
}
