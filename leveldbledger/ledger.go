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

// Package leveldbledger implements a lazystore.Ledger on top of goleveldb.
package leveldbledger

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"go.uber.org/zap"

	"github.com/onflow/lazystore"
)

// Ledger stores every storage key as a 32 byte LevelDB key.
type Ledger struct {
	db           *leveldb.DB
	writeOptions *opt.WriteOptions
	logger       *zap.Logger
}

var _ lazystore.Ledger = &Ledger{}

type Option func(l *Ledger)

// WithSync makes every write wait for the data to reach stable storage.
func WithSync(sync bool) Option {
	return func(l *Ledger) {
		l.writeOptions = &opt.WriteOptions{Sync: sync}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// Open opens or creates the database in dir.
func Open(dir string, opts ...Option) (*Ledger, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, lazystore.NewExternalError(err, fmt.Sprintf("failed to open leveldb %s", dir))
	}
	l := newLedger(db, opts...)
	l.logger.Info("leveldb ledger opened", zap.String("dir", dir))
	return l, nil
}

// OpenInMemory opens a database kept in memory.
func OpenInMemory(opts ...Option) (*Ledger, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, lazystore.NewExternalError(err, "failed to open in-memory leveldb")
	}
	return newLedger(db, opts...), nil
}

func newLedger(db *leveldb.DB, opts ...Option) *Ledger {
	l := &Ledger{
		db:     db,
		logger: zap.NewNop(),
	}
	for _, applyOption := range opts {
		applyOption(l)
	}
	return l
}

func (l *Ledger) GetValue(key lazystore.StorageKey) ([]byte, error) {
	value, err := l.db.Get(key[:], nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, lazystore.NewExternalError(err, fmt.Sprintf("failed to read %s", key))
	}
	return value, nil
}

// SetValue stores value at key. An empty value deletes key.
func (l *Ledger) SetValue(key lazystore.StorageKey, value []byte) error {
	var err error
	if len(value) == 0 {
		err = l.db.Delete(key[:], l.writeOptions)
	} else {
		err = l.db.Put(key[:], value, l.writeOptions)
	}
	if err != nil {
		return lazystore.NewExternalError(err, fmt.Sprintf("failed to write %s", key))
	}
	return nil
}

func (l *Ledger) ValueExists(key lazystore.StorageKey) (bool, error) {
	exists, err := l.db.Has(key[:], nil)
	if err != nil {
		return false, lazystore.NewExternalError(err, fmt.Sprintf("failed to read %s", key))
	}
	return exists, nil
}

// Count returns the number of stored keys.
func (l *Ledger) Count() (int, error) {
	iter := l.db.NewIterator(nil, nil)
	defer iter.Release()

	count := 0
	for iter.Next() {
		count++
	}
	if err := iter.Error(); err != nil {
		return 0, lazystore.NewExternalError(err, "failed to iterate leveldb")
	}
	return count, nil
}

func (l *Ledger) Close() error {
	err := l.db.Close()
	if err != nil {
		return lazystore.NewExternalError(err, "failed to close leveldb")
	}
	return nil
}
