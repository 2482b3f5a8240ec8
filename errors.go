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
	"errors"
	"fmt"
	"runtime/debug"
)

// ExternalError is a generic error returned by the Ledger, a Codec, or
// any other component that isn't part of this package.
type ExternalError struct {
	msg string
	err error
}

func NewExternalError(err error, msg string) error {
	return &ExternalError{msg: msg, err: err}
}

func (e *ExternalError) Error() string {
	if e.msg == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %s", e.msg, e.err.Error())
}

func (e *ExternalError) Unwrap() error {
	return e.err
}

// UserError is returned for conditions the caller can trigger and recover
// from, e.g. values that don't fit into the transfer buffer.
type UserError struct {
	err error
}

func NewUserError(err error) error {
	return &UserError{err: err}
}

func (e *UserError) Error() string {
	return e.err.Error()
}

func (e *UserError) Unwrap() error {
	return e.err
}

// FatalError is returned (or used as a panic value) when an internal
// invariant of a collection doesn't hold. It is never recoverable.
type FatalError struct {
	err error
}

func NewFatalError(err error) error {
	return &FatalError{err: err}
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// IndexOutOfBoundsError is returned when an index is not in the acceptable range.
type IndexOutOfBoundsError struct {
	index uint64
	min   uint64
	max   uint64
}

// NewIndexOutOfBoundsError constructs an IndexOutOfBoundsError.
func NewIndexOutOfBoundsError(index, min, max uint64) error {
	return NewUserError(&IndexOutOfBoundsError{index: index, min: min, max: max})
}

func (e *IndexOutOfBoundsError) Error() string {
	return fmt.Sprintf("index %d is outside required range (%d-%d)", e.index, e.min, e.max)
}

// KeyNotFoundError is returned when a fallible write targets a key or index
// that doesn't exist.
type KeyNotFoundError struct {
	key any
}

// NewKeyNotFoundError constructs a KeyNotFoundError.
func NewKeyNotFoundError(key any) error {
	return NewUserError(&KeyNotFoundError{key: key})
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key not found: %v", e.key)
}

// BufferTooSmallError is returned when an encoded key or value doesn't fit
// into the ledger transfer buffer.
type BufferTooSmallError struct {
	size  uint64
	limit uint64
}

// NewBufferTooSmallError constructs a BufferTooSmallError.
func NewBufferTooSmallError(size, limit uint64) error {
	return NewUserError(&BufferTooSmallError{size: size, limit: limit})
}

func (e *BufferTooSmallError) Error() string {
	return fmt.Sprintf("transfer buffer too small: %d bytes needed, %d bytes available", e.size, e.limit)
}

// EncodingError is returned when a key or value can't be encoded.
type EncodingError struct {
	err error
}

// NewEncodingError constructs an EncodingError.
func NewEncodingError(err error) error {
	return NewUserError(&EncodingError{err: err})
}

// NewEncodingErrorf constructs an EncodingError with a formatted message.
func NewEncodingErrorf(msg string, args ...any) error {
	return NewEncodingError(fmt.Errorf(msg, args...))
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding error: %s", e.err.Error())
}

func (e *EncodingError) Unwrap() error {
	return e.err
}

// DecodingError is returned when stored bytes can't be decoded.
type DecodingError struct {
	err error
}

// NewDecodingError constructs a DecodingError.
func NewDecodingError(err error) error {
	return NewUserError(&DecodingError{err: err})
}

// NewDecodingErrorf constructs a DecodingError with a formatted message.
func NewDecodingErrorf(msg string, args ...any) error {
	return NewDecodingError(fmt.Errorf(msg, args...))
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decoding error: %s", e.err.Error())
}

func (e *DecodingError) Unwrap() error {
	return e.err
}

// StaleEntryError is a fatal error returned when an Entry is used after it
// was consumed or after its map was modified through another path.
type StaleEntryError struct {
	key any
}

// NewStaleEntryError constructs a StaleEntryError.
func NewStaleEntryError(key any) error {
	return NewFatalError(&StaleEntryError{key: key})
}

func (e *StaleEntryError) Error() string {
	return fmt.Sprintf("entry for key %v is no longer valid", e.key)
}

// CollectionInvariantError is a fatal error returned when the stored state of
// a collection contradicts itself.
type CollectionInvariantError struct {
	msg string
}

// NewCollectionInvariantErrorf constructs a CollectionInvariantError.
func NewCollectionInvariantErrorf(msg string, args ...any) error {
	return NewFatalError(&CollectionInvariantError{msg: fmt.Sprintf(msg, args...)})
}

func (e *CollectionInvariantError) Error() string {
	return fmt.Sprintf("collection invariant violated: %s", e.msg)
}

// UnreachableError is used by panic when unreachable code is reached.
// This is copied from Cadence.
type UnreachableError struct {
	Stack []byte
}

func NewUnreachableError() error {
	return NewFatalError(&UnreachableError{Stack: debug.Stack()})
}

func (e UnreachableError) Error() string {
	return fmt.Sprintf("unreachable\n%s", e.Stack)
}

func isErrorCategorized(err error) bool {
	var userError *UserError
	var externalError *ExternalError
	var fatalError *FatalError
	return errors.As(err, &userError) ||
		errors.As(err, &externalError) ||
		errors.As(err, &fatalError)
}

// wrapErrorAsExternalErrorIfNeeded wraps err with ExternalError
// if err isn't already categorized.
func wrapErrorAsExternalErrorIfNeeded(err error) error {
	return wrapErrorfAsExternalErrorIfNeeded(err, "")
}

// wrapErrorfAsExternalErrorIfNeeded wraps err with ExternalError and msg
// if err isn't already categorized.
func wrapErrorfAsExternalErrorIfNeeded(err error, msg string) error {
	if err == nil {
		return nil
	}
	if isErrorCategorized(err) {
		// err is already categorized, return err without wrapping.
		return err
	}
	return NewExternalError(err, msg)
}

// isValueError returns true if err reports a key or value that doesn't fit
// into the transfer buffer or can't be encoded or decoded.
func isValueError(err error) bool {
	var bufferTooSmallError *BufferTooSmallError
	var encodingError *EncodingError
	var decodingError *DecodingError
	return errors.As(err, &bufferTooSmallError) ||
		errors.As(err, &encodingError) ||
		errors.As(err, &decodingError)
}

// escalateValueError is used by the infallible accessors. A value error
// becomes a fatal panic, any other error (e.g. from the Ledger) is returned.
func escalateValueError(err error) error {
	if err == nil {
		return nil
	}
	if isValueError(err) {
		panic(NewFatalError(err))
	}
	return err
}
