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
	"github.com/fxamacker/cbor/v2"
)

// Codec encodes and decodes keys and values crossing the ledger boundary.
// Encode must be deterministic.
type Codec[T any] interface {
	Encode(value T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// CBORCodec is a Codec using deterministic CBOR.
type CBORCodec[T any] struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

var _ Codec[uint32] = CBORCodec[uint32]{}

func NewCBORCodec[T any]() CBORCodec[T] {
	return CBORCodec[T]{encMode: defaultEncMode, decMode: defaultDecMode}
}

func NewCBORCodecWithModes[T any](encMode cbor.EncMode, decMode cbor.DecMode) CBORCodec[T] {
	return CBORCodec[T]{encMode: encMode, decMode: decMode}
}

func (c CBORCodec[T]) Encode(value T) ([]byte, error) {
	b, err := c.encMode.Marshal(value)
	if err != nil {
		return nil, NewEncodingError(err)
	}
	return b, nil
}

func (c CBORCodec[T]) Decode(data []byte) (T, error) {
	var value T
	err := c.decMode.Unmarshal(data, &value)
	if err != nil {
		var zero T
		return zero, NewDecodingError(err)
	}
	return value, nil
}

func encodeWith[T any](codec Codec[T], value T) ([]byte, error) {
	b, err := codec.Encode(value)
	if err != nil {
		if isErrorCategorized(err) {
			return nil, err
		}
		// Errors returned by a foreign Codec are reported as encoding errors.
		return nil, NewEncodingError(err)
	}
	return b, nil
}

func decodeWith[T any](codec Codec[T], data []byte) (T, error) {
	v, err := codec.Decode(data)
	if err != nil {
		var zero T
		if isErrorCategorized(err) {
			return zero, err
		}
		return zero, NewDecodingError(err)
	}
	return v, nil
}
