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
	"encoding/binary"
	"fmt"

	"github.com/onflow/lazystore"
)

// RawBytesCodec stores byte slices as they are.
type RawBytesCodec struct{}

var _ lazystore.Codec[[]byte] = RawBytesCodec{}

func (RawBytesCodec) Encode(value []byte) ([]byte, error) {
	return value, nil
}

func (RawBytesCodec) Decode(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

// FixedUint64Codec stores uint64 as 8 big endian bytes.
type FixedUint64Codec struct{}

var _ lazystore.Codec[uint64] = FixedUint64Codec{}

func (FixedUint64Codec) Encode(value uint64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, value), nil
}

func (FixedUint64Codec) Decode(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("fixed uint64 must be 8 bytes, got %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}
