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

// Place limits on number of array elements to improve security.
const maxArrayElements = 2147483647
const maxMapPairs = 2147483647

const (
	CBORTagStashOccupiedEntry = 220
	CBORTagStashVacantEntry   = 221
)

var (
	// encOptions produce deterministic encodings: storage keys are derived
	// from encoded bytes, so the same value must always yield the same bytes.
	encOptions = func() cbor.EncOptions {
		opts := cbor.CoreDetEncOptions()
		opts.IndefLength = cbor.IndefLengthForbidden
		return opts
	}()

	decOptions = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		MaxArrayElements: maxArrayElements,
		MaxMapPairs:      maxMapPairs,
		TagsMd:           cbor.TagsAllowed,
	}

	defaultEncMode = mustEncMode(encOptions)
	defaultDecMode = mustDecMode(decOptions)
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	dm, err := opts.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// DefaultEncMode returns the deterministic CBOR encoding mode used by this package.
func DefaultEncMode() cbor.EncMode {
	return defaultEncMode
}

// DefaultDecMode returns the CBOR decoding mode used by this package.
func DefaultDecMode() cbor.DecMode {
	return defaultDecMode
}
