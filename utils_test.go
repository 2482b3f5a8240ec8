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

package lazystore_test

import (
	"encoding/hex"
	"flag"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/onflow/lazystore"
	"github.com/onflow/lazystore/test_utils"
)

var (
	runes = []rune("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_")
)

var seed = flag.Int64("seed", 0, "seed for pseudo-random source")

func newRand(tb testing.TB) *rand.Rand {
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	// Benchmarks always log, so only log for tests which
	// will only log with -v flag or on error.
	if t, ok := tb.(*testing.T); ok {
		t.Logf("seed: %d\n", *seed)
	}

	return rand.New(rand.NewSource(*seed))
}

// randStr returns random UTF-8 string of given length.
func randStr(r *rand.Rand, length int) string {
	b := make([]rune, length)
	for i := 0; i < length; i++ {
		b[i] = runes[r.Intn(len(runes))]
	}
	return string(b)
}

func decodeHexOrPanic(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func newTestStorage(tb testing.TB, opts ...lazystore.StorageOption) (*lazystore.Storage, *test_utils.InMemLedger) {
	tb.Helper()
	ledger := test_utils.NewInMemLedger()
	return lazystore.NewStorage(ledger, opts...), ledger
}

var (
	stringCodec = lazystore.Codec[string](lazystore.NewCBORCodec[string]())
	uint32Codec = lazystore.Codec[uint32](lazystore.NewCBORCodec[uint32]())
	uint64Codec = lazystore.Codec[uint64](lazystore.NewCBORCodec[uint64]())
	bytesCodec  = lazystore.Codec[[]byte](test_utils.RawBytesCodec{})
)

// requireFatalPanic runs f, requires it to panic with a FatalError wrapping
// an error of type E, and returns that error.
func requireFatalPanic[E error](t *testing.T, f func()) E {
	t.Helper()

	var recovered any
	func() {
		defer func() {
			recovered = recover()
		}()
		f()
	}()

	require.NotNil(t, recovered, "expected panic")

	err, ok := recovered.(error)
	require.True(t, ok, "panic value %v is not an error", recovered)

	var fatalError *lazystore.FatalError
	require.ErrorAs(t, err, &fatalError)

	var target E
	require.ErrorAs(t, err, &target)
	return target
}

func valueOf[V any](v V) *V {
	return &v
}
