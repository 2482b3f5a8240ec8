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

// DefaultBufferSize is the default capacity of the ledger transfer buffer.
// A single encoded value (plus its encoded key, for fallible accessors)
// must fit into it.
const DefaultBufferSize = 1 << 14

var (
	defaultBufferSize = DefaultBufferSize

	// debugChecks enables extra consistency checks that cost additional
	// ledger reads, e.g. verifying cached lengths against the ledger.
	debugChecks = false
)

// SetDefaultBufferSize sets the transfer buffer size used by storages created
// without WithBufferSize and returns the previous value.
func SetDefaultBufferSize(size int) int {
	prev := defaultBufferSize
	defaultBufferSize = size
	return prev
}

// SetDebugChecks enables or disables debug consistency checks and returns the previous value.
func SetDebugChecks(enabled bool) bool {
	prev := debugChecks
	debugChecks = enabled
	return prev
}
