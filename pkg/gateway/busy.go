/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package gateway

import "sync"

// BusyTracker reference-counts loading regions and drives a single shared
// BusyIndicator: Show on the 0→1 transition, Hide on 1→0.
type BusyTracker struct {
	mu        sync.Mutex
	count     int
	indicator BusyIndicator
}

// NewBusyTracker wraps indicator. A nil indicator is allowed.
func NewBusyTracker(indicator BusyIndicator) *BusyTracker {
	return &BusyTracker{indicator: indicator}
}

// Acquire enters a loading region. The returned release is safe to call more
// than once; only the first call counts.
func (b *BusyTracker) Acquire() (release func()) {
	b.mu.Lock()
	b.count++

	if b.count == 1 && b.indicator != nil {
		b.indicator.Show()
	}
	b.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(b.release)
	}
}

func (b *BusyTracker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count--

	if b.count == 0 && b.indicator != nil {
		b.indicator.Hide()
	}
}

// Active reports whether any loading region is open.
func (b *BusyTracker) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count > 0
}

// Outstanding returns the number of open loading regions.
func (b *BusyTracker) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}
