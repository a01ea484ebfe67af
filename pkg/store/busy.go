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

package store

import (
	"sync"

	"github.com/carverauto/proxyconsole/pkg/feed"
)

// BusyEvent is published on feed.TopicBusy when a store starts or stops loading.
type BusyEvent struct {
	Store   string `json:"store"`
	Loading bool   `json:"loading"`
}

// busyFlag counts in-flight calls of one store.
type busyFlag struct {
	mu    sync.Mutex
	n     int
	store string
	pub   feed.Publisher
}

func newBusyFlag(store string, pub feed.Publisher) *busyFlag {
	return &busyFlag{store: store, pub: pub}
}

func (b *busyFlag) enter() (leave func()) {
	b.mu.Lock()
	b.n++

	if b.n == 1 {
		b.pub.Publish(feed.TopicBusy, BusyEvent{Store: b.store, Loading: true})
	}
	b.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			b.n--

			if b.n == 0 {
				b.pub.Publish(feed.TopicBusy, BusyEvent{Store: b.store, Loading: false})
			}
		})
	}
}

func (b *busyFlag) active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.n > 0
}
