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

// Package feed fans store change events out to in-process subscribers and
// WebSocket clients.
package feed

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/proxyconsole/pkg/logger"
)

const (
	TopicProxyList    = "proxy.list"
	TopicProxyAdded   = "proxy.added"
	TopicProxyUpdated = "proxy.updated"
	TopicProxyRemoved = "proxy.removed"
	TopicStatsTraffic = "stats.traffic"
	TopicStatsProxy   = "stats.proxy"
	TopicLogsPage     = "logs.page"
	TopicLogsCleared  = "logs.cleared"
	TopicBusy         = "busy"

	defaultBuffer = 64
)

// Event is one published state change.
type Event struct {
	Seq       uint64    `json:"seq"`
	Topic     string    `json:"topic"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher receives state changes from the stores.
type Publisher interface {
	Publish(topic string, payload any)
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(string, any) {}

type subscription struct {
	ch     chan Event
	topics map[string]struct{}
}

func (s *subscription) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}

	_, ok := s.topics[topic]

	return ok
}

// Config controls the hub and its WebSocket endpoint.
type Config struct {
	Buffer         int
	AllowedOrigins []string
	APIKey         string
	PingInterval   time.Duration
}

// Hub is a Publisher that fans events out to subscribers. Publishing never
// blocks; a subscriber whose buffer is full misses the event.
type Hub struct {
	cfg    Config
	logger logger.Logger

	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool

	seq     atomic.Uint64
	dropped atomic.Uint64
}

var _ Publisher = (*Hub)(nil)

func NewHub(cfg Config, log logger.Logger) *Hub {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}

	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}

	if log == nil {
		log = logger.Global()
	}

	return &Hub{
		cfg:    cfg,
		logger: log.WithComponent("feed"),
		subs:   make(map[uint64]*subscription),
	}
}

// Publish delivers an event to every interested subscriber.
func (h *Hub) Publish(topic string, payload any) {
	ev := Event{
		Seq:       h.seq.Add(1),
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for id, sub := range h.subs {
		if !sub.wants(topic) {
			continue
		}

		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
			h.logger.Debug().
				Uint64("subscriber", id).
				Str("topic", topic).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}

// Subscribe registers a subscriber for topics, or all topics when none are
// given. The returned cancel closes the channel and is safe to call twice.
func (h *Hub) Subscribe(topics ...string) (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, h.cfg.Buffer)}

	if len(topics) > 0 {
		sub.topics = make(map[string]struct{}, len(topics))
		for _, t := range topics {
			sub.topics[t] = struct{}{}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}

	h.nextID++
	id := h.nextID
	h.subs[id] = sub

	var once sync.Once

	return sub.ch, func() {
		once.Do(func() { h.unsubscribe(id) })
	}
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return
	}

	delete(h.subs, id)
	close(sub.ch)
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because of full buffers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close ends every subscription. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.closed = true

	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}
