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
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/carverauto/proxyconsole/pkg/api"
	"github.com/carverauto/proxyconsole/pkg/feed"
	"github.com/carverauto/proxyconsole/pkg/gateway"
	"github.com/carverauto/proxyconsole/pkg/logger"
	"github.com/carverauto/proxyconsole/pkg/models"
)

// DefaultNodeCacheSize bounds the per-node statistics kept in memory.
const DefaultNodeCacheSize = 128

// ProxyStatsKey is the cache key of the per-proxy statistics listing.
var ProxyStatsKey = models.StatsKey{Range: "proxy-stats"}

// StatisticsStore is a write-through cache of statistics results. Every fetch
// hits the server and replaces the entry for its key; other keys are untouched.
type StatisticsStore struct {
	api    *api.StatisticsAPI
	pub    feed.Publisher
	logger logger.Logger
	busy   *busyFlag
	now    func() time.Time

	nodeTraffic *lru.Cache[models.StatsKey, models.StatisticsEntry]

	mu         sync.RWMutex
	traffic    map[models.TimeRange]models.StatisticsEntry
	proxyStats models.ProxyStatsSnapshot
	inFlight   map[models.StatsKey]int
}

func NewStatisticsStore(sender gateway.Sender, pub feed.Publisher, log logger.Logger, nodeCacheSize int) (*StatisticsStore, error) {
	if sender == nil {
		return nil, errSenderRequired
	}

	if pub == nil {
		pub = feed.Discard{}
	}

	if log == nil {
		log = logger.Global()
	}

	if nodeCacheSize <= 0 {
		nodeCacheSize = DefaultNodeCacheSize
	}

	cache, err := lru.New[models.StatsKey, models.StatisticsEntry](nodeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create node statistics cache: %w", err)
	}

	return &StatisticsStore{
		api:         api.NewStatisticsAPI(sender),
		pub:         pub,
		logger:      log.WithComponent("statistics-store"),
		busy:        newBusyFlag("statistics", pub),
		now:         time.Now,
		nodeTraffic: cache,
		traffic:     make(map[models.TimeRange]models.StatisticsEntry),
		proxyStats:  models.ProxyStatsSnapshot{Items: []json.RawMessage{}},
		inFlight:    make(map[models.StatsKey]int),
	}, nil
}

// FetchTraffic loads fleet-wide traffic for r (daily when empty).
func (s *StatisticsStore) FetchTraffic(ctx context.Context, r models.TimeRange, q models.StatsQuery) (models.StatisticsEntry, error) {
	if r == "" {
		r = models.RangeDaily
	}

	key := models.FleetKey(r)
	defer s.track(key)()

	payload, err := s.api.Traffic(ctx, r, q)
	if err != nil {
		return models.StatisticsEntry{}, err
	}

	entry := models.StatisticsEntry{Key: key, Payload: payload, FetchedAt: s.now()}

	s.mu.Lock()
	s.traffic[r] = entry
	s.mu.Unlock()

	s.pub.Publish(feed.TopicStatsTraffic, entry)

	return entry, nil
}

// FetchProxyStats loads the per-proxy listing and replaces the snapshot.
func (s *StatisticsStore) FetchProxyStats(ctx context.Context, q models.StatsQuery) (models.ProxyStatsSnapshot, error) {
	defer s.track(ProxyStatsKey)()

	items, err := s.api.ProxyStats(ctx, q)
	if err != nil {
		return models.ProxyStatsSnapshot{}, err
	}

	if items == nil {
		items = []json.RawMessage{}
	}

	snap := models.ProxyStatsSnapshot{Items: items, FetchedAt: s.now()}

	s.mu.Lock()
	s.proxyStats = snap
	s.mu.Unlock()

	s.pub.Publish(feed.TopicStatsProxy, snap)

	return snap, nil
}

// FetchNodeTraffic loads detail statistics for one node into the bounded
// per-node cache.
func (s *StatisticsStore) FetchNodeTraffic(ctx context.Context, id models.NodeID, r models.TimeRange) (models.StatisticsEntry, error) {
	if r == "" {
		r = models.RangeDaily
	}

	key := models.NodeKey(id, r)
	defer s.track(key)()

	payload, err := s.api.NodeTraffic(ctx, id, r)
	if err != nil {
		return models.StatisticsEntry{}, err
	}

	entry := models.StatisticsEntry{Key: key, Payload: payload, FetchedAt: s.now()}

	if evicted := s.nodeTraffic.Add(key, entry); evicted {
		s.logger.Debug().Str("key", key.String()).Msg("Node statistics cache full, evicted oldest entry")
	}

	s.pub.Publish(feed.TopicStatsTraffic, entry)

	return entry, nil
}

func (s *StatisticsStore) Export(ctx context.Context, q models.StatsQuery) ([]byte, error) {
	return s.api.Export(ctx, q)
}

// Traffic returns the cached fleet-wide entry for r.
func (s *StatisticsStore) Traffic(r models.TimeRange) (models.StatisticsEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.traffic[r]

	return entry, ok
}

// NodeTraffic returns the cached entry for a node, if still resident.
func (s *StatisticsStore) NodeTraffic(id models.NodeID, r models.TimeRange) (models.StatisticsEntry, bool) {
	return s.nodeTraffic.Get(models.NodeKey(id, r))
}

func (s *StatisticsStore) ProxyStats() models.ProxyStatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]json.RawMessage, len(s.proxyStats.Items))
	copy(items, s.proxyStats.Items)

	return models.ProxyStatsSnapshot{Items: items, FetchedAt: s.proxyStats.FetchedAt}
}

// Loading reports whether at least one fetch is in flight.
func (s *StatisticsStore) Loading() bool {
	return s.busy.active()
}

// KeyLoading reports whether a fetch for key is in flight.
func (s *StatisticsStore) KeyLoading(key models.StatsKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.inFlight[key] > 0
}

// track marks key and the store as loading until the returned func runs.
func (s *StatisticsStore) track(key models.StatsKey) func() {
	leave := s.busy.enter()

	s.mu.Lock()
	s.inFlight[key]++
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		if s.inFlight[key]--; s.inFlight[key] <= 0 {
			delete(s.inFlight, key)
		}
		s.mu.Unlock()

		leave()
	}
}
