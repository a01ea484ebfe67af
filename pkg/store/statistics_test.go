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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/proxyconsole/pkg/gateway"
	"github.com/carverauto/proxyconsole/pkg/logger"
	"github.com/carverauto/proxyconsole/pkg/models"
)

func newStatisticsStore(t *testing.T, sender gateway.Sender, size int) *StatisticsStore {
	t.Helper()

	s, err := NewStatisticsStore(sender, nil, logger.NewTestLogger(), size)
	require.NoError(t, err)

	return s
}

func TestFetchTrafficOverwritesOnlyItsKey(t *testing.T) {
	b := newFakeBackend()
	s := newStatisticsStore(t, b, 0)
	ctx := context.Background()

	b.setPayload("traffic/weekly", `{"week":1}`)
	_, err := s.FetchTraffic(ctx, models.RangeWeekly, models.StatsQuery{})
	require.NoError(t, err)

	b.setPayload("traffic/daily", `{"v":1}`)
	_, err = s.FetchTraffic(ctx, models.RangeDaily, models.StatsQuery{})
	require.NoError(t, err)

	b.setPayload("traffic/daily", `{"v":2}`)
	entry, err := s.FetchTraffic(ctx, models.RangeDaily, models.StatsQuery{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(entry.Payload))

	daily, ok := s.Traffic(models.RangeDaily)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(daily.Payload))
	assert.Equal(t, models.FleetKey(models.RangeDaily), daily.Key)

	weekly, ok := s.Traffic(models.RangeWeekly)
	require.True(t, ok)
	assert.JSONEq(t, `{"week":1}`, string(weekly.Payload))

	_, ok = s.Traffic(models.RangeMonthly)
	assert.False(t, ok)
	assert.False(t, s.Loading())
}

func TestFetchTrafficAlwaysHitsServer(t *testing.T) {
	b := newFakeBackend()
	s := newStatisticsStore(t, b, 0)

	for i := 0; i < 3; i++ {
		_, err := s.FetchTraffic(context.Background(), "", models.StatsQuery{})
		require.NoError(t, err)
	}

	calls := b.requests()
	require.Len(t, calls, 3)
	assert.Equal(t, "/statistics/traffic/daily", calls[0].Path)
}

func TestFetchTrafficFailureKeepsPriorEntry(t *testing.T) {
	b := newFakeBackend()
	s := newStatisticsStore(t, b, 0)
	ctx := context.Background()

	b.setPayload("traffic/daily", `{"v":1}`)
	_, err := s.FetchTraffic(ctx, models.RangeDaily, models.StatsQuery{})
	require.NoError(t, err)

	b.failNext(&gateway.TransportError{Message: "down", StatusCode: 503})
	_, err = s.FetchTraffic(ctx, models.RangeDaily, models.StatsQuery{})
	require.ErrorIs(t, err, gateway.ErrTransport)

	entry, ok := s.Traffic(models.RangeDaily)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":1}`, string(entry.Payload))
	assert.False(t, s.Loading())
	assert.False(t, s.KeyLoading(models.FleetKey(models.RangeDaily)))
}

func TestFetchProxyStatsReplacesSnapshot(t *testing.T) {
	b := newFakeBackend()
	s := newStatisticsStore(t, b, 0)

	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	assert.Empty(t, s.ProxyStats().Items)

	b.mu.Lock()
	b.stats = []json.RawMessage{json.RawMessage(`{"id":1}`), json.RawMessage(`{"id":2}`)}
	b.mu.Unlock()

	snap, err := s.FetchProxyStats(context.Background(), models.StatsQuery{})
	require.NoError(t, err)
	assert.Len(t, snap.Items, 2)
	assert.Equal(t, fixed, s.ProxyStats().FetchedAt)

	b.mu.Lock()
	b.stats = []json.RawMessage{json.RawMessage(`{"id":3}`)}
	b.mu.Unlock()

	_, err = s.FetchProxyStats(context.Background(), models.StatsQuery{})
	require.NoError(t, err)
	require.Len(t, s.ProxyStats().Items, 1)
	assert.JSONEq(t, `{"id":3}`, string(s.ProxyStats().Items[0]))
}

func TestNodeTrafficIsBounded(t *testing.T) {
	b := newFakeBackend()
	s := newStatisticsStore(t, b, 2)
	ctx := context.Background()

	b.setPayload("node/1/daily", `{"n":1}`)

	for _, id := range []models.NodeID{"1", "2", "3"} {
		_, err := s.FetchNodeTraffic(ctx, id, "")
		require.NoError(t, err)
	}

	_, ok := s.NodeTraffic("1", models.RangeDaily)
	assert.False(t, ok, "oldest node entry evicted")

	entry, ok := s.NodeTraffic("3", models.RangeDaily)
	require.True(t, ok)
	assert.Equal(t, models.NodeKey("3", models.RangeDaily), entry.Key)

	_, ok = s.Traffic(models.RangeDaily)
	assert.False(t, ok, "node fetches do not touch fleet keys")
}

func TestKeyLoadingTracksOverlappingFetches(t *testing.T) {
	release := make(chan struct{})
	started := make(chan models.TimeRange, 2)

	sender := senderFunc(func(_ context.Context, spec gateway.RequestSpec) (*gateway.Response, error) {
		if spec.Path == "/statistics/traffic/weekly" {
			started <- models.RangeWeekly
			<-release
		} else {
			started <- models.RangeDaily
		}

		return &gateway.Response{Data: json.RawMessage(`{}`)}, nil
	})

	s := newStatisticsStore(t, sender, 0)
	ctx := context.Background()

	done := make(chan error, 1)

	go func() {
		_, err := s.FetchTraffic(ctx, models.RangeWeekly, models.StatsQuery{})
		done <- err
	}()

	<-started

	assert.True(t, s.KeyLoading(models.FleetKey(models.RangeWeekly)))

	_, err := s.FetchTraffic(ctx, models.RangeDaily, models.StatsQuery{})
	require.NoError(t, err)
	<-started

	assert.True(t, s.Loading(), "weekly still in flight")
	assert.False(t, s.KeyLoading(models.FleetKey(models.RangeDaily)))

	close(release)
	require.NoError(t, <-done)

	assert.False(t, s.Loading())
	assert.False(t, s.KeyLoading(models.FleetKey(models.RangeWeekly)))
}

func TestStatisticsExport(t *testing.T) {
	s := newStatisticsStore(t, newFakeBackend(), 0)

	body, err := s.Export(context.Background(), models.StatsQuery{})
	require.NoError(t, err)
	assert.Equal(t, "exported", string(body))
}
