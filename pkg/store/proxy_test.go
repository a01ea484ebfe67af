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
	"math/rand/v2"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/proxyconsole/pkg/api"
	"github.com/carverauto/proxyconsole/pkg/feed"
	"github.com/carverauto/proxyconsole/pkg/gateway"
	"github.com/carverauto/proxyconsole/pkg/logger"
	"github.com/carverauto/proxyconsole/pkg/models"
)

func newProxyStore(t *testing.T, b *fakeBackend, pub feed.Publisher) *ProxyStore {
	t.Helper()

	s, err := NewProxyStore(b, pub, logger.NewTestLogger())
	require.NoError(t, err)

	return s
}

func loadedStore(t *testing.T, nodes ...models.ProxyNode) (*ProxyStore, *fakeBackend) {
	t.Helper()

	b := newFakeBackend()
	b.seed(nodes...)

	s := newProxyStore(t, b, nil)
	_, err := s.List(context.Background(), models.ProxyFilter{})
	require.NoError(t, err)

	return s, b
}

func TestNewProxyStoreRequiresSender(t *testing.T) {
	_, err := NewProxyStore(nil, nil, logger.NewTestLogger())
	require.ErrorIs(t, err, errSenderRequired)
}

func TestListTrustsServerCounters(t *testing.T) {
	b := newFakeBackend()
	s := newProxyStore(t, b, nil)

	b.seed(activeNode("1"), inactiveNode("2"))

	page, err := s.List(context.Background(), models.ProxyFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	assert.Equal(t, models.Counters{Total: 2, Active: 1}, s.Counters())
	require.NoError(t, s.Verify())
	assert.Len(t, s.Nodes(), 2)
	assert.Equal(t, "page=1&pageSize=2", b.requests()[0].Query.Encode())
}

func TestListWithServerTotalsBeyondPage(t *testing.T) {
	ctx := context.Background()

	sender := senderFunc(func(context.Context, gateway.RequestSpec) (*gateway.Response, error) {
		return &gateway.Response{Data: []byte(`{"items":[{"id":1,"status":"active"}],"total":50,"activeCount":20}`)}, nil
	})

	s, err := NewProxyStore(sender, nil, logger.NewTestLogger())
	require.NoError(t, err)

	_, err = s.List(ctx, models.ProxyFilter{})
	require.NoError(t, err)

	assert.Equal(t, models.Counters{Total: 50, Active: 20}, s.Counters())
	require.NoError(t, s.Verify())

	// Later transitions keep the off-page remainder intact.
	s.mu.Lock()
	s.remove(0)
	s.mu.Unlock()

	assert.Equal(t, models.Counters{Total: 49, Active: 19}, s.Counters())
	require.NoError(t, s.Verify())
}

func TestCreateActiveNodeIncrementsBoth(t *testing.T) {
	s, _ := loadedStore(t, inactiveNode("1"))
	before := s.Counters()

	node, err := s.Create(context.Background(), models.ProxyDraft{
		Host: "10.1.1.1", Port: 8080, Protocol: models.ProtocolHTTP, Status: models.StatusActive,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusActive, node.Status)
	assert.Equal(t, before.Total+1, s.Counters().Total)
	assert.Equal(t, before.Active+1, s.Counters().Active)
	assert.Equal(t, node.ID, s.Nodes()[len(s.Nodes())-1].ID)
	require.NoError(t, s.Verify())
}

func TestUpdateActiveToInactive(t *testing.T) {
	s, _ := loadedStore(t, activeNode("1"), activeNode("2"), inactiveNode("3"))
	before := s.Counters()

	_, err := s.Update(context.Background(), "2", models.ProxyPatch{Status: statusPtr(models.StatusInactive)})
	require.NoError(t, err)

	assert.Equal(t, before.Active-1, s.Counters().Active)
	assert.Equal(t, before.Total, s.Counters().Total)

	ids := make([]models.NodeID, 0, 3)
	for _, n := range s.Nodes() {
		ids = append(ids, n.ID)
	}

	assert.Equal(t, []models.NodeID{"1", "2", "3"}, ids, "order preserved")
	require.NoError(t, s.Verify())
}

func TestUpdateUnknownNodeIsNoop(t *testing.T) {
	s, b := loadedStore(t, activeNode("1"))
	before := s.Counters()

	node, err := s.Update(context.Background(), "99", models.ProxyPatch{Status: statusPtr(models.StatusActive)})
	require.NoError(t, err)

	assert.Equal(t, models.NodeID("99"), node.ID)
	assert.Equal(t, before, s.Counters())
	assert.Len(t, s.Nodes(), 1)
	assert.Len(t, b.requests(), 2)
}

func TestDeleteStaleIDKeepsCounters(t *testing.T) {
	s, _ := loadedStore(t, activeNode("1"), inactiveNode("2"))
	before := s.Counters()

	require.NoError(t, s.Delete(context.Background(), "404"))
	assert.Equal(t, before, s.Counters())
	require.NoError(t, s.Verify())
}

func TestDeleteActiveNode(t *testing.T) {
	s, _ := loadedStore(t, activeNode("1"), inactiveNode("2"))

	require.NoError(t, s.Delete(context.Background(), "1"))
	assert.Equal(t, models.Counters{Total: 1, Active: 0}, s.Counters())

	_, ok := s.Node("1")
	assert.False(t, ok)
}

func TestFailedCallLeavesStateUntouched(t *testing.T) {
	s, b := loadedStore(t, activeNode("1"))
	before := s.Nodes()

	b.failNext(&gateway.ApplicationError{Code: 1, Message: "quota exceeded"})

	_, err := s.Create(context.Background(), models.ProxyDraft{Host: "h", Port: 1, Protocol: models.ProtocolHTTP})
	require.ErrorIs(t, err, gateway.ErrApplication)
	assert.Equal(t, "quota exceeded", err.Error())

	assert.Equal(t, before, s.Nodes())
	assert.Equal(t, models.Counters{Total: 1, Active: 1}, s.Counters())

	b.failNext(&gateway.TransportError{Message: "down"})
	require.Error(t, s.Delete(context.Background(), "1"))
	assert.Len(t, s.Nodes(), 1)

	b.failNext(&gateway.TransportError{Message: "down"})
	_, err = s.List(context.Background(), models.ProxyFilter{})
	require.Error(t, err)
	assert.False(t, s.Loading())
	assert.Len(t, s.Nodes(), 1)
}

func TestDotNodeIDIsNeverSent(t *testing.T) {
	s, b := loadedStore(t, activeNode("1"))
	sent := len(b.requests())

	require.ErrorIs(t, s.Delete(context.Background(), ".."), api.ErrInvalidNodeID)

	name := "renamed"
	_, err := s.Update(context.Background(), ".", models.ProxyPatch{Name: &name})
	require.ErrorIs(t, err, api.ErrInvalidNodeID)

	assert.Len(t, b.requests(), sent)
	assert.Len(t, s.Nodes(), 1)
	assert.Equal(t, models.Counters{Total: 1, Active: 1}, s.Counters())
}

func TestTestAndGetDoNotMutate(t *testing.T) {
	s, _ := loadedStore(t, inactiveNode("1"))
	before := s.Nodes()

	res, err := s.Test(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, err = s.Get(context.Background(), "1")
	require.NoError(t, err)

	assert.Equal(t, before, s.Nodes())
}

func TestBatchImportAddsReturnedNodes(t *testing.T) {
	s, _ := loadedStore(t, activeNode("1"))

	res, err := s.BatchImport(context.Background(), []models.ProxyDraft{
		{Host: "a", Port: 1, Protocol: models.ProtocolHTTP, Status: models.StatusActive},
		{Host: "", Port: 2},
		{Host: "c", Port: 3, Protocol: models.ProtocolHTTPS},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, models.Counters{Total: 3, Active: 2}, s.Counters())
	require.NoError(t, s.Verify())
}

func TestCreateOfKnownIDReplacesInsteadOfDuplicating(t *testing.T) {
	sender := senderFunc(func(context.Context, gateway.RequestSpec) (*gateway.Response, error) {
		return &gateway.Response{Data: []byte(`{"id":1,"status":"inactive"}`)}, nil
	})

	s, err := NewProxyStore(sender, nil, logger.NewTestLogger())
	require.NoError(t, err)

	s.mu.Lock()
	s.add(activeNode("1"))
	s.mu.Unlock()

	_, err = s.Create(context.Background(), models.ProxyDraft{})
	require.NoError(t, err)

	assert.Len(t, s.Nodes(), 1)
	assert.Equal(t, models.Counters{Total: 1, Active: 0}, s.Counters())
}

func TestExportPassesBytesThrough(t *testing.T) {
	s, b := loadedStore(t)

	body, err := s.Export(context.Background(), models.ProxyFilter{})
	require.NoError(t, err)
	assert.Equal(t, "id,host\n", string(body))

	calls := b.requests()
	assert.Equal(t, gateway.KindBinary, calls[len(calls)-1].Kind)
}

func TestCountersHoldForRandomSequences(t *testing.T) {
	statuses := []models.ProxyStatus{models.StatusActive, models.StatusInactive, models.StatusError, models.StatusTesting}

	for seed := uint64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*7))
		s, _ := loadedStore(t, activeNode("1"), inactiveNode("2"))
		ctx := context.Background()

		for step := 0; step < 60; step++ {
			id := models.NodeID(strconv.Itoa(rng.IntN(12) + 1))
			status := statuses[rng.IntN(len(statuses))]

			var err error

			switch rng.IntN(3) {
			case 0:
				_, err = s.Create(ctx, models.ProxyDraft{Host: "h", Port: 1, Protocol: models.ProtocolHTTP, Status: status})
			case 1:
				_, err = s.Update(ctx, id, models.ProxyPatch{Status: &status})
			case 2:
				err = s.Delete(ctx, id)
			}

			require.NoError(t, err)

			nodes := s.Nodes()
			require.Equal(t, models.Recompute(nodes), s.Counters(), "seed %d step %d", seed, step)
		}
	}
}

type verifyingPublisher struct {
	store *ProxyStore
	mu    sync.Mutex
	errs  []error
}

func (v *verifyingPublisher) Publish(string, any) {
	if v.store == nil {
		return
	}

	if err := v.store.Verify(); err != nil {
		v.mu.Lock()
		v.errs = append(v.errs, err)
		v.mu.Unlock()
	}
}

func TestCountersHoldUnderConcurrentCalls(t *testing.T) {
	b := newFakeBackend()
	b.seed(activeNode("1"), activeNode("2"), inactiveNode("3"))

	pub := &verifyingPublisher{}
	s := newProxyStore(t, b, pub)
	pub.store = s

	ctx := context.Background()
	_, err := s.List(ctx, models.ProxyFilter{})
	require.NoError(t, err)

	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)

		go func(w int) {
			defer wg.Done()

			for i := 0; i < 20; i++ {
				id := models.NodeID(strconv.Itoa((w+i)%6 + 1))

				switch (w + i) % 3 {
				case 0:
					_, _ = s.Create(ctx, models.ProxyDraft{Host: "h", Port: 1, Protocol: models.ProtocolHTTP, Status: models.StatusActive})
				case 1:
					_, _ = s.Update(ctx, id, models.ProxyPatch{Status: statusPtr(models.StatusInactive)})
				case 2:
					_ = s.Delete(ctx, id)
				}
			}
		}(w)
	}

	wg.Wait()

	require.NoError(t, s.Verify())
	assert.Empty(t, pub.errs)
	assert.False(t, s.Loading())
}

type senderFunc func(ctx context.Context, spec gateway.RequestSpec) (*gateway.Response, error)

func (f senderFunc) Send(ctx context.Context, spec gateway.RequestSpec) (*gateway.Response, error) {
	return f(ctx, spec)
}
