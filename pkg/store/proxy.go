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

// Package store holds the console's in-memory state: the proxy registry, the
// statistics cache and the log page. Every mutation follows a successful call
// through the gateway; network round trips happen outside the store locks and
// reconciliation inside them.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/carverauto/proxyconsole/pkg/api"
	"github.com/carverauto/proxyconsole/pkg/feed"
	"github.com/carverauto/proxyconsole/pkg/gateway"
	"github.com/carverauto/proxyconsole/pkg/logger"
	"github.com/carverauto/proxyconsole/pkg/models"
)

// ProxyList is published on feed.TopicProxyList after a full reload.
type ProxyList struct {
	Nodes    []models.ProxyNode `json:"nodes"`
	Counters models.Counters    `json:"counters"`
}

// ProxyChange is published for single-node transitions.
type ProxyChange struct {
	Node     models.ProxyNode `json:"node"`
	Counters models.Counters  `json:"counters"`
}

// ProxyStore is the registry of proxy nodes and their {total, active}
// aggregates.
//
// After List the counters come from the server and may cover nodes that are
// not on the loaded page. That difference is kept in offset so the
// incremental transitions can be checked against a recount at any time.
type ProxyStore struct {
	api    *api.ProxyAPI
	pub    feed.Publisher
	logger logger.Logger
	busy   *busyFlag

	mu       sync.RWMutex
	nodes    []models.ProxyNode
	counters models.Counters
	offset   models.Counters
}

func NewProxyStore(sender gateway.Sender, pub feed.Publisher, log logger.Logger) (*ProxyStore, error) {
	if sender == nil {
		return nil, errSenderRequired
	}

	if pub == nil {
		pub = feed.Discard{}
	}

	if log == nil {
		log = logger.Global()
	}

	return &ProxyStore{
		api:    api.NewProxyAPI(sender),
		pub:    pub,
		logger: log.WithComponent("proxy-store"),
		busy:   newBusyFlag("proxy", pub),
		nodes:  []models.ProxyNode{},
	}, nil
}

// List replaces the node list and takes the counters as reported by the server.
func (s *ProxyStore) List(ctx context.Context, filter models.ProxyFilter) (models.ProxyPage, error) {
	leave := s.busy.enter()
	defer leave()

	page, err := s.api.List(ctx, filter)
	if err != nil {
		return models.ProxyPage{}, err
	}

	s.mu.Lock()
	s.nodes = cloneNodes(page.Items)
	s.counters = models.Counters{Total: page.Total, Active: page.ActiveCount}

	local := models.Recompute(s.nodes)
	s.offset = models.Counters{
		Total:  s.counters.Total - local.Total,
		Active: s.counters.Active - local.Active,
	}

	event := ProxyList{Nodes: cloneNodes(s.nodes), Counters: s.counters}
	s.mu.Unlock()

	s.logger.Debug().
		Int("items", len(page.Items)).
		Int("total", page.Total).
		Int("active", page.ActiveCount).
		Msg("Proxy list loaded")

	s.pub.Publish(feed.TopicProxyList, event)

	return page, nil
}

// Get reads one node from the server without touching local state.
func (s *ProxyStore) Get(ctx context.Context, id models.NodeID) (models.ProxyNode, error) {
	return s.api.Get(ctx, id)
}

// Create appends the node returned by the server. If a node with the same id
// is already in the list, it is replaced in place instead of appended twice,
// and the counters follow the update transition.
func (s *ProxyStore) Create(ctx context.Context, draft models.ProxyDraft) (models.ProxyNode, error) {
	node, err := s.api.Create(ctx, draft)
	if err != nil {
		return models.ProxyNode{}, err
	}

	s.mu.Lock()
	s.add(node)
	event := ProxyChange{Node: node.Clone(), Counters: s.counters}
	s.mu.Unlock()

	s.logger.Debug().
		Str("id", node.ID.String()).
		Interface("draft", redacted(draft)).
		Msg("Created node")

	s.pub.Publish(feed.TopicProxyAdded, event)

	return node, nil
}

// Update replaces the local copy of id with the server's answer. A node that
// is not in the local list is left for the next List to pick up.
func (s *ProxyStore) Update(ctx context.Context, id models.NodeID, patch models.ProxyPatch) (models.ProxyNode, error) {
	node, err := s.api.Update(ctx, id, patch)
	if err != nil {
		return models.ProxyNode{}, err
	}

	if node.ID == "" {
		node.ID = id
	}

	s.mu.Lock()

	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()

		s.logger.Debug().
			Str("id", id.String()).
			Msg("Updated node is not in the local list, waiting for refresh")

		return node, nil
	}

	s.replace(idx, node)
	event := ProxyChange{Node: node.Clone(), Counters: s.counters}
	s.mu.Unlock()

	s.logger.Debug().
		Str("id", id.String()).
		Interface("patch", redacted(patch)).
		Msg("Updated node")

	s.pub.Publish(feed.TopicProxyUpdated, event)

	return node, nil
}

// Delete removes id remotely and, if present, locally.
func (s *ProxyStore) Delete(ctx context.Context, id models.NodeID) error {
	if err := s.api.Delete(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()

	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}

	removed := s.remove(idx)
	event := ProxyChange{Node: removed, Counters: s.counters}
	s.mu.Unlock()

	s.pub.Publish(feed.TopicProxyRemoved, event)

	return nil
}

// Test runs a server-side probe. Status changes show up on the next List.
func (s *ProxyStore) Test(ctx context.Context, id models.NodeID) (models.TestResult, error) {
	return s.api.Test(ctx, id)
}

// BatchImport creates several nodes at once. Nodes the server returns are added
// one by one through the same transition as Create.
func (s *ProxyStore) BatchImport(ctx context.Context, drafts []models.ProxyDraft) (models.BatchImportResult, error) {
	res, err := s.api.BatchImport(ctx, drafts)
	if err != nil {
		return models.BatchImportResult{}, err
	}

	events := make([]ProxyChange, 0, len(res.Items))

	s.mu.Lock()
	for i := range res.Items {
		s.add(res.Items[i])
		events = append(events, ProxyChange{Node: res.Items[i].Clone(), Counters: s.counters})
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.pub.Publish(feed.TopicProxyAdded, ev)
	}

	s.logger.Info().
		Int("imported", res.Imported).
		Int("failed", res.Failed).
		Msg("Batch import finished")

	return res, nil
}

func (s *ProxyStore) Export(ctx context.Context, filter models.ProxyFilter) ([]byte, error) {
	return s.api.Export(ctx, filter)
}

// Nodes returns a copy of the current list in order.
func (s *ProxyStore) Nodes() []models.ProxyNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneNodes(s.nodes)
}

// Node returns the local copy of id.
func (s *ProxyStore) Node(id models.NodeID) (models.ProxyNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return models.ProxyNode{}, false
	}

	return s.nodes[idx].Clone(), true
}

func (s *ProxyStore) Counters() models.Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.counters
}

// Loading reports whether a List call is in flight.
func (s *ProxyStore) Loading() bool {
	return s.busy.active()
}

// Verify recounts the list and compares it with the maintained counters.
func (s *ProxyStore) Verify() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	local := models.Recompute(s.nodes)
	want := models.Counters{
		Total:  local.Total + s.offset.Total,
		Active: local.Active + s.offset.Active,
	}

	if want != s.counters {
		return fmt.Errorf("%w: have %+v, recount %+v", ErrCounterDrift, s.counters, want)
	}

	return nil
}

// add appends node, or replaces an entry with the same id so the list never
// holds two copies of one node. Callers hold s.mu.
func (s *ProxyStore) add(node models.ProxyNode) {
	if node.ID != "" {
		if idx := s.indexOf(node.ID); idx >= 0 {
			s.replace(idx, node)
			return
		}
	}

	s.nodes = append(s.nodes, node.Clone())
	s.counters.Total++

	if node.IsActive() {
		s.counters.Active++
	}
}

func (s *ProxyStore) replace(idx int, node models.ProxyNode) {
	old := &s.nodes[idx]

	switch {
	case old.IsActive() && !node.IsActive():
		s.counters.Active--
	case !old.IsActive() && node.IsActive():
		s.counters.Active++
	}

	s.nodes[idx] = node.Clone()
}

func (s *ProxyStore) remove(idx int) models.ProxyNode {
	removed := s.nodes[idx]

	s.nodes = append(s.nodes[:idx], s.nodes[idx+1:]...)
	s.counters.Total--

	if removed.IsActive() {
		s.counters.Active--
	}

	return removed
}

func (s *ProxyStore) indexOf(id models.NodeID) int {
	for i := range s.nodes {
		if s.nodes[i].ID == id {
			return i
		}
	}

	return -1
}

func cloneNodes(in []models.ProxyNode) []models.ProxyNode {
	out := make([]models.ProxyNode, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}

	return out
}

// redacted prepares a request payload for logging without credentials.
func redacted(v interface{}) map[string]interface{} {
	m, err := models.FilterSensitiveFields(v)
	if err != nil {
		return nil
	}

	return m
}
