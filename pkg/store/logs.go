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
	"sync"

	"github.com/carverauto/proxyconsole/pkg/api"
	"github.com/carverauto/proxyconsole/pkg/feed"
	"github.com/carverauto/proxyconsole/pkg/gateway"
	"github.com/carverauto/proxyconsole/pkg/logger"
	"github.com/carverauto/proxyconsole/pkg/models"
)

// LogStore holds the last fetched page of log records.
type LogStore struct {
	api    *api.LogsAPI
	pub    feed.Publisher
	logger logger.Logger
	busy   *busyFlag

	mu   sync.RWMutex
	page models.LogPage
}

func NewLogStore(sender gateway.Sender, pub feed.Publisher, log logger.Logger) (*LogStore, error) {
	if sender == nil {
		return nil, errSenderRequired
	}

	if pub == nil {
		pub = feed.Discard{}
	}

	if log == nil {
		log = logger.Global()
	}

	return &LogStore{
		api:    api.NewLogsAPI(sender),
		pub:    pub,
		logger: log.WithComponent("log-store"),
		busy:   newBusyFlag("logs", pub),
		page:   models.LogPage{Items: []models.LogRecord{}},
	}, nil
}

// List fetches a page and replaces the held one.
func (s *LogStore) List(ctx context.Context, q models.LogQuery) (models.LogPage, error) {
	leave := s.busy.enter()
	defer leave()

	page, err := s.api.List(ctx, q)
	if err != nil {
		return models.LogPage{}, err
	}

	if page.Items == nil {
		page.Items = []models.LogRecord{}
	}

	s.mu.Lock()
	s.page = copyPage(page)
	s.mu.Unlock()

	s.pub.Publish(feed.TopicLogsPage, copyPage(page))

	return page, nil
}

// Clear deletes logs on the server and, only once that succeeded, empties the
// local page.
func (s *LogStore) Clear(ctx context.Context, req models.LogClearRequest) error {
	if err := s.api.Clear(ctx, req); err != nil {
		return err
	}

	s.mu.Lock()
	s.page = models.LogPage{Items: []models.LogRecord{}}
	s.mu.Unlock()

	s.logger.Info().
		Str("level", req.Level).
		Str("node_id", req.NodeID.String()).
		Msg("Logs cleared")

	s.pub.Publish(feed.TopicLogsCleared, req)

	return nil
}

func (s *LogStore) Export(ctx context.Context, q models.LogQuery) ([]byte, error) {
	return s.api.Export(ctx, q)
}

func (s *LogStore) Page() models.LogPage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyPage(s.page)
}

func (s *LogStore) Loading() bool {
	return s.busy.active()
}

func copyPage(p models.LogPage) models.LogPage {
	items := make([]models.LogRecord, len(p.Items))
	copy(items, p.Items)

	return models.LogPage{Items: items, Total: p.Total}
}
