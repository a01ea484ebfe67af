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

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/carverauto/proxyconsole/pkg/gateway"
	"github.com/carverauto/proxyconsole/pkg/models"
)

// StatisticsAPI is the statistics resource. Payloads are returned undecoded.
type StatisticsAPI struct {
	sender gateway.Sender
}

func NewStatisticsAPI(sender gateway.Sender) *StatisticsAPI {
	return &StatisticsAPI{sender: sender}
}

func rangeOrDefault(r models.TimeRange) models.TimeRange {
	if r == "" {
		return models.RangeDaily
	}

	return r
}

// Traffic fetches fleet-wide traffic for r, defaulting to daily.
func (a *StatisticsAPI) Traffic(ctx context.Context, r models.TimeRange, q models.StatsQuery) (json.RawMessage, error) {
	return gateway.Fetch[json.RawMessage](ctx, a.sender, gateway.RequestSpec{
		Method: http.MethodGet,
		Path:   "/statistics/traffic/" + url.PathEscape(string(rangeOrDefault(r))),
		Query:  q.Values(),
	})
}

// ProxyStats fetches the per-proxy statistics listing.
func (a *StatisticsAPI) ProxyStats(ctx context.Context, q models.StatsQuery) ([]json.RawMessage, error) {
	return gateway.Fetch[[]json.RawMessage](ctx, a.sender, gateway.RequestSpec{
		Method: http.MethodGet,
		Path:   "/statistics/proxy",
		Query:  q.Values(),
	})
}

// NodeTraffic fetches the detail statistics of a single node.
func (a *StatisticsAPI) NodeTraffic(ctx context.Context, id models.NodeID, r models.TimeRange) (json.RawMessage, error) {
	seg, err := nodeSegment(id)
	if err != nil {
		return nil, err
	}

	return gateway.Fetch[json.RawMessage](ctx, a.sender, gateway.RequestSpec{
		Method: http.MethodGet,
		Path:   "/statistics/proxy/" + seg + "/" + url.PathEscape(string(rangeOrDefault(r))),
	})
}

func (a *StatisticsAPI) Export(ctx context.Context, q models.StatsQuery) ([]byte, error) {
	return gateway.Download(ctx, a.sender, gateway.RequestSpec{
		Method: http.MethodGet,
		Path:   "/statistics/export",
		Query:  q.Values(),
	})
}
