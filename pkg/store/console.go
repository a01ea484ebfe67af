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
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/proxyconsole/pkg/feed"
	"github.com/carverauto/proxyconsole/pkg/gateway"
	"github.com/carverauto/proxyconsole/pkg/logger"
	"github.com/carverauto/proxyconsole/pkg/models"
)

// Options configures a Console.
type Options struct {
	Publisher     feed.Publisher
	Logger        logger.Logger
	NodeCacheSize int
}

// Console owns the three stores that share one gateway.
type Console struct {
	Proxies    *ProxyStore
	Statistics *StatisticsStore
	Logs       *LogStore

	logger logger.Logger
}

func NewConsole(sender gateway.Sender, opts Options) (*Console, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Global()
	}

	proxies, err := NewProxyStore(sender, opts.Publisher, log)
	if err != nil {
		return nil, err
	}

	stats, err := NewStatisticsStore(sender, opts.Publisher, log, opts.NodeCacheSize)
	if err != nil {
		return nil, err
	}

	logs, err := NewLogStore(sender, opts.Publisher, log)
	if err != nil {
		return nil, err
	}

	return &Console{
		Proxies:    proxies,
		Statistics: stats,
		Logs:       logs,
		logger:     log.WithComponent("console"),
	}, nil
}

// Refresh reloads the proxy list, daily traffic and proxy statistics
// concurrently and returns the first error. A failing load does not cancel
// the others.
func (c *Console) Refresh(ctx context.Context) error {
	start := time.Now()

	var g errgroup.Group

	g.Go(func() error {
		_, err := c.Proxies.List(ctx, models.ProxyFilter{})
		return err
	})

	g.Go(func() error {
		_, err := c.Statistics.FetchTraffic(ctx, models.RangeDaily, models.StatsQuery{})
		return err
	})

	g.Go(func() error {
		_, err := c.Statistics.FetchProxyStats(ctx, models.StatsQuery{})
		return err
	})

	err := g.Wait()

	c.logger.Debug().
		Err(err).
		Dur("duration", time.Since(start)).
		Msg("Console refresh finished")

	return err
}

// Loading reports whether any store has a call in flight.
func (c *Console) Loading() bool {
	return c.Proxies.Loading() || c.Statistics.Loading() || c.Logs.Loading()
}
