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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/carverauto/proxyconsole/pkg/gateway"
	"github.com/carverauto/proxyconsole/pkg/logger"
	"github.com/carverauto/proxyconsole/pkg/store"
)

var (
	errInvalidDuration  = errors.New("invalid duration")
	errBaseURLMissing   = errors.New("api.base_url is required")
	errBaseURLNotAbs    = errors.New("api.base_url must be an absolute http(s) url")
	errNegativeTimeout  = errors.New("api.timeout must not be negative")
	errNegativeRate     = errors.New("api.rate_limit must not be negative")
	errInvalidCacheSize = errors.New("statistics.node_cache_size must be positive")
	errInvalidRefresh   = errors.New("feed.refresh_interval must be positive")
)

// APIURLEnv overrides api.base_url when no prefixed variable sets it.
const APIURLEnv = "PROXYCONSOLE_API_URL"

// Duration is a time.Duration that reads "15s" or nanoseconds from JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// APIConfig points the gateway at the management API.
type APIConfig struct {
	BaseURL   string   `json:"base_url"`
	Timeout   Duration `json:"timeout"`
	APIKey    string   `json:"api_key,omitempty" sensitive:"true"`
	RateLimit float64  `json:"rate_limit,omitempty"`
	RateBurst int      `json:"rate_burst,omitempty"`
}

type StatisticsConfig struct {
	NodeCacheSize int `json:"node_cache_size"`
}

// FeedConfig controls the change-feed WebSocket served by "proxyctl watch".
type FeedConfig struct {
	ListenAddr      string   `json:"listen_addr"`
	Buffer          int      `json:"buffer"`
	AllowedOrigins  []string `json:"allowed_origins,omitempty"`
	APIKey          string   `json:"api_key,omitempty" sensitive:"true"`
	RefreshInterval Duration `json:"refresh_interval"`
}

// ConsoleConfig is the full proxyctl configuration.
type ConsoleConfig struct {
	API        APIConfig        `json:"api"`
	Logging    *logger.Config   `json:"logging,omitempty"`
	Statistics StatisticsConfig `json:"statistics"`
	Feed       FeedConfig       `json:"feed"`
}

// DefaultConsoleConfig returns a configuration that talks to a local API.
func DefaultConsoleConfig() *ConsoleConfig {
	cfg := &ConsoleConfig{}
	cfg.ApplyDefaults()

	return cfg
}

// ApplyDefaults fills unset fields.
func (c *ConsoleConfig) ApplyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = os.Getenv(APIURLEnv)
	}

	if c.API.BaseURL == "" {
		c.API.BaseURL = gateway.DefaultBaseURL
	}

	if c.API.Timeout == 0 {
		c.API.Timeout = Duration(gateway.DefaultTimeout)
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}

	if c.Statistics.NodeCacheSize == 0 {
		c.Statistics.NodeCacheSize = store.DefaultNodeCacheSize
	}

	if c.Feed.ListenAddr == "" {
		c.Feed.ListenAddr = "127.0.0.1:8090"
	}

	if c.Feed.RefreshInterval == 0 {
		c.Feed.RefreshInterval = Duration(30 * time.Second)
	}
}

// Validate implements Validator.
func (c *ConsoleConfig) Validate() error {
	if c.API.BaseURL == "" {
		return errBaseURLMissing
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", errBaseURLNotAbs, c.API.BaseURL)
	}

	if c.API.Timeout < 0 {
		return errNegativeTimeout
	}

	if c.API.RateLimit < 0 {
		return errNegativeRate
	}

	if c.Statistics.NodeCacheSize < 0 {
		return errInvalidCacheSize
	}

	if c.Feed.RefreshInterval < 0 {
		return fmt.Errorf("%w: %s", errInvalidRefresh, time.Duration(c.Feed.RefreshInterval))
	}

	return nil
}

// GatewayConfig maps the API section onto gateway.Config. Collaborators such as
// the notifier are filled in by the caller.
func (c *ConsoleConfig) GatewayConfig() gateway.Config {
	return gateway.Config{
		BaseURL:   c.API.BaseURL,
		Timeout:   time.Duration(c.API.Timeout),
		APIKey:    c.API.APIKey,
		RateLimit: c.API.RateLimit,
		RateBurst: c.API.RateBurst,
	}
}
