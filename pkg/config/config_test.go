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
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/proxyconsole/pkg/gateway"
	"github.com/carverauto/proxyconsole/pkg/logger"
	"github.com/carverauto/proxyconsole/pkg/store"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "proxyctl.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := writeConfig(t, `{
		"api": {"base_url": "https://console.example/api", "timeout": "3s", "rate_limit": 5},
		"statistics": {"node_cache_size": 16},
		"feed": {"listen_addr": ":9000", "allowed_origins": ["https://console.example"]}
	}`)

	t.Setenv("PROXYCONSOLE_API_API_KEY", "secret")
	t.Setenv("PROXYCONSOLE_API_TIMEOUT", "7s")
	t.Setenv("PROXYCONSOLE_FEED_BUFFER", "12")

	var cfg ConsoleConfig
	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, "https://console.example/api", cfg.API.BaseURL)
	assert.Equal(t, Duration(7*time.Second), cfg.API.Timeout)
	assert.Equal(t, "secret", cfg.API.APIKey)
	assert.InDelta(t, 5.0, cfg.API.RateLimit, 0.0001)
	assert.Equal(t, 16, cfg.Statistics.NodeCacheSize)
	assert.Equal(t, ":9000", cfg.Feed.ListenAddr)
	assert.Equal(t, 12, cfg.Feed.Buffer)
	assert.Equal(t, []string{"https://console.example"}, cfg.Feed.AllowedOrigins)
	require.NotNil(t, cfg.Logging)
}

func TestDefaultsAndAPIURLAlias(t *testing.T) {
	var cfg ConsoleConfig
	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, gateway.DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, Duration(gateway.DefaultTimeout), cfg.API.Timeout)
	assert.Equal(t, store.DefaultNodeCacheSize, cfg.Statistics.NodeCacheSize)

	t.Setenv(APIURLEnv, "http://10.0.0.5:8000/api")

	cfg = ConsoleConfig{}
	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "", &cfg))
	assert.Equal(t, "http://10.0.0.5:8000/api", cfg.API.BaseURL)
}

func TestEnvOnlySourceIgnoresFile(t *testing.T) {
	path := writeConfig(t, `{"api": {"base_url": "https://file.example"}}`)

	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("PROXYCONSOLE_API_BASE_URL", "https://env.example")

	var cfg ConsoleConfig
	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg))
	assert.Equal(t, "https://env.example", cfg.API.BaseURL)
}

func TestConfigJSONEnvironment(t *testing.T) {
	t.Setenv("PROXYCONSOLE_CONFIG_JSON", `{"api":{"base_url":"https://json.example","timeout":1000000000}}`)

	var cfg ConsoleConfig
	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, "https://json.example", cfg.API.BaseURL)
	assert.Equal(t, Duration(time.Second), cfg.API.Timeout)
}

func TestInvalidConfigs(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "relative url", body: `{"api":{"base_url":"/api"}}`, want: errBaseURLNotAbs},
		{name: "negative timeout", body: `{"api":{"base_url":"http://x","timeout":"-1s"}}`, want: errNegativeTimeout},
		{name: "negative rate", body: `{"api":{"base_url":"http://x","rate_limit":-1}}`, want: errNegativeRate},
		{name: "negative cache", body: `{"statistics":{"node_cache_size":-2}}`, want: errInvalidCacheSize},
		{name: "negative refresh", body: `{"feed":{"refresh_interval":"-5s"}}`, want: errInvalidRefresh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg ConsoleConfig

			err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), writeConfig(t, tt.body), &cfg)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUnknownFieldsAndBadSource(t *testing.T) {
	var cfg ConsoleConfig

	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), writeConfig(t, `{"apii":{}}`), &cfg)
	require.Error(t, err)

	t.Setenv("CONFIG_SOURCE", "kv")

	err = NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "", &cfg)
	require.ErrorIs(t, err, errInvalidConfigSource)
}

func TestEnvLoaderRejectsBadValues(t *testing.T) {
	t.Setenv("PROXYCONSOLE_API_TIMEOUT", "soon")

	var cfg ConsoleConfig
	err := NewEnvConfigLoader(logger.NewTestLogger(), DefaultEnvPrefix).Load(context.Background(), "", &cfg)
	require.Error(t, err)

	require.ErrorIs(t, NewEnvConfigLoader(logger.NewTestLogger(), "").Load(context.Background(), "", cfg), ErrDstMustBeNonNilPointer)
}

func TestDurationJSON(t *testing.T) {
	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, Duration(90*time.Second), d)

	require.ErrorIs(t, json.Unmarshal([]byte(`true`), &d), errInvalidDuration)

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.JSONEq(t, `"2s"`, string(out))
}

func TestGatewayConfigMapping(t *testing.T) {
	cfg := DefaultConsoleConfig()
	cfg.API.APIKey = "k"
	cfg.API.RateBurst = 3

	gc := cfg.GatewayConfig()
	assert.Equal(t, cfg.API.BaseURL, gc.BaseURL)
	assert.Equal(t, gateway.DefaultTimeout, gc.Timeout)
	assert.Equal(t, "k", gc.APIKey)
	assert.Equal(t, 3, gc.RateBurst)
}

func TestLoadFileSkipsEnvironment(t *testing.T) {
	t.Setenv("PROXYCONSOLE_API_BASE_URL", "https://env.example")

	var cfg ConsoleConfig
	require.NoError(t, LoadFile(context.Background(), writeConfig(t, `{"api":{"base_url":"https://file.example"}}`), &cfg))

	assert.Equal(t, "https://file.example", cfg.API.BaseURL)
	assert.Nil(t, cfg.Logging)
	require.ErrorIs(t, LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.json"), &cfg), os.ErrNotExist)
}

func TestJSONFileLoader(t *testing.T) {
	ctx := context.Background()

	t.Run("blank file keeps defaults", func(t *testing.T) {
		t.Setenv(APIURLEnv, "")

		var cfg ConsoleConfig
		require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(ctx, writeConfig(t, "  \n"), &cfg))
		assert.Equal(t, gateway.DefaultBaseURL, cfg.API.BaseURL)
	})

	t.Run("trailing data", func(t *testing.T) {
		var cfg ConsoleConfig
		err := LoadFile(ctx, writeConfig(t, `{"api":{}} {"feed":{}}`), &cfg)
		require.ErrorIs(t, err, errTrailingConfigData)
	})

	t.Run("home directory", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		require.NoError(t, os.WriteFile(filepath.Join(home, "proxyctl.json"),
			[]byte(`{"api":{"base_url":"https://home.example"}}`), 0o600))

		var cfg ConsoleConfig
		require.NoError(t, LoadFile(ctx, "~/proxyctl.json", &cfg))
		assert.Equal(t, "https://home.example", cfg.API.BaseURL)
	})
}
