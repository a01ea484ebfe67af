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

package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	err := Init(&Config{Level: "debug", Debug: true, Output: "stdout"})
	require.NoError(t, err)

	assert.Equal(t, zerolog.DebugLevel, GetLogger().GetLevel())
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init(&Config{Level: "loud"})
	require.Error(t, err)
}

func TestSetDebug(t *testing.T) {
	SetDebug(true)
	assert.Equal(t, zerolog.DebugLevel, GetLogger().GetLevel())

	SetDebug(false)
	assert.Equal(t, zerolog.InfoLevel, GetLogger().GetLevel())
}

func TestWriterLoggerComponent(t *testing.T) {
	var buf bytes.Buffer

	log := NewWriterLogger(&buf).WithComponent("gateway")
	log.Info().Str("path", "/proxy/list").Msg("request sent")

	assert.Contains(t, buf.String(), `"component":"gateway"`)
	assert.Contains(t, buf.String(), `"path":"/proxy/list"`)
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_HEADERS", "x-token=abc, tenant = ops")

	config := DefaultConfig()

	assert.Equal(t, "warn", config.Level)
	assert.Equal(t, "stderr", config.Output)
	assert.Equal(t, map[string]string{"x-token": "abc", "tenant": "ops"}, config.OTel.Headers)
	assert.Equal(t, "proxyconsole", config.OTel.ServiceName)
}

func TestInitializeTracingWithoutExporter(t *testing.T) {
	tp, err := InitializeTracing(context.Background(), TracingConfig{Logger: NewTestLogger()})
	require.NoError(t, err)

	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := GetTracer("test").Start(context.Background(), "probe")
	defer span.End()

	assert.True(t, span.SpanContext().IsValid())
}
