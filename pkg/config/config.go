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
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/carverauto/proxyconsole/pkg/logger"
)

var (
	errInvalidConfigSource = errors.New("invalid CONFIG_SOURCE value")
	errInvalidConfigPtr    = errors.New("config must be a non-nil pointer")
)

const (
	configSourceFile = "file"
	configSourceEnv  = "env"

	// DefaultEnvPrefix prefixes every environment override.
	DefaultEnvPrefix = "PROXYCONSOLE_"
)

// ConfigLoader fills dst from some source.
type ConfigLoader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// Validator is implemented by configurations that can check themselves.
type Validator interface {
	Validate() error
}

// Config holds the configuration loading dependencies.
type Config struct {
	fileLoader ConfigLoader
	envLoader  ConfigLoader
	logger     logger.Logger
}

// NewConfig returns a loader that reads a JSON file and then applies
// environment overrides. If log is nil a warn-level stderr logger is used.
func NewConfig(log logger.Logger) *Config {
	if log == nil {
		log = createBasicLogger()
	}

	prefix := os.Getenv("CONFIG_ENV_PREFIX")
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	return &Config{
		fileLoader: JSONFileLoader{},
		envLoader:  NewEnvConfigLoader(log, prefix),
		logger:     log,
	}
}

func createBasicLogger() logger.Logger {
	l, err := logger.New(&logger.Config{Level: zerolog.WarnLevel.String(), Output: "stderr"})
	if err != nil {
		return logger.NewTestLogger()
	}

	return l
}

// LoadFile reads a JSON file into cfg without environment overrides or validation.
func LoadFile(ctx context.Context, path string, cfg interface{}) error {
	return JSONFileLoader{}.Load(ctx, path, cfg)
}

// ValidateConfig validates a configuration if it implements Validator.
func ValidateConfig(cfg interface{}) error {
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}

	return v.Validate()
}

// LoadAndValidate fills cfg and validates it. With CONFIG_SOURCE=env only the
// environment is read; otherwise path (when non-empty) is read first and the
// environment is layered on top.
func (c *Config) LoadAndValidate(ctx context.Context, path string, cfg interface{}) error {
	if cfg == nil {
		return errInvalidConfigPtr
	}

	source := strings.ToLower(os.Getenv("CONFIG_SOURCE"))

	switch source {
	case configSourceEnv:
	case configSourceFile, "":
		if path != "" {
			if err := c.fileLoader.Load(ctx, path, cfg); err != nil {
				return err
			}

			c.logger.Debug().Str("path", path).Msg("Loaded configuration file")
		}
	default:
		return fmt.Errorf("%w: %s (expected '%s' or '%s')",
			errInvalidConfigSource, source, configSourceFile, configSourceEnv)
	}

	if err := c.envLoader.Load(ctx, path, cfg); err != nil {
		return err
	}

	if d, ok := cfg.(interface{ ApplyDefaults() }); ok {
		d.ApplyDefaults()
	}

	return ValidateConfig(cfg)
}
