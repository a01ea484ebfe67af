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

// Package logger provides JSON structured logging using zerolog
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var globalLogger zerolog.Logger

func init() {
	globalLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	zerolog.TimeFieldFormat = time.RFC3339
}

// Init replaces the process-wide logger.
func Init(config *Config) error {
	zlog, err := build(config)
	if err != nil {
		return err
	}

	globalLogger = zlog
	log.Logger = globalLogger

	return nil
}

// New returns a Logger that does not touch the global state.
func New(config *Config) (Logger, error) {
	zlog, err := build(config)
	if err != nil {
		return nil, err
	}

	return &zerologLogger{logger: zlog}, nil
}

// Global wraps the process-wide logger in the Logger interface.
func Global() Logger {
	return &zerologLogger{logger: globalLogger}
}

func build(config *Config) (zerolog.Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var output io.Writer = os.Stderr

	if config.Output == "stdout" {
		output = os.Stdout
	}

	level := zerolog.InfoLevel

	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		var err error

		level, err = zerolog.ParseLevel(config.Level)
		if err != nil {
			return zerolog.Logger{}, err
		}
	}

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger(), nil
}

func SetLevel(level zerolog.Level) {
	globalLogger = globalLogger.Level(level)
	log.Logger = globalLogger
}

func SetDebug(debug bool) {
	if debug {
		SetLevel(zerolog.DebugLevel)
	} else {
		SetLevel(zerolog.InfoLevel)
	}
}

func GetLogger() zerolog.Logger {
	return globalLogger
}

func WithComponent(component string) zerolog.Logger {
	return globalLogger.With().Str("component", component).Logger()
}

type zerologLogger struct {
	logger zerolog.Logger
}

func (l *zerologLogger) Trace() *zerolog.Event { return l.logger.Trace() }
func (l *zerologLogger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *zerologLogger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *zerologLogger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *zerologLogger) Error() *zerolog.Event { return l.logger.Error() }
func (l *zerologLogger) With() zerolog.Context { return l.logger.With() }

func (l *zerologLogger) WithComponent(component string) Logger {
	return &zerologLogger{logger: l.logger.With().Str("component", component).Logger()}
}

func (l *zerologLogger) SetLevel(level zerolog.Level) {
	l.logger = l.logger.Level(level)
}
