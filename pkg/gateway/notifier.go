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

package gateway

import (
	"context"
	"time"

	"github.com/carverauto/proxyconsole/pkg/logger"
)

// NotificationLevel mirrors the toast types of the console UI.
type NotificationLevel string

const (
	LevelError   NotificationLevel = "error"
	LevelWarning NotificationLevel = "warning"
	LevelInfo    NotificationLevel = "info"
)

// DefaultNotificationDuration is how long an error toast stays visible.
const DefaultNotificationDuration = 5 * time.Second

// Notification is a user-visible message raised by the gateway.
type Notification struct {
	Level      NotificationLevel `json:"level"`
	Message    string            `json:"message"`
	Duration   time.Duration     `json:"duration"`
	StatusCode int               `json:"status_code,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// LogNotifier writes notifications to the structured log. It is the default when
// no UI notifier is wired.
type LogNotifier struct {
	logger logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) {
	event := l.logger.Warn()
	if n.Level == LevelInfo {
		event = l.logger.Info()
	}

	event.
		Str("level", string(n.Level)).
		Int("status_code", n.StatusCode).
		Str("request_id", n.RequestID).
		Msg(n.Message)
}
