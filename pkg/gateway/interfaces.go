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
	"net/http"
)

//go:generate mockgen -destination=mock_gateway.go -package=gateway github.com/carverauto/proxyconsole/pkg/gateway HTTPClient,Sender,Notifier,BusyIndicator

// HTTPClient defines the interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Sender issues a request through the shared pipeline.
type Sender interface {
	Send(ctx context.Context, spec RequestSpec) (*Response, error)
}

// Reporter is implemented by senders that can surface a failure detected
// after the response was returned.
type Reporter interface {
	Report(ctx context.Context, spec RequestSpec, requestID string, err error)
}

// Notifier presents a user-visible message, e.g. a toast or a terminal line.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// BusyIndicator is the single visible loading affordance owned by the UI.
type BusyIndicator interface {
	Show()
	Hide()
}
