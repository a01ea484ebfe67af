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
	"net/http"

	"github.com/carverauto/proxyconsole/pkg/gateway"
	"github.com/carverauto/proxyconsole/pkg/models"
)

type LogsAPI struct {
	sender gateway.Sender
}

func NewLogsAPI(sender gateway.Sender) *LogsAPI {
	return &LogsAPI{sender: sender}
}

func (a *LogsAPI) List(ctx context.Context, q models.LogQuery) (models.LogPage, error) {
	return gateway.Fetch[models.LogPage](ctx, a.sender, gateway.RequestSpec{
		Method: http.MethodGet,
		Path:   "/logs",
		Query:  q.Values(),
	})
}

func (a *LogsAPI) Clear(ctx context.Context, req models.LogClearRequest) error {
	_, err := a.sender.Send(ctx, gateway.RequestSpec{
		Method: http.MethodPost,
		Path:   "/logs/clear",
		Body:   req,
	})

	return err
}

func (a *LogsAPI) Export(ctx context.Context, q models.LogQuery) ([]byte, error) {
	return gateway.Download(ctx, a.sender, gateway.RequestSpec{
		Method: http.MethodGet,
		Path:   "/logs/export",
		Query:  q.Values(),
	})
}
