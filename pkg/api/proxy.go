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

// Package api maps the management API resources onto gateway requests.
package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/carverauto/proxyconsole/pkg/gateway"
	"github.com/carverauto/proxyconsole/pkg/models"
)

// ProxyAPI is the proxy resource.
type ProxyAPI struct {
	sender gateway.Sender
}

func NewProxyAPI(sender gateway.Sender) *ProxyAPI {
	return &ProxyAPI{sender: sender}
}

// nodeSegment escapes id for use as one path segment. Empty and dot ids
// would be cleaned into a different endpoint, so they are rejected.
func nodeSegment(id models.NodeID) (string, error) {
	switch s := string(id); s {
	case "", ".", "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
	default:
		return url.PathEscape(s), nil
	}
}

func nodePath(id models.NodeID, suffix ...string) (string, error) {
	seg, err := nodeSegment(id)
	if err != nil {
		return "", err
	}

	p := "/proxy/" + seg
	for _, s := range suffix {
		p += "/" + s
	}

	return p, nil
}

func (a *ProxyAPI) List(ctx context.Context, filter models.ProxyFilter) (models.ProxyPage, error) {
	return gateway.Fetch[models.ProxyPage](ctx, a.sender, gateway.RequestSpec{
		Method: http.MethodGet,
		Path:   "/proxy/list",
		Query:  filter.Values(),
	})
}

func (a *ProxyAPI) Get(ctx context.Context, id models.NodeID) (models.ProxyNode, error) {
	p, err := nodePath(id)
	if err != nil {
		return models.ProxyNode{}, err
	}

	return gateway.Fetch[models.ProxyNode](ctx, a.sender, gateway.RequestSpec{
		Method: http.MethodGet,
		Path:   p,
	})
}

func (a *ProxyAPI) Create(ctx context.Context, draft models.ProxyDraft) (models.ProxyNode, error) {
	return gateway.Fetch[models.ProxyNode](ctx, a.sender, gateway.RequestSpec{
		Method: http.MethodPost,
		Path:   "/proxy",
		Body:   draft,
	})
}

func (a *ProxyAPI) Update(ctx context.Context, id models.NodeID, patch models.ProxyPatch) (models.ProxyNode, error) {
	p, err := nodePath(id)
	if err != nil {
		return models.ProxyNode{}, err
	}

	return gateway.Fetch[models.ProxyNode](ctx, a.sender, gateway.RequestSpec{
		Method: http.MethodPut,
		Path:   p,
		Body:   patch,
	})
}

func (a *ProxyAPI) Delete(ctx context.Context, id models.NodeID) error {
	p, err := nodePath(id)
	if err != nil {
		return err
	}

	_, err = a.sender.Send(ctx, gateway.RequestSpec{
		Method: http.MethodDelete,
		Path:   p,
	})

	return err
}

// Test asks the server to probe a node.
func (a *ProxyAPI) Test(ctx context.Context, id models.NodeID) (models.TestResult, error) {
	p, err := nodePath(id, "test")
	if err != nil {
		return models.TestResult{}, err
	}

	return gateway.Fetch[models.TestResult](ctx, a.sender, gateway.RequestSpec{
		Method: http.MethodPost,
		Path:   p,
	})
}

func (a *ProxyAPI) BatchImport(ctx context.Context, drafts []models.ProxyDraft) (models.BatchImportResult, error) {
	return gateway.Fetch[models.BatchImportResult](ctx, a.sender, gateway.RequestSpec{
		Method: http.MethodPost,
		Path:   "/proxy/batch",
		Body:   models.BatchImportRequest{Items: drafts},
	})
}

// Export downloads the node list in the server's export format.
func (a *ProxyAPI) Export(ctx context.Context, filter models.ProxyFilter) ([]byte, error) {
	return gateway.Download(ctx, a.sender, gateway.RequestSpec{
		Method: http.MethodGet,
		Path:   "/proxy/export",
		Query:  filter.Values(),
	})
}
