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
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/carverauto/proxyconsole/pkg/gateway"
	"github.com/carverauto/proxyconsole/pkg/models"
)

// fakeBackend is an in-memory management API that answers gateway requests
// directly, without HTTP.
type fakeBackend struct {
	mu      sync.Mutex
	nextID  int
	nodes   []models.ProxyNode
	logs    models.LogPage
	traffic map[string]json.RawMessage
	stats   []json.RawMessage
	calls   []gateway.RequestSpec

	// failWith, when set, is returned for the next request instead of an answer.
	failWith error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{traffic: map[string]json.RawMessage{}}
}

func (b *fakeBackend) seed(nodes ...models.ProxyNode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, n := range nodes {
		b.nodes = append(b.nodes, n)
		if id, err := strconv.Atoi(string(n.ID)); err == nil && id > b.nextID {
			b.nextID = id
		}
	}
}

func (b *fakeBackend) failNext(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failWith = err
}

func (b *fakeBackend) requests() []gateway.RequestSpec {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]gateway.RequestSpec(nil), b.calls...)
}

func (b *fakeBackend) Send(_ context.Context, spec gateway.RequestSpec) (*gateway.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, spec)

	if b.failWith != nil {
		err := b.failWith
		b.failWith = nil

		return nil, err
	}

	data, err := b.route(spec)
	if err != nil {
		return nil, err
	}

	if spec.Kind == gateway.KindBinary {
		return &gateway.Response{StatusCode: http.StatusOK, Body: data}, nil
	}

	return &gateway.Response{StatusCode: http.StatusOK, Data: data}, nil
}

func (b *fakeBackend) route(spec gateway.RequestSpec) (json.RawMessage, error) {
	parts := strings.Split(strings.Trim(spec.Path, "/"), "/")

	switch {
	case spec.Path == "/proxy/list":
		return b.list()
	case spec.Path == "/proxy/export":
		return []byte("id,host\n"), nil
	case spec.Path == "/proxy/batch":
		return b.batch(spec.Body.(models.BatchImportRequest))
	case spec.Path == "/proxy" && spec.Method == http.MethodPost:
		node := b.create(spec.Body.(models.ProxyDraft))
		return json.Marshal(node)
	case parts[0] == "proxy" && len(parts) == 3 && parts[2] == "test":
		return json.Marshal(models.TestResult{Success: true, Status: models.StatusActive})
	case parts[0] == "proxy" && len(parts) == 2:
		return b.node(spec.Method, models.NodeID(parts[1]), spec.Body)
	case parts[0] == "statistics" && len(parts) == 3 && parts[1] == "traffic":
		return b.payload("traffic/" + parts[2]), nil
	case spec.Path == "/statistics/proxy":
		return json.Marshal(b.stats)
	case parts[0] == "statistics" && len(parts) == 4 && parts[1] == "proxy":
		return b.payload("node/" + parts[2] + "/" + parts[3]), nil
	case spec.Path == "/statistics/export", spec.Path == "/logs/export":
		return []byte("exported"), nil
	case spec.Path == "/logs":
		return json.Marshal(b.logs)
	case spec.Path == "/logs/clear":
		b.logs = models.LogPage{}
		return nil, nil
	}

	return nil, &gateway.TransportError{Message: "not found", StatusCode: http.StatusNotFound}
}

func (b *fakeBackend) payload(key string) json.RawMessage {
	if p, ok := b.traffic[key]; ok {
		return p
	}

	return json.RawMessage(`{}`)
}

func (b *fakeBackend) setPayload(key, payload string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.traffic[key] = json.RawMessage(payload)
}

func (b *fakeBackend) list() (json.RawMessage, error) {
	page := models.ProxyPage{Items: b.nodes, Total: len(b.nodes)}
	page.ActiveCount = models.Recompute(b.nodes).Active

	return json.Marshal(page)
}

func (b *fakeBackend) create(d models.ProxyDraft) models.ProxyNode {
	b.nextID++

	status := d.Status
	if status == "" {
		status = models.StatusInactive
	}

	node := models.ProxyNode{
		ID:       models.NodeID(strconv.Itoa(b.nextID)),
		Name:     d.Name,
		Host:     d.Host,
		Port:     d.Port,
		Protocol: d.Protocol,
		Status:   status,
	}
	b.nodes = append(b.nodes, node)

	return node
}

func (b *fakeBackend) batch(req models.BatchImportRequest) (json.RawMessage, error) {
	res := models.BatchImportResult{}

	for _, d := range req.Items {
		if d.Host == "" {
			res.Failed++
			res.Errors = append(res.Errors, "host is required")

			continue
		}

		res.Items = append(res.Items, b.create(d))
		res.Imported++
	}

	return json.Marshal(res)
}

func (b *fakeBackend) node(method string, id models.NodeID, body any) (json.RawMessage, error) {
	idx := -1

	for i := range b.nodes {
		if b.nodes[i].ID == id {
			idx = i
			break
		}
	}

	switch method {
	case http.MethodGet, http.MethodPut:
		if idx < 0 {
			// The server may know nodes the client never listed.
			b.nodes = append(b.nodes, models.ProxyNode{ID: id, Status: models.StatusInactive})
			idx = len(b.nodes) - 1
		}

		if patch, ok := body.(models.ProxyPatch); ok && patch.Status != nil {
			b.nodes[idx].Status = *patch.Status
		}

		return json.Marshal(b.nodes[idx])
	case http.MethodDelete:
		if idx >= 0 {
			b.nodes = append(b.nodes[:idx], b.nodes[idx+1:]...)
		}

		return nil, nil
	}

	return nil, fmt.Errorf("unsupported method %s", method)
}

func activeNode(id string) models.ProxyNode {
	return models.ProxyNode{ID: models.NodeID(id), Host: "10.0.0." + id, Port: 1080, Protocol: models.ProtocolSOCKS5, Status: models.StatusActive}
}

func inactiveNode(id string) models.ProxyNode {
	n := activeNode(id)
	n.Status = models.StatusInactive

	return n
}

func statusPtr(s models.ProxyStatus) *models.ProxyStatus {
	return &s
}
