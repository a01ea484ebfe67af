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

package feed

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 60 * time.Second
)

// StreamMessage is the frame written to WebSocket clients.
type StreamMessage struct {
	Type      string    `json:"type"` // "event", "ping" or "error"
	Event     *Event    `json:"event,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ServeHTTP upgrades the request and streams events until either side goes
// away. An optional "topics" query parameter takes a comma separated filter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Str("origin", r.Header.Get("Origin")).
			Msg("Failed to upgrade to WebSocket")

		return
	}

	defer func() { _ = conn.Close() }()

	var topics []string

	if raw := r.URL.Query().Get("topics"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
	}

	events, cancelSub := h.Subscribe(topics...)
	defer cancelSub()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.readClient(conn, cancel)

	h.logger.Info().
		Str("remote_addr", r.RemoteAddr).
		Strs("topics", topics).
		Msg("Feed client connected")

	if err := h.stream(ctx, conn, events); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("Feed stream ended with error")
	}

	h.logger.Info().
		Str("remote_addr", r.RemoteAddr).
		Msg("Feed client disconnected")
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, events <-chan Event) error {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := writeMessage(conn, StreamMessage{Type: "ping", Timestamp: time.Now().UTC()}); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}

		case ev, ok := <-events:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

				return conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
			}

			if err := writeMessage(conn, StreamMessage{Type: "event", Event: &ev, Timestamp: ev.Timestamp}); err != nil {
				return err
			}
		}
	}
}

// readClient drains client frames so close and disconnect are noticed.
func (h *Hub) readClient(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readWait + h.cfg.PingInterval)); err != nil {
			return
		}

		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("Feed client closed unexpectedly")
			}

			return
		}
	}
}

func writeMessage(conn *websocket.Conn, msg StreamMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write %s message: %w", msg.Type, err)
	}

	return nil
}

func (h *Hub) authorized(r *http.Request) bool {
	if h.cfg.APIKey == "" {
		return true
	}

	provided := r.Header.Get("X-API-Key")
	if provided == "" {
		provided = r.URL.Query().Get("api_key")
	}

	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.cfg.APIKey)) == 1
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	h.logger.Warn().
		Str("origin", origin).
		Strs("allowed_origins", h.cfg.AllowedOrigins).
		Msg("Feed origin not allowed")

	return false
}
