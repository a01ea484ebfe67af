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

// Package gateway is the single request pipeline between console stores and the
// proxy management API. It owns the shared busy indicator, decodes the response
// envelope once, and turns every failure into a notification plus a typed error.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/carverauto/proxyconsole/pkg/logger"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8000/api"
	DefaultTimeout = 15 * time.Second

	tracerName = "github.com/carverauto/proxyconsole/pkg/gateway"
)

var errUnexpectedStatusCode = errors.New("unexpected status code")

// ResponseKind selects how a response body is interpreted.
type ResponseKind int

const (
	// KindJSON responses carry the {code, message, data} envelope.
	KindJSON ResponseKind = iota
	// KindBinary responses are returned as raw bytes with no envelope parsing.
	KindBinary
)

// RequestSpec describes one call through the gateway. The busy indicator is
// acquired unless SkipLoading is set.
type RequestSpec struct {
	Method      string
	Path        string
	Query       url.Values
	Body        any
	Kind        ResponseKind
	SkipLoading bool
}

// Response is a successful call. Data holds the envelope payload for JSON
// requests, Body the raw bytes for binary ones.
type Response struct {
	StatusCode int
	Header     http.Header
	Data       json.RawMessage
	Body       []byte
	RequestID  string
}

type envelope struct {
	Code    *int64          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Config controls how the gateway talks to the management API.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	APIKey         string
	RateLimit      float64 // requests per second, 0 disables
	RateBurst      int
	HTTP           HTTPClient
	Notifier       Notifier
	Indicator      BusyIndicator
	TracerProvider trace.TracerProvider
	Logger         logger.Logger
}

// Gateway implements Sender over HTTP.
type Gateway struct {
	baseURL  *url.URL
	apiKey   string
	client   HTTPClient
	notifier Notifier
	busy     *BusyTracker
	limiter  *rate.Limiter
	tracer   trace.Tracer
	logger   logger.Logger
}

var (
	_ Sender   = (*Gateway)(nil)
	_ Reporter = (*Gateway)(nil)
)

// New constructs a Gateway, filling defaults for everything but BaseURL.
func New(cfg Config) (*Gateway, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errBaseURLRequired
	}

	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway base url: %w", err)
	}

	if !parsed.IsAbs() || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", errInvalidBaseURL, cfg.BaseURL)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Global()
	}

	log = log.WithComponent("gateway")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := cfg.HTTP
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	g := &Gateway{
		baseURL:  parsed,
		apiKey:   cfg.APIKey,
		client:   client,
		notifier: notifier,
		busy:     NewBusyTracker(cfg.Indicator),
		tracer:   tp.Tracer(tracerName),
		logger:   log,
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}

		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return g, nil
}

// Busy exposes the shared busy tracker so a UI can poll it.
func (g *Gateway) Busy() *BusyTracker {
	return g.busy
}

// Send dispatches spec. On failure the user is notified exactly once and the
// typed error is returned; the busy region is always closed before returning.
func (g *Gateway) Send(ctx context.Context, spec RequestSpec) (*Response, error) {
	if !spec.SkipLoading {
		release := g.busy.Acquire()
		defer release()
	}

	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	requestID := uuid.NewString()

	ctx, span := g.tracer.Start(ctx, "gateway."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", spec.Path),
			attribute.String("proxyconsole.request_id", requestID),
		),
	)
	defer span.End()

	resp, err := g.roundTrip(ctx, method, spec, requestID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, UserMessage(err))
		g.report(ctx, err, method, spec.Path, requestID)

		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	g.logger.Debug().
		Str("method", method).
		Str("path", spec.Path).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Msg("Request completed")

	return resp, nil
}

func (g *Gateway) roundTrip(ctx context.Context, method string, spec RequestSpec, requestID string) (*Response, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Message: FallbackTransportMessage, Err: err}
		}
	}

	req, err := g.newRequest(ctx, method, spec, requestID)
	if err != nil {
		return nil, &TransportError{Message: FallbackTransportMessage, Err: err}
	}

	httpResp, err := g.client.Do(req)
	if err != nil {
		return nil, &TransportError{Message: FallbackTransportMessage, Err: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{
			Message:    FallbackTransportMessage,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("failed to read response body: %w", err),
		}
	}

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		return nil, &TransportError{
			Message:    messageFromBody(body),
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("%w: %d", errUnexpectedStatusCode, httpResp.StatusCode),
		}
	}

	out := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		RequestID:  requestID,
	}

	if spec.Kind == KindBinary {
		out.Body = body
		return out, nil
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &TransportError{
			Message:    FallbackTransportMessage,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("failed to decode envelope: %w", err),
		}
	}

	if env.Code != nil && *env.Code != 0 {
		msg := strings.TrimSpace(env.Message)
		if msg == "" {
			msg = FallbackApplicationMessage
		}

		return nil, &ApplicationError{Code: *env.Code, Message: msg}
	}

	out.Data = env.Data

	return out, nil
}

func (g *Gateway) newRequest(ctx context.Context, method string, spec RequestSpec, requestID string) (*http.Request, error) {
	endpoint := g.baseURL.JoinPath(spec.Path)
	if len(spec.Query) > 0 {
		endpoint.RawQuery = spec.Query.Encode()
	}

	var body io.Reader = http.NoBody

	if spec.Body != nil {
		payload, err := json.Marshal(spec.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}

		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if spec.Kind == KindBinary {
		req.Header.Set("Accept", "*/*")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	if spec.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if g.apiKey != "" {
		req.Header.Set("X-API-Key", g.apiKey)
	}

	req.Header.Set("X-Request-ID", requestID)

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	return req, nil
}

// Report notifies the user of a failure raised after Send returned, such as
// a payload that does not decode.
func (g *Gateway) Report(ctx context.Context, spec RequestSpec, requestID string, err error) {
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	g.report(ctx, err, method, spec.Path, requestID)
}

func (g *Gateway) report(ctx context.Context, err error, method, path, requestID string) {
	n := Notification{
		Level:     LevelError,
		Message:   UserMessage(err),
		Duration:  DefaultNotificationDuration,
		RequestID: requestID,
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		n.StatusCode = transportErr.StatusCode
	}

	g.logger.Debug().
		Err(err).
		Str("method", method).
		Str("path", path).
		Str("request_id", requestID).
		Msg("Request failed")

	g.notifier.Notify(ctx, n)
}

// messageFromBody extracts a server-provided message from an error body.
func messageFromBody(body []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return FallbackTransportMessage
	}

	if msg := strings.TrimSpace(payload.Message); msg != "" {
		return msg
	}

	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err == nil && strings.TrimSpace(detail) != "" {
		return strings.TrimSpace(detail)
	}

	return FallbackTransportMessage
}

// Decode unmarshals the envelope payload of resp into T. A missing or null
// payload yields the zero value.
func Decode[T any](resp *Response) (T, error) {
	var out T

	if resp == nil {
		return out, nil
	}

	data := bytes.TrimSpace(resp.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return out, nil
	}

	if err := json.Unmarshal(data, &out); err != nil {
		return out, &TransportError{
			Message:    FallbackTransportMessage,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %w", errDecodePayload, err),
		}
	}

	return out, nil
}

// Fetch sends spec and decodes the payload into T. A payload that does not
// decode is reported through s when it is a Reporter.
func Fetch[T any](ctx context.Context, s Sender, spec RequestSpec) (T, error) {
	resp, err := s.Send(ctx, spec)
	if err != nil {
		var zero T
		return zero, err
	}

	out, err := Decode[T](resp)
	if err != nil {
		if r, ok := s.(Reporter); ok {
			r.Report(ctx, spec, resp.RequestID, err)
		}

		var zero T

		return zero, err
	}

	return out, nil
}

// Download sends spec as a binary request and returns the raw body.
func Download(ctx context.Context, s Sender, spec RequestSpec) ([]byte, error) {
	spec.Kind = KindBinary

	resp, err := s.Send(ctx, spec)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}
