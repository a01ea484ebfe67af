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
	"errors"
	"fmt"
)

const (
	// FallbackApplicationMessage is shown when a rejecting envelope has no message.
	FallbackApplicationMessage = "API request error"
	// FallbackTransportMessage is shown when a failed response carries no usable message.
	FallbackTransportMessage = "network request failed, please try again later"
)

var (
	// ErrApplication matches every *ApplicationError with errors.Is.
	ErrApplication = errors.New("application error")
	// ErrTransport matches every *TransportError with errors.Is.
	ErrTransport = errors.New("transport error")

	errBaseURLRequired = errors.New("gateway base url is required")
	errInvalidBaseURL  = errors.New("gateway base url must be absolute")
	errDecodePayload   = errors.New("failed to decode response payload")
)

// ApplicationError is returned when the server understood the request but
// rejected it with a non-zero envelope code.
type ApplicationError struct {
	Code    int64
	Message string
}

func (e *ApplicationError) Error() string {
	return e.Message
}

func (*ApplicationError) Is(target error) bool {
	return target == ErrApplication
}

// TransportError is returned when the request never produced a valid envelope.
// StatusCode is zero when no HTTP response was received.
type TransportError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}

	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (*TransportError) Is(target error) bool {
	return target == ErrTransport
}

// UserMessage returns the text a user should see for err.
func UserMessage(err error) string {
	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Message
	}

	return FallbackTransportMessage
}
