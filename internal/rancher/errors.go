/*
SPDX-License-Identifier: Apache-2.0

Copyright 2026 Project Shepherd

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package rancher

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a non-success API response.
type ErrorKind string

const (
	ErrBadRequest   ErrorKind = "BadRequest"
	ErrUnauthorized ErrorKind = "Unauthorized"
	ErrForbidden    ErrorKind = "Forbidden"
	ErrNotFound     ErrorKind = "NotFound"
	ErrConflict     ErrorKind = "Conflict"
	ErrUnexpected   ErrorKind = "Unexpected"
)

// APIError is a non-success status from the management API with the response
// body preserved for logging.
type APIError struct {
	Kind   ErrorKind
	Status int
	Body   string
}

func (e *APIError) Error() string {
	// The lowercased status text is part of the contract: readiness polling
	// matches "not found" in error strings.
	text := http.StatusText(e.Status)
	if text == "" {
		text = "unknown status"
	}
	body := e.Body
	if len(body) > 256 {
		body = body[:253] + "..."
	}
	if body == "" {
		return fmt.Sprintf("api error %d (%s)", e.Status, strings.ToLower(text))
	}
	return fmt.Sprintf("api error %d (%s): %s", e.Status, strings.ToLower(text), body)
}

// kindForStatus maps an HTTP status code to its error kind.
func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		return ErrUnexpected
	}
}

// AsAPIError unwraps err into an *APIError if there is one in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == ErrNotFound
}

// IsConflict reports whether err is a 409 from the API.
func IsConflict(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == ErrConflict
}

// IsInternalServerError reports whether err is a 500 from the API.
func IsInternalServerError(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Status == http.StatusInternalServerError
}
