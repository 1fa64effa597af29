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

// Package rancher is the typed gateway to the Rancher management API. Each
// kind gets list/get/create/patch/delete operations; non-success statuses
// map to *APIError with the body preserved.
package rancher

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/go-logr/logr"

	"github.com/projectshepherd/shepherd/internal/version"
)

const (
	// basePath is the management API group the four kinds live under.
	basePath = "/apis/management.cattle.io/v3"

	defaultTimeout = 30 * time.Second
)

// Client talks to one Rancher endpoint. It is immutable after construction
// and safe for concurrent use.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   logr.Logger
}

// New builds a client for the endpoint. insecure disables TLS verification
// and exists for self-signed development endpoints only; it is never
// defaulted on.
func New(endpoint, token string, insecure bool, log logr.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint url %q: %w", endpoint, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("endpoint url %q must be http(s)", endpoint)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		log.Info("TLS verification disabled for management API endpoint")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // Explicit operator opt-in.
	}

	return &Client{
		base:  base,
		token: token,
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: transport,
		},
		log: log,
	}, nil
}

// listEnvelope is the standard Kubernetes-style list response.
type listEnvelope[T any] struct {
	Items []T `json:"items"`
}

func (c *Client) url(parts ...string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + basePath
	for _, p := range parts {
		u.Path += "/" + url.PathEscape(p)
	}
	return u.String()
}

// do issues one request and decodes a 2xx JSON body into out (when out is
// non-nil). Non-2xx statuses become *APIError.
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, contentType string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Client", version.UserAgent())
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	c.log.V(1).Info("API request", "method", method, "url", rawURL)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to management API failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			Kind:   kindForStatus(resp.StatusCode),
			Status: resp.StatusCode,
			Body:   string(payload),
		}
	}

	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// validatePatch rejects anything that is not a JSON-array patch (RFC 6902)
// before it reaches the wire.
func validatePatch(patch []byte) error {
	trimmed := bytes.TrimSpace(patch)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return &APIError{
			Kind:   ErrBadRequest,
			Status: http.StatusBadRequest,
			Body:   "patch body must be a JSON-array patch (RFC 6902)",
		}
	}
	if _, err := jsonpatch.DecodePatch(trimmed); err != nil {
		return &APIError{
			Kind:   ErrBadRequest,
			Status: http.StatusBadRequest,
			Body:   fmt.Sprintf("invalid JSON patch: %v", err),
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, out any, parts ...string) error {
	return c.do(ctx, http.MethodGet, c.url(parts...), nil, "", out)
}

func (c *Client) post(ctx context.Context, in, out any, parts ...string) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.url(parts...), body, "application/json", out)
}

func (c *Client) patch(ctx context.Context, patch []byte, out any, parts ...string) error {
	if err := validatePatch(patch); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPatch, c.url(parts...), patch, "application/json-patch+json", out)
}

func (c *Client) delete(ctx context.Context, parts ...string) error {
	return c.do(ctx, http.MethodDelete, c.url(parts...), nil, "", nil)
}
