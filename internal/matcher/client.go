// Copyright 2025 The Watchdog Relay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package matcher calls the upstream image-matching service. The
// service receives a signed URL for the image and answers with a
// binary match verdict plus an opaque tracking id.
package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultSuccessCode is the upstream status code signalling a healthy
// response.
const DefaultSuccessCode = 3000

// Request is the upstream wire format: the image is passed by
// reference.
type Request struct {
	DataRepresentation string `json:"DataRepresentation"`
	Value              string `json:"Value"`
}

// Status is the upstream-reported result status.
type Status struct {
	Code        int    `json:"Code"`
	Description string `json:"Description,omitempty"`
}

// Response is the decoded upstream verdict. Raw preserves the full
// response body for persistence, callbacks and notification email.
type Response struct {
	IsMatch    bool            `json:"IsMatch"`
	TrackingID string          `json:"TrackingId"`
	Status     Status          `json:"Status"`
	Raw        json.RawMessage `json:"-"`
}

// Client posts match requests. The service URL travels with each work
// item, so Match takes it per call; the subscription key is fixed.
type Client struct {
	httpClient      *http.Client
	subscriptionKey string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(subscriptionKey string, opts ...Option) *Client {
	c := &Client{
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		subscriptionKey: subscriptionKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Match submits the image URL for matching. Any transport failure,
// non-2xx status or undecodable body is an error; the caller treats it
// as fatal for the item and relies on queue redelivery.
func (c *Client) Match(ctx context.Context, serviceURL, imageURL string) (*Response, error) {
	payload, err := json.Marshal(Request{
		DataRepresentation: "URL",
		Value:              imageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("encode match request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serviceURL+"?enhance", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build match request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call matcher: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read matcher response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("matcher returned HTTP %d: %s", resp.StatusCode, body)
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode matcher response: %w", err)
	}
	out.Raw = body
	return &out, nil
}
