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

// Package metrics emits fire-and-forget telemetry pings to the
// downstream metrics collector. A failed ping is logged and dropped;
// it never affects the caller's control flow.
package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/watchdogproxy/relay/internal/queue"
)

// Topic identifies this service in every ping.
const Topic = "watchdog-proxy"

// WorkerPing is the per-item telemetry accumulator. The pipeline fills
// it in incrementally so a partial ping can still be emitted when a
// step fails. Timing fields are wall-clock millisecond deltas.
type WorkerPing struct {
	ConsumerName       string `json:"consumer_name"`
	WorkerID           string `json:"worker_id"`
	WatchdogID         string `json:"watchdog_id"`
	PhotoDNATrackingID string `json:"photodna_tracking_id,omitempty"`
	IsMatch            bool   `json:"is_match"`
	IsError            bool   `json:"is_error"`
	TimingSent         int64  `json:"timing_sent,omitempty"`
	TimingReceived     int64  `json:"timing_received,omitempty"`
	TimingSubmitted    int64  `json:"timing_submitted,omitempty"`
}

// Reporter posts pings to a single collector URL.
type Reporter struct {
	url        string
	httpClient *http.Client
	now        func() time.Time
	ll         *slog.Logger
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Reporter) {
		r.httpClient = c
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		r.now = now
	}
}

func NewReporter(url string, opts ...Option) *Reporter {
	r := &Reporter{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		ll:         slog.Default().With("component", "metrics"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ping posts one event. Failures are logged, never returned.
func (r *Reporter) Ping(ctx context.Context, event string, fields map[string]any) {
	if r.url == "" {
		return
	}

	body := map[string]any{
		"topic":     Topic,
		"event":     event,
		"timestamp": r.now().UnixMilli(),
	}
	for k, v := range fields {
		body[k] = v
	}

	payload, err := json.Marshal(body)
	if err != nil {
		r.ll.Warn("Failed to encode metrics ping", slog.Any("error", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		r.ll.Warn("Failed to build metrics request", slog.Any("error", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.ll.Warn("Failed to send metrics ping",
			slog.String("event", event),
			slog.Any("error", err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.ll.Warn("Metrics collector rejected ping",
			slog.String("event", event),
			slog.Int("status", resp.StatusCode))
	}
}

// WorkerWorks emits the per-item completion ping.
func (r *Reporter) WorkerWorks(ctx context.Context, p WorkerPing) {
	r.Ping(ctx, "worker_works", map[string]any{
		"consumer_name":        p.ConsumerName,
		"worker_id":            p.WorkerID,
		"watchdog_id":          p.WatchdogID,
		"photodna_tracking_id": p.PhotoDNATrackingID,
		"is_match":             p.IsMatch,
		"is_error":             p.IsError,
		"timing_sent":          p.TimingSent,
		"timing_received":      p.TimingReceived,
		"timing_submitted":     p.TimingSubmitted,
	})
}

// PollerHeartbeat emits a queue-depth snapshot for one poller run.
func (r *Reporter) PollerHeartbeat(ctx context.Context, pollerID string, d queue.Depth) {
	r.Ping(ctx, "poller_heartbeat", map[string]any{
		"poller_id":         pollerID,
		"items_in_queue":    d.Visible,
		"items_in_progress": d.InFlight,
		"items_in_waiting":  d.Delayed,
	})
}
