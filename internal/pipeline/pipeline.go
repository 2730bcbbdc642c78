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

// Package pipeline processes one queued submission end to end: rate
// gate, upstream match, branch on verdict, callback, metrics. Every
// step except the notification email is fatal to the item; a fatal
// error surfaces to the dispatcher, which leaves the queue message for
// redelivery.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/watchdogproxy/relay/internal/blobstore"
	"github.com/watchdogproxy/relay/internal/matcher"
	"github.com/watchdogproxy/relay/internal/metrics"
	"github.com/watchdogproxy/relay/internal/notify"
)

var itemsProcessed metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/watchdogproxy/relay/internal/pipeline")

	var err error
	itemsProcessed, err = meter.Int64Counter(
		"watchdog.pipeline.items_processed",
		metric.WithDescription("Count of processed work items by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create items_processed counter: %w", err))
	}
}

// RateGate admits items under the global upstream rate limit.
type RateGate interface {
	Wait(ctx context.Context, itemID string) error
}

// MatchClient calls the upstream matching service.
type MatchClient interface {
	Match(ctx context.Context, serviceURL, imageURL string) (*matcher.Response, error)
}

// Notifier sends the positive-match alert email.
type Notifier interface {
	Send(ctx context.Context, m notify.PositiveMatch) (bool, error)
}

// MetricsSink receives the per-item completion ping.
type MetricsSink interface {
	WorkerWorks(ctx context.Context, p metrics.WorkerPing)
}

// Pipeline executes the per-item state machine.
type Pipeline struct {
	blobs       blobstore.Store
	gate        RateGate
	match       MatchClient
	notifier    Notifier
	sink        MetricsSink
	httpClient  *http.Client
	signTTL     time.Duration
	successCode int
	serviceURL  string
	now         func() time.Time
	ll          *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHTTPClient overrides the callback HTTP client, for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) {
		p.httpClient = c
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithSuccessCode sets the upstream status code treated as healthy.
func WithSuccessCode(code int) Option {
	return func(p *Pipeline) {
		p.successCode = code
	}
}

// WithSignTTL sets the lifetime of the signed image URL handed to the
// upstream matcher.
func WithSignTTL(ttl time.Duration) Option {
	return func(p *Pipeline) {
		p.signTTL = ttl
	}
}

// WithServiceURL sets the matcher endpoint used when a work item does
// not carry its own.
func WithServiceURL(url string) Option {
	return func(p *Pipeline) {
		p.serviceURL = url
	}
}

func New(blobs blobstore.Store, gate RateGate, match MatchClient, notifier Notifier, sink MetricsSink, opts ...Option) *Pipeline {
	p := &Pipeline{
		blobs:       blobs,
		gate:        gate,
		match:       match,
		notifier:    notifier,
		sink:        sink,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		signTTL:     15 * time.Minute,
		successCode: matcher.DefaultSuccessCode,
		now:         time.Now,
		ll:          slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// responseRecord is the blob persisted on a positive match: the full
// original submission plus the raw upstream response.
type responseRecord struct {
	WorkItem
	Response json.RawMessage `json:"response"`
}

// callbackPayload is posted to the caller-supplied URI matching the
// verdict. Error reports upstream health, not pipeline health.
type callbackPayload struct {
	WatchdogID string          `json:"watchdog_id"`
	Positive   bool            `json:"positive"`
	Notes      string          `json:"notes"`
	Error      bool            `json:"error"`
	Response   json.RawMessage `json:"response"`
}

// Process runs one work item through the pipeline and returns its id.
// Exactly one worker_works ping is emitted per invocation, carrying
// whatever fields were captured before any failure.
func (p *Pipeline) Process(ctx context.Context, item WorkItem, workerID string) (string, error) {
	ping := metrics.WorkerPing{
		ConsumerName: item.User,
		WorkerID:     workerID,
		WatchdogID:   item.ID,
	}
	defer func() {
		p.sink.WorkerWorks(ctx, ping)
		itemsProcessed.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("is_error", ping.IsError),
			attribute.Bool("is_match", ping.IsMatch),
		))
	}()

	p.ll.Info("Processing queue item", slog.String("watchdogID", item.ID))

	// Step 1: block until the global upstream rate limit admits us.
	if err := p.gate.Wait(ctx, item.ID); err != nil {
		ping.IsError = true
		return "", fmt.Errorf("rate gate: %w", err)
	}

	// Step 2: hand the matcher a signed URL for the stored image. A
	// failure here leaves the message to queue redelivery: no deletes,
	// no persists, no callback.
	imageURL, err := p.blobs.SignedReadURL(ctx, item.Image, p.signTTL)
	if err != nil {
		ping.IsError = true
		return "", fmt.Errorf("sign image URL: %w", err)
	}

	// timing_sent covers queue dwell: submission datestamp to the
	// start of the upstream call.
	start := p.now()
	ping.TimingSent = start.Sub(item.Datestamp).Milliseconds()

	serviceURL := item.UpstreamServiceURL
	if serviceURL == "" {
		serviceURL = p.serviceURL
	}
	resp, err := p.match.Match(ctx, serviceURL, imageURL)
	if err != nil {
		ping.IsError = true
		return "", fmt.Errorf("upstream match: %w", err)
	}
	ping.TimingReceived = p.now().Sub(start).Milliseconds()
	ping.PhotoDNATrackingID = resp.TrackingID
	ping.IsMatch = resp.IsMatch

	// Step 3: branch on the verdict.
	if !resp.IsMatch {
		if err := p.cleanupNegative(ctx, item); err != nil {
			ping.IsError = true
			return "", err
		}
	} else {
		if err := p.persistPositive(ctx, item, resp); err != nil {
			ping.IsError = true
			return "", err
		}
		p.notifyPositive(ctx, item, resp)
	}

	// Step 4: invoke the caller's callback for the verdict.
	submitStart := p.now()
	if err := p.postCallback(ctx, item, resp); err != nil {
		ping.IsError = true
		return "", err
	}
	ping.TimingSubmitted = p.now().Sub(submitStart).Milliseconds()

	return item.ID, nil
}

// cleanupNegative removes the image and its request JSON. Both deletes
// are attempted even if the first fails.
func (p *Pipeline) cleanupNegative(ctx context.Context, item WorkItem) error {
	var errs *multierror.Error
	if err := p.blobs.Delete(ctx, item.Image); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := p.blobs.Delete(ctx, item.RequestKey()); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("negative cleanup: %w", err)
	}
	return nil
}

func (p *Pipeline) persistPositive(ctx context.Context, item WorkItem, resp *matcher.Response) error {
	record, err := json.Marshal(responseRecord{WorkItem: item, Response: resp.Raw})
	if err != nil {
		return fmt.Errorf("encode response record: %w", err)
	}
	if err := p.blobs.Put(ctx, item.ResponseKey(), record, "application/json"); err != nil {
		return fmt.Errorf("persist response record: %w", err)
	}
	return nil
}

// notifyPositive sends the alert email. Best-effort: a failure is
// logged and the item continues to its callback.
func (p *Pipeline) notifyPositive(ctx context.Context, item WorkItem, resp *matcher.Response) {
	sent, err := p.notifier.Send(ctx, notify.PositiveMatch{
		ID:            item.ID,
		User:          item.User,
		Datestamp:     item.Datestamp,
		Notes:         item.Notes,
		PositiveEmail: item.PositiveEmail,
		Image:         item.Image,
		RawResponse:   resp.Raw,
	})
	if err != nil {
		p.ll.Warn("Failed to send notification email (continuing)",
			slog.String("watchdogID", item.ID),
			slog.Any("error", err))
		return
	}
	if !sent {
		p.ll.Debug("No notification email configured", slog.String("watchdogID", item.ID))
	}
}

func (p *Pipeline) postCallback(ctx context.Context, item WorkItem, resp *matcher.Response) error {
	url := item.NegativeURI
	if resp.IsMatch {
		url = item.PositiveURI
	}

	payload, err := json.Marshal(callbackPayload{
		WatchdogID: item.ID,
		Positive:   resp.IsMatch,
		Notes:      item.Notes,
		Error:      resp.Status.Code != p.successCode,
		Response:   resp.Raw,
	})
	if err != nil {
		return fmt.Errorf("encode callback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("callback POST %s: %w", url, err)
	}
	defer func() { _ = res.Body.Close() }()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("callback POST %s: HTTP %d", url, res.StatusCode)
	}
	return nil
}
