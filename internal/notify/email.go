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

// Package notify sends the positive-match alert email. The email is a
// best-effort side effect: callers log failures and move on.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/watchdogproxy/relay/internal/blobstore"
)

// SESAPI is the subset of the SES client used by this package.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// PositiveMatch carries everything the alert email reports.
type PositiveMatch struct {
	ID            string
	User          string
	Datestamp     time.Time
	Notes         string
	PositiveEmail string
	Image         string
	RawResponse   []byte
}

// Notifier composes and sends positive-match emails with signed URLs
// for the stored artifacts.
type Notifier struct {
	client     SESAPI
	blobs      blobstore.Store
	from       string
	operatorTo string
	expires    time.Duration
	now        func() time.Time
	ll         *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) {
		n.now = now
	}
}

// New builds a Notifier. from may be empty, in which case Send is a
// no-op; operatorTo is an optional fixed recipient added alongside the
// submitter-supplied address.
func New(client SESAPI, blobs blobstore.Store, from, operatorTo string, expires time.Duration, opts ...Option) *Notifier {
	n := &Notifier{
		client:     client,
		blobs:      blobs,
		from:       from,
		operatorTo: operatorTo,
		expires:    expires,
		now:        time.Now,
		ll:         slog.Default().With("component", "notify"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Send emails the alert for one positive match. Returns (false, nil)
// when no from-address or no destination is configured. The three
// signed URLs (image, request JSON, response JSON) expire together.
func (n *Notifier) Send(ctx context.Context, m PositiveMatch) (bool, error) {
	var to []string
	if m.PositiveEmail != "" {
		to = append(to, m.PositiveEmail)
	}
	if n.operatorTo != "" {
		to = append(to, n.operatorTo)
	}
	if n.from == "" || len(to) == 0 {
		return false, nil
	}

	imageURL, err := n.blobs.SignedReadURL(ctx, m.Image, n.expires)
	if err != nil {
		return false, fmt.Errorf("sign image URL: %w", err)
	}
	requestURL, err := n.blobs.SignedReadURL(ctx, m.Image+"-request.json", n.expires)
	if err != nil {
		return false, fmt.Errorf("sign request URL: %w", err)
	}
	responseURL, err := n.blobs.SignedReadURL(ctx, m.Image+"-response.json", n.expires)
	if err != nil {
		return false, fmt.Errorf("sign response URL: %w", err)
	}

	expirationDate := n.now().Add(n.expires).UTC().Format(time.RFC3339)
	subject := fmt.Sprintf("[watchdog-proxy] Positive match for %s (%s)", m.User, m.ID)
	body := emailBody(m, imageURL, requestURL, responseURL, expirationDate)

	out, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(n.from),
		Destination: &types.Destination{ToAddresses: to},
		Message: &types.Message{
			Subject: &types.Content{
				Charset: aws.String("UTF-8"),
				Data:    aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Charset: aws.String("UTF-8"),
					Data:    aws.String(body),
				},
			},
		},
	})
	if err != nil {
		return false, fmt.Errorf("send email: %w", err)
	}

	n.ll.Info("Sent notification email",
		slog.String("watchdogID", m.ID),
		slog.String("messageID", aws.ToString(out.MessageId)))
	return true, nil
}

func emailBody(m PositiveMatch, imageURL, requestURL, responseURL, expirationDate string) string {
	return fmt.Sprintf(`
Watchdog ID:
%s

Client application:
%s

Datestamp:
%s

Notes:
%s

Match metadata:
%s

NOTE: The following URLs will expire and stop working after %s.

Image URL:
%s

Request JSON:
%s

Response JSON:
%s
`, m.ID, m.User, m.Datestamp.UTC().Format(time.RFC3339), m.Notes, m.RawResponse, expirationDate, imageURL, requestURL, responseURL)
}
