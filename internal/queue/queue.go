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

// Package queue abstracts the work queue carrying submission items from
// the accept boundary to the relay's workers.
package queue

import (
	"context"
	"time"
)

// Message is one received queue entry. ReceiptHandle acks the message
// via Delete; an unacked message reappears after the queue's visibility
// timeout.
type Message struct {
	Body          []byte
	ReceiptHandle string
	MessageID     string
}

// Depth is a point-in-time snapshot of queue backlog.
type Depth struct {
	Visible  int
	Delayed  int
	InFlight int
}

// Queue is the work-queue interface the poller and workers consume.
type Queue interface {
	// Receive long-polls for up to max messages, waiting server-side up
	// to wait before returning empty.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)

	// Send enqueues a new message body.
	Send(ctx context.Context, body []byte) error

	// Delete acks a message so it is never redelivered.
	Delete(ctx context.Context, receiptHandle string) error

	// QueueDepth reports approximate backlog counts.
	QueueDepth(ctx context.Context) (Depth, error)
}
