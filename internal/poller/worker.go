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

package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/watchdogproxy/relay/internal/pipeline"
	"github.com/watchdogproxy/relay/internal/queue"
)

// ItemProcessor runs one work item; the pipeline implements this.
type ItemProcessor interface {
	Process(ctx context.Context, item pipeline.WorkItem, workerID string) (string, error)
}

// NewWorker binds the pipeline to the queue. When ackOnSuccess is set,
// the message is deleted after a clean run; on failure (or when unset)
// the message is left to the queue's visibility-timeout redelivery.
func NewWorker(proc ItemProcessor, q queue.Queue, ackOnSuccess bool, logger *slog.Logger) WorkerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	ll := logger.With("component", "worker")

	return func(ctx context.Context, msg queue.Message) {
		workerID := ulid.Make().String()

		item, err := pipeline.ParseWorkItem(msg.Body)
		if err != nil {
			// A malformed body never becomes parseable; redelivery
			// would loop forever, so ack it away.
			ll.Error("Dropping undecodable queue message",
				slog.String("messageID", msg.MessageID),
				slog.Any("error", err))
			if delErr := q.Delete(ctx, msg.ReceiptHandle); delErr != nil {
				ll.Warn("Failed to delete undecodable message", slog.Any("error", delErr))
			}
			return
		}

		start := time.Now()
		id, err := proc.Process(ctx, item, workerID)
		if err != nil {
			ll.Error("Item processing failed, leaving message for redelivery",
				slog.String("watchdogID", item.ID),
				slog.String("workerID", workerID),
				slog.Any("error", err))
			return
		}

		ll.Info("Item processed",
			slog.String("watchdogID", id),
			slog.String("workerID", workerID),
			slog.Duration("elapsed", time.Since(start)))

		if !ackOnSuccess {
			return
		}
		// Ack with a fresh context so shutdown does not orphan a
		// completed item into redelivery.
		ackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := q.Delete(ackCtx, msg.ReceiptHandle); err != nil {
			ll.Warn("Failed to ack processed message",
				slog.String("watchdogID", id),
				slog.Any("error", err))
		}
	}
}
