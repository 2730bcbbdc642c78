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

// Package heartbeat runs a periodic best-effort callback, used for the
// poller's queue-depth telemetry pings.
package heartbeat

import (
	"context"
	"log/slog"
	"time"
)

// Func is one heartbeat tick. Errors are logged and the loop continues.
type Func func(ctx context.Context) error

// Heartbeater invokes a Func immediately and then on every interval
// until its context is cancelled.
type Heartbeater struct {
	fn       Func
	interval time.Duration
	ll       *slog.Logger
}

func New(fn Func, interval time.Duration, logger *slog.Logger) *Heartbeater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeater{
		fn:       fn,
		interval: interval,
		ll:       logger.With("component", "heartbeat"),
	}
}

// Start launches the heartbeat loop and returns a cancel function that
// stops it independently of the parent context.
func (h *Heartbeater) Start(ctx context.Context) context.CancelFunc {
	hbCtx, cancel := context.WithCancel(ctx)
	go h.run(hbCtx)
	return cancel
}

func (h *Heartbeater) run(ctx context.Context) {
	h.tick(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *Heartbeater) tick(ctx context.Context) {
	if err := h.fn(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		h.ll.Warn("Heartbeat failed (continuing)", slog.Any("error", err))
	}
}
