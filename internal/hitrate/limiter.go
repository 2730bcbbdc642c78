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

// Package hitrate gates worker calls to the upstream matching service.
// Unlike the poller's in-process window, this limiter is backed by a
// shared store so that every concurrent worker invocation, across
// process boundaries, counts against one global limit.
package hitrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/watchdogproxy/relay/internal/kvstore"
)

// ErrWaitTimeout is returned when the gate could not admit an item
// within the configured maximum wait.
var ErrWaitTimeout = errors.New("hitrate: max wait exceeded")

// SleepFunc pauses for d or returns early with ctx's error. Injected so
// tests run without real timers.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Limiter admits items while the count of non-expired hit records stays
// below the limit, then records a hit for the admitted item.
type Limiter struct {
	store   kvstore.HitStore
	limit   int
	period  time.Duration
	wait    time.Duration
	maxWait time.Duration

	now   func() time.Time
	sleep SleepFunc
	ll    *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithSleep overrides the retry sleep, for tests.
func WithSleep(sleep SleepFunc) Option {
	return func(l *Limiter) {
		l.sleep = sleep
	}
}

// New builds a Limiter. limit is the global concurrency budget, period
// how long a recorded hit counts against it, wait the pause between
// rescans, and maxWait the hard deadline on blocking.
func New(store kvstore.HitStore, limit int, period, wait, maxWait time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		store:   store,
		limit:   limit,
		period:  period,
		wait:    wait,
		maxWait: maxWait,
		now:     time.Now,
		sleep:   defaultSleep,
		ll:      slog.Default().With("component", "hitrate"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait blocks until the item is admitted, then records its hit. The
// store is rescanned after every pause; once the count of live records
// drops under the limit the hit is written and Wait returns. Exceeding
// maxWait returns ErrWaitTimeout.
func (l *Limiter) Wait(ctx context.Context, itemID string) error {
	deadline := l.now().Add(l.maxWait)
	for {
		now := l.now()
		count, err := l.store.CountActive(ctx, now.Unix())
		if err != nil {
			return fmt.Errorf("hit-rate scan: %w", err)
		}
		if count < l.limit {
			break
		}
		if !now.Before(deadline) {
			return fmt.Errorf("%w: item %s waited %s", ErrWaitTimeout, itemID, l.maxWait)
		}
		l.ll.Info("Pausing for rate limit",
			slog.String("itemID", itemID),
			slog.Int("active", count),
			slog.Int("limit", l.limit))
		if err := l.sleep(ctx, l.wait); err != nil {
			return err
		}
	}

	now := l.now().Unix()
	hit := kvstore.Hit{
		ID:        itemID,
		Timestamp: now,
		ExpiresAt: now + int64(l.period/time.Second),
	}
	if err := l.store.RecordHit(ctx, hit); err != nil {
		return fmt.Errorf("record hit: %w", err)
	}
	return nil
}
