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

// Package execlock provides the poller's distributed execution mutex: a
// lease record in a key-value store, acquired with a conditional write
// and released with an unconditional delete. It is advisory — a crashed
// holder's lease simply expires.
package execlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/watchdogproxy/relay/internal/kvstore"
)

// ErrBusy indicates another instance holds a live lease. This is
// expected contention, not a failure.
var ErrBusy = errors.New("execlock: lease held by another instance")

// DefaultKey matches the config-table key the relay has always used.
const DefaultKey = "pollQueueExecutionExpires"

// Lock is a lease over a kvstore key. The stored value is the lease
// expiry in epoch milliseconds.
type Lock struct {
	store kvstore.Store
	key   string
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Lock.
type Option func(*Lock)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Lock) {
		l.now = now
	}
}

func New(store kvstore.Store, key string, ttl time.Duration, opts ...Option) *Lock {
	l := &Lock{
		store: store,
		key:   key,
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire claims the lease. It succeeds only when no record exists or
// the existing lease has already expired. ErrBusy is returned on
// contention and is not retried here; the caller aborts its run.
func (l *Lock) Acquire(ctx context.Context) error {
	now := l.now().UnixMilli()
	err := l.store.ConditionalPut(ctx, l.key, now+l.ttl.Milliseconds(), now)
	if errors.Is(err, kvstore.ErrConditionFailed) {
		return ErrBusy
	}
	if err != nil {
		return fmt.Errorf("acquire lease %q: %w", l.key, err)
	}
	return nil
}

// Release deletes the lease record unconditionally. Callers treat a
// failure here as a warning; the lease self-expires after its TTL.
func (l *Lock) Release(ctx context.Context) error {
	if err := l.store.Delete(ctx, l.key); err != nil {
		return fmt.Errorf("release lease %q: %w", l.key, err)
	}
	return nil
}
