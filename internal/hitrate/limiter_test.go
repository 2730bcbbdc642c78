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

package hitrate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchdogproxy/relay/internal/kvstore"
)

// fakeClock advances only when sleep is called, giving deterministic
// gate behavior without timers.
type fakeClock struct {
	now    time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	c.sleeps++
	return nil
}

func newTestLimiter(store kvstore.HitStore, limit int, clock *fakeClock) *Limiter {
	return New(store, limit, time.Second, 100*time.Millisecond, 2*time.Second,
		WithClock(clock.Now), WithSleep(clock.Sleep))
}

func TestLimiter_AdmitsUnderLimit(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryHitStore()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(store, 5, clock)

	require.NoError(t, l.Wait(ctx, "item-1"))
	assert.Zero(t, clock.sleeps, "should not pause under the limit")

	hits := store.Hits()
	require.Len(t, hits, 1)
	assert.Equal(t, "item-1", hits[0].ID)
	assert.Equal(t, clock.now.Unix(), hits[0].Timestamp)
	assert.Equal(t, clock.now.Unix()+1, hits[0].ExpiresAt)
}

func TestLimiter_BlocksUntilRecordsExpire(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryHitStore()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(store, 2, clock)

	require.NoError(t, l.Wait(ctx, "a"))
	require.NoError(t, l.Wait(ctx, "b"))
	assert.Zero(t, clock.sleeps)

	// Third item must wait for a or b to expire (1s period, 100ms
	// rescans: ten pauses to cross the expiry boundary).
	require.NoError(t, l.Wait(ctx, "c"))
	assert.Greater(t, clock.sleeps, 0, "third item should have paused")

	// Gate never over-admits: at the instant c was admitted, at most
	// limit-1 records were still live.
	count, err := store.CountActive(ctx, clock.now.Unix())
	require.NoError(t, err)
	assert.LessOrEqual(t, count, 2)
}

func TestLimiter_MaxWaitExceeded(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryHitStore()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}

	// Records that never expire within the max wait.
	require.NoError(t, store.RecordHit(ctx, kvstore.Hit{ID: "x", Timestamp: clock.now.Unix(), ExpiresAt: clock.now.Unix() + 3600}))

	l := newTestLimiter(store, 1, clock)
	err := l.Wait(ctx, "blocked")
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.Len(t, store.Hits(), 1, "timed-out item must not record a hit")
}

func TestLimiter_ContextCancelledDuringSleep(t *testing.T) {
	store := kvstore.NewMemoryHitStore()
	ctx, cancel := context.WithCancel(context.Background())

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordHit(ctx, kvstore.Hit{ID: "x", Timestamp: now.Unix(), ExpiresAt: now.Unix() + 3600}))

	l := New(store, 1, time.Second, 100*time.Millisecond, time.Hour,
		WithClock(func() time.Time { return now }),
		WithSleep(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}))

	err := l.Wait(ctx, "cancelled")
	assert.ErrorIs(t, err, context.Canceled)
}
