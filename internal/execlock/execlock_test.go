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

package execlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchdogproxy/relay/internal/kvstore"
)

func TestLock_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	lock := New(store, DefaultKey, 50*time.Second)

	require.NoError(t, lock.Acquire(ctx))

	expiry, ok, err := store.Get(ctx, DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, expiry, time.Now().UnixMilli())

	require.NoError(t, lock.Release(ctx))

	_, ok, err = store.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLock_SecondAcquireIsBusy(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	first := New(store, DefaultKey, 50*time.Second)
	second := New(store, DefaultKey, 50*time.Second)

	require.NoError(t, first.Acquire(ctx))
	assert.ErrorIs(t, second.Acquire(ctx), ErrBusy)
}

func TestLock_ExpiredLeaseIsReacquirable(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	now := func() time.Time { return clock }

	lock := New(store, DefaultKey, 50*time.Second, WithClock(now))
	require.NoError(t, lock.Acquire(ctx))

	// Still live: rejected.
	clock = base.Add(49 * time.Second)
	assert.ErrorIs(t, lock.Acquire(ctx), ErrBusy)

	// Lease expired without a release (simulated crash): reacquirable.
	clock = base.Add(51 * time.Second)
	assert.NoError(t, lock.Acquire(ctx))
}

func TestLock_ConcurrentAcquireAdmitsExactlyOne(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	const writers = 8
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock := New(store, DefaultKey, time.Minute)
			results <- lock.Acquire(ctx)
		}()
	}
	wg.Wait()
	close(results)

	won, busy := 0, 0
	for err := range results {
		switch {
		case err == nil:
			won++
		case assert.ErrorIs(t, err, ErrBusy):
			busy++
		}
	}
	assert.Equal(t, 1, won, "exactly one writer should win the lease")
	assert.Equal(t, writers-1, busy)
}
