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

package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ConditionalPut(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// No record: put succeeds.
	require.NoError(t, s.ConditionalPut(ctx, "lease", 1500, 1000))

	// Live record (value >= threshold): rejected.
	err := s.ConditionalPut(ctx, "lease", 2500, 1400)
	assert.ErrorIs(t, err, ErrConditionFailed)

	// Stale record (value < threshold): replaced.
	require.NoError(t, s.ConditionalPut(ctx, "lease", 2500, 1600))

	v, ok, err := s.Get(ctx, "lease")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2500), v)
}

func TestMemoryStore_DeleteAbsentKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	assert.NoError(t, s.Delete(ctx, "nope"))

	_, ok, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryHitStore_CountActive(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryHitStore()

	require.NoError(t, s.RecordHit(ctx, Hit{ID: "a", Timestamp: 100, ExpiresAt: 101}))
	require.NoError(t, s.RecordHit(ctx, Hit{ID: "b", Timestamp: 100, ExpiresAt: 200}))
	require.NoError(t, s.RecordHit(ctx, Hit{ID: "c", Timestamp: 150, ExpiresAt: 250}))

	count, err := s.CountActive(ctx, 150)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "expired hits should not be counted")

	count, err = s.CountActive(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
