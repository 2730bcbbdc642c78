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

package ratewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindow_CapacityStartsAtLimit(t *testing.T) {
	w := New(5, time.Second)
	assert.Equal(t, 5, w.Capacity(time.Now()))
}

func TestWindow_CapacityDropsAsHitsRecorded(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w := New(3, time.Second)

	w.Record(now)
	w.Record(now)
	assert.Equal(t, 1, w.Capacity(now))

	w.Record(now)
	assert.Equal(t, 0, w.Capacity(now))
}

func TestWindow_CapacityNeverNegative(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w := New(2, time.Second)
	for i := 0; i < 5; i++ {
		w.Record(now)
	}
	assert.Equal(t, 0, w.Capacity(now))
}

func TestWindow_SlideExpiresOldHits(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w := New(2, time.Second)

	w.Record(now)
	w.Record(now.Add(500 * time.Millisecond))
	assert.Equal(t, 0, w.Capacity(now.Add(900*time.Millisecond)))

	// First hit ages out of the trailing second.
	assert.Equal(t, 1, w.Capacity(now.Add(1100*time.Millisecond)))

	// Both hits age out.
	assert.Equal(t, 2, w.Capacity(now.Add(2*time.Second)))
	assert.Equal(t, 0, w.Len())
}

func TestWindow_HitExactlyAtBoundaryIsExpired(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w := New(1, time.Second)
	w.Record(now)

	// A hit exactly period-old no longer counts.
	assert.Equal(t, 1, w.Capacity(now.Add(time.Second)))
}
