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

package heartbeat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHeartbeater_TicksImmediatelyAndPeriodically(t *testing.T) {
	var calls int64
	h := New(func(ctx context.Context) error {
		atomic.AddInt64(&calls, 1)
		return nil
	}, 20*time.Millisecond, nil)

	cancel := h.Start(context.Background())
	time.Sleep(70 * time.Millisecond)
	cancel()

	assert.GreaterOrEqual(t, atomic.LoadInt64(&calls), int64(2))
}

func TestHeartbeater_ErrorsDoNotStopLoop(t *testing.T) {
	var calls int64
	h := New(func(ctx context.Context) error {
		atomic.AddInt64(&calls, 1)
		return errors.New("collector down")
	}, 10*time.Millisecond, nil)

	cancel := h.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	cancel()

	assert.GreaterOrEqual(t, atomic.LoadInt64(&calls), int64(2))
}

func TestHeartbeater_StopsOnCancel(t *testing.T) {
	var calls int64
	h := New(func(ctx context.Context) error {
		atomic.AddInt64(&calls, 1)
		return nil
	}, 10*time.Millisecond, nil)

	cancel := h.Start(context.Background())
	time.Sleep(25 * time.Millisecond)
	cancel()
	time.Sleep(25 * time.Millisecond)

	before := atomic.LoadInt64(&calls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, atomic.LoadInt64(&calls))
}
