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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchdogproxy/relay/internal/execlock"
	"github.com/watchdogproxy/relay/internal/queue"
)

type fakeLock struct {
	acquireErr error
	acquires   int32
	releases   int32
}

func (l *fakeLock) Acquire(context.Context) error {
	atomic.AddInt32(&l.acquires, 1)
	return l.acquireErr
}

func (l *fakeLock) Release(context.Context) error {
	atomic.AddInt32(&l.releases, 1)
	return nil
}

// scriptedQueue returns batches in order, then empties. It also stops
// the run's budget once the script is exhausted.
type scriptedQueue struct {
	mu       sync.Mutex
	batches  [][]queue.Message
	err      error
	receives int
	maxSeen  []int
	depth    queue.Depth
	depthGot int32
}

func (q *scriptedQueue) Receive(_ context.Context, max int, _ time.Duration) ([]queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.receives++
	q.maxSeen = append(q.maxSeen, max)
	if q.err != nil {
		return nil, q.err
	}
	if len(q.batches) == 0 {
		return nil, nil
	}
	batch := q.batches[0]
	q.batches = q.batches[1:]
	return batch, nil
}

func (q *scriptedQueue) Send(context.Context, []byte) error { return nil }

func (q *scriptedQueue) Delete(context.Context, string) error { return nil }

func (q *scriptedQueue) QueueDepth(context.Context) (queue.Depth, error) {
	atomic.AddInt32(&q.depthGot, 1)
	return q.depth, nil
}

func (q *scriptedQueue) receiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.receives
}

type recordingDispatcher struct {
	mu   sync.Mutex
	msgs []queue.Message
}

func (d *recordingDispatcher) Dispatch(msg queue.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.msgs)
}

type recordingSink struct {
	beats int32
}

func (s *recordingSink) PollerHeartbeat(context.Context, string, queue.Depth) {
	atomic.AddInt32(&s.beats, 1)
}

func testConfig() Config {
	return Config{
		RateLimit:         5,
		RatePeriod:        time.Second,
		MaxLongPoll:       20 * time.Second,
		PollDelay:         time.Millisecond,
		HeartbeatInterval: time.Hour,
	}
}

// budgetFor returns a RemainingFunc that reports plenty of budget for
// n receive calls and zero afterwards.
func budgetFor(q *scriptedQueue, n int) RemainingFunc {
	return func() time.Duration {
		if q.receiveCount() >= n {
			return 0
		}
		return time.Minute
	}
}

func noSleep(context.Context, time.Duration) {}

func msg(id string) queue.Message {
	return queue.Message{Body: []byte(`{"id":"` + id + `"}`), ReceiptHandle: "rh-" + id, MessageID: id}
}

func TestRun_DispatchesReceivedMessages(t *testing.T) {
	q := &scriptedQueue{batches: [][]queue.Message{{msg("1"), msg("2")}}}
	lock := &fakeLock{}
	disp := &recordingDispatcher{}
	sink := &recordingSink{}

	p := New(q, lock, disp, sink, testConfig(), WithSleep(noSleep))
	err := p.Run(context.Background(), budgetFor(q, 2))
	require.NoError(t, err)

	assert.Equal(t, 2, disp.count())
	assert.Equal(t, int32(1), lock.acquires)
	assert.Equal(t, int32(1), lock.releases)
}

func TestRun_MutexBusySkipsEverything(t *testing.T) {
	q := &scriptedQueue{batches: [][]queue.Message{{msg("1")}}}
	lock := &fakeLock{acquireErr: execlock.ErrBusy}
	disp := &recordingDispatcher{}
	sink := &recordingSink{}

	p := New(q, lock, disp, sink, testConfig(), WithSleep(noSleep))
	err := p.Run(context.Background(), budgetFor(q, 5))
	require.NoError(t, err, "contention is not an error")

	assert.Zero(t, q.receiveCount(), "loop body must not execute")
	assert.Zero(t, disp.count())
	assert.Zero(t, atomic.LoadInt32(&sink.beats), "no heartbeat on contention")
	assert.Zero(t, atomic.LoadInt32(&lock.releases), "no release when acquire failed")
}

func TestRun_RateLimitYieldsWithoutReceiving(t *testing.T) {
	// Five messages in one batch fill the whole window; with a frozen
	// clock the window never slides, so later iterations must yield
	// rather than poll.
	batch := []queue.Message{msg("1"), msg("2"), msg("3"), msg("4"), msg("5")}
	q := &scriptedQueue{batches: [][]queue.Message{batch}}
	lock := &fakeLock{}
	disp := &recordingDispatcher{}

	frozen := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var iterations int32
	remaining := func() time.Duration {
		if atomic.AddInt32(&iterations, 1) > 8 {
			return 0
		}
		return time.Minute
	}

	p := New(q, lock, disp, &recordingSink{}, testConfig(),
		WithSleep(noSleep),
		WithClock(func() time.Time { return frozen }))
	require.NoError(t, p.Run(context.Background(), remaining))

	assert.Equal(t, 1, q.receiveCount(), "window at limit: no further receives")
	assert.Equal(t, 5, disp.count())
}

func TestRun_ReceiveCappedAtRemainingCapacity(t *testing.T) {
	q := &scriptedQueue{batches: [][]queue.Message{{msg("1"), msg("2")}, nil}}
	lock := &fakeLock{}
	disp := &recordingDispatcher{}

	frozen := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := New(q, lock, disp, &recordingSink{}, testConfig(),
		WithSleep(noSleep),
		WithClock(func() time.Time { return frozen }))
	require.NoError(t, p.Run(context.Background(), budgetFor(q, 2)))

	require.GreaterOrEqual(t, len(q.maxSeen), 2)
	assert.Equal(t, 5, q.maxSeen[0], "first receive asks for the full limit")
	assert.Equal(t, 3, q.maxSeen[1], "second receive asks only for remaining capacity")
}

func TestRun_IterationErrorAbortsButReleasesMutex(t *testing.T) {
	q := &scriptedQueue{err: errors.New("queue unavailable")}
	lock := &fakeLock{}

	p := New(q, lock, &recordingDispatcher{}, &recordingSink{}, testConfig(), WithSleep(noSleep))
	err := p.Run(context.Background(), budgetFor(q, 10))
	require.Error(t, err)

	assert.Equal(t, 1, q.receiveCount(), "fail-fast: no retry within the run")
	assert.Equal(t, int32(1), atomic.LoadInt32(&lock.releases), "mutex released despite the error")
}

func TestRun_BudgetExhaustedStopsCleanly(t *testing.T) {
	q := &scriptedQueue{}
	lock := &fakeLock{}

	p := New(q, lock, &recordingDispatcher{}, &recordingSink{}, testConfig(), WithSleep(noSleep))
	err := p.Run(context.Background(), func() time.Duration { return 0 })
	require.NoError(t, err)

	assert.Zero(t, q.receiveCount())
	assert.Equal(t, int32(1), lock.releases)
}

func TestRun_HeartbeatReportsQueueDepth(t *testing.T) {
	q := &scriptedQueue{depth: queue.Depth{Visible: 3}}
	lock := &fakeLock{}
	sink := &recordingSink{}

	cfg := testConfig()
	cfg.HeartbeatInterval = time.Millisecond

	p := New(q, lock, &recordingDispatcher{}, sink, cfg, WithSleep(noSleep))
	require.NoError(t, p.Run(context.Background(), budgetFor(q, 3)))

	// The immediate tick runs on its own goroutine.
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&sink.beats) >= 1
	}, time.Second, 5*time.Millisecond)
}
