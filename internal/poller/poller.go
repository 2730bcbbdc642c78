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

// Package poller drains the work queue under an execution mutex, a
// sliding-window rate limit and a wall-clock budget, fanning received
// messages out to a worker pool without awaiting their completion.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/watchdogproxy/relay/internal/execlock"
	"github.com/watchdogproxy/relay/internal/heartbeat"
	"github.com/watchdogproxy/relay/internal/queue"
	"github.com/watchdogproxy/relay/internal/ratewindow"
)

var (
	pollIterations     metric.Int64Counter
	messagesDispatched metric.Int64Counter
	mutexContention    metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/watchdogproxy/relay/internal/poller")

	var err error
	pollIterations, err = meter.Int64Counter(
		"watchdog.poller.iterations",
		metric.WithDescription("Count of poll loop iterations"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create iterations counter: %w", err))
	}

	messagesDispatched, err = meter.Int64Counter(
		"watchdog.poller.messages_dispatched",
		metric.WithDescription("Count of messages dispatched to workers"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create messages_dispatched counter: %w", err))
	}

	mutexContention, err = meter.Int64Counter(
		"watchdog.poller.mutex_contention",
		metric.WithDescription("Count of runs skipped because another poller held the mutex"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create mutex_contention counter: %w", err))
	}
}

// RemainingFunc reports the wall-clock budget left for this run.
type RemainingFunc func() time.Duration

// Lock is the execution mutex; execlock.Lock implements this.
type Lock interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// Dispatcher hands a message to a worker without blocking.
type Dispatcher interface {
	Dispatch(msg queue.Message)
}

// HeartbeatSink receives queue-depth snapshots; the metrics reporter
// implements this.
type HeartbeatSink interface {
	PollerHeartbeat(ctx context.Context, pollerID string, d queue.Depth)
}

// Config holds one run's tunables.
type Config struct {
	RateLimit         int
	RatePeriod        time.Duration
	MaxLongPoll       time.Duration
	PollDelay         time.Duration
	HeartbeatInterval time.Duration
}

// Poller owns one queue's drain loop. A Poller may run many times; each
// Run starts a fresh rate window.
type Poller struct {
	queue      queue.Queue
	lock       Lock
	dispatcher Dispatcher
	sink       HeartbeatSink
	cfg        Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
	ll    *slog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		p.now = now
	}
}

// WithSleep overrides the inter-iteration pause, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(p *Poller) {
		p.sleep = sleep
	}
}

func New(q queue.Queue, lock Lock, dispatcher Dispatcher, sink HeartbeatSink, cfg Config, opts ...Option) *Poller {
	p := &Poller{
		queue:      q,
		lock:       lock,
		dispatcher: dispatcher,
		sink:       sink,
		cfg:        cfg,
		now:        time.Now,
		sleep:      contextSleep,
		ll:         slog.Default().With("component", "poller"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func contextSleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Run executes one poller pass within the supplied budget. Mutex
// contention is an expected no-op, not an error. Any iteration failure
// aborts the loop but still releases the mutex.
func (p *Poller) Run(ctx context.Context, remaining RemainingFunc) error {
	runID := ulid.Make().String()
	ll := p.ll.With(slog.String("pollerID", runID))

	err := p.lock.Acquire(ctx)
	if errors.Is(err, execlock.ErrBusy) {
		mutexContention.Add(ctx, 1)
		ll.Info("Could not acquire execution mutex, skipping run")
		return nil
	}
	if err != nil {
		return fmt.Errorf("acquire execution mutex: %w", err)
	}
	ll.Info("Execution mutex acquired")

	// Queue-depth heartbeat runs alongside the loop for this run only.
	stopHeartbeat := heartbeat.New(func(ctx context.Context) error {
		depth, err := p.queue.QueueDepth(ctx)
		if err != nil {
			return err
		}
		p.sink.PollerHeartbeat(ctx, runID, depth)
		return nil
	}, p.cfg.HeartbeatInterval, ll).Start(ctx)

	loopErr := p.loop(ctx, ll, remaining)
	stopHeartbeat()

	if err := p.lock.Release(ctx); err != nil {
		ll.Warn("Could not release execution mutex (lease will expire)", slog.Any("error", err))
	} else {
		ll.Info("Execution mutex released")
	}

	return loopErr
}

func (p *Poller) loop(ctx context.Context, ll *slog.Logger, remaining RemainingFunc) error {
	// Fresh window per run: a new poller has no visibility into a
	// previous run's hits, which is exactly why the mutex exists.
	window := ratewindow.New(p.cfg.RateLimit, p.cfg.RatePeriod)
	polls := 0

	for remaining() >= time.Second && ctx.Err() == nil {
		polls++
		pollIterations.Add(ctx, 1)

		if err := p.pollOnce(ctx, ll, window, remaining); err != nil {
			ll.Error("Error in poll iteration, aborting run",
				slog.Int("polls", polls),
				slog.Any("error", err))
			return err
		}

		p.sleep(ctx, p.cfg.PollDelay)
		ll.Debug("Iteration complete",
			slog.Int("polls", polls),
			slog.Duration("remaining", remaining()))
	}

	ll.Info("Poller exit", slog.Int("polls", polls))
	return nil
}

func (p *Poller) pollOnce(ctx context.Context, ll *slog.Logger, window *ratewindow.Window, remaining RemainingFunc) error {
	// Long-poll for the max window or whatever budget is left.
	wait := remaining().Truncate(time.Second)
	if wait > p.cfg.MaxLongPoll {
		wait = p.cfg.MaxLongPoll
	}
	if wait <= 0 {
		ll.Debug("Out of time")
		return nil
	}

	capacity := window.Capacity(p.now())
	if capacity <= 0 {
		ll.Debug("Yielding to limit rate")
		return nil
	}

	msgs, err := p.queue.Receive(ctx, capacity, wait)
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}

	for _, msg := range msgs {
		window.Record(p.now())
		p.dispatcher.Dispatch(msg)
	}
	if len(msgs) > 0 {
		messagesDispatched.Add(ctx, int64(len(msgs)))
		ll.Info("Dispatched batch", slog.Int("messages", len(msgs)))
	}
	return nil
}
