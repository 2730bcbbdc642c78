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
	"sync"

	"github.com/watchdogproxy/relay/internal/queue"
)

// WorkerFunc handles one dispatched message.
type WorkerFunc func(ctx context.Context, msg queue.Message)

// Pool runs workers with bounded concurrency. Dispatch never blocks the
// caller: the semaphore is acquired inside the worker goroutine, so the
// poller's loop continues regardless of worker backlog.
type Pool struct {
	ctx context.Context
	sem chan struct{}
	wg  sync.WaitGroup
	fn  WorkerFunc
}

// NewPool builds a pool bound to ctx. Workers dispatched after ctx is
// cancelled still start but observe the cancelled context.
func NewPool(ctx context.Context, size int, fn WorkerFunc) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		ctx: ctx,
		sem: make(chan struct{}, size),
		fn:  fn,
	}
}

// Dispatch submits one message, fire-and-forget.
func (p *Pool) Dispatch(msg queue.Message) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		select {
		case p.sem <- struct{}{}:
		case <-p.ctx.Done():
			return
		}
		defer func() { <-p.sem }()
		p.fn(p.ctx, msg)
	}()
}

// Wait blocks until every dispatched worker has finished. Used at
// service shutdown, not between poll iterations.
func (p *Pool) Wait() {
	p.wg.Wait()
}
