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

package queue

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryQueue is an in-memory Queue for tests. Receive returns
// immediately regardless of the wait parameter; messages move to an
// in-flight set until deleted.
type MemoryQueue struct {
	mu       sync.Mutex
	pending  []Message
	inFlight map[string]Message
	nextID   int
}

var _ Queue = (*MemoryQueue)(nil)

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{inFlight: make(map[string]Message)}
}

func (q *MemoryQueue) Receive(_ context.Context, max int, _ time.Duration) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max > len(q.pending) {
		max = len(q.pending)
	}
	out := make([]Message, max)
	copy(out, q.pending[:max])
	q.pending = q.pending[max:]
	for _, m := range out {
		q.inFlight[m.ReceiptHandle] = m
	}
	return out, nil
}

func (q *MemoryQueue) Send(_ context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	id := strconv.Itoa(q.nextID)
	buf := make([]byte, len(body))
	copy(buf, body)
	q.pending = append(q.pending, Message{
		Body:          buf,
		ReceiptHandle: "receipt-" + id,
		MessageID:     "msg-" + id,
	})
	return nil
}

func (q *MemoryQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, receiptHandle)
	return nil
}

func (q *MemoryQueue) QueueDepth(_ context.Context) (Depth, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Depth{Visible: len(q.pending), InFlight: len(q.inFlight)}, nil
}

// InFlight reports how many received messages have not been acked.
func (q *MemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}
