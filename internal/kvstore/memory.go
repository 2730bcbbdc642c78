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
	"sync"
)

// MemoryStore is an in-memory Store used by tests and the local dev
// commands. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]int64)}
}

func (s *MemoryStore) ConditionalPut(_ context.Context, key string, value int64, unlessBelow int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.values[key]; ok && existing >= unlessBelow {
		return ErrConditionFailed
	}
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// MemoryHitStore is an in-memory HitStore for tests. Safe for
// concurrent use.
type MemoryHitStore struct {
	mu   sync.Mutex
	hits []Hit
}

var _ HitStore = (*MemoryHitStore)(nil)

func NewMemoryHitStore() *MemoryHitStore {
	return &MemoryHitStore{}
}

func (s *MemoryHitStore) CountActive(_ context.Context, now int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, h := range s.hits {
		if h.ExpiresAt > now {
			count++
		}
	}
	return count, nil
}

func (s *MemoryHitStore) RecordHit(_ context.Context, hit Hit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = append(s.hits, hit)
	return nil
}

// Hits returns a copy of all recorded hits, expired or not.
func (s *MemoryHitStore) Hits() []Hit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Hit, len(s.hits))
	copy(out, s.hits)
	return out
}
