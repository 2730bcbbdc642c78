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

// Package kvstore abstracts the key-value tables the relay coordinates
// through: a config table holding lease records and a hit-rate table
// holding per-submission rate entries.
package kvstore

import (
	"context"
	"errors"
)

// ErrConditionFailed is returned by ConditionalPut when the store-side
// predicate rejected the write.
var ErrConditionFailed = errors.New("kvstore: conditional check failed")

// Store is a minimal key-value interface with conditional-write support.
// Values are epoch milliseconds; the only predicate the relay needs is
// "no live record": the put succeeds when the key is absent or the
// existing value is below the supplied threshold.
type Store interface {
	// ConditionalPut writes value under key unless a record exists whose
	// value is >= unlessBelow. Returns ErrConditionFailed on rejection.
	ConditionalPut(ctx context.Context, key string, value int64, unlessBelow int64) error

	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (int64, bool, error)

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Hit is one rate-limit entry written as a submission enters the
// processing pipeline. Timestamps are epoch seconds.
type Hit struct {
	ID        string
	Timestamp int64
	ExpiresAt int64
}

// HitStore tracks hit-rate entries shared across worker invocations.
type HitStore interface {
	// CountActive returns the number of hits with ExpiresAt > now.
	CountActive(ctx context.Context, now int64) (int, error)

	// RecordHit stores a new hit entry.
	RecordHit(ctx context.Context, hit Hit) error
}
