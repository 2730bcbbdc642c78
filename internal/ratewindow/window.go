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

// Package ratewindow implements the poller's in-process sliding-window
// rate tracker. A window is owned by a single poller run; it is not
// shared across runs and is not safe for concurrent use.
package ratewindow

import (
	"time"
)

// Window counts hits over a trailing period against a fixed limit.
type Window struct {
	limit  int
	period time.Duration
	hits   []time.Time
}

func New(limit int, period time.Duration) *Window {
	return &Window{limit: limit, period: period}
}

// Slide drops hits older than now minus the period.
func (w *Window) Slide(now time.Time) {
	start := now.Add(-w.period)
	kept := w.hits[:0]
	for _, h := range w.hits {
		if h.After(start) {
			kept = append(kept, h)
		}
	}
	w.hits = kept
}

// Capacity returns how many new hits fit right now, after sliding.
// Never negative.
func (w *Window) Capacity(now time.Time) int {
	w.Slide(now)
	c := w.limit - len(w.hits)
	if c < 0 {
		return 0
	}
	return c
}

// Record adds one hit at the given instant.
func (w *Window) Record(now time.Time) {
	w.hits = append(w.hits, now)
}

// Len returns the current number of tracked hits without sliding.
func (w *Window) Len() int {
	return len(w.hits)
}
