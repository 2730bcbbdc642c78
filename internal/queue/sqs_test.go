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
	"testing"

	"github.com/jellydator/ttlcache/v3"
	"github.com/stretchr/testify/assert"

	"github.com/watchdogproxy/relay/internal/awsclient"
)

func TestSQSQueue_CloseStopsCacheJanitor(t *testing.T) {
	q := NewSQSQueue(&awsclient.SQSClient{}, "watchdog-items")

	q.urlCache.Set("watchdog-items", "https://sqs.example.com/q", ttlcache.DefaultTTL)
	q.Close()

	// The cache itself stays usable after Stop; only the expiry
	// goroutine is gone.
	item := q.urlCache.Get("watchdog-items")
	assert.NotNil(t, item)
	assert.Equal(t, "https://sqs.example.com/q", item.Value())
}
