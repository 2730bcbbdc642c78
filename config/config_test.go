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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 5, cfg.Poller.RateLimit)
	require.Equal(t, time.Second, cfg.Poller.RatePeriod)
	require.Equal(t, 20*time.Second, cfg.Poller.MaxLongPoll)
	require.Equal(t, 100*time.Millisecond, cfg.Poller.PollDelay)
	require.Equal(t, "pollQueueExecutionExpires", cfg.Mutex.Key)
	require.Equal(t, 50*time.Second, cfg.Mutex.TTL)
	require.Equal(t, 2*time.Minute, cfg.HitRate.MaxWait)
	require.Equal(t, 3000, cfg.Upstream.SuccessCode)
	require.Equal(t, 8090, cfg.Health.Port)
	require.True(t, cfg.Queue.AckOnSuccess, "clean items are acked off the queue by default")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("WATCHDOG_AWS_REGION", "eu-west-1")
	t.Setenv("WATCHDOG_QUEUE_NAME", "watchdog-items")
	t.Setenv("WATCHDOG_QUEUE_ACK_ON_SUCCESS", "false")
	t.Setenv("WATCHDOG_POLLER_RATE_LIMIT", "9")
	t.Setenv("WATCHDOG_POLLER_RUN_BUDGET", "90s")
	t.Setenv("WATCHDOG_MUTEX_TTL", "30s")
	t.Setenv("WATCHDOG_UPSTREAM_SERVICE_URL", "https://matcher.example.com/Match")
	t.Setenv("WATCHDOG_EMAIL_FROM", "alerts@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "eu-west-1", cfg.AWS.Region)
	require.Equal(t, "watchdog-items", cfg.Queue.Name)
	require.False(t, cfg.Queue.AckOnSuccess)
	require.Equal(t, 9, cfg.Poller.RateLimit)
	require.Equal(t, 90*time.Second, cfg.Poller.RunBudget)
	require.Equal(t, 30*time.Second, cfg.Mutex.TTL)
	require.Equal(t, "https://matcher.example.com/Match", cfg.Upstream.ServiceURL)
	require.Equal(t, "alerts@example.com", cfg.Email.From)
}
