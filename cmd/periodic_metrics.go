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

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/watchdogproxy/relay/config"
	"github.com/watchdogproxy/relay/internal/awsclient"
	"github.com/watchdogproxy/relay/internal/healthcheck"
	"github.com/watchdogproxy/relay/internal/heartbeat"
	"github.com/watchdogproxy/relay/internal/metrics"
	"github.com/watchdogproxy/relay/internal/queue"
)

func init() {
	cmd := &cobra.Command{
		Use:   "periodic-metrics",
		Short: "Run the standalone queue-depth monitor",
		Long: `Periodically fetches the submission queue's depth and reports it to
the metrics endpoint, independent of any running poller.`,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, cancel := handleSignals(c.Context())
			defer cancel()
			return runPeriodicMetrics(ctx, cfg)
		},
	}
	rootCmd.AddCommand(cmd)
}

func runPeriodicMetrics(ctx context.Context, cfg *config.Config) error {
	mgr, err := awsclient.NewManager(ctx)
	if err != nil {
		return fmt.Errorf("failed to create AWS client manager: %w", err)
	}
	sqsClient, err := mgr.GetSQS(ctx, awsclient.WithSQSRegion(cfg.AWS.Region), awsclient.WithSQSRole(cfg.AWS.RoleARN))
	if err != nil {
		return fmt.Errorf("failed to create SQS client: %w", err)
	}
	q := queue.NewSQSQueue(sqsClient, cfg.Queue.Name)
	defer q.Close()
	reporter := metrics.NewReporter(cfg.Metrics.URL)
	monitorID := ulid.Make().String()

	health := healthcheck.NewServer(cfg.Health.Port)
	go func() {
		if err := health.Start(ctx); err != nil {
			slog.Error("Health check server failed", slog.Any("error", err))
		}
	}()
	health.SetStatus(healthcheck.StatusHealthy)
	health.SetReady(true)

	slog.Info("Periodic metrics monitor starting",
		slog.String("monitorID", monitorID),
		slog.String("queue", cfg.Queue.Name),
		slog.Duration("pingPeriod", cfg.Metrics.PingPeriod))

	stop := heartbeat.New(func(ctx context.Context) error {
		depth, err := q.QueueDepth(ctx)
		if err != nil {
			return err
		}
		reporter.PollerHeartbeat(ctx, monitorID, depth)
		return nil
	}, cfg.Metrics.PingPeriod, nil).Start(ctx)
	defer stop()

	<-ctx.Done()
	slog.Info("Periodic metrics monitor stopped")
	return nil
}
