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
	"time"

	"github.com/spf13/cobra"

	"github.com/watchdogproxy/relay/config"
	"github.com/watchdogproxy/relay/internal/awsclient"
	"github.com/watchdogproxy/relay/internal/blobstore"
	"github.com/watchdogproxy/relay/internal/execlock"
	"github.com/watchdogproxy/relay/internal/healthcheck"
	"github.com/watchdogproxy/relay/internal/hitrate"
	"github.com/watchdogproxy/relay/internal/kvstore"
	"github.com/watchdogproxy/relay/internal/matcher"
	"github.com/watchdogproxy/relay/internal/metrics"
	"github.com/watchdogproxy/relay/internal/notify"
	"github.com/watchdogproxy/relay/internal/pipeline"
	"github.com/watchdogproxy/relay/internal/poller"
	"github.com/watchdogproxy/relay/internal/queue"
)

func init() {
	cmd := &cobra.Command{
		Use:   "poll-queue",
		Short: "Run the queue poller service",
		Long: `Drains the submission queue in repeated budgeted runs, each under
the distributed execution mutex, dispatching items to parallel workers.`,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, cancel := handleSignals(c.Context())
			defer cancel()
			return runPollQueue(ctx, cfg)
		},
	}
	rootCmd.AddCommand(cmd)
}

func runPollQueue(ctx context.Context, cfg *config.Config) error {
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

	ddbClient, err := mgr.GetDynamoDB(ctx, awsclient.WithDynamoDBRegion(cfg.AWS.Region), awsclient.WithDynamoDBRole(cfg.AWS.RoleARN))
	if err != nil {
		return fmt.Errorf("failed to create DynamoDB client: %w", err)
	}
	lock := execlock.New(kvstore.NewDynamoDBStore(ddbClient.Client, cfg.Tables.Config), cfg.Mutex.Key, cfg.Mutex.TTL)
	gate := hitrate.New(kvstore.NewDynamoDBHitStore(ddbClient.Client, cfg.Tables.HitRate),
		cfg.HitRate.Limit, cfg.HitRate.Period, cfg.HitRate.Wait, cfg.HitRate.MaxWait)

	s3Client, err := mgr.GetS3(ctx, awsclient.WithS3Region(cfg.AWS.Region), awsclient.WithS3Role(cfg.AWS.RoleARN))
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}
	blobs := blobstore.NewS3Store(s3Client, cfg.Content.Bucket)

	sesClient, err := mgr.GetSES(ctx, awsclient.WithSESRegion(cfg.AWS.Region), awsclient.WithSESRole(cfg.AWS.RoleARN))
	if err != nil {
		return fmt.Errorf("failed to create SES client: %w", err)
	}
	notifier := notify.New(sesClient.Client, blobs, cfg.Email.From, cfg.Email.To, cfg.Email.Expires)

	reporter := metrics.NewReporter(cfg.Metrics.URL)
	pipe := pipeline.New(blobs, gate, matcher.NewClient(cfg.Upstream.ServiceKey), notifier, reporter,
		pipeline.WithSuccessCode(cfg.Upstream.SuccessCode),
		pipeline.WithSignTTL(cfg.Content.SignTTL),
		pipeline.WithServiceURL(cfg.Upstream.ServiceURL))

	pool := poller.NewPool(ctx, cfg.Poller.MaxWorkers, poller.NewWorker(pipe, q, cfg.Queue.AckOnSuccess, nil))
	p := poller.New(q, lock, pool, reporter, poller.Config{
		RateLimit:         cfg.Poller.RateLimit,
		RatePeriod:        cfg.Poller.RatePeriod,
		MaxLongPoll:       cfg.Poller.MaxLongPoll,
		PollDelay:         cfg.Poller.PollDelay,
		HeartbeatInterval: cfg.Poller.HeartbeatInterval,
	})

	health := healthcheck.NewServer(cfg.Health.Port)
	go func() {
		if err := health.Start(ctx); err != nil {
			slog.Error("Health check server failed", slog.Any("error", err))
		}
	}()
	health.SetStatus(healthcheck.StatusHealthy)
	health.SetReady(true)

	slog.Info("Poller service starting",
		slog.String("queue", cfg.Queue.Name),
		slog.Duration("runBudget", cfg.Poller.RunBudget),
		slog.Int("maxWorkers", cfg.Poller.MaxWorkers))

	for ctx.Err() == nil {
		start := time.Now()
		remaining := func() time.Duration {
			return cfg.Poller.RunBudget - time.Since(start)
		}
		if err := p.Run(ctx, remaining); err != nil {
			slog.Error("Poller run failed", slog.Any("error", err))
		}
		// Brief pause between runs so a failing dependency does not
		// turn the loop into a hot spin.
		select {
		case <-ctx.Done():
		case <-time.After(cfg.Poller.PollDelay):
		}
	}

	health.SetReady(false)
	slog.Info("Waiting for in-flight workers to finish")
	pool.Wait()
	slog.Info("Poller service stopped")
	return nil
}
