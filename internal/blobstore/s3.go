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

package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/watchdogproxy/relay/internal/awsclient"
)

var (
	getCount    metric.Int64Counter
	putCount    metric.Int64Counter
	deleteCount metric.Int64Counter
	opErrors    metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/watchdogproxy/relay/internal/blobstore")

	var err error
	getCount, err = meter.Int64Counter(
		"watchdog.blobstore.get.count",
		metric.WithDescription("Number of content bucket reads"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create get.count counter: %w", err))
	}

	putCount, err = meter.Int64Counter(
		"watchdog.blobstore.put.count",
		metric.WithDescription("Number of content bucket writes"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create put.count counter: %w", err))
	}

	deleteCount, err = meter.Int64Counter(
		"watchdog.blobstore.delete.count",
		metric.WithDescription("Number of content bucket deletes"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create delete.count counter: %w", err))
	}

	opErrors, err = meter.Int64Counter(
		"watchdog.blobstore.errors",
		metric.WithDescription("Number of content bucket operation errors"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create errors counter: %w", err))
	}
}

func s3ErrorIs404(err error) bool {
	var noKeyErr *types.NoSuchKey
	if errors.As(err, &noKeyErr) {
		return true
	}
	// Some operations report a bare API error instead of the typed one.
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound")
}

// S3Store implements Store over a single S3 bucket.
type S3Store struct {
	client *awsclient.S3Client
	bucket string
}

var _ Store = (*S3Store)(nil)

func NewS3Store(client *awsclient.S3Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	ctx, span := s.client.Tracer.Start(ctx, "blobstore.Put",
		trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	_, err := s.client.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		opErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "put")))
		return fmt.Errorf("put %s/%s: %w", s.bucket, key, err)
	}
	putCount.Add(ctx, 1)
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := s.client.Tracer.Start(ctx, "blobstore.Get",
		trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	out, err := s.client.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if s3ErrorIs404(err) {
			return nil, fmt.Errorf("get %s/%s: %w", s.bucket, key, ErrNotFound)
		}
		opErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "get")))
		return nil, fmt.Errorf("get %s/%s: %w", s.bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		opErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "get")))
		return nil, fmt.Errorf("read %s/%s: %w", s.bucket, key, err)
	}
	getCount.Add(ctx, 1)
	return body, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	ctx, span := s.client.Tracer.Start(ctx, "blobstore.Delete",
		trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	_, err := s.client.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		opErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "delete")))
		return fmt.Errorf("delete %s/%s: %w", s.bucket, key, err)
	}
	deleteCount.Add(ctx, 1)
	return nil
}

func (s *S3Store) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.client.Presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", s.bucket, key, err)
	}
	return req.URL, nil
}
