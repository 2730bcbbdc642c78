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

package awsclient

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/trace"
)

type S3Client struct {
	Client  *s3.Client
	Presign *s3.PresignClient
	Tracer  trace.Tracer
}

type s3Config struct {
	RoleARN   string
	Region    string
	applyS3s  []func(*s3.Options)
	pathStyle bool
}

// S3Option is a functional option for GetS3.
type S3Option func(*s3Config)

// WithS3Role sets the IAM Role ARN to assume (empty = no assume).
func WithS3Role(roleARN string) S3Option {
	return func(c *s3Config) {
		c.RoleARN = roleARN
	}
}

// WithS3Region overrides the AWS region for this call.
func WithS3Region(region string) S3Option {
	return func(c *s3Config) {
		c.Region = region
	}
}

// WithS3Endpoint forces a custom S3 endpoint (eg MinIO, localstack).
func WithS3Endpoint(url string) S3Option {
	return func(c *s3Config) {
		c.pathStyle = true
		c.applyS3s = append(c.applyS3s, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(url)
		})
	}
}

func (m *Manager) GetS3(ctx context.Context, opts ...S3Option) (*S3Client, error) {
	var sc s3Config
	for _, o := range opts {
		o(&sc)
	}

	cfg := m.resolveConfig(sc.Region, sc.RoleARN)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = sc.pathStyle
		for _, fn := range sc.applyS3s {
			fn(o)
		}
	})

	return &S3Client{
		Client:  client,
		Presign: s3.NewPresignClient(client),
		Tracer:  m.tracer,
	}, nil
}
