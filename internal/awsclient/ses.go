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

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"go.opentelemetry.io/otel/trace"
)

type SESClient struct {
	Client *ses.Client
	Tracer trace.Tracer
}

type sesConfig struct {
	RoleARN string
	Region  string
}

// SESOption is a functional option for GetSES.
type SESOption func(*sesConfig)

// WithSESRole sets the IAM Role ARN to assume (empty = no assume).
func WithSESRole(roleARN string) SESOption {
	return func(c *sesConfig) {
		c.RoleARN = roleARN
	}
}

// WithSESRegion overrides the AWS region for this call.
func WithSESRegion(region string) SESOption {
	return func(c *sesConfig) {
		c.Region = region
	}
}

func (m *Manager) GetSES(ctx context.Context, opts ...SESOption) (*SESClient, error) {
	var sc sesConfig
	for _, o := range opts {
		o(&sc)
	}

	cfg := m.resolveConfig(sc.Region, sc.RoleARN)
	return &SESClient{Client: ses.NewFromConfig(cfg), Tracer: m.tracer}, nil
}
