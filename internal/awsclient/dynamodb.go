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

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.opentelemetry.io/otel/trace"
)

type DynamoDBClient struct {
	Client *dynamodb.Client
	Tracer trace.Tracer
}

type dynamoConfig struct {
	RoleARN string
	Region  string
}

// DynamoDBOption is a functional option for GetDynamoDB.
type DynamoDBOption func(*dynamoConfig)

// WithDynamoDBRole sets the IAM Role ARN to assume (empty = no assume).
func WithDynamoDBRole(roleARN string) DynamoDBOption {
	return func(c *dynamoConfig) {
		c.RoleARN = roleARN
	}
}

// WithDynamoDBRegion overrides the AWS region for this call.
func WithDynamoDBRegion(region string) DynamoDBOption {
	return func(c *dynamoConfig) {
		c.Region = region
	}
}

func (m *Manager) GetDynamoDB(ctx context.Context, opts ...DynamoDBOption) (*DynamoDBClient, error) {
	var dc dynamoConfig
	for _, o := range opts {
		o(&dc)
	}

	cfg := m.resolveConfig(dc.Region, dc.RoleARN)
	return &DynamoDBClient{Client: dynamodb.NewFromConfig(cfg), Tracer: m.tracer}, nil
}
