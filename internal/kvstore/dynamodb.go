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

package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI is the subset of the DynamoDB client used by this package.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBStore implements Store over a DynamoDB table with a string
// partition key "key" and a numeric attribute "value".
type DynamoDBStore struct {
	client DynamoDBAPI
	table  string
}

var _ Store = (*DynamoDBStore)(nil)

func NewDynamoDBStore(client DynamoDBAPI, table string) *DynamoDBStore {
	return &DynamoDBStore{client: client, table: table}
}

func (s *DynamoDBStore) ConditionalPut(ctx context.Context, key string, value int64, unlessBelow int64) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"key":   &types.AttributeValueMemberS{Value: key},
			"value": &types.AttributeValueMemberN{Value: strconv.FormatInt(value, 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(#key) OR #value < :threshold"),
		ExpressionAttributeNames: map[string]string{
			"#key":   "key",
			"#value": "value",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":threshold": &types.AttributeValueMemberN{Value: strconv.FormatInt(unlessBelow, 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConditionFailed
		}
		return fmt.Errorf("conditional put %q: %w", key, err)
	}
	return nil
}

func (s *DynamoDBStore) Get(ctx context.Context, key string) (int64, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return 0, false, fmt.Errorf("get %q: %w", key, err)
	}
	if len(out.Item) == 0 {
		return 0, false, nil
	}
	n, ok := out.Item["value"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false, fmt.Errorf("get %q: value attribute is not numeric", key)
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("get %q: %w", key, err)
	}
	return v, true, nil
}

func (s *DynamoDBStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// DynamoDBHitStore implements HitStore over a DynamoDB table keyed by
// submission id, mirroring the relay's hit-rate table layout.
type DynamoDBHitStore struct {
	client DynamoDBAPI
	table  string
}

var _ HitStore = (*DynamoDBHitStore)(nil)

func NewDynamoDBHitStore(client DynamoDBAPI, table string) *DynamoDBHitStore {
	return &DynamoDBHitStore{client: client, table: table}
}

// CountActive scans for non-expired hits. The table is tiny (bounded by
// the rate limit times the expiry window) so a scan with a filter is
// acceptable here.
func (s *DynamoDBHitStore) CountActive(ctx context.Context, now int64) (int, error) {
	var total int
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.table),
			FilterExpression: aws.String("expiresAt > :now"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now, 10)},
			},
			Select:            types.SelectCount,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return 0, fmt.Errorf("scan hit table: %w", err)
		}
		total += int(out.Count)
		if out.LastEvaluatedKey == nil {
			return total, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (s *DynamoDBHitStore) RecordHit(ctx context.Context, hit Hit) error {
	item, err := attributevalue.MarshalMap(map[string]any{
		"id":        hit.ID,
		"timestamp": hit.Timestamp,
		"expiresAt": hit.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal hit %q: %w", hit.ID, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("record hit %q: %w", hit.ID, err)
	}
	return nil
}
