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
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/jellydator/ttlcache/v3"

	"github.com/watchdogproxy/relay/internal/awsclient"
)

// queueURLTTL bounds how long a resolved queue URL is reused before
// GetQueueUrl is consulted again.
const queueURLTTL = 5 * time.Minute

// SQSQueue implements Queue over an SQS queue addressed by name. The
// name-to-URL resolution is cached.
type SQSQueue struct {
	client   *awsclient.SQSClient
	name     string
	urlCache *ttlcache.Cache[string, string]
}

var _ Queue = (*SQSQueue)(nil)

func NewSQSQueue(client *awsclient.SQSClient, name string) *SQSQueue {
	cache := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](queueURLTTL),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go cache.Start()
	return &SQSQueue{
		client:   client,
		name:     name,
		urlCache: cache,
	}
}

// Close stops the URL cache's expiry goroutine.
func (q *SQSQueue) Close() {
	q.urlCache.Stop()
}

func (q *SQSQueue) queueURL(ctx context.Context) (string, error) {
	if item := q.urlCache.Get(q.name); item != nil {
		return item.Value(), nil
	}
	out, err := q.client.Client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(q.name),
	})
	if err != nil {
		return "", fmt.Errorf("resolve queue %q: %w", q.name, err)
	}
	url := aws.ToString(out.QueueUrl)
	q.urlCache.Set(q.name, url, ttlcache.DefaultTTL)
	return url, nil
}

func (q *SQSQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	url, err := q.queueURL(ctx)
	if err != nil {
		return nil, err
	}

	// SQS caps a single receive at 10 messages.
	if max > 10 {
		max = 10
	}

	out, err := q.client.Client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(url),
		MaxNumberOfMessages:   int32(max),
		WaitTimeSeconds:       int32(wait / time.Second),
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("receive from %q: %w", q.name, err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, Message{
			Body:          []byte(aws.ToString(m.Body)),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			MessageID:     aws.ToString(m.MessageId),
		})
	}
	return msgs, nil
}

func (q *SQSQueue) Send(ctx context.Context, body []byte) error {
	url, err := q.queueURL(ctx)
	if err != nil {
		return err
	}
	_, err = q.client.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send to %q: %w", q.name, err)
	}
	return nil
}

func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	url, err := q.queueURL(ctx)
	if err != nil {
		return err
	}
	_, err = q.client.Client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("delete from %q: %w", q.name, err)
	}
	return nil
}

func (q *SQSQueue) QueueDepth(ctx context.Context) (Depth, error) {
	url, err := q.queueURL(ctx)
	if err != nil {
		return Depth{}, err
	}
	out, err := q.client.Client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(url),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
			types.QueueAttributeNameApproximateNumberOfMessagesDelayed,
			types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
		},
	})
	if err != nil {
		return Depth{}, fmt.Errorf("queue attributes for %q: %w", q.name, err)
	}

	attr := func(name types.QueueAttributeName) int {
		n, _ := strconv.Atoi(out.Attributes[string(name)])
		return n
	}
	return Depth{
		Visible:  attr(types.QueueAttributeNameApproximateNumberOfMessages),
		Delayed:  attr(types.QueueAttributeNameApproximateNumberOfMessagesDelayed),
		InFlight: attr(types.QueueAttributeNameApproximateNumberOfMessagesNotVisible),
	}, nil
}
