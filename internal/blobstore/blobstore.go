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

// Package blobstore abstracts the content bucket holding submitted
// images and their request/response JSON companions.
package blobstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("blobstore: object not found")

// Store is the content-bucket interface the pipeline consumes.
type Store interface {
	// Put writes an object, overwriting any existing value.
	Put(ctx context.Context, key string, body []byte, contentType string) error

	// Get reads an object in full. Returns ErrNotFound for absent keys.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes an object.
	Delete(ctx context.Context, key string) error

	// SignedReadURL returns a time-limited URL granting read access to
	// the object without credentials.
	SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
