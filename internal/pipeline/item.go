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

package pipeline

import (
	"encoding/json"
	"fmt"
	"time"
)

// WorkItem is one queued submission. The id doubles as the watchdog id
// correlating the submission, its queue message and its callback.
type WorkItem struct {
	ID                 string    `json:"id"`
	Datestamp          time.Time `json:"datestamp"`
	UpstreamServiceURL string    `json:"upstreamServiceUrl"`
	User               string    `json:"user"`
	NegativeURI        string    `json:"negative_uri"`
	PositiveURI        string    `json:"positive_uri"`
	PositiveEmail      string    `json:"positive_email,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	Image              string    `json:"image"`
}

// ParseWorkItem decodes a queue message body.
func ParseWorkItem(body []byte) (WorkItem, error) {
	var item WorkItem
	if err := json.Unmarshal(body, &item); err != nil {
		return WorkItem{}, fmt.Errorf("decode work item: %w", err)
	}
	if item.ID == "" {
		return WorkItem{}, fmt.Errorf("work item missing id")
	}
	return item, nil
}

// RequestKey returns the blob key of the original request JSON.
func (w WorkItem) RequestKey() string {
	return w.Image + "-request.json"
}

// ResponseKey returns the blob key of the persisted match response.
func (w WorkItem) ResponseKey() string {
	return w.Image + "-response.json"
}
