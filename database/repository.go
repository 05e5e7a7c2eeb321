/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"

	"github.com/blnkfinance/custody/model"
)

// IDataSource defines the persistence operations of the audit store.
type IDataSource interface {
	events
}

type events interface {
	RecordEvent(ctx context.Context, event model.Event) error                        // Stores a committed event; replays are ignored
	GetEvents(ctx context.Context, filter EventFilter) ([]model.Event, error)        // Lists events in sequence order
	GetEventsByRequest(ctx context.Context, requestIndex int) ([]model.Event, error) // Lists the history of one withdrawal request
	LastSequence(ctx context.Context) (uint64, error)                                // Returns the highest stored sequence number
}

// EventFilter narrows GetEvents. Zero values match everything.
type EventFilter struct {
	AfterSequence uint64
	Type          string
	Holder        model.Holder
	Asset         model.Asset
	Limit         int
}
