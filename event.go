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

package custody

import (
	"context"
	"fmt"

	"github.com/blnkfinance/custody/internal/notification"
	"github.com/blnkfinance/custody/model"
)

// EventSink receives committed events in sequence order. A sink error is
// reported but never undoes the operation that produced the event.
type EventSink interface {
	HandleEvent(ctx context.Context, event model.Event) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, event model.Event) error

func (f EventSinkFunc) HandleEvent(ctx context.Context, event model.Event) error {
	return f(ctx, event)
}

// AddSink registers a sink for events committed from now on.
func (c *Custodian) AddSink(sink EventSink) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	c.sinks = append(c.sinks, sink)
}

func (c *Custodian) publish(ctx context.Context, events []model.Event) {
	ctx, span := tracer.Start(ctx, "Publishing events")
	defer span.End()

	for _, event := range events {
		for _, sink := range c.sinks {
			if err := sink.HandleEvent(ctx, event); err != nil {
				span.RecordError(err)
				notification.NotifyError(fmt.Errorf("delivering event %s (sequence %d): %w", event.Type, event.Sequence, err))
			}
		}
	}
}

// Events returns up to limit committed events with a sequence number greater
// than after. A limit of zero or less returns everything.
func (c *Custodian) Events(after uint64, limit int) []model.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Event, 0)
	if after >= uint64(len(c.events)) {
		return out
	}
	// sequence n lives at index n-1
	for _, event := range c.events[after:] {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, event)
	}
	return out
}

// LastSequence returns the sequence number of the latest committed event.
func (c *Custodian) LastSequence() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sequence
}
