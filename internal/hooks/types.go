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

package hooks

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/blnkfinance/custody/model"
)

type HookType string

const (
	LedgerHook     HookType = "LEDGER"
	WithdrawalHook HookType = "WITHDRAWAL"
	RoleHook       HookType = "ROLE"
)

// TypeForEvent maps an event type to the hook family that receives it.
func TypeForEvent(eventType string) HookType {
	switch {
	case strings.HasPrefix(eventType, "withdrawal."):
		return WithdrawalHook
	case strings.HasPrefix(eventType, "role."):
		return RoleHook
	default:
		return LedgerHook
	}
}

// Hook represents a subscriber endpoint for custody events.
type Hook struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Type        HookType  `json:"type"`
	Events      []string  `json:"events,omitempty"` // empty means every event of the type
	Active      bool      `json:"active"`
	Timeout     int       `json:"timeout"` // seconds
	RetryCount  int       `json:"retry_count"`
	CreatedAt   time.Time `json:"created_at"`
	LastRun     time.Time `json:"last_run"`
	LastSuccess bool      `json:"last_success"`
}

// Matches reports whether an active hook wants eventType.
func (h *Hook) Matches(eventType string) bool {
	if !h.Active || TypeForEvent(eventType) != h.Type {
		return false
	}
	if len(h.Events) == 0 {
		return true
	}
	for _, e := range h.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// HookPayload is the body posted to hook endpoints.
type HookPayload struct {
	EventID   string          `json:"event_id"`
	Event     string          `json:"event"`
	Sequence  uint64          `json:"sequence"`
	HookType  HookType        `json:"hook_type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// HookResponse represents the expected response from hook endpoints.
type HookResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type HookManager interface {
	RegisterHook(ctx context.Context, hook *Hook) error
	UpdateHook(ctx context.Context, hookID string, hook *Hook) error
	DeleteHook(ctx context.Context, hookID string) error
	GetHook(ctx context.Context, hookID string) (*Hook, error)
	ListHooks(ctx context.Context, hookType HookType) ([]*Hook, error)
	DispatchEvent(ctx context.Context, event model.Event) error
	ProcessHookTask(ctx context.Context, task *asynq.Task) error
}

// HookTaskPayload represents the payload for a queued hook task.
type HookTaskPayload struct {
	Hook    *Hook       `json:"hook"`
	Payload HookPayload `json:"payload"`
}

// Enqueuer is the part of the asynq client the manager needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}
