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
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/custody/internal/notification"
	"github.com/blnkfinance/custody/model"
)

const hookKeyPrefix = "custody:hooks"

var ErrHookNotFound = errors.New("hook not found")

type redisHookManager struct {
	client   redis.UniversalClient
	enqueuer Enqueuer
	queue    string
}

// NewHookManager creates a Redis-backed hook registry. With a nil enqueuer hooks
// are delivered inline in background goroutines instead of through the queue.
func NewHookManager(redisClient redis.UniversalClient, enqueuer Enqueuer, queue string) HookManager {
	return &redisHookManager{
		client:   redisClient,
		enqueuer: enqueuer,
		queue:    queue,
	}
}

func hookKey(id string) string {
	return fmt.Sprintf("%s:%s", hookKeyPrefix, id)
}

func typeKey(hookType HookType) string {
	return fmt.Sprintf("%s:type:%s", hookKeyPrefix, hookType)
}

// RegisterHook stores a new hook and indexes it by type.
func (m *redisHookManager) RegisterHook(ctx context.Context, hook *Hook) error {
	if hook.ID == "" {
		hook.ID = model.GenerateUUIDWithSuffix("hook")
	}
	hook.CreatedAt = time.Now()

	if err := validateHook(hook); err != nil {
		return err
	}

	data, err := json.Marshal(hook)
	if err != nil {
		return fmt.Errorf("failed to marshal hook: %w", err)
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, hookKey(hook.ID), data, 0)
	pipe.SAdd(ctx, typeKey(hook.Type), hook.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store hook: %w", err)
	}
	return nil
}

// UpdateHook replaces the configuration of an existing hook, keeping its run history.
func (m *redisHookManager) UpdateHook(ctx context.Context, hookID string, hook *Hook) error {
	existing, err := m.GetHook(ctx, hookID)
	if err != nil {
		return err
	}

	hook.ID = existing.ID
	hook.CreatedAt = existing.CreatedAt
	hook.LastRun = existing.LastRun
	hook.LastSuccess = existing.LastSuccess
	if err := validateHook(hook); err != nil {
		return err
	}

	data, err := json.Marshal(hook)
	if err != nil {
		return fmt.Errorf("failed to marshal hook: %w", err)
	}

	pipe := m.client.TxPipeline()
	if existing.Type != hook.Type {
		pipe.SRem(ctx, typeKey(existing.Type), hookID)
		pipe.SAdd(ctx, typeKey(hook.Type), hookID)
	}
	pipe.Set(ctx, hookKey(hookID), data, 0)
	_, err = pipe.Exec(ctx)
	return err
}

func (m *redisHookManager) DeleteHook(ctx context.Context, hookID string) error {
	hook, err := m.GetHook(ctx, hookID)
	if err != nil {
		return err
	}

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, hookKey(hookID))
	pipe.SRem(ctx, typeKey(hook.Type), hookID)
	_, err = pipe.Exec(ctx)
	return err
}

func (m *redisHookManager) GetHook(ctx context.Context, hookID string) (*Hook, error) {
	data, err := m.client.Get(ctx, hookKey(hookID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrHookNotFound, hookID)
		}
		return nil, err
	}

	var hook Hook
	if err := json.Unmarshal(data, &hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal hook: %w", err)
	}
	return &hook, nil
}

// ListHooks returns the hooks of one type. Entries that can no longer be read are skipped.
func (m *redisHookManager) ListHooks(ctx context.Context, hookType HookType) ([]*Hook, error) {
	ids, err := m.client.SMembers(ctx, typeKey(hookType)).Result()
	if err != nil {
		return nil, err
	}

	hooks := make([]*Hook, 0, len(ids))
	for _, id := range ids {
		hook, err := m.GetHook(ctx, id)
		if err != nil {
			logrus.WithField("hook_id", id).WithError(err).Warn("skipping unreadable hook")
			continue
		}
		hooks = append(hooks, hook)
	}
	return hooks, nil
}

// DispatchEvent hands event to every matching hook, through the queue when one
// is configured.
func (m *redisHookManager) DispatchEvent(ctx context.Context, event model.Event) error {
	hookType := TypeForEvent(event.Type)
	hooks, err := m.ListHooks(ctx, hookType)
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal hook data: %w", err)
	}
	payload := HookPayload{
		EventID:   event.EventID,
		Event:     event.Type,
		Sequence:  event.Sequence,
		HookType:  hookType,
		Timestamp: event.CreatedAt,
		Data:      data,
	}

	var errs error
	for _, hook := range hooks {
		if !hook.Matches(event.Type) {
			continue
		}
		if m.enqueuer == nil {
			go func(h *Hook) {
				hookCtx, cancel := context.WithTimeout(context.Background(), time.Duration(h.Timeout)*time.Second)
				defer cancel()
				if err := m.executeHook(hookCtx, h, payload); err != nil {
					notification.NotifyError(fmt.Errorf("hook execution failed for hook %s (event: %s): %w", h.ID, event.Type, err))
				}
			}(hook)
			continue
		}
		// one failing hook must not starve the others
		if err := m.enqueue(ctx, hook, payload); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

func (m *redisHookManager) enqueue(ctx context.Context, hook *Hook, payload HookPayload) error {
	body, err := json.Marshal(HookTaskPayload{Hook: hook, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal hook task: %w", err)
	}
	task := asynq.NewTask(m.queue, body,
		asynq.Queue(m.queue),
		asynq.MaxRetry(hook.RetryCount),
		asynq.TaskID(fmt.Sprintf("%s:%s", hook.ID, payload.EventID)),
	)
	if _, err := m.enqueuer.EnqueueContext(ctx, task); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("failed to enqueue hook %s: %w", hook.ID, err)
	}
	return nil
}

func validateHook(hook *Hook) error {
	if hook.URL == "" {
		return fmt.Errorf("hook URL is required")
	}
	switch hook.Type {
	case LedgerHook, WithdrawalHook, RoleHook:
	default:
		return fmt.Errorf("invalid hook type: %s", hook.Type)
	}
	for _, e := range hook.Events {
		if TypeForEvent(e) != hook.Type {
			return fmt.Errorf("event %s does not belong to hook type %s", e, hook.Type)
		}
	}
	if hook.Timeout <= 0 {
		hook.Timeout = 30
	}
	if hook.RetryCount <= 0 {
		hook.RetryCount = 3
	}
	return nil
}
