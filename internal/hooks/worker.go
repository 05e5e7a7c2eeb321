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
	"github.com/sirupsen/logrus"
)

// ProcessHookTask delivers a queued hook task. A returned error lets asynq retry it.
func (m *redisHookManager) ProcessHookTask(ctx context.Context, task *asynq.Task) error {
	var taskPayload HookTaskPayload
	if err := json.Unmarshal(task.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal hook task payload: %w: %w", err, asynq.SkipRetry)
	}
	if taskPayload.Hook == nil {
		return fmt.Errorf("hook task without hook: %w", asynq.SkipRetry)
	}

	// the hook may have been switched off after the task was queued
	current, err := m.GetHook(ctx, taskPayload.Hook.ID)
	if err != nil && !errors.Is(err, ErrHookNotFound) {
		return fmt.Errorf("failed to load hook %s: %w", taskPayload.Hook.ID, err)
	}
	if err != nil || !current.Active {
		logrus.WithField("hook_id", taskPayload.Hook.ID).Info("Dropping task for removed or inactive hook")
		return nil
	}

	hookCtx, cancel := context.WithTimeout(ctx, time.Duration(current.Timeout)*time.Second)
	defer cancel()

	logrus.WithFields(logrus.Fields{
		"hook_id":   current.ID,
		"hook_type": current.Type,
		"event":     taskPayload.Payload.Event,
	}).Info("Processing queued hook task")

	return m.executeHook(hookCtx, current, taskPayload.Payload)
}
