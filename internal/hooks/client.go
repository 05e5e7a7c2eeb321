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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// ExecuteHook posts payload to hook once. Retries belong to the queue.
func (m *redisHookManager) ExecuteHook(ctx context.Context, hook *Hook, payload HookPayload) error {
	return m.executeHook(ctx, hook, payload)
}

func (m *redisHookManager) executeHook(ctx context.Context, hook *Hook, payload HookPayload) error {
	client := &http.Client{
		Timeout: time.Duration(hook.Timeout) * time.Second,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	fields := logrus.Fields{
		"hook_id":   hook.ID,
		"hook_name": hook.Name,
		"hook_url":  hook.URL,
		"hook_type": hook.Type,
		"event":     payload.Event,
		"sequence":  payload.Sequence,
	}
	logrus.WithFields(fields).Info("Executing hook")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hook-ID", hook.ID)
	req.Header.Set("X-Hook-Type", string(hook.Type))
	req.Header.Set("X-Custody-Event", payload.Event)
	req.Header.Set("Idempotency-Key", payload.EventID)

	resp, err := client.Do(req)
	if err != nil {
		_ = m.updateHookStatus(ctx, hook, false)
		if ctx.Err() != nil {
			logrus.WithFields(fields).WithError(err).Error("Hook execution cancelled due to context timeout")
			return ctx.Err()
		}
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close response body")
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		_ = m.updateHookStatus(ctx, hook, false)
		return fmt.Errorf("failed to read response body: %w", err)
	}

	fields["status_code"] = resp.StatusCode
	logrus.WithFields(fields).WithField("response", string(respBody)).Debug("Hook response received")

	if err := interpretResponse(resp.StatusCode, respBody); err != nil {
		_ = m.updateHookStatus(ctx, hook, false)
		return err
	}

	logrus.WithFields(fields).Info("Hook executed successfully")
	return m.updateHookStatus(ctx, hook, true)
}

// interpretResponse accepts any 2XX answer unless it is a JSON hook response
// with success set to false.
func interpretResponse(status int, body []byte) error {
	if status < 200 || status >= 300 {
		return fmt.Errorf("hook returned status %d: %s", status, string(body))
	}
	if len(body) == 0 || !json.Valid(body) {
		return nil
	}

	var hookResp struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &hookResp); err != nil || hookResp.Success == nil {
		return nil
	}
	if !*hookResp.Success {
		return fmt.Errorf("hook execution failed: %s", hookResp.Message)
	}
	return nil
}

func (m *redisHookManager) updateHookStatus(ctx context.Context, hook *Hook, success bool) error {
	hook.LastRun = time.Now()
	hook.LastSuccess = success

	data, err := json.Marshal(hook)
	if err != nil {
		return fmt.Errorf("failed to marshal hook: %w", err)
	}

	// a hook deleted while its task was in flight stays deleted
	updated, err := m.client.SetXX(ctx, hookKey(hook.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !updated {
		logrus.WithField("hook_id", hook.ID).Warn("hook removed before its status could be recorded")
	}
	return nil
}
