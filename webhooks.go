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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/custody/config"
	"github.com/blnkfinance/custody/internal/request"
	"github.com/blnkfinance/custody/model"
)

// NewWebhook is the body posted to the configured webhook URL.
type NewWebhook struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"data"`
}

// processHTTP posts data to the webhook URL, retrying transient failures a few
// times before giving the task back to the queue.
func processHTTP(ctx context.Context, conf *config.Configuration, data NewWebhook) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 5 * time.Second

	return backoff.Retry(func() error {
		req, err := request.NewJSONRequest(ctx, http.MethodPost, conf.Notification.Webhook.Url, data, conf.Notification.Webhook.Headers)
		if err != nil {
			return backoff.Permanent(err)
		}
		_, err = request.Call(req, nil)
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < 500 && statusErr.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
}

// SendWebhook queues a webhook unless no webhook URL is configured.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - id string: A unique delivery id; repeated ids are delivered once.
// - webhook NewWebhook: The webhook notification data to enqueue.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (q *Queue) SendWebhook(ctx context.Context, id string, webhook NewWebhook) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}
	return q.enqueueWebhook(ctx, id, webhook)
}

// ProcessWebhook delivers a queued webhook. Client errors are not retried.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshaling webhook payload: %w: %w", err, asynq.SkipRetry)
	}

	logrus.WithField("event", payload.Event).Info("Processing webhook")
	if err := processHTTP(ctx, conf, payload); err != nil {
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < 500 && statusErr.StatusCode != http.StatusTooManyRequests {
			return fmt.Errorf("webhook %s rejected: %w: %w", payload.Event, err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

// WebhookSink forwards every committed event to the webhook queue.
func WebhookSink(q *Queue) EventSink {
	return EventSinkFunc(func(ctx context.Context, event model.Event) error {
		return q.SendWebhook(ctx, event.EventID, NewWebhook{Event: event.Type, Payload: event})
	})
}
