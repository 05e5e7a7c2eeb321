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

package notification

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/custody/config"
	"github.com/blnkfinance/custody/internal/request"
)

func slackMessage(err error, at time.Time) map[string]interface{} {
	field := func(text string) map[string]interface{} {
		return map[string]interface{}{
			"type":   "section",
			"fields": []map[string]string{{"type": "mrkdwn", "text": text}},
		}
	}
	return map[string]interface{}{
		"blocks": []interface{}{
			map[string]interface{}{
				"type": "header",
				"text": map[string]interface{}{"type": "plain_text", "text": "Error From Custody", "emoji": true},
			},
			field(fmt.Sprintf("*Error:*\n%v", err.Error())),
			field(fmt.Sprintf("*Time:*\n%v", at.Format(time.RFC822))),
		},
	}
}

// SlackNotification posts err to the configured Slack webhook.
//
// Parameters:
// - err: The error to be reported via Slack.
//
// Returns:
// - error: An error if the configuration is missing or the webhook call fails.
func SlackNotification(err error) error {
	conf, cfgErr := config.Fetch()
	if cfgErr != nil {
		return cfgErr
	}

	req, reqErr := request.NewJSONRequest(context.Background(), http.MethodPost, conf.Notification.Slack.WebhookUrl, slackMessage(err, time.Now()), nil)
	if reqErr != nil {
		return reqErr
	}

	// Slack answers with plain "ok"
	_, callErr := request.Call(req, nil)
	return callErr
}

// NotifyError logs systemError and forwards it to Slack when a webhook is
// configured. It never blocks the caller.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			logrus.WithError(err).Warn("notification skipped, configuration not loaded")
			return
		}

		if conf.Notification.Slack.WebhookUrl != "" {
			if err := SlackNotification(systemError); err != nil {
				logrus.WithError(err).Error("failed to send slack notification")
			}
		}
	}(systemError)
}
