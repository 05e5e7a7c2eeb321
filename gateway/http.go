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

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/custody/config"
	"github.com/blnkfinance/custody/internal/request"
	"github.com/blnkfinance/custody/model"
)

var tracer = otel.Tracer("custody.gateway")

// ErrTransferRejected is returned when the token service answers but refuses the transfer.
var ErrTransferRejected = errors.New("transfer rejected by token service")

type transferRequest struct {
	Asset     model.Asset  `json:"asset"`
	Owner     model.Holder `json:"owner,omitempty"`
	Recipient model.Holder `json:"recipient"`
	Amount    string       `json:"amount"`
}

type transferResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	TransactionID string `json:"transaction_id"`
}

// HTTP talks to a token service exposing POST /transfer-from and POST /transfer.
// Each call carries an Idempotency-Key that stays the same across its retries.
type HTTP struct {
	baseURL    string
	headers    map[string]string
	client     *http.Client
	maxRetries uint64
}

func NewHTTP(conf config.GatewayConfig) *HTTP {
	retries := conf.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &HTTP{
		baseURL:    strings.TrimRight(conf.Url, "/"),
		headers:    conf.Headers,
		client:     &http.Client{Timeout: time.Duration(conf.Timeout) * time.Second},
		maxRetries: uint64(retries),
	}
}

func (g *HTTP) TransferFrom(ctx context.Context, asset model.Asset, owner, recipient model.Holder, amount uint64) error {
	return g.call(ctx, "/transfer-from", transferRequest{
		Asset:     asset,
		Owner:     owner,
		Recipient: recipient,
		Amount:    strconv.FormatUint(amount, 10),
	})
}

func (g *HTTP) Transfer(ctx context.Context, asset model.Asset, recipient model.Holder, amount uint64) error {
	return g.call(ctx, "/transfer", transferRequest{
		Asset:     asset,
		Recipient: recipient,
		Amount:    strconv.FormatUint(amount, 10),
	})
}

func (g *HTTP) call(ctx context.Context, path string, body transferRequest) error {
	ctx, span := tracer.Start(ctx, "Calling token service "+path)
	defer span.End()

	idempotencyKey := model.GenerateUUIDWithSuffix("xfer")
	headers := map[string]string{"Idempotency-Key": idempotencyKey}
	for k, v := range g.headers {
		headers[k] = v
	}

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 100 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(retry, g.maxRetries), ctx)
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		req, err := request.NewJSONRequest(ctx, http.MethodPost, g.baseURL+path, body, headers)
		if err != nil {
			return backoff.Permanent(err)
		}

		var resp transferResponse
		_, err = request.Do(g.client, req, &resp)
		if err != nil {
			var statusErr *request.StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode < 500 && statusErr.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrTransferRejected, statusErr.StatusCode, statusErr.Body))
			}
			logrus.WithFields(logrus.Fields{
				"path":            path,
				"attempt":         attempt,
				"idempotency_key": idempotencyKey,
			}).WithError(err).Warn("token service call failed")
			return err
		}
		if !resp.Success {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrTransferRejected, resp.Message))
		}

		logrus.WithFields(logrus.Fields{
			"path":           path,
			"asset":          body.Asset,
			"recipient":      body.Recipient,
			"amount":         body.Amount,
			"transaction_id": resp.TransactionID,
		}).Info("token transfer completed")
		return nil
	}, policy)
	if err != nil {
		span.RecordError(err)
	}
	return err
}
