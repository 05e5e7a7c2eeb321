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
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/custody/config"
)

const tokenService = "https://tokens.example.com"

func newTestHTTP(retries int) *HTTP {
	return NewHTTP(config.GatewayConfig{
		Url:        tokenService + "/",
		Timeout:    5,
		MaxRetries: retries,
		Headers:    map[string]string{"Authorization": "Bearer token"},
	})
}

func TestHTTP_TransferFrom(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var got map[string]string
	httpmock.RegisterResponder(http.MethodPost, tokenService+"/transfer-from", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer token", req.Header.Get("Authorization"))
		assert.NotEmpty(t, req.Header.Get("Idempotency-Key"))
		if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
			return nil, err
		}
		return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{"success": true, "transaction_id": "tx_1"})
	})

	err := newTestHTTP(0).TransferFrom(context.Background(), "USDC", "alice", "custody", 18446744073709551615)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"asset":     "USDC",
		"owner":     "alice",
		"recipient": "custody",
		"amount":    "18446744073709551615",
	}, got)
}

func TestHTTP_Transfer_RetriesWithSameKey(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	keys := map[string]int{}
	calls := 0
	httpmock.RegisterResponder(http.MethodPost, tokenService+"/transfer", func(req *http.Request) (*http.Response, error) {
		calls++
		keys[req.Header.Get("Idempotency-Key")]++
		if calls < 3 {
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, "busy"), nil
		}
		return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{"success": true})
	})

	err := newTestHTTP(3).Transfer(context.Background(), "USDC", "alice", 50)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, keys, 1)
}

func TestHTTP_NegativeRetriesMeansSingleAttempt(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodPost, tokenService+"/transfer", httpmock.NewStringResponder(http.StatusBadGateway, "down"))

	err := newTestHTTP(-1).Transfer(context.Background(), "USDC", "alice", 50)
	require.Error(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestHTTP_Transfer_Failures(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		calls     int
		rejected  bool
	}{
		{
			name:      "rejected in body",
			responder: httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{"success": false, "message": "paused"}),
			calls:     1,
			rejected:  true,
		},
		{
			name:      "client error is not retried",
			responder: httpmock.NewStringResponder(http.StatusBadRequest, "bad asset"),
			calls:     1,
			rejected:  true,
		},
		{
			name:      "server error exhausts retries",
			responder: httpmock.NewStringResponder(http.StatusBadGateway, "down"),
			calls:     3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpmock.Activate()
			defer httpmock.DeactivateAndReset()
			httpmock.RegisterResponder(http.MethodPost, tokenService+"/transfer", tt.responder)

			err := newTestHTTP(2).Transfer(context.Background(), "USDC", "alice", 50)
			require.Error(t, err)
			assert.Equal(t, tt.rejected, errors.Is(err, ErrTransferRejected))
			assert.Equal(t, tt.calls, httpmock.GetTotalCallCount())
		})
	}
}
