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
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/blnkfinance/custody/config"
	"github.com/blnkfinance/custody/model"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/entries", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"holder": Holder(c)})
	})
	return r
}

func serve(r *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSecretKeyAuthMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		secret       string
		path         string
		key          string
		expectedCode int
	}{
		{"valid key", "master-key", "/entries", "master-key", http.StatusOK},
		{"wrong key", "master-key", "/entries", "guess", http.StatusUnauthorized},
		{"missing key", "master-key", "/entries", "", http.StatusUnauthorized},
		{"secret not configured", "", "/entries", "anything", http.StatusInternalServerError},
		{"root is open", "master-key", "/", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config.MockConfig(&config.Configuration{Server: config.ServerConfig{Secure: true, SecretKey: tt.secret}})
			r := newRouter(SecretKeyAuthMiddleware())

			headers := map[string]string{}
			if tt.key != "" {
				headers[KeyHeader] = tt.key
			}
			assert.Equal(t, tt.expectedCode, serve(r, tt.path, headers).Code)
		})
	}
}

func TestRequireHolder(t *testing.T) {
	r := newRouter(RequireHolder())

	resp := serve(r, "/entries", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = serve(r, "/entries", map[string]string{HolderHeader: " alice "})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"holder":"alice"}`, resp.Body.String())
}

func TestHolder_Unset(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, model.Holder(""), Holder(c))
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		r := newRouter(RateLimitMiddleware(&config.Configuration{}))
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, serve(r, "/", nil).Code)
		}
	})

	t.Run("enforced", func(t *testing.T) {
		rps, burst := 1.0, 2
		conf := &config.Configuration{RateLimit: config.RateLimitConfig{RequestsPerSecond: &rps, Burst: &burst}}
		r := newRouter(RateLimitMiddleware(conf))

		codes := make([]int, 0, 4)
		for i := 0; i < 4; i++ {
			codes = append(codes, serve(r, "/", nil).Code)
		}
		assert.Equal(t, http.StatusOK, codes[0])
		assert.Contains(t, codes, http.StatusTooManyRequests)
	})
}
