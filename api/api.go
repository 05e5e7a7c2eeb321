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
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blnkfinance/custody"
	"github.com/blnkfinance/custody/api/middleware"
	"github.com/blnkfinance/custody/config"
	"github.com/blnkfinance/custody/database"
	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/blnkfinance/custody/internal/hooks"
)

type Api struct {
	custodian *custody.Custodian
	hooks     hooks.HookManager
	audit     database.IDataSource
	router    *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.GET("/entries/:holder", a.GetEntries)
	router.GET("/entries/:holder/:asset", a.GetEntry)
	router.GET("/custodied/:asset", a.GetCustodied)
	router.GET("/window", a.GetWindow)
	router.GET("/withdrawal-requests", a.ListWithdrawalRequests)
	router.GET("/withdrawal-requests/:index", a.GetWithdrawalRequest)
	router.GET("/roles", a.GetRoles)
	router.GET("/events", a.GetEvents)
	router.GET("/audit/events", a.GetAuditEvents)

	acting := router.Group("/", middleware.RequireHolder())
	acting.POST("/deposits", a.Deposit)
	acting.POST("/withdrawals", a.Withdraw)
	acting.POST("/offers", a.OfferTokens)
	acting.POST("/offers/cancel", a.CancelOffer)
	acting.POST("/trades/clear", a.ClearTokens)
	acting.POST("/withdrawal-requests", a.RequestWithdrawal)
	acting.POST("/withdrawal-requests/:index/deny", a.DenyWithdrawalRequest)
	acting.POST("/withdrawal-requests/:index/approve", a.ApproveWithdrawal)
	acting.POST("/batches/advance", a.AdvanceBatch)
	acting.PUT("/roles/owner", a.TransferOwnership)
	acting.PUT("/roles/platform-admin", a.SetPlatformAdmin)
	acting.PUT("/roles/approvers", a.SetApprover)
	acting.POST("/roles/approvers", a.AddApprover)
	acting.DELETE("/roles/approvers/:holder", a.RemoveApprover)

	if a.hooks != nil {
		router.POST("/hooks", a.RegisterHook)
		router.GET("/hooks", a.ListHooks)
		router.GET("/hooks/:id", a.GetHook)
		router.PUT("/hooks/:id", a.UpdateHook)
		router.DELETE("/hooks/:id", a.DeleteHook)
	}
	return a.router
}

// NewAPI builds the HTTP surface of c. hookManager and audit are optional.
func NewAPI(c *custody.Custodian, hookManager hooks.HookManager, audit database.IDataSource) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{custodian: c, hooks: hookManager, audit: audit, router: r}
}

func respondError(c *gin.Context, err error) {
	apiErr := apierror.FromError(err)
	c.JSON(apierror.MapErrorToHTTPStatus(apiErr), apiErr)
}

func invalidInput(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, message, err.Error()))
}
