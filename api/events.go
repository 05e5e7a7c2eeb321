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

	"github.com/blnkfinance/custody/database"
	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/blnkfinance/custody/model"
)

// GetEvents pages through the in-memory event log by sequence number.
func (a Api) GetEvents(c *gin.Context) {
	after, err := queryInt(c, "after", 0)
	if err != nil || after < 0 {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "after must be a non-negative integer", nil))
		return
	}
	limit, err := queryLimit(c, 100, 1000)
	if err != nil {
		invalidInput(c, "invalid query", err)
		return
	}

	c.JSON(http.StatusOK, a.custodian.Events(uint64(after), limit))
}

// GetAuditEvents queries the persisted audit trail.
func (a Api) GetAuditEvents(c *gin.Context) {
	if a.audit == nil {
		c.JSON(http.StatusNotFound, apierror.NewAPIError(apierror.ErrNotFound, "audit store is not configured", nil))
		return
	}

	after, err := queryInt(c, "after", 0)
	if err != nil || after < 0 {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "after must be a non-negative integer", nil))
		return
	}
	limit, err := queryLimit(c, 100, 1000)
	if err != nil {
		invalidInput(c, "invalid query", err)
		return
	}

	events, err := a.audit.GetEvents(c.Request.Context(), database.EventFilter{
		AfterSequence: uint64(after),
		Type:          c.Query("type"),
		Holder:        model.Holder(c.Query("holder")),
		Asset:         model.Asset(c.Query("asset")),
		Limit:         limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, events)
}
