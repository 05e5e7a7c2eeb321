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
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/custody/api/middleware"
)

func requestIndexParam(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		invalidInput(c, "index must be a non-negative integer", fmt.Errorf("invalid index %q", c.Param("index")))
		return 0, false
	}
	return index, true
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return v, nil
}

// queryLimit reads a page size. Missing, non-positive or oversized values fall back to the default.
func queryLimit(c *gin.Context, fallback, ceiling int) (int, error) {
	limit, err := queryInt(c, "limit", fallback)
	if err != nil {
		return 0, err
	}
	if limit <= 0 || limit > ceiling {
		limit = fallback
	}
	return limit, nil
}

func (a Api) RequestWithdrawal(c *gin.Context) {
	body, ok := bindAssetAmount(c)
	if !ok {
		return
	}

	req, err := a.custodian.RequestWithdrawal(c.Request.Context(), middleware.Holder(c), body.ToAsset(), body.BaseUnits())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, req)
}

func (a Api) DenyWithdrawalRequest(c *gin.Context) {
	index, ok := requestIndexParam(c)
	if !ok {
		return
	}

	req, err := a.custodian.DenyWithdrawalRequest(c.Request.Context(), middleware.Holder(c), index)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, req)
}

func (a Api) ApproveWithdrawal(c *gin.Context) {
	index, ok := requestIndexParam(c)
	if !ok {
		return
	}

	req, err := a.custodian.ApproveWithdrawal(c.Request.Context(), middleware.Holder(c), index)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, req)
}

func (a Api) AdvanceBatch(c *gin.Context) {
	result, err := a.custodian.AdvanceBatch(c.Request.Context(), middleware.Holder(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (a Api) GetWindow(c *gin.Context) {
	c.JSON(http.StatusOK, a.custodian.Window())
}

func (a Api) GetWithdrawalRequest(c *gin.Context) {
	index, ok := requestIndexParam(c)
	if !ok {
		return
	}

	req, err := a.custodian.GetWithdrawalRequest(index)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, req)
}

func (a Api) ListWithdrawalRequests(c *gin.Context) {
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		invalidInput(c, "invalid query", err)
		return
	}
	limit, err := queryLimit(c, 20, 100)
	if err != nil {
		invalidInput(c, "invalid query", err)
		return
	}

	c.JSON(http.StatusOK, a.custodian.ListWithdrawalRequests(offset, limit))
}
