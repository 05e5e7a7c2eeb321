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

	"github.com/blnkfinance/custody/api/middleware"
	model2 "github.com/blnkfinance/custody/api/model"
	"github.com/blnkfinance/custody/model"
)

// bindAssetAmount decodes and validates an AssetAmount body, writing the
// error response itself when it fails.
func bindAssetAmount(c *gin.Context) (model2.AssetAmount, bool) {
	var body model2.AssetAmount
	if err := c.ShouldBindJSON(&body); err != nil {
		invalidInput(c, "invalid request body", err)
		return body, false
	}
	if err := body.Validate(); err != nil {
		invalidInput(c, "invalid request body", err)
		return body, false
	}
	return body, true
}

func (a Api) Deposit(c *gin.Context) {
	body, ok := bindAssetAmount(c)
	if !ok {
		return
	}

	entry, err := a.custodian.Deposit(c.Request.Context(), middleware.Holder(c), body.ToAsset(), body.BaseUnits())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (a Api) Withdraw(c *gin.Context) {
	body, ok := bindAssetAmount(c)
	if !ok {
		return
	}

	entry, err := a.custodian.Withdraw(c.Request.Context(), middleware.Holder(c), body.ToAsset(), body.BaseUnits())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (a Api) GetEntry(c *gin.Context) {
	holder := model.Holder(c.Param("holder"))
	asset := model.Asset(c.Param("asset"))

	c.JSON(http.StatusOK, a.custodian.GetEntry(asset, holder))
}

func (a Api) GetEntries(c *gin.Context) {
	c.JSON(http.StatusOK, a.custodian.GetEntries(model.Holder(c.Param("holder"))))
}

func (a Api) GetCustodied(c *gin.Context) {
	asset := model.Asset(c.Param("asset"))
	c.JSON(http.StatusOK, gin.H{"asset": asset, "custodied": a.custodian.TotalCustodied(asset)})
}
