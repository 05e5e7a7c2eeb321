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

func (a Api) OfferTokens(c *gin.Context) {
	body, ok := bindAssetAmount(c)
	if !ok {
		return
	}

	entry, err := a.custodian.OfferTokens(c.Request.Context(), middleware.Holder(c), body.ToAsset(), body.BaseUnits())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (a Api) CancelOffer(c *gin.Context) {
	body, ok := bindAssetAmount(c)
	if !ok {
		return
	}

	entry, err := a.custodian.CancelOffer(c.Request.Context(), middleware.Holder(c), body.ToAsset(), body.BaseUnits())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (a Api) ClearTokens(c *gin.Context) {
	var body model2.ClearTrade
	if err := c.ShouldBindJSON(&body); err != nil {
		invalidInput(c, "invalid request body", err)
		return
	}
	if err := body.Validate(); err != nil {
		invalidInput(c, "invalid request body", err)
		return
	}

	asset := model.Asset(body.Asset)
	src, dst := model.Holder(body.Source), model.Holder(body.Destination)
	err := a.custodian.ClearTokens(c.Request.Context(), middleware.Holder(c), asset, src, dst, body.BaseUnits())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source":      a.custodian.GetEntry(asset, src),
		"destination": a.custodian.GetEntry(asset, dst),
	})
}
