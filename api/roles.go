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

func (a Api) GetRoles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"owner":          a.custodian.Owner(),
		"platform_admin": a.custodian.PlatformAdmin(),
		"approvers":      a.custodian.Approvers(),
		"approval_mode":  a.custodian.Mode(),
	})
}

func (a Api) TransferOwnership(c *gin.Context) {
	var body model2.SetHolder
	if err := c.ShouldBindJSON(&body); err != nil {
		invalidInput(c, "invalid request body", err)
		return
	}
	if err := body.Validate(); err != nil {
		invalidInput(c, "invalid request body", err)
		return
	}

	if err := a.custodian.TransferOwnership(c.Request.Context(), middleware.Holder(c), model.Holder(body.Holder)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"owner": a.custodian.Owner()})
}

// SetPlatformAdmin accepts an empty holder to remove the admin.
func (a Api) SetPlatformAdmin(c *gin.Context) {
	var body model2.SetHolder
	if err := c.ShouldBindJSON(&body); err != nil {
		invalidInput(c, "invalid request body", err)
		return
	}
	if err := body.ValidateAllowEmpty(); err != nil {
		invalidInput(c, "invalid request body", err)
		return
	}

	if err := a.custodian.SetPlatformAdmin(c.Request.Context(), middleware.Holder(c), model.Holder(body.Holder)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"platform_admin": a.custodian.PlatformAdmin()})
}

func bindApprover(c *gin.Context) (model2.SetApprover, bool) {
	var body model2.SetApprover
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

func (a Api) SetApprover(c *gin.Context) {
	body, ok := bindApprover(c)
	if !ok {
		return
	}

	if err := a.custodian.SetApprover(c.Request.Context(), middleware.Holder(c), model.Holder(body.Holder), body.ToAssets()...); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, a.custodian.Approvers())
}

func (a Api) AddApprover(c *gin.Context) {
	body, ok := bindApprover(c)
	if !ok {
		return
	}

	if err := a.custodian.AddApprover(c.Request.Context(), middleware.Holder(c), model.Holder(body.Holder), body.ToAssets()...); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, a.custodian.Approvers())
}

func (a Api) RemoveApprover(c *gin.Context) {
	if err := a.custodian.RemoveApprover(c.Request.Context(), middleware.Holder(c), model.Holder(c.Param("holder"))); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, a.custodian.Approvers())
}
