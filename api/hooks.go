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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/blnkfinance/custody/internal/hooks"
)

// RegisterHook handles the registration of a new webhook.
func (a *Api) RegisterHook(c *gin.Context) {
	var hook hooks.Hook
	if err := c.ShouldBindJSON(&hook); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "invalid hook data", err.Error()))
		return
	}

	if err := a.hooks.RegisterHook(c.Request.Context(), &hook); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "failed to register hook", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, hook)
}

// UpdateHook handles updating an existing webhook.
func (a *Api) UpdateHook(c *gin.Context) {
	hookID := c.Param("id")
	var hook hooks.Hook
	if err := c.ShouldBindJSON(&hook); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "invalid hook data", err.Error()))
		return
	}

	if err := a.hooks.UpdateHook(c.Request.Context(), hookID, &hook); err != nil {
		hookError(c, "failed to update hook", err)
		return
	}

	c.JSON(http.StatusOK, hook)
}

// GetHook retrieves a specific webhook by ID.
func (a *Api) GetHook(c *gin.Context) {
	hook, err := a.hooks.GetHook(c.Request.Context(), c.Param("id"))
	if err != nil {
		hookError(c, "failed to get hook", err)
		return
	}

	c.JSON(http.StatusOK, hook)
}

// ListHooks retrieves all hooks of a specific type.
func (a *Api) ListHooks(c *gin.Context) {
	hookType := hooks.HookType(c.Query("type"))
	list, err := a.hooks.ListHooks(c.Request.Context(), hookType)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "failed to list hooks", err.Error()))
		return
	}

	c.JSON(http.StatusOK, list)
}

// DeleteHook removes a webhook by ID.
func (a *Api) DeleteHook(c *gin.Context) {
	if err := a.hooks.DeleteHook(c.Request.Context(), c.Param("id")); err != nil {
		hookError(c, "failed to delete hook", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "hook deleted successfully"})
}

func hookError(c *gin.Context, message string, err error) {
	if errors.Is(err, hooks.ErrHookNotFound) {
		c.JSON(http.StatusNotFound, apierror.NewAPIError(apierror.ErrNotFound, "hook not found", err.Error()))
		return
	}
	c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, message, err.Error()))
}
