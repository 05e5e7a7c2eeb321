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

package model

import "errors"

var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrExcessCancellation     = errors.New("cancellation exceeds offered balance")
	ErrOutOfWindow            = errors.New("request index outside processing window")
	ErrOverflow               = errors.New("amount overflow")
	ErrExternalTransferFailed = errors.New("external transfer failed")

	ErrRequestNotFound  = errors.New("withdrawal request not found")
	ErrRequestFinalized = errors.New("withdrawal request already finalized")
	ErrUnsupportedMode  = errors.New("operation not supported in current approval mode")
	ErrInvalidHolder    = errors.New("holder is required")
)
