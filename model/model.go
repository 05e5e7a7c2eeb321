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

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Asset identifies a fungible token type held in custody.
type Asset string

// Holder identifies a participant: investor, approver, platform admin or owner.
type Holder string

// LedgerEntry is the per-(asset, holder) balance record.
// OfferedBalance is always a subset of Balance. AvailableWithdrawBalance is disjoint from Balance.
type LedgerEntry struct {
	Asset                    Asset  `json:"asset"`
	Holder                   Holder `json:"holder"`
	Balance                  uint64 `json:"balance"`
	OfferedBalance           uint64 `json:"offered_balance"`
	AvailableWithdrawBalance uint64 `json:"available_withdraw_balance"`
}

// Spendable is the part of the balance usable for new offers and withdrawal settlement.
func (e LedgerEntry) Spendable() uint64 {
	return e.Balance - e.OfferedBalance
}

type WithdrawalStatus string

const (
	WithdrawalPending WithdrawalStatus = "PENDING"
	WithdrawalSettled WithdrawalStatus = "SETTLED"
	WithdrawalDenied  WithdrawalStatus = "DENIED"
	WithdrawalFailed  WithdrawalStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed out of the status.
func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalSettled || s == WithdrawalDenied || s == WithdrawalFailed
}

// WithdrawalRequest is an entry of the append-only withdrawal log.
// Investor, Asset and Amount never change after creation.
type WithdrawalRequest struct {
	Index         int              `json:"index"`
	Investor      Holder           `json:"investor"`
	Asset         Asset            `json:"asset"`
	Amount        uint64           `json:"amount"`
	Status        WithdrawalStatus `json:"status"`
	ApprovalCount int              `json:"approval_count"`
	Approvals     []Holder         `json:"approvals,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Window is the processing window [Begin, End) over the withdrawal log.
type Window struct {
	Begin  int `json:"queue_begin"`
	End    int `json:"queue_end"`
	Length int `json:"length"`
}

// Empty reports whether no request is eligible for the next batch.
func (w Window) Empty() bool {
	return w.Begin == w.End
}

// BatchFailure records a request that could not be settled during a batch pass.
type BatchFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchResult summarises one batch pass over the processing window.
type BatchResult struct {
	Processed Window         `json:"processed"`
	Next      Window         `json:"next"`
	Settled   []int          `json:"settled"`
	Skipped   []int          `json:"skipped"`
	Failed    []BatchFailure `json:"failed"`
}

// Approver is a member of the approver set. Assets is only consulted when
// approver authority is scoped per asset.
type Approver struct {
	Holder Holder  `json:"holder"`
	Assets []Asset `json:"assets,omitempty"`
}

// GenerateUUIDWithSuffix returns a new UUID prefixed with the module name, e.g. "evt_<uuid>".
func GenerateUUIDWithSuffix(module string) string {
	return fmt.Sprintf("%s_%s", module, uuid.New().String())
}
