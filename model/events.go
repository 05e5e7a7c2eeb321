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

import "time"

const (
	EventDeposit              = "ledger.deposit"
	EventWithdrawn            = "ledger.withdrawn"
	EventOffer                = "offer.created"
	EventOfferCancelled       = "offer.cancelled"
	EventTradeCleared         = "trade.cleared"
	EventWithdrawalRequested  = "withdrawal.requested"
	EventWithdrawalDenied     = "withdrawal.denied"
	EventWithdrawalApproved   = "withdrawal.approved"
	EventWithdrawalSettled    = "withdrawal.settled"
	EventWithdrawalFailed     = "withdrawal.failed"
	EventBatchAdvanced        = "withdrawal.batch_advanced"
	EventApproverChanged      = "role.approver_changed"
	EventApproverAdded        = "role.approver_added"
	EventApproverRemoved      = "role.approver_removed"
	EventPlatformAdminChanged = "role.platform_admin_changed"
	EventOwnershipTransferred = "role.ownership_transferred"
)

// Event is the audit record emitted once for every committed state change.
type Event struct {
	EventID      string                 `json:"event_id"`
	Sequence     uint64                 `json:"sequence"`
	Type         string                 `json:"type"`
	Actor        Holder                 `json:"actor"`
	Asset        Asset                  `json:"asset,omitempty"`
	Holder       Holder                 `json:"holder,omitempty"`
	Counterparty Holder                 `json:"counterparty,omitempty"`
	Amount       uint64                 `json:"amount,omitempty"`
	RequestIndex *int                   `json:"request_index,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
