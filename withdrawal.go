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

package custody

import (
	"context"
	"fmt"

	"github.com/blnkfinance/custody/model"
)

// withdrawalQueue is an append-only log of requests addressed by index, with a
// processing window [begin, end) that only moves forward.
type withdrawalQueue struct {
	requests []*model.WithdrawalRequest
	begin    int
	end      int
}

func (q *withdrawalQueue) window() model.Window {
	return model.Window{Begin: q.begin, End: q.end, Length: len(q.requests)}
}

func (q *withdrawalQueue) get(index int) (*model.WithdrawalRequest, error) {
	if index < 0 || index >= len(q.requests) {
		return nil, fmt.Errorf("%w: index %d", model.ErrRequestNotFound, index)
	}
	return q.requests[index], nil
}

func (q *withdrawalQueue) journalWindow(tx *txn) {
	begin, end := q.begin, q.end
	tx.onRollback(func() { q.begin, q.end = begin, end })
}

func (q *withdrawalQueue) enqueue(tx *txn, investor model.Holder, asset model.Asset, amount uint64) *model.WithdrawalRequest {
	req := &model.WithdrawalRequest{
		Index:     len(q.requests),
		Investor:  investor,
		Asset:     asset,
		Amount:    amount,
		Status:    model.WithdrawalPending,
		CreatedAt: tx.now,
		UpdatedAt: tx.now,
	}

	q.journalWindow(tx)
	// an empty window grows to cover the new request so it is never starved
	if q.begin == q.end && q.end == len(q.requests) {
		q.end++
	}
	q.requests = append(q.requests, req)
	n := len(q.requests) - 1
	tx.onRollback(func() { q.requests = q.requests[:n] })
	return req
}

func (q *withdrawalQueue) update(tx *txn, req *model.WithdrawalRequest, mutate func(r *model.WithdrawalRequest)) {
	prev := *req
	tx.onRollback(func() { *req = prev })
	mutate(req)
	req.UpdatedAt = tx.now
}

func (q *withdrawalQueue) setStatus(tx *txn, req *model.WithdrawalRequest, status model.WithdrawalStatus, reason string) {
	q.update(tx, req, func(r *model.WithdrawalRequest) {
		r.Status = status
		r.FailureReason = reason
	})
}

// advance moves the window to the next batch of at most limit requests.
func (q *withdrawalQueue) advance(tx *txn, limit int) {
	q.journalWindow(tx)
	q.begin = q.end
	q.end = min(q.end+limit, len(q.requests))
}

func requestIndex(i int) *int {
	return &i
}

// RequestWithdrawal appends a withdrawal request for the caller. No funds move
// until the request settles.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - caller model.Holder: The investor requesting the withdrawal.
// - asset model.Asset: The token to withdraw.
// - amount uint64: The amount in base units.
//
// Returns:
// - model.WithdrawalRequest: The created request.
// - error: ErrInsufficientFunds when funds are validated at enqueue time and are short.
func (c *Custodian) RequestWithdrawal(ctx context.Context, caller model.Holder, asset model.Asset, amount uint64) (model.WithdrawalRequest, error) {
	var created model.WithdrawalRequest
	err := c.atomic(ctx, "Requesting withdrawal", caller, func(tx *txn) error {
		if caller == "" {
			return model.ErrInvalidHolder
		}
		if c.opts.EnqueuePolicy == ValidateAtEnqueue {
			entry := c.ledger.get(asset, caller)
			if entry.Spendable() < amount {
				return fmt.Errorf("%w: %s spendable %d, requested %d", model.ErrInsufficientFunds, caller, entry.Spendable(), amount)
			}
		}

		req := c.queue.enqueue(tx, caller, asset, amount)
		tx.emit(model.Event{
			Type:         model.EventWithdrawalRequested,
			Asset:        asset,
			Holder:       caller,
			Amount:       amount,
			RequestIndex: requestIndex(req.Index),
		})
		created = *req
		return nil
	})
	return created, err
}

// DenyWithdrawalRequest marks a pending request as denied. In batch mode the
// index must lie within the processing window.
func (c *Custodian) DenyWithdrawalRequest(ctx context.Context, caller model.Holder, index int) (model.WithdrawalRequest, error) {
	var denied model.WithdrawalRequest
	err := c.atomic(ctx, "Denying withdrawal request", caller, func(tx *txn) error {
		if err := c.authorize(caller, RoleApprover, ""); err != nil {
			return err
		}
		if err := c.strategy.checkDeny(index); err != nil {
			return err
		}
		req, err := c.queue.get(index)
		if err != nil {
			return err
		}
		if err := c.authorize(caller, RoleApprover, req.Asset); err != nil {
			return err
		}
		if req.Status.Terminal() {
			return fmt.Errorf("%w: request %d is %s", model.ErrRequestFinalized, index, req.Status)
		}

		c.queue.setStatus(tx, req, model.WithdrawalDenied, "")
		c.strategy.release(tx, index)
		tx.emit(model.Event{
			Type:         model.EventWithdrawalDenied,
			Asset:        req.Asset,
			Holder:       req.Investor,
			Amount:       req.Amount,
			RequestIndex: requestIndex(index),
		})
		denied = c.snapshotRequest(req)
		return nil
	})
	return denied, err
}

// AdvanceBatch settles the pending requests of the processing window and moves
// the window forward by at most the batch limit. Only available in batch mode.
func (c *Custodian) AdvanceBatch(ctx context.Context, caller model.Holder) (model.BatchResult, error) {
	var result model.BatchResult
	err := c.atomic(ctx, "Advancing withdrawal batch", caller, func(tx *txn) error {
		if err := c.authorize(caller, RoleApprover, ""); err != nil {
			return err
		}
		r, err := c.strategy.advance(tx, caller)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

// ApproveWithdrawal records the caller's sign-off on a request. The request
// settles once the distinct approvals strictly exceed the threshold. Only
// available in quorum mode.
func (c *Custodian) ApproveWithdrawal(ctx context.Context, caller model.Holder, index int) (model.WithdrawalRequest, error) {
	var approved model.WithdrawalRequest
	err := c.atomic(ctx, "Approving withdrawal request", caller, func(tx *txn) error {
		if err := c.authorize(caller, RoleApprover, ""); err != nil {
			return err
		}
		req, err := c.strategy.approve(tx, caller, index)
		if err != nil {
			return err
		}
		approved = c.snapshotRequest(req)
		return nil
	})
	return approved, err
}

// settle clears a request for withdrawal, paying it out directly when the
// settlement target says so.
func (c *Custodian) settle(tx *txn, req *model.WithdrawalRequest) error {
	if err := c.ledger.moveToAvailable(tx, req.Asset, req.Investor, req.Amount); err != nil {
		return err
	}
	if c.opts.SettlementTarget == SettleToPayout {
		if err := c.ledger.payOut(tx, c.gateway, req.Asset, req.Investor, req.Amount); err != nil {
			return err
		}
	}
	c.queue.setStatus(tx, req, model.WithdrawalSettled, "")
	tx.emit(model.Event{
		Type:         model.EventWithdrawalSettled,
		Asset:        req.Asset,
		Holder:       req.Investor,
		Amount:       req.Amount,
		RequestIndex: requestIndex(req.Index),
		Data:         map[string]interface{}{"target": c.opts.SettlementTarget},
	})
	return nil
}

func (c *Custodian) snapshotRequest(req *model.WithdrawalRequest) model.WithdrawalRequest {
	out := *req
	out.Approvals = append([]model.Holder(nil), req.Approvals...)
	return out
}

// Window returns the current processing window.
func (c *Custodian) Window() model.Window {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queue.window()
}

// GetWithdrawalRequest returns the request at index.
func (c *Custodian) GetWithdrawalRequest(index int) (model.WithdrawalRequest, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	req, err := c.queue.get(index)
	if err != nil {
		return model.WithdrawalRequest{}, err
	}
	return c.snapshotRequest(req), nil
}

// ListWithdrawalRequests pages through the withdrawal log in index order.
func (c *Custodian) ListWithdrawalRequests(offset, limit int) []model.WithdrawalRequest {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.WithdrawalRequest, 0)
	if offset < 0 {
		offset = 0
	}
	for i := offset; i < len(c.queue.requests) && (limit <= 0 || len(out) < limit); i++ {
		out = append(out, c.snapshotRequest(c.queue.requests[i]))
	}
	return out
}
