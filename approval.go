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
	"fmt"
	"slices"

	"github.com/blnkfinance/custody/model"
)

// approvalStrategy decides how pending withdrawal requests reach settlement.
// Callers have already checked approver membership.
type approvalStrategy interface {
	mode() ApprovalMode
	checkDeny(index int) error
	approve(tx *txn, caller model.Holder, index int) (*model.WithdrawalRequest, error)
	advance(tx *txn, caller model.Holder) (model.BatchResult, error)
	release(tx *txn, index int)
}

// batchStrategy settles every non-denied request of the processing window in
// one call and then slides the window.
type batchStrategy struct {
	c *Custodian
}

func (s *batchStrategy) mode() ApprovalMode { return ApprovalBatch }

func (s *batchStrategy) checkDeny(index int) error {
	q := s.c.queue
	if index < q.begin || index > q.end || index >= len(q.requests) {
		return fmt.Errorf("%w: index %d, window [%d,%d)", model.ErrOutOfWindow, index, q.begin, q.end)
	}
	return nil
}

func (s *batchStrategy) approve(*txn, model.Holder, int) (*model.WithdrawalRequest, error) {
	return nil, fmt.Errorf("%w: per-request approval needs quorum mode", model.ErrUnsupportedMode)
}

func (s *batchStrategy) release(*txn, int) {}

func (s *batchStrategy) advance(tx *txn, caller model.Holder) (model.BatchResult, error) {
	c := s.c
	q := c.queue
	window := q.window()

	pending := make([]*model.WithdrawalRequest, 0, window.End-window.Begin)
	for i := window.Begin; i < window.End; i++ {
		req := q.requests[i]
		if req.Status != model.WithdrawalPending {
			continue
		}
		if err := c.authorize(caller, RoleApprover, req.Asset); err != nil {
			return model.BatchResult{}, err
		}
		pending = append(pending, req)
	}

	result := model.BatchResult{
		Processed: window,
		Settled:   make([]int, 0),
		Skipped:   make([]int, 0),
		Failed:    make([]model.BatchFailure, 0),
	}
	for i := window.Begin; i < window.End; i++ {
		if q.requests[i].Status != model.WithdrawalPending {
			result.Skipped = append(result.Skipped, i)
		}
	}

	for _, req := range pending {
		sp := tx.savepoint()
		err := c.settle(tx, req)
		if err == nil {
			result.Settled = append(result.Settled, req.Index)
			continue
		}
		if c.opts.BatchFailurePolicy == BatchAbort {
			return model.BatchResult{}, fmt.Errorf("settling request %d: %w", req.Index, err)
		}

		tx.rollbackTo(sp)
		q.setStatus(tx, req, model.WithdrawalFailed, err.Error())
		tx.emit(model.Event{
			Type:         model.EventWithdrawalFailed,
			Asset:        req.Asset,
			Holder:       req.Investor,
			Amount:       req.Amount,
			RequestIndex: requestIndex(req.Index),
			Data:         map[string]interface{}{"reason": err.Error()},
		})
		result.Failed = append(result.Failed, model.BatchFailure{Index: req.Index, Reason: err.Error()})
	}

	q.advance(tx, c.opts.BatchLimit)
	result.Next = q.window()
	tx.emit(model.Event{
		Type: model.EventBatchAdvanced,
		Data: map[string]interface{}{
			"processed_begin": window.Begin,
			"processed_end":   window.End,
			"queue_begin":     result.Next.Begin,
			"queue_end":       result.Next.End,
			"settled":         len(result.Settled),
			"failed":          len(result.Failed),
		},
	})
	return result, nil
}

// signerSet records who signed a request, in signing order.
type signerSet struct {
	order   []model.Holder
	members map[model.Holder]struct{}
}

// quorumStrategy settles a request once the number of distinct, currently
// authorized signers strictly exceeds the approval threshold.
type quorumStrategy struct {
	c       *Custodian
	signers map[int]*signerSet
}

func newQuorumStrategy(c *Custodian) *quorumStrategy {
	return &quorumStrategy{c: c, signers: make(map[int]*signerSet)}
}

func (s *quorumStrategy) mode() ApprovalMode { return ApprovalQuorum }

// Quorum mode has no window; any known request can be denied.
func (s *quorumStrategy) checkDeny(index int) error {
	_, err := s.c.queue.get(index)
	return err
}

func (s *quorumStrategy) advance(*txn, model.Holder) (model.BatchResult, error) {
	return model.BatchResult{}, fmt.Errorf("%w: batch processing needs batch mode", model.ErrUnsupportedMode)
}

func (s *quorumStrategy) release(tx *txn, index int) {
	set, ok := s.signers[index]
	if !ok {
		return
	}
	delete(s.signers, index)
	tx.onRollback(func() { s.signers[index] = set })
}

func (s *quorumStrategy) sign(tx *txn, index int, signer model.Holder) bool {
	set, ok := s.signers[index]
	if !ok {
		set = &signerSet{members: make(map[model.Holder]struct{})}
		s.signers[index] = set
		tx.onRollback(func() { delete(s.signers, index) })
	}
	if _, dup := set.members[signer]; dup {
		return false
	}
	set.members[signer] = struct{}{}
	set.order = append(set.order, signer)
	tx.onRollback(func() {
		delete(set.members, signer)
		set.order = set.order[:len(set.order)-1]
	})
	return true
}

// valid returns the signers of index that still hold approver authority for asset.
func (s *quorumStrategy) valid(index int, asset model.Asset) []model.Holder {
	set, ok := s.signers[index]
	if !ok {
		return nil
	}
	out := make([]model.Holder, 0, len(set.order))
	for _, h := range set.order {
		if s.c.access.Authorized(h, RoleApprover, asset) {
			out = append(out, h)
		}
	}
	return out
}

func (s *quorumStrategy) approve(tx *txn, caller model.Holder, index int) (*model.WithdrawalRequest, error) {
	c := s.c
	req, err := c.queue.get(index)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(caller, RoleApprover, req.Asset); err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, fmt.Errorf("%w: request %d is %s", model.ErrRequestFinalized, index, req.Status)
	}
	// A repeat signature only counts when the authorized signer set moved
	// since the last tally, e.g. an earlier signer was removed and re-added.
	signed := s.sign(tx, index, caller)
	signers := s.valid(index, req.Asset)
	if !signed && slices.Equal(signers, req.Approvals) {
		return req, nil
	}

	c.queue.update(tx, req, func(r *model.WithdrawalRequest) {
		r.ApprovalCount = len(signers)
		r.Approvals = signers
	})
	tx.emit(model.Event{
		Type:         model.EventWithdrawalApproved,
		Asset:        req.Asset,
		Holder:       req.Investor,
		Amount:       req.Amount,
		RequestIndex: requestIndex(index),
		Data: map[string]interface{}{
			"approval_count": len(signers),
			"threshold":      c.opts.ApprovalThreshold,
		},
	})

	if len(signers) <= c.opts.ApprovalThreshold {
		return req, nil
	}
	if err := c.settle(tx, req); err != nil {
		return nil, err
	}
	s.release(tx, index)
	return req, nil
}
