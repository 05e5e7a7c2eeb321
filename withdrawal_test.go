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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/custody/gateway"
	"github.com/blnkfinance/custody/model"
)

const approver model.Holder = "approver"

func newBatchCustodian(t *testing.T, opts Options) (*Custodian, *gateway.Memory) {
	t.Helper()
	c, g := newTestCustodian(t, opts)
	require.NoError(t, c.SetApprover(context.Background(), owner, approver))
	return c, g
}

func requestFunded(t *testing.T, c *Custodian, g *gateway.Memory, holder model.Holder, asset model.Asset, amount uint64) model.WithdrawalRequest {
	t.Helper()
	fund(t, c, g, asset, holder, amount)
	req, err := c.RequestWithdrawal(context.Background(), holder, asset, amount)
	require.NoError(t, err)
	return req
}

func TestRequestWithdrawal(t *testing.T) {
	c, g := newBatchCustodian(t, Options{})
	alice := randomHolder()
	fund(t, c, g, usdc, alice, 10)

	req, err := c.RequestWithdrawal(context.Background(), alice, usdc, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, req.Index)
	assert.Equal(t, alice, req.Investor)
	assert.Equal(t, model.WithdrawalPending, req.Status)

	// nothing moves until settlement
	assert.Equal(t, model.LedgerEntry{Asset: usdc, Holder: alice, Balance: 10}, c.GetEntry(usdc, alice))
	assert.Equal(t, model.Window{Begin: 0, End: 1, Length: 1}, c.Window())

	got, err := c.GetWithdrawalRequest(0)
	require.NoError(t, err)
	assert.Equal(t, req, got)

	_, err = c.GetWithdrawalRequest(1)
	assert.ErrorIs(t, err, model.ErrRequestNotFound)
}

func TestRequestWithdrawal_EnqueuePolicy(t *testing.T) {
	t.Run("validated at settlement", func(t *testing.T) {
		c, _ := newBatchCustodian(t, Options{EnqueuePolicy: ValidateAtSettlement})
		_, err := c.RequestWithdrawal(context.Background(), randomHolder(), usdc, 1_000)
		assert.NoError(t, err)
	})

	t.Run("validated at enqueue", func(t *testing.T) {
		c, g := newBatchCustodian(t, Options{EnqueuePolicy: ValidateAtEnqueue})
		alice := randomHolder()
		fund(t, c, g, usdc, alice, 10)
		_, err := c.OfferTokens(context.Background(), alice, usdc, 4)
		require.NoError(t, err)
		before := capture(c)

		_, err = c.RequestWithdrawal(context.Background(), alice, usdc, 7)
		assert.ErrorIs(t, err, model.ErrInsufficientFunds)
		assert.Equal(t, before, capture(c))

		_, err = c.RequestWithdrawal(context.Background(), alice, usdc, 6)
		assert.NoError(t, err)
	})
}

func TestWindow_SlidesByBatchLimit(t *testing.T) {
	c, g := newBatchCustodian(t, Options{})
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		requestFunded(t, c, g, randomHolder(), usdc, 1)
	}
	assert.Equal(t, model.Window{Begin: 0, End: 1, Length: 25}, c.Window())

	expected := []model.Window{
		{Begin: 1, End: 11, Length: 25},
		{Begin: 11, End: 21, Length: 25},
		{Begin: 21, End: 25, Length: 25},
		{Begin: 25, End: 25, Length: 25},
	}
	processed := model.Window{Begin: 0, End: 1, Length: 25}
	for _, next := range expected {
		result, err := c.AdvanceBatch(ctx, approver)
		require.NoError(t, err)
		assert.Equal(t, processed, result.Processed)
		assert.Equal(t, next, result.Next)
		assert.Len(t, result.Settled, processed.End-processed.Begin)
		assert.Empty(t, result.Failed)
		processed = next
	}

	// an empty window stays put
	result, err := c.AdvanceBatch(ctx, approver)
	require.NoError(t, err)
	assert.True(t, result.Next.Empty())
	assert.Equal(t, model.Window{Begin: 25, End: 25, Length: 25}, c.Window())

	for _, req := range c.ListWithdrawalRequests(0, 0) {
		assert.Equal(t, model.WithdrawalSettled, req.Status)
	}
	assert.Equal(t, uint64(25), c.TotalCustodied(usdc))
	assert.NoError(t, c.CheckInvariants())

	// the next request reopens the window
	requestFunded(t, c, g, randomHolder(), usdc, 1)
	assert.Equal(t, model.Window{Begin: 25, End: 26, Length: 26}, c.Window())
}

func TestWindow_CustomBatchLimit(t *testing.T) {
	c, g := newBatchCustodian(t, Options{BatchLimit: 3})
	for i := 0; i < 5; i++ {
		requestFunded(t, c, g, randomHolder(), usdc, 1)
	}

	result, err := c.AdvanceBatch(context.Background(), approver)
	require.NoError(t, err)
	assert.Equal(t, model.Window{Begin: 1, End: 4, Length: 5}, result.Next)
}

func TestDenyWithdrawalRequest(t *testing.T) {
	c, g := newBatchCustodian(t, Options{})
	ctx := context.Background()
	alice, bob, carol := randomHolder(), randomHolder(), randomHolder()
	requestFunded(t, c, g, alice, usdc, 10)
	requestFunded(t, c, g, bob, usdc, 20)
	requestFunded(t, c, g, carol, usdc, 30)
	require.Equal(t, model.Window{Begin: 0, End: 1, Length: 3}, c.Window())

	// the window end itself is still deniable
	denied, err := c.DenyWithdrawalRequest(ctx, approver, 1)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalDenied, denied.Status)

	before := capture(c)
	_, err = c.DenyWithdrawalRequest(ctx, approver, 2)
	assert.ErrorIs(t, err, model.ErrOutOfWindow)
	_, err = c.DenyWithdrawalRequest(ctx, approver, -1)
	assert.ErrorIs(t, err, model.ErrOutOfWindow)
	_, err = c.DenyWithdrawalRequest(ctx, approver, 1)
	assert.ErrorIs(t, err, model.ErrRequestFinalized)
	assert.Equal(t, before, capture(c))

	result, err := c.AdvanceBatch(ctx, approver)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, result.Settled)
	assert.Equal(t, model.Window{Begin: 1, End: 3, Length: 3}, result.Next)

	result, err = c.AdvanceBatch(ctx, approver)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, result.Settled)
	assert.Equal(t, []int{1}, result.Skipped)

	// denial never moves funds
	assert.Equal(t, model.LedgerEntry{Asset: usdc, Holder: bob, Balance: 20}, c.GetEntry(usdc, bob))
	assert.Equal(t, uint64(10), c.GetEntry(usdc, alice).AvailableWithdrawBalance)
	assert.Equal(t, uint64(30), c.GetEntry(usdc, carol).AvailableWithdrawBalance)

	_, err = c.DenyWithdrawalRequest(ctx, approver, 0)
	assert.ErrorIs(t, err, model.ErrOutOfWindow)
	assert.NoError(t, c.CheckInvariants())
}

func TestDenyWithdrawalRequest_Unauthorized(t *testing.T) {
	c, g := newBatchCustodian(t, Options{})
	alice := randomHolder()
	requestFunded(t, c, g, alice, usdc, 10)
	before := capture(c)

	for _, caller := range []model.Holder{alice, owner, "", randomHolder()} {
		_, err := c.DenyWithdrawalRequest(context.Background(), caller, 0)
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	}
	assert.Equal(t, before, capture(c))
}

func TestAdvanceBatch_SkipFailed(t *testing.T) {
	c, g := newBatchCustodian(t, Options{BatchFailurePolicy: BatchSkipFailed})
	ctx := context.Background()
	alice, bob, carol := randomHolder(), randomHolder(), randomHolder()

	requestFunded(t, c, g, bob, usdc, 1)
	fund(t, c, g, usdc, alice, 60)
	for _, amount := range []uint64{50, 50} {
		_, err := c.RequestWithdrawal(ctx, alice, usdc, amount)
		require.NoError(t, err)
	}
	requestFunded(t, c, g, carol, usdc, 5)

	_, err := c.AdvanceBatch(ctx, approver)
	require.NoError(t, err)
	seq := c.LastSequence()

	result, err := c.AdvanceBatch(ctx, approver)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, result.Settled)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 2, result.Failed[0].Index)
	assert.Contains(t, result.Failed[0].Reason, model.ErrInsufficientFunds.Error())

	failed, err := c.GetWithdrawalRequest(2)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalFailed, failed.Status)
	assert.NotEmpty(t, failed.FailureReason)

	assert.Equal(t, model.LedgerEntry{Asset: usdc, Holder: alice, Balance: 10, AvailableWithdrawBalance: 50}, c.GetEntry(usdc, alice))
	assert.Equal(t, []string{
		model.EventWithdrawalSettled,
		model.EventWithdrawalFailed,
		model.EventWithdrawalSettled,
		model.EventBatchAdvanced,
	}, eventTypes(c.Events(seq, 0)))
	assert.NoError(t, c.CheckInvariants())
}

func TestAdvanceBatch_Abort(t *testing.T) {
	c, g := newBatchCustodian(t, Options{BatchFailurePolicy: BatchAbort})
	ctx := context.Background()
	alice, bob, carol := randomHolder(), randomHolder(), randomHolder()

	requestFunded(t, c, g, bob, usdc, 1)
	fund(t, c, g, usdc, alice, 60)
	for _, amount := range []uint64{50, 50} {
		_, err := c.RequestWithdrawal(ctx, alice, usdc, amount)
		require.NoError(t, err)
	}
	requestFunded(t, c, g, carol, usdc, 5)

	_, err := c.AdvanceBatch(ctx, approver)
	require.NoError(t, err)
	before := capture(c)

	_, err = c.AdvanceBatch(ctx, approver)
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)
	assert.Equal(t, before, capture(c))
	assert.Equal(t, model.Window{Begin: 1, End: 4, Length: 4}, c.Window())

	// denying the bad request unblocks the window
	_, err = c.DenyWithdrawalRequest(ctx, approver, 2)
	require.NoError(t, err)
	result, err := c.AdvanceBatch(ctx, approver)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, result.Settled)
	assert.Equal(t, []int{2}, result.Skipped)
}

func TestAdvanceBatch_OfferedFundsCannotSettle(t *testing.T) {
	c, g := newBatchCustodian(t, Options{})
	ctx := context.Background()
	alice := randomHolder()
	fund(t, c, g, usdc, alice, 10)
	_, err := c.OfferTokens(ctx, alice, usdc, 10)
	require.NoError(t, err)
	_, err = c.RequestWithdrawal(ctx, alice, usdc, 5)
	require.NoError(t, err)

	result, err := c.AdvanceBatch(ctx, approver)
	require.NoError(t, err)
	assert.Len(t, result.Failed, 1)
	assert.Equal(t, model.LedgerEntry{Asset: usdc, Holder: alice, Balance: 10, OfferedBalance: 10}, c.GetEntry(usdc, alice))
}

func TestAdvanceBatch_Payout(t *testing.T) {
	c, g := newBatchCustodian(t, Options{SettlementTarget: SettleToPayout})
	ctx := context.Background()
	alice, bob := randomHolder(), randomHolder()
	requestFunded(t, c, g, alice, usdc, 40)
	requestFunded(t, c, g, bob, usdc, 15)

	_, err := c.AdvanceBatch(ctx, approver)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), g.BalanceOf(usdc, alice))
	assert.Equal(t, model.LedgerEntry{Asset: usdc, Holder: alice}, c.GetEntry(usdc, alice))
	assert.Equal(t, uint64(15), c.TotalCustodied(usdc))

	// a failed payout is skipped and leaves the request's funds in place
	g.FailNext(errors.New("token service unavailable"))
	result, err := c.AdvanceBatch(ctx, approver)
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0].Reason, model.ErrExternalTransferFailed.Error())
	assert.Equal(t, model.LedgerEntry{Asset: usdc, Holder: bob, Balance: 15}, c.GetEntry(usdc, bob))
	assert.Equal(t, uint64(15), c.TotalCustodied(usdc))
	assert.Equal(t, uint64(0), g.BalanceOf(usdc, bob))
	assert.NoError(t, c.CheckInvariants())
}

func TestAdvanceBatch_Unauthorized(t *testing.T) {
	c, g := newBatchCustodian(t, Options{})
	alice := randomHolder()
	requestFunded(t, c, g, alice, usdc, 10)
	before := capture(c)

	_, err := c.AdvanceBatch(context.Background(), alice)
	assert.ErrorIs(t, err, model.ErrUnauthorized)
	_, err = c.AdvanceBatch(context.Background(), owner)
	assert.ErrorIs(t, err, model.ErrUnauthorized)
	assert.Equal(t, before, capture(c))
}

func TestAdvanceBatch_PerAssetScope(t *testing.T) {
	c, g := newTestCustodian(t, Options{ApproverScope: ScopePerAsset})
	ctx := context.Background()
	require.NoError(t, c.AddApprover(ctx, owner, "eurc-desk", eurc))
	require.NoError(t, c.AddApprover(ctx, owner, "usdc-desk", usdc))

	requestFunded(t, c, g, randomHolder(), usdc, 10)

	_, err := c.AdvanceBatch(ctx, "eurc-desk")
	assert.ErrorIs(t, err, model.ErrUnauthorized)
	_, err = c.DenyWithdrawalRequest(ctx, "eurc-desk", 0)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	result, err := c.AdvanceBatch(ctx, "usdc-desk")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, result.Settled)
}

func TestBatchMode_RejectsApprove(t *testing.T) {
	c, g := newBatchCustodian(t, Options{})
	requestFunded(t, c, g, randomHolder(), usdc, 10)

	_, err := c.ApproveWithdrawal(context.Background(), approver, 0)
	assert.ErrorIs(t, err, model.ErrUnsupportedMode)
}

func TestListWithdrawalRequests(t *testing.T) {
	c, g := newBatchCustodian(t, Options{})
	for i := 0; i < 5; i++ {
		requestFunded(t, c, g, randomHolder(), usdc, uint64(i+1))
	}

	page := c.ListWithdrawalRequests(1, 2)
	require.Len(t, page, 2)
	assert.Equal(t, 1, page[0].Index)
	assert.Equal(t, 2, page[1].Index)

	assert.Len(t, c.ListWithdrawalRequests(0, 0), 5)
	assert.Len(t, c.ListWithdrawalRequests(-3, 0), 5)
	assert.Empty(t, c.ListWithdrawalRequests(9, 0))
}
