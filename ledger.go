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
	"math/bits"
	"sort"

	"github.com/blnkfinance/custody/model"
)

type entryKey struct {
	asset  model.Asset
	holder model.Holder
}

// ledger owns every LedgerEntry and the per-asset custodied total.
type ledger struct {
	entries   map[entryKey]*model.LedgerEntry
	custodied map[model.Asset]uint64
}

func newLedger() *ledger {
	return &ledger{
		entries:   make(map[entryKey]*model.LedgerEntry),
		custodied: make(map[model.Asset]uint64),
	}
}

func add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, model.ErrOverflow
	}
	return sum, nil
}

func (l *ledger) get(asset model.Asset, holder model.Holder) model.LedgerEntry {
	if e, ok := l.entries[entryKey{asset, holder}]; ok {
		return *e
	}
	return model.LedgerEntry{Asset: asset, Holder: holder}
}

// touch returns the entry for mutation, creating it on first use, and
// journals its current value.
func (l *ledger) touch(tx *txn, asset model.Asset, holder model.Holder) *model.LedgerEntry {
	key := entryKey{asset, holder}
	e, ok := l.entries[key]
	if !ok {
		e = &model.LedgerEntry{Asset: asset, Holder: holder}
		l.entries[key] = e
		tx.onRollback(func() { delete(l.entries, key) })
	}
	prev := *e
	tx.onRollback(func() { *e = prev })
	return e
}

func (l *ledger) adjustCustodied(tx *txn, asset model.Asset, amount uint64, increase bool) error {
	prev, existed := l.custodied[asset]
	next := prev - amount
	if increase {
		sum, err := add(prev, amount)
		if err != nil {
			return fmt.Errorf("custodied total for %s: %w", asset, err)
		}
		next = sum
	}
	l.custodied[asset] = next
	tx.onRollback(func() {
		if existed {
			l.custodied[asset] = prev
		} else {
			delete(l.custodied, asset)
		}
	})
	return nil
}

func (l *ledger) credit(tx *txn, asset model.Asset, holder model.Holder, amount uint64) error {
	e := l.touch(tx, asset, holder)
	sum, err := add(e.Balance, amount)
	if err != nil {
		return fmt.Errorf("crediting %s: %w", holder, err)
	}
	e.Balance = sum
	return nil
}

// debit only draws on the spendable part so offered funds stay covered.
func (l *ledger) debit(tx *txn, asset model.Asset, holder model.Holder, amount uint64) error {
	e := l.touch(tx, asset, holder)
	if e.Spendable() < amount {
		return fmt.Errorf("%w: %s spendable %d, requested %d", model.ErrInsufficientFunds, holder, e.Spendable(), amount)
	}
	e.Balance -= amount
	return nil
}

func (l *ledger) moveToAvailable(tx *txn, asset model.Asset, holder model.Holder, amount uint64) error {
	e := l.touch(tx, asset, holder)
	if e.Spendable() < amount {
		return fmt.Errorf("%w: %s spendable %d, requested %d", model.ErrInsufficientFunds, holder, e.Spendable(), amount)
	}
	available, err := add(e.AvailableWithdrawBalance, amount)
	if err != nil {
		return err
	}
	e.Balance -= amount
	e.AvailableWithdrawBalance = available
	return nil
}

// payOut releases available funds through the gateway.
func (l *ledger) payOut(tx *txn, gateway AssetTransferGateway, asset model.Asset, holder model.Holder, amount uint64) error {
	e := l.touch(tx, asset, holder)
	if e.AvailableWithdrawBalance < amount {
		return fmt.Errorf("%w: %s available %d, requested %d", model.ErrInsufficientFunds, holder, e.AvailableWithdrawBalance, amount)
	}
	e.AvailableWithdrawBalance -= amount
	if err := l.adjustCustodied(tx, asset, amount, false); err != nil {
		return err
	}
	if err := gateway.Transfer(tx.ctx, asset, holder, amount); err != nil {
		return fmt.Errorf("%w: transfer of %d %s to %s: %v", model.ErrExternalTransferFailed, amount, asset, holder, err)
	}
	return nil
}

// Deposit credits the caller and pulls the funds into the custody account.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - caller model.Holder: The depositing holder.
// - asset model.Asset: The token being deposited.
// - amount uint64: The amount in base units.
//
// Returns:
// - model.LedgerEntry: The caller's entry after the deposit.
// - error: ErrOverflow, ErrExternalTransferFailed or ErrInvalidHolder.
func (c *Custodian) Deposit(ctx context.Context, caller model.Holder, asset model.Asset, amount uint64) (model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := c.atomic(ctx, "Depositing tokens", caller, func(tx *txn) error {
		if caller == "" {
			return model.ErrInvalidHolder
		}
		if err := c.ledger.credit(tx, asset, caller, amount); err != nil {
			return err
		}
		if err := c.ledger.adjustCustodied(tx, asset, amount, true); err != nil {
			return err
		}
		if err := c.gateway.TransferFrom(tx.ctx, asset, caller, c.opts.Account, amount); err != nil {
			return fmt.Errorf("%w: pulling %d %s from %s: %v", model.ErrExternalTransferFailed, amount, asset, caller, err)
		}

		tx.emit(model.Event{Type: model.EventDeposit, Asset: asset, Holder: caller, Amount: amount})
		entry = c.ledger.get(asset, caller)
		return nil
	})
	return entry, err
}

// Withdraw pays out funds that were cleared for withdrawal.
func (c *Custodian) Withdraw(ctx context.Context, caller model.Holder, asset model.Asset, amount uint64) (model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := c.atomic(ctx, "Withdrawing tokens", caller, func(tx *txn) error {
		if caller == "" {
			return model.ErrInvalidHolder
		}
		if err := c.ledger.payOut(tx, c.gateway, asset, caller, amount); err != nil {
			return err
		}

		tx.emit(model.Event{Type: model.EventWithdrawn, Asset: asset, Holder: caller, Amount: amount})
		entry = c.ledger.get(asset, caller)
		return nil
	})
	return entry, err
}

// GetEntry returns the ledger entry of holder for asset. Untouched pairs read as zero.
func (c *Custodian) GetEntry(asset model.Asset, holder model.Holder) model.LedgerEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger.get(asset, holder)
}

// GetEntries returns every entry of holder ordered by asset.
func (c *Custodian) GetEntries(holder model.Holder) []model.LedgerEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]model.LedgerEntry, 0)
	for key, e := range c.ledger.entries {
		if key.holder == holder {
			entries = append(entries, *e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Asset < entries[j].Asset })
	return entries
}

// TotalCustodied returns the amount of asset the custody account should hold.
func (c *Custodian) TotalCustodied(asset model.Asset) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger.custodied[asset]
}

// CheckInvariants verifies that no entry has offered more than its balance and
// that entries sum to the custodied total of every asset.
func (c *Custodian) CheckInvariants() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sums := make(map[model.Asset]uint64)
	for _, e := range c.ledger.entries {
		if e.OfferedBalance > e.Balance {
			return fmt.Errorf("entry %s/%s offers %d over balance %d", e.Asset, e.Holder, e.OfferedBalance, e.Balance)
		}
		total, err := add(sums[e.Asset], e.Balance)
		if err == nil {
			total, err = add(total, e.AvailableWithdrawBalance)
		}
		if err != nil {
			return fmt.Errorf("summing %s: %w", e.Asset, err)
		}
		sums[e.Asset] = total
	}
	for asset, custodied := range c.ledger.custodied {
		if sums[asset] != custodied {
			return fmt.Errorf("asset %s entries sum to %d, custodied %d", asset, sums[asset], custodied)
		}
	}
	for asset, sum := range sums {
		if _, ok := c.ledger.custodied[asset]; !ok && sum != 0 {
			return fmt.Errorf("asset %s entries sum to %d with nothing custodied", asset, sum)
		}
	}
	return nil
}
