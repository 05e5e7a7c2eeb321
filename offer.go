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

// offerBook manages the offered part of each balance. Offers never move custody.
type offerBook struct {
	ledger *ledger
}

func (b *offerBook) offer(tx *txn, asset model.Asset, holder model.Holder, amount uint64) error {
	e := b.ledger.touch(tx, asset, holder)
	if e.Spendable() < amount {
		return fmt.Errorf("%w: %s spendable %d, offer %d", model.ErrInsufficientFunds, holder, e.Spendable(), amount)
	}
	e.OfferedBalance += amount
	return nil
}

func (b *offerBook) cancel(tx *txn, asset model.Asset, holder model.Holder, amount uint64) error {
	e := b.ledger.touch(tx, asset, holder)
	if e.OfferedBalance < amount {
		return fmt.Errorf("%w: %s offered %d, cancel %d", model.ErrExcessCancellation, holder, e.OfferedBalance, amount)
	}
	e.OfferedBalance -= amount
	return nil
}

// clear reassigns offered funds of src to dst inside custody.
func (b *offerBook) clear(tx *txn, asset model.Asset, src, dst model.Holder, amount uint64) error {
	from := b.ledger.touch(tx, asset, src)
	if from.OfferedBalance < amount {
		return fmt.Errorf("%w: %s offered %d, clear %d", model.ErrInsufficientFunds, src, from.OfferedBalance, amount)
	}
	from.OfferedBalance -= amount
	if err := b.ledger.debit(tx, asset, src, amount); err != nil {
		return err
	}
	return b.ledger.credit(tx, asset, dst, amount)
}

// OfferTokens marks amount of the caller's spendable balance as offered for trade.
func (c *Custodian) OfferTokens(ctx context.Context, caller model.Holder, asset model.Asset, amount uint64) (model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := c.atomic(ctx, "Offering tokens", caller, func(tx *txn) error {
		if caller == "" {
			return model.ErrInvalidHolder
		}
		if err := c.offers.offer(tx, asset, caller, amount); err != nil {
			return err
		}
		tx.emit(model.Event{Type: model.EventOffer, Asset: asset, Holder: caller, Amount: amount})
		entry = c.ledger.get(asset, caller)
		return nil
	})
	return entry, err
}

// CancelOffer withdraws amount from the caller's offered balance.
func (c *Custodian) CancelOffer(ctx context.Context, caller model.Holder, asset model.Asset, amount uint64) (model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := c.atomic(ctx, "Cancelling offer", caller, func(tx *txn) error {
		if caller == "" {
			return model.ErrInvalidHolder
		}
		if err := c.offers.cancel(tx, asset, caller, amount); err != nil {
			return err
		}
		tx.emit(model.Event{Type: model.EventOfferCancelled, Asset: asset, Holder: caller, Amount: amount})
		entry = c.ledger.get(asset, caller)
		return nil
	})
	return entry, err
}

// ClearTokens settles a trade by moving offered funds from src to dst.
// Only the platform admin may clear. The gateway is never called.
func (c *Custodian) ClearTokens(ctx context.Context, caller model.Holder, asset model.Asset, src, dst model.Holder, amount uint64) error {
	return c.atomic(ctx, "Clearing trade", caller, func(tx *txn) error {
		if err := c.authorize(caller, RolePlatformAdmin, asset); err != nil {
			return err
		}
		if src == "" || dst == "" {
			return model.ErrInvalidHolder
		}
		if err := c.offers.clear(tx, asset, src, dst, amount); err != nil {
			return err
		}
		tx.emit(model.Event{Type: model.EventTradeCleared, Asset: asset, Holder: src, Counterparty: dst, Amount: amount})
		return nil
	})
}
