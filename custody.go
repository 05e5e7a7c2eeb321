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
	"embed"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/blnkfinance/custody/model"
)

var (
	tracer = otel.Tracer("custody.ledger")
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// AssetTransferGateway moves real tokens in and out of custody.
// Any error aborts the operation that made the call.
type AssetTransferGateway interface {
	// TransferFrom pulls amount of asset from owner into recipient.
	TransferFrom(ctx context.Context, asset model.Asset, owner, recipient model.Holder, amount uint64) error
	// Transfer pays amount of asset out of the custody account to recipient.
	Transfer(ctx context.Context, asset model.Asset, recipient model.Holder, amount uint64) error
}

// Custodian is the custodial ledger. Every public mutating method is applied
// atomically: it either commits all of its ledger, queue, role and gateway
// effects and emits its events, or it leaves no trace.
type Custodian struct {
	mu         sync.RWMutex
	dispatchMu sync.Mutex

	opts     Options
	gateway  AssetTransferGateway
	ledger   *ledger
	offers   *offerBook
	queue    *withdrawalQueue
	access   *accessControl
	strategy approvalStrategy

	events   []model.Event
	sequence uint64
	sinks    []EventSink
}

// NewCustodian creates a custodian owned by opts.Owner.
//
// Parameters:
// - gateway AssetTransferGateway: The token transfer backend.
// - opts Options: Roles and approval policies.
// - sinks ...EventSink: Receivers notified after every committed operation.
//
// Returns:
// - *Custodian: The new custodian.
// - error: An error if the options are invalid.
func NewCustodian(gateway AssetTransferGateway, opts Options, sinks ...EventSink) (*Custodian, error) {
	if err := opts.withDefaults(); err != nil {
		return nil, err
	}

	l := newLedger()
	c := &Custodian{
		opts:    opts,
		gateway: gateway,
		ledger:  l,
		offers:  &offerBook{ledger: l},
		queue:   &withdrawalQueue{},
		access:  newAccessControl(opts.Owner, opts.ApproverScope),
		sinks:   sinks,
	}
	if opts.ApprovalMode == ApprovalQuorum {
		c.strategy = newQuorumStrategy(c)
	} else {
		c.strategy = &batchStrategy{c: c}
	}

	logrus.WithFields(logrus.Fields{
		"owner":         opts.Owner,
		"account":       opts.Account,
		"approval_mode": opts.ApprovalMode,
		"batch_limit":   opts.BatchLimit,
		"threshold":     opts.ApprovalThreshold,
	}).Info("custodian initialized")

	return c, nil
}

// Options returns the effective options after defaults were applied.
func (c *Custodian) Options() Options {
	return c.opts
}

func (c *Custodian) Mode() ApprovalMode {
	return c.strategy.mode()
}

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Error(msg, err)
	return err
}

// txn is the transaction boundary of a single public operation. Mutations
// register an undo closure before they happen; rollback replays them in reverse.
type txn struct {
	ctx    context.Context
	actor  model.Holder
	now    time.Time
	undo   []func()
	events []model.Event
}

type savepoint struct {
	undo   int
	events int
}

func (tx *txn) onRollback(fn func()) {
	tx.undo = append(tx.undo, fn)
}

func (tx *txn) emit(event model.Event) {
	event.EventID = model.GenerateUUIDWithSuffix("evt")
	event.Actor = tx.actor
	event.CreatedAt = tx.now
	tx.events = append(tx.events, event)
}

func (tx *txn) savepoint() savepoint {
	return savepoint{undo: len(tx.undo), events: len(tx.events)}
}

func (tx *txn) rollbackTo(sp savepoint) {
	for i := len(tx.undo) - 1; i >= sp.undo; i-- {
		tx.undo[i]()
	}
	tx.undo = tx.undo[:sp.undo]
	tx.events = tx.events[:sp.events]
}

func (tx *txn) rollback() {
	tx.rollbackTo(savepoint{})
}

// atomic runs fn under the custodian lock. A returned error or a panic rolls
// back every mutation fn made. Events are published in commit order.
func (c *Custodian) atomic(ctx context.Context, operation string, actor model.Holder, fn func(tx *txn) error) error {
	ctx, span := tracer.Start(ctx, operation)
	defer span.End()
	span.SetAttributes(attribute.String("actor", string(actor)))

	if err := ctx.Err(); err != nil {
		return logAndRecordError(span, operation+": ", err)
	}

	c.mu.Lock()
	locked := true
	defer func() {
		if locked {
			c.mu.Unlock()
		}
	}()

	// once started an operation runs to completion, gateway calls included
	tx := &txn{ctx: context.WithoutCancel(ctx), actor: actor, now: time.Now()}
	if err := c.apply(tx, fn); err != nil {
		span.SetAttributes(attribute.Bool("rolled_back", true))
		return logAndRecordError(span, operation+": ", err)
	}

	for i := range tx.events {
		c.sequence++
		tx.events[i].Sequence = c.sequence
	}
	c.events = append(c.events, tx.events...)
	span.AddEvent("committed", trace.WithAttributes(attribute.Int("events", len(tx.events))))

	if len(tx.events) == 0 {
		return nil
	}

	c.dispatchMu.Lock()
	c.mu.Unlock()
	locked = false
	defer c.dispatchMu.Unlock()
	c.publish(tx.ctx, tx.events)
	return nil
}

func (c *Custodian) apply(tx *txn, fn func(tx *txn) error) (err error) {
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}
