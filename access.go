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
	"sort"

	"github.com/blnkfinance/custody/model"
)

type Role string

const (
	RoleOwner         Role = "owner"
	RolePlatformAdmin Role = "platform_admin"
	RoleApprover      Role = "approver"
)

// Authorizer decides whether holder may act in role. An empty asset asks for
// role membership only; a non-empty asset also applies approver scoping.
type Authorizer interface {
	Authorized(holder model.Holder, role Role, asset model.Asset) bool
}

type accessControl struct {
	owner         model.Holder
	platformAdmin model.Holder
	scope         ApproverScope

	// approvers keeps insertion order, scopes gives O(1) membership.
	approvers []model.Holder
	scopes    map[model.Holder]map[model.Asset]struct{}
}

func newAccessControl(owner model.Holder, scope ApproverScope) *accessControl {
	return &accessControl{
		owner:  owner,
		scope:  scope,
		scopes: make(map[model.Holder]map[model.Asset]struct{}),
	}
}

func (a *accessControl) Authorized(holder model.Holder, role Role, asset model.Asset) bool {
	if holder == "" {
		return false
	}
	switch role {
	case RoleOwner:
		return holder == a.owner
	case RolePlatformAdmin:
		return a.platformAdmin != "" && holder == a.platformAdmin
	case RoleApprover:
		assets, ok := a.scopes[holder]
		if !ok {
			return false
		}
		if a.scope == ScopeGlobal || asset == "" {
			return true
		}
		_, ok = assets[asset]
		return ok
	}
	return false
}

func (a *accessControl) isApprover(holder model.Holder) bool {
	_, ok := a.scopes[holder]
	return ok
}

// snapshot journals the whole role state; it is small and changes rarely.
func (a *accessControl) snapshot(tx *txn) {
	owner, admin := a.owner, a.platformAdmin
	approvers := append([]model.Holder(nil), a.approvers...)
	scopes := make(map[model.Holder]map[model.Asset]struct{}, len(a.scopes))
	for h, s := range a.scopes {
		scopes[h] = s
	}
	tx.onRollback(func() {
		a.owner, a.platformAdmin = owner, admin
		a.approvers = approvers
		a.scopes = scopes
	})
}

func (a *accessControl) add(holder model.Holder, assets []model.Asset) {
	set := make(map[model.Asset]struct{}, len(assets))
	for _, asset := range assets {
		set[asset] = struct{}{}
	}
	a.approvers = append(a.approvers, holder)
	a.scopes[holder] = set
}

func (a *accessControl) remove(holder model.Holder) {
	delete(a.scopes, holder)
	kept := make([]model.Holder, 0, len(a.approvers))
	for _, h := range a.approvers {
		if h != holder {
			kept = append(kept, h)
		}
	}
	a.approvers = kept
}

func (a *accessControl) list() []model.Approver {
	out := make([]model.Approver, 0, len(a.approvers))
	for _, h := range a.approvers {
		approver := model.Approver{Holder: h}
		for asset := range a.scopes[h] {
			approver.Assets = append(approver.Assets, asset)
		}
		sortAssets(approver.Assets)
		out = append(out, approver)
	}
	return out
}

func sortAssets(assets []model.Asset) {
	sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })
}

func (c *Custodian) authorize(caller model.Holder, role Role, asset model.Asset) error {
	if !c.access.Authorized(caller, role, asset) {
		if asset != "" && role == RoleApprover {
			return fmt.Errorf("%w: %q is not an approver for %s", model.ErrUnauthorized, caller, asset)
		}
		return fmt.Errorf("%w: %q lacks role %s", model.ErrUnauthorized, caller, role)
	}
	return nil
}

// Authorizer exposes the role predicate used by every mutating operation.
func (c *Custodian) Authorizer() Authorizer {
	return readLocked{c}
}

type readLocked struct{ c *Custodian }

func (r readLocked) Authorized(holder model.Holder, role Role, asset model.Asset) bool {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	return r.c.access.Authorized(holder, role, asset)
}

// TransferOwnership hands the owner role to newOwner.
func (c *Custodian) TransferOwnership(ctx context.Context, caller, newOwner model.Holder) error {
	return c.atomic(ctx, "Transferring ownership", caller, func(tx *txn) error {
		if err := c.authorize(caller, RoleOwner, ""); err != nil {
			return err
		}
		if newOwner == "" {
			return model.ErrInvalidHolder
		}
		c.access.snapshot(tx)
		previous := c.access.owner
		c.access.owner = newOwner
		tx.emit(model.Event{
			Type:   model.EventOwnershipTransferred,
			Holder: newOwner,
			Data:   map[string]interface{}{"previous_owner": previous},
		})
		return nil
	})
}

// SetPlatformAdmin assigns the platform admin role. An empty admin clears it.
func (c *Custodian) SetPlatformAdmin(ctx context.Context, caller, admin model.Holder) error {
	return c.atomic(ctx, "Setting platform admin", caller, func(tx *txn) error {
		if err := c.authorize(caller, RoleOwner, ""); err != nil {
			return err
		}
		c.access.snapshot(tx)
		previous := c.access.platformAdmin
		c.access.platformAdmin = admin
		tx.emit(model.Event{
			Type:   model.EventPlatformAdminChanged,
			Holder: admin,
			Data:   map[string]interface{}{"previous_admin": previous},
		})
		return nil
	})
}

// SetApprover replaces the approver set with a single approver.
func (c *Custodian) SetApprover(ctx context.Context, caller, approver model.Holder, assets ...model.Asset) error {
	return c.atomic(ctx, "Setting approver", caller, func(tx *txn) error {
		if err := c.authorize(caller, RoleOwner, ""); err != nil {
			return err
		}
		if approver == "" {
			return model.ErrInvalidHolder
		}
		c.access.snapshot(tx)
		previous := c.access.approvers
		c.access.approvers = nil
		c.access.scopes = make(map[model.Holder]map[model.Asset]struct{})
		c.access.add(approver, assets)
		tx.emit(model.Event{
			Type:   model.EventApproverChanged,
			Holder: approver,
			Data:   map[string]interface{}{"previous_approvers": previous, "assets": assets},
		})
		return nil
	})
}

// AddApprover adds approver to the set. Adding an existing approver is a no-op.
func (c *Custodian) AddApprover(ctx context.Context, caller, approver model.Holder, assets ...model.Asset) error {
	return c.atomic(ctx, "Adding approver", caller, func(tx *txn) error {
		if err := c.authorize(caller, RoleOwner, ""); err != nil {
			return err
		}
		if approver == "" {
			return model.ErrInvalidHolder
		}
		if c.access.isApprover(approver) {
			return nil
		}
		c.access.snapshot(tx)
		c.access.add(approver, assets)
		tx.emit(model.Event{
			Type:   model.EventApproverAdded,
			Holder: approver,
			Data:   map[string]interface{}{"assets": assets},
		})
		return nil
	})
}

// RemoveApprover removes approver from the set. Removing a non-member is a no-op.
func (c *Custodian) RemoveApprover(ctx context.Context, caller, approver model.Holder) error {
	return c.atomic(ctx, "Removing approver", caller, func(tx *txn) error {
		if err := c.authorize(caller, RoleOwner, ""); err != nil {
			return err
		}
		if !c.access.isApprover(approver) {
			return nil
		}
		c.access.snapshot(tx)
		c.access.remove(approver)
		tx.emit(model.Event{Type: model.EventApproverRemoved, Holder: approver})
		return nil
	})
}

func (c *Custodian) Owner() model.Holder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.access.owner
}

func (c *Custodian) PlatformAdmin() model.Holder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.access.platformAdmin
}

// Approvers lists the approver set in insertion order.
func (c *Custodian) Approvers() []model.Approver {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.access.list()
}
