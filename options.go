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
	"strings"

	"github.com/blnkfinance/custody/config"
	"github.com/blnkfinance/custody/model"
)

type ApprovalMode string

const (
	// ApprovalBatch settles the processing window in one pass driven by an approver.
	ApprovalBatch ApprovalMode = "batch"
	// ApprovalQuorum settles each request once enough distinct approvers sign it.
	ApprovalQuorum ApprovalMode = "quorum"
)

type BatchFailurePolicy string

const (
	BatchSkipFailed BatchFailurePolicy = "skip"
	BatchAbort      BatchFailurePolicy = "abort"
)

type EnqueuePolicy string

const (
	// ValidateAtSettlement only checks funds when the request settles.
	ValidateAtSettlement EnqueuePolicy = "settlement"
	// ValidateAtEnqueue additionally requires spendable funds when the request is made.
	ValidateAtEnqueue EnqueuePolicy = "enqueue"
)

type ApproverScope string

const (
	ScopeGlobal   ApproverScope = "global"
	ScopePerAsset ApproverScope = "asset"
)

type SettlementTarget string

const (
	SettleToAvailable SettlementTarget = "available"
	SettleToPayout    SettlementTarget = "payout"
)

const DefaultBatchLimit = 10

// Options configures a Custodian.
type Options struct {
	Owner              model.Holder
	Account            model.Holder // gateway account holding custodied funds
	ApprovalMode       ApprovalMode
	BatchLimit         int
	ApprovalThreshold  int
	BatchFailurePolicy BatchFailurePolicy
	EnqueuePolicy      EnqueuePolicy
	ApproverScope      ApproverScope
	SettlementTarget   SettlementTarget
}

// OptionsFromConfig maps the custody section of the configuration onto Options.
func OptionsFromConfig(cnf *config.Configuration) Options {
	c := cnf.Custody
	return Options{
		Owner:              model.Holder(c.Owner),
		Account:            model.Holder(c.Account),
		ApprovalMode:       ApprovalMode(c.ApprovalMode),
		BatchLimit:         c.BatchLimit,
		ApprovalThreshold:  c.ApprovalThreshold,
		BatchFailurePolicy: BatchFailurePolicy(c.BatchFailurePolicy),
		EnqueuePolicy:      EnqueuePolicy(c.EnqueuePolicy),
		ApproverScope:      ApproverScope(c.ApproverScope),
		SettlementTarget:   SettlementTarget(c.SettlementTarget),
	}
}

// ResolveOptions returns the options a custodian built from cnf would run with.
func ResolveOptions(cnf *config.Configuration) (Options, error) {
	opts := OptionsFromConfig(cnf)
	if err := opts.withDefaults(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func (o *Options) withDefaults() error {
	if o.Owner == "" {
		return fmt.Errorf("owner: %w", model.ErrInvalidHolder)
	}
	if o.Account == "" {
		o.Account = "custody"
	}
	if o.ApprovalMode == "" {
		o.ApprovalMode = ApprovalBatch
	}
	if o.BatchLimit <= 0 {
		o.BatchLimit = DefaultBatchLimit
	}
	if o.ApprovalThreshold < 0 {
		return fmt.Errorf("approval threshold must not be negative, got %d", o.ApprovalThreshold)
	}
	if o.BatchFailurePolicy == "" {
		o.BatchFailurePolicy = BatchSkipFailed
	}
	if o.EnqueuePolicy == "" {
		o.EnqueuePolicy = ValidateAtSettlement
	}
	if o.ApproverScope == "" {
		o.ApproverScope = ScopeGlobal
	}
	if o.SettlementTarget == "" {
		o.SettlementTarget = SettleToAvailable
	}

	switch {
	case o.ApprovalMode != ApprovalBatch && o.ApprovalMode != ApprovalQuorum:
		return fmt.Errorf("unknown approval mode %q", o.ApprovalMode)
	case o.BatchFailurePolicy != BatchSkipFailed && o.BatchFailurePolicy != BatchAbort:
		return fmt.Errorf("unknown batch failure policy %q", o.BatchFailurePolicy)
	case o.EnqueuePolicy != ValidateAtSettlement && o.EnqueuePolicy != ValidateAtEnqueue:
		return fmt.Errorf("unknown enqueue policy %q", o.EnqueuePolicy)
	case o.ApproverScope != ScopeGlobal && o.ApproverScope != ScopePerAsset:
		return fmt.Errorf("unknown approver scope %q", o.ApproverScope)
	case o.SettlementTarget != SettleToAvailable && o.SettlementTarget != SettleToPayout:
		return fmt.Errorf("unknown settlement target %q", o.SettlementTarget)
	}
	return nil
}

// parseApprover reads a configured approver entry of the form "holder" or
// "holder:USDC|EURC".
func parseApprover(entry string) (model.Holder, []model.Asset) {
	holder, scope, _ := strings.Cut(strings.TrimSpace(entry), ":")
	var assets []model.Asset
	for _, a := range strings.Split(scope, "|") {
		if a = strings.TrimSpace(a); a != "" {
			assets = append(assets, model.Asset(a))
		}
	}
	return model.Holder(strings.TrimSpace(holder)), assets
}

// Bootstrap applies the platform admin and approvers named in the configuration,
// acting as the owner. Entries already in place are left alone.
func (c *Custodian) Bootstrap(ctx context.Context, conf config.CustodyConfig) error {
	owner := c.Owner()
	if conf.PlatformAdmin != "" && c.PlatformAdmin() != model.Holder(conf.PlatformAdmin) {
		if err := c.SetPlatformAdmin(ctx, owner, model.Holder(conf.PlatformAdmin)); err != nil {
			return fmt.Errorf("bootstrapping platform admin: %w", err)
		}
	}
	for _, entry := range conf.Approvers {
		holder, assets := parseApprover(entry)
		if holder == "" {
			continue
		}
		if err := c.AddApprover(ctx, owner, holder, assets...); err != nil {
			return fmt.Errorf("bootstrapping approver %s: %w", holder, err)
		}
	}
	return nil
}
