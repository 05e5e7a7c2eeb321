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

package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blnkfinance/custody/model"
)

var ErrInsufficientTokens = errors.New("insufficient token balance")

// Transfer is one movement recorded by Memory.
type Transfer struct {
	Asset     model.Asset
	From      model.Holder
	To        model.Holder
	Amount    uint64
	Succeeded bool
}

// Memory is an in-process token ledger standing in for the external token
// service. It is safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	account   model.Holder
	balances  map[model.Asset]map[model.Holder]uint64
	transfers []Transfer
	failures  []error
	faucet    bool
}

func NewMemory(account model.Holder) *Memory {
	return &Memory{
		account:  account,
		balances: make(map[model.Asset]map[model.Holder]uint64),
	}
}

// WithFaucet makes TransferFrom mint whatever the owner is missing.
func (m *Memory) WithFaucet() *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faucet = true
	return m
}

func (m *Memory) Mint(asset model.Asset, holder model.Holder, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holders(asset)[holder] += amount
}

func (m *Memory) BalanceOf(asset model.Asset, holder model.Holder) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[asset][holder]
}

// FailNext queues err as the result of the next transfer call.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, err)
}

// Transfers returns every attempted transfer in call order.
func (m *Memory) Transfers() []Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transfer(nil), m.transfers...)
}

func (m *Memory) holders(asset model.Asset) map[model.Holder]uint64 {
	h, ok := m.balances[asset]
	if !ok {
		h = make(map[model.Holder]uint64)
		m.balances[asset] = h
	}
	return h
}

func (m *Memory) move(ctx context.Context, asset model.Asset, from, to model.Holder, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record := Transfer{Asset: asset, From: from, To: to, Amount: amount}
	defer func() { m.transfers = append(m.transfers, record) }()

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return err
	}

	holders := m.holders(asset)
	if holders[from] < amount {
		if !m.faucet || from == m.account {
			return fmt.Errorf("%w: %s holds %d %s, needs %d", ErrInsufficientTokens, from, holders[from], asset, amount)
		}
		holders[from] = amount
	}
	if holders[to]+amount < holders[to] {
		return fmt.Errorf("token balance of %s would overflow", to)
	}
	holders[from] -= amount
	holders[to] += amount
	record.Succeeded = true
	return nil
}

func (m *Memory) TransferFrom(ctx context.Context, asset model.Asset, owner, recipient model.Holder, amount uint64) error {
	return m.move(ctx, asset, owner, recipient, amount)
}

func (m *Memory) Transfer(ctx context.Context, asset model.Asset, recipient model.Holder, amount uint64) error {
	return m.move(ctx, asset, m.account, recipient, amount)
}
