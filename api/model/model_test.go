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

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		name      string
		amount    string
		precision int32
		want      uint64
		wantErr   bool
	}{
		{"whole units", "100", 0, 100, false},
		{"decimal shifted", "1.5", 6, 1_500_000, false},
		{"smallest unit", "0.000001", 6, 1, false},
		{"max uint64", "18446744073709551615", 0, math.MaxUint64, false},
		{"zero", "0", 2, 0, true},
		{"negative", "-3", 0, 0, true},
		{"too many decimals", "1.234", 2, 0, true},
		{"overflow", "18446744073709551616", 0, 0, true},
		{"negative precision", "1", -1, 0, true},
		{"precision too large", "1", MaxPrecision + 1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToBaseUnits(decimal.RequireFromString(tt.amount), tt.precision)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAssetAmount_Validate(t *testing.T) {
	tests := []struct {
		name    string
		payload AssetAmount
		wantErr bool
	}{
		{"valid", AssetAmount{Asset: "USDC", Amount: decimal.NewFromInt(5)}, false},
		{"valid with precision", AssetAmount{Asset: "USDC", Amount: decimal.RequireFromString("0.25"), Precision: 2}, false},
		{"missing asset", AssetAmount{Amount: decimal.NewFromInt(5)}, true},
		{"zero amount", AssetAmount{Asset: "USDC"}, true},
		{"fractional base units", AssetAmount{Asset: "USDC", Amount: decimal.RequireFromString("0.5")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClearTrade_Validate(t *testing.T) {
	valid := ClearTrade{Asset: "USDC", Source: "a", Destination: "b", Amount: decimal.NewFromInt(1)}
	assert.NoError(t, valid.Validate())
	assert.Equal(t, uint64(1), valid.BaseUnits())

	missing := valid
	missing.Destination = ""
	assert.Error(t, missing.Validate())
}

func TestSetApprover(t *testing.T) {
	s := SetApprover{Holder: "desk", Assets: []string{"USDC", "EURC"}}
	require.NoError(t, s.Validate())
	assert.Len(t, s.ToAssets(), 2)

	assert.Error(t, (&SetApprover{}).Validate())
	assert.Error(t, (&SetApprover{Holder: "desk", Assets: []string{""}}).Validate())
}
