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
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/blnkfinance/custody/model"
)

// MaxPrecision bounds the decimal places a request may shift by.
const MaxPrecision = 18

// AssetAmount is the body of deposit, withdraw, offer, cancel and withdrawal
// request calls. Amount is in display units; Precision is the number of
// decimal places of one base unit, so 1.5 at precision 6 is 1500000.
type AssetAmount struct {
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	Precision int32           `json:"precision"`
}

type ClearTrade struct {
	Asset       string          `json:"asset"`
	Source      string          `json:"source"`
	Destination string          `json:"destination"`
	Amount      decimal.Decimal `json:"amount"`
	Precision   int32           `json:"precision"`
}

type SetHolder struct {
	Holder string `json:"holder"`
}

type SetApprover struct {
	Holder string   `json:"holder"`
	Assets []string `json:"assets"`
}

func amountRule(precision int32) validation.RuleFunc {
	return func(value interface{}) error {
		amount, ok := value.(decimal.Decimal)
		if !ok {
			return errors.New("invalid amount type")
		}
		_, err := ToBaseUnits(amount, precision)
		return err
	}
}

var precisionRule = validation.Min(int32(0))

func (a *AssetAmount) Validate() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Asset, validation.Required),
		validation.Field(&a.Precision, precisionRule, validation.Max(int32(MaxPrecision))),
		validation.Field(&a.Amount, validation.By(amountRule(a.Precision))),
	)
}

func (t *ClearTrade) Validate() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Asset, validation.Required),
		validation.Field(&t.Source, validation.Required),
		validation.Field(&t.Destination, validation.Required),
		validation.Field(&t.Precision, precisionRule, validation.Max(int32(MaxPrecision))),
		validation.Field(&t.Amount, validation.By(amountRule(t.Precision))),
	)
}

func (s *SetHolder) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Holder, validation.Required),
	)
}

// ValidateAllowEmpty accepts an empty holder, used to clear the platform admin.
func (s *SetHolder) ValidateAllowEmpty() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Holder, validation.Length(0, 256)),
	)
}

func (s *SetApprover) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Holder, validation.Required),
		validation.Field(&s.Assets, validation.Each(validation.Required)),
	)
}

// ToBaseUnits converts a display amount into integer base units. Zero,
// negative, fractional and out-of-range results are rejected.
func ToBaseUnits(amount decimal.Decimal, precision int32) (uint64, error) {
	if precision < 0 || precision > MaxPrecision {
		return 0, fmt.Errorf("precision must be between 0 and %d", MaxPrecision)
	}
	units := amount.Shift(precision)
	if !units.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", amount, precision)
	}
	if units.Sign() <= 0 {
		return 0, errors.New("amount must be greater than zero")
	}
	n := units.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("amount %s exceeds the supported range", amount)
	}
	return n.Uint64(), nil
}

func (a *AssetAmount) BaseUnits() uint64 {
	units, _ := ToBaseUnits(a.Amount, a.Precision)
	return units
}

func (a *AssetAmount) ToAsset() model.Asset {
	return model.Asset(a.Asset)
}

func (t *ClearTrade) BaseUnits() uint64 {
	units, _ := ToBaseUnits(t.Amount, t.Precision)
	return units
}

func (s *SetApprover) ToAssets() []model.Asset {
	assets := make([]model.Asset, 0, len(s.Assets))
	for _, a := range s.Assets {
		assets = append(assets, model.Asset(a))
	}
	return assets
}
