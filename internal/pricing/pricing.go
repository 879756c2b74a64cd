/**
 * Copyright 2025-present Reserve Financing Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package pricing

import (
	"context"
	"fmt"

	"reserve-financing-go/internal/vault"

	"github.com/shopspring/decimal"
)

var one = decimal.New(1, 0)

// Adapter prices shares against the vault's reported totals. It holds no
// state of its own.
type Adapter struct {
	reserve vault.Reserve
}

func NewAdapter(reserve vault.Reserve) *Adapter {
	return &Adapter{reserve: reserve}
}

// Totals reads (total managed value, total shares outstanding) from the
// vault, summing the managed-funds report across all assets.
func (a *Adapter) Totals(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	totalShares, err := a.reserve.TotalSupply(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to read vault total supply: %w", err)
	}

	funds, err := a.reserve.FetchTotalManagedFunds(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to read vault managed funds: %w", err)
	}

	totalManaged := decimal.Zero
	for _, f := range funds {
		totalManaged, err = CheckedAdd(totalManaged, f.TotalAmount)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
	}

	return totalManaged, totalShares, nil
}

// SharesForAmount converts an asset amount to the share count needed to cover
// it at the vault's current price.
func (a *Adapter) SharesForAmount(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	totalManaged, totalShares, err := a.Totals(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return SharesForAmountAt(amount, totalManaged, totalShares)
}

// ValueForShares converts a share count to its current asset value.
func (a *Adapter) ValueForShares(ctx context.Context, shares decimal.Decimal) (decimal.Decimal, error) {
	totalManaged, totalShares, err := a.Totals(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return ValueForSharesAt(shares, totalManaged, totalShares)
}

// SharesForAmountAt prices amount against the given vault totals. Rounding is
// toward positive infinity so the caller never under-collateralizes or
// under-withdraws the vault. Before the vault has any shares or value, one
// share equals one unit of value.
func SharesForAmountAt(amount, totalManaged, totalShares decimal.Decimal) (decimal.Decimal, error) {
	if amount.LessThan(one) || !amount.IsInteger() {
		return decimal.Zero, ErrInvalidAmount
	}
	if totalShares.IsZero() || totalManaged.IsZero() {
		return amount, nil
	}
	return MulDivCeil(amount, totalShares, totalManaged)
}

// ValueForSharesAt is the inverse conversion, floor-rounded so a holder is
// never over-credited.
func ValueForSharesAt(shares, totalManaged, totalShares decimal.Decimal) (decimal.Decimal, error) {
	if shares.IsNegative() || !shares.IsInteger() {
		return decimal.Zero, ErrInvalidAmount
	}
	if shares.IsZero() || totalShares.IsZero() {
		return decimal.Zero, nil
	}
	return MulDivFloor(shares, totalManaged, totalShares)
}
