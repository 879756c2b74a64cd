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

// Package collateral holds the stateless loan-to-value policy applied when an
// installment plan is created.
package collateral

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Maximum loan-to-value ratio in basis points: a plan may borrow against at
// most 80% of the user's total position value.
const MaxLTVBps = 8000

// Liquidation alert threshold in basis points. Reserved for risk alerting;
// not enforced by plan creation.
const LiquidationThresholdBps = 8500

const bpsDivisor = 10000

var (
	ErrExceedsMaxLTV         = errors.New("plan exceeds maximum loan-to-value ratio")
	ErrInsufficientAvailable = errors.New("insufficient available value")
)

// MaxLoanAmount returns the largest plan total permitted against the given
// total position value: floor(totalValue * 8000 / 10000).
func MaxLoanAmount(totalValue decimal.Decimal) decimal.Decimal {
	q, _ := totalValue.Mul(decimal.New(MaxLTVBps, 0)).QuoRem(decimal.New(bpsDivisor, 0), 0)
	return q
}

// ValidatePlanRequest gates plan creation. The LTV ceiling is checked before
// availability: it is the tighter economic constraint and should surface
// first.
func ValidatePlanRequest(totalAmount, availableValue, totalValue decimal.Decimal) error {
	if totalAmount.GreaterThan(MaxLoanAmount(totalValue)) {
		return ErrExceedsMaxLTV
	}
	if totalAmount.GreaterThan(availableValue) {
		return ErrInsufficientAvailable
	}
	return nil
}
