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

package plans

import (
	"context"
	"fmt"

	"reserve-financing-go/internal/auth"
	"reserve-financing-go/internal/collateral"
	"reserve-financing-go/internal/events"
	"reserve-financing-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreatePlan validates the request against the collateral policy, locks the
// backing shares, and persists an Active plan with an equal integer split of
// totalAmount across the installments. The division remainder lands entirely
// on the last installment so the slots always sum back to totalAmount.
func (e *Engine) CreatePlan(ctx context.Context, user, merchant string, totalAmount decimal.Decimal, count int, dueDates []int64) (int64, error) {
	if err := auth.Require(ctx, user); err != nil {
		return 0, err
	}
	if !totalAmount.IsInteger() || totalAmount.LessThanOrEqual(decimal.Zero) {
		return 0, ErrInvalidAmount
	}
	if count < MinInstallments || count > MaxInstallments {
		return 0, ErrInvalidInstallments
	}
	if len(dueDates) != count {
		return 0, ErrDatesMismatch
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	currentTs := e.now().UTC().Unix()
	for _, due := range dueDates {
		if due <= currentTs {
			return 0, ErrInvalidDueDate
		}
	}

	values, err := e.ledger.GetValues(ctx, user)
	if err != nil {
		return 0, err
	}
	if err := collateral.ValidatePlanRequest(totalAmount, values.AvailableValue, values.TotalValue); err != nil {
		return 0, err
	}

	sharesNeeded, err := e.ledger.SharesForAmount(ctx, totalAmount)
	if err != nil {
		return 0, err
	}
	if sharesNeeded.LessThanOrEqual(decimal.Zero) {
		return 0, ErrInvalidShares
	}

	if _, err := e.ledger.LockShares(e.engineCtx(ctx), user, sharesNeeded); err != nil {
		return 0, err
	}

	planId, err := e.persistPlan(ctx, user, merchant, totalAmount, sharesNeeded, count, dueDates, currentTs)
	if err != nil {
		// Compensate the committed lock so the shares are not stranded in
		// the protected pool behind a plan that was never written.
		if _, unlockErr := e.ledger.UnlockShares(e.engineCtx(ctx), user, sharesNeeded); unlockErr != nil {
			zap.L().Error("Failed to release lock after plan persistence failure",
				zap.String("user", user),
				zap.String("shares", sharesNeeded.String()),
				zap.Error(unlockErr))
		}
		return 0, err
	}

	zap.L().Info("Plan created",
		zap.Int64("plan_id", planId),
		zap.String("user", user),
		zap.String("merchant", merchant),
		zap.String("total_amount", totalAmount.String()),
		zap.String("shares_locked", sharesNeeded.String()),
		zap.Int("installments", count))

	return planId, nil
}

func (e *Engine) persistPlan(ctx context.Context, user, merchant string, totalAmount, sharesNeeded decimal.Decimal, count int, dueDates []int64, createdAt int64) (int64, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	planId, err := e.nextPlanId(ctx, tx)
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx, queryInsertPlan,
		planId, user, merchant, totalAmount.String(), sharesNeeded.String(),
		sharesNeeded.String(), count, string(models.PlanActive), createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert plan: %w", err)
	}

	amounts := splitAmount(totalAmount, count)
	for i, amount := range amounts {
		_, err = tx.ExecContext(ctx, queryInsertInstallment,
			planId, i+1, amount.String(), dueDates[i], string(models.InstallmentPending))
		if err != nil {
			return 0, fmt.Errorf("failed to insert installment %d: %w", i+1, err)
		}
	}

	err = events.Record(ctx, tx, events.TopicPlanCreated, user, map[string]interface{}{
		"plan_id":      planId,
		"merchant":     merchant,
		"total_amount": totalAmount.String(),
		"total_shares": sharesNeeded.String(),
		"installments": count,
	})
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return planId, nil
}

// splitAmount divides total into count equal integer parts, with the
// remainder of the division added to the last part.
func splitAmount(total decimal.Decimal, count int) []decimal.Decimal {
	per, remainder := total.QuoRem(decimal.New(int64(count), 0), 0)

	amounts := make([]decimal.Decimal, count)
	for i := range amounts {
		amounts[i] = per
	}
	amounts[count-1] = per.Add(remainder)

	return amounts
}
