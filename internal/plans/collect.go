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
	"database/sql"
	"fmt"

	"reserve-financing-go/internal/auth"
	"reserve-financing-go/internal/events"
	"reserve-financing-go/internal/ledger"
	"reserve-financing-go/internal/models"
	"reserve-financing-go/internal/pricing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CollectInstallment settles one due installment, resolving payment in strict
// priority order: the user's available pool first (with a proportional
// release of the plan's collateral), then the protected pool, and finally a
// terminal failure that marks the installment Failed and the plan Defaulted.
//
// The successful paths hand the ledger a single settlement: the pool debit,
// any collateral release and the installment/plan row updates commit in one
// transaction, so a failure mid-collection leaves the installment Pending
// and the user's balance untouched. The default transition is deliberately
// committed before the error is returned: "this plan has defaulted" is a
// persisted fact, not an aborted call.
func (e *Engine) CollectInstallment(ctx context.Context, planId int64, number int) (models.PaymentSource, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	plan, err := e.getPlan(ctx, e.db, planId)
	if err != nil {
		return "", err
	}
	if err := auth.Require(ctx, plan.User); err != nil {
		return "", err
	}

	if number < 1 || number > plan.InstallmentsCount {
		return "", ErrInstallmentNotFound
	}
	inst := plan.Installments[number-1]
	if inst.Status != models.InstallmentPending {
		return "", ErrAlreadyPaid
	}

	currentTs := e.now().UTC().Unix()
	if currentTs < inst.DueDate {
		return "", ErrNotDueYet
	}

	sharesNeeded, err := e.ledger.SharesForAmount(ctx, inst.Amount)
	if err != nil {
		return "", err
	}
	if sharesNeeded.LessThanOrEqual(decimal.Zero) {
		return "", ErrInvalidShares
	}

	bal, err := e.ledger.GetBalance(ctx, plan.User)
	if err != nil {
		return "", err
	}

	var source models.PaymentSource
	release := decimal.Zero
	switch {
	case bal.AvailableShares.GreaterThanOrEqual(sharesNeeded):
		source = models.SourceAvailable

		// The payment came out of the available pool, so a matching slice of
		// the plan's locked collateral is released: the fraction of the
		// original loan this installment represents, floored, clamped so
		// rounding drift never pushes protected_shares negative.
		if release, err = pricing.MulDivFloor(sharesNeeded, plan.TotalShares, plan.TotalAmount); err != nil {
			return "", err
		}
		if release.GreaterThan(plan.ProtectedShares) {
			release = plan.ProtectedShares
		}
		plan.ProtectedShares = plan.ProtectedShares.Sub(release)

	case bal.ProtectedShares.GreaterThanOrEqual(sharesNeeded):
		source = models.SourceProtected

		plan.ProtectedShares = plan.ProtectedShares.Sub(sharesNeeded)
		if plan.ProtectedShares.IsNegative() {
			plan.ProtectedShares = decimal.Zero
		}

	default:
		if err := e.markDefaulted(ctx, plan, number); err != nil {
			return "", err
		}

		zap.L().Warn("Plan defaulted on installment collection",
			zap.Int64("plan_id", planId),
			zap.Int("installment", number),
			zap.String("shares_needed", sharesNeeded.String()),
			zap.String("available", bal.AvailableShares.String()),
			zap.String("protected", bal.ProtectedShares.String()))

		return "", ErrInsufficientFunds
	}

	plan.Installments[number-1].Status = models.InstallmentPaid
	completed := true
	for _, slot := range plan.Installments {
		if slot.Status != models.InstallmentPaid {
			completed = false
			break
		}
	}

	if completed {
		plan.Status = models.PlanCompleted
		// Release the over-collateralization rounding left behind, then zero
		// the plan's claim on it.
		release = release.Add(plan.ProtectedShares)
		plan.ProtectedShares = decimal.Zero
	}

	_, err = e.ledger.Settle(e.engineCtx(ctx), ledger.Settlement{
		User:          plan.User,
		Shares:        sharesNeeded,
		Recipient:     plan.Merchant,
		FromProtected: source == models.SourceProtected,
		Release:       release,
		Finalize: func(tx *sql.Tx) error {
			return e.persistPayment(ctx, tx, plan, number, source, currentTs)
		},
	})
	if err != nil {
		return "", err
	}

	zap.L().Info("Installment collected",
		zap.Int64("plan_id", planId),
		zap.Int("installment", number),
		zap.String("amount", inst.Amount.String()),
		zap.String("source", string(source)),
		zap.Bool("plan_completed", completed))

	return source, nil
}

func (e *Engine) persistPayment(ctx context.Context, tx *sql.Tx, plan models.Plan, number int, source models.PaymentSource, paidAt int64) error {
	_, err := tx.ExecContext(ctx, queryUpdateInstallment,
		paidAt, string(source), string(models.InstallmentPaid), plan.Id, number)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}

	if err := e.putPlanState(ctx, tx, plan); err != nil {
		return err
	}

	return events.Record(ctx, tx, events.TopicInstallmentPaid, plan.User, map[string]interface{}{
		"plan_id":        plan.Id,
		"installment":    number,
		"amount":         plan.Installments[number-1].Amount.String(),
		"payment_source": string(source),
		"plan_status":    string(plan.Status),
	})
}

func (e *Engine) markDefaulted(ctx context.Context, plan models.Plan, number int) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, queryUpdateInstallment,
		nil, nil, string(models.InstallmentFailed), plan.Id, number)
	if err != nil {
		return fmt.Errorf("failed to mark installment failed: %w", err)
	}

	plan.Status = models.PlanDefaulted
	if err := e.putPlanState(ctx, tx, plan); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetNextDue returns the first pending installment whose due date has passed,
// or nil when nothing is collectable. Scheduling is the caller's business;
// the engine never collects on its own.
func (e *Engine) GetNextDue(ctx context.Context, planId int64) (*models.Installment, error) {
	plan, err := e.getPlan(ctx, e.db, planId)
	if err != nil {
		return nil, err
	}

	currentTs := e.now().UTC().Unix()
	for i := range plan.Installments {
		inst := plan.Installments[i]
		if inst.Status == models.InstallmentPending && inst.DueDate <= currentTs {
			return &inst, nil
		}
	}

	return nil, nil
}
