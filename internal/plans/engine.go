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
	"errors"
	"fmt"
	"sync"
	"time"

	"reserve-financing-go/internal/auth"
	"reserve-financing-go/internal/ledger"
	"reserve-financing-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors for plan operations
var (
	ErrInvalidAmount       = errors.New("invalid plan amount")
	ErrInvalidInstallments = errors.New("installments count must be between 1 and 12")
	ErrDatesMismatch       = errors.New("due dates count does not match installments count")
	ErrInvalidDueDate      = errors.New("due date must be in the future")
	ErrInvalidShares       = errors.New("invalid share computation")
	ErrPlanNotFound        = errors.New("plan not found")
	ErrInstallmentNotFound = errors.New("installment not found")
	ErrAlreadyPaid         = errors.New("installment already settled")
	ErrNotDueYet           = errors.New("installment not due yet")
	ErrInsufficientFunds   = errors.New("insufficient funds in both pools")
)

const (
	MinInstallments = 1
	MaxInstallments = 12
)

const planIdCounter = "plan_id"

// CollateralLedger is the slice of the share ledger the plan engine depends
// on. Satisfied by *ledger.Service. The engine never mutates share balances
// directly; every share movement goes through these operations.
type CollateralLedger interface {
	GetBalance(ctx context.Context, user string) (models.ShareBalance, error)
	GetValues(ctx context.Context, user string) (models.ValueBreakdown, error)
	SharesForAmount(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error)
	LockShares(ctx context.Context, user string, shares decimal.Decimal) (*models.LockResult, error)
	UnlockShares(ctx context.Context, user string, shares decimal.Decimal) (*models.LockResult, error)
	Settle(ctx context.Context, req ledger.Settlement) (*models.WithdrawResult, error)
}

// Engine owns installment plan records and their state machine. Share
// movements are delegated to the ledger under the engine's registered
// identity.
type Engine struct {
	db       *sql.DB
	ledger   CollateralLedger
	identity string

	mu sync.Mutex

	now func() time.Time
}

// NewEngine wires the plan engine against an open database handle and the
// ledger. identity must match the engine identity registered with the ledger
// or every lock/unlock/debit call will be rejected.
func NewEngine(db *sql.DB, ledger CollateralLedger, identity string) (*Engine, error) {
	if identity == "" {
		return nil, fmt.Errorf("engine identity cannot be empty")
	}

	e := &Engine{
		db:       db,
		ledger:   ledger,
		identity: identity,
		now:      time.Now,
	}
	if err := e.initSchema(); err != nil {
		return nil, fmt.Errorf("unable to initialize plan schema: %w", err)
	}

	return e, nil
}

func (e *Engine) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS plans (
		id INTEGER PRIMARY KEY,
		user_id TEXT NOT NULL,
		merchant TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		total_shares TEXT NOT NULL,
		protected_shares TEXT NOT NULL,
		installments_count INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_plans_user_id ON plans(user_id);
	CREATE INDEX IF NOT EXISTS idx_plans_status ON plans(status);

	CREATE TABLE IF NOT EXISTS installments (
		plan_id INTEGER NOT NULL,
		number INTEGER NOT NULL,
		amount TEXT NOT NULL,
		due_date INTEGER NOT NULL,
		paid_at INTEGER,
		payment_source TEXT,
		status TEXT NOT NULL,
		PRIMARY KEY (plan_id, number)
	);

	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	`

	_, err := e.db.Exec(schema)
	return err
}

// engineCtx stamps the engine's own identity proof onto the context so the
// ledger accepts the delegated lock/unlock/debit calls.
func (e *Engine) engineCtx(ctx context.Context) context.Context {
	return auth.WithActor(ctx, e.identity)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (e *Engine) getPlan(ctx context.Context, q queryer, planId int64) (models.Plan, error) {
	var plan models.Plan
	var totalAmountStr, totalSharesStr, protectedStr string

	err := q.QueryRowContext(ctx, queryGetPlan, planId).Scan(
		&plan.Id, &plan.User, &plan.Merchant, &totalAmountStr, &totalSharesStr,
		&protectedStr, &plan.InstallmentsCount, &plan.Status, &plan.CreatedAt)
	if err == sql.ErrNoRows {
		return models.Plan{}, ErrPlanNotFound
	}
	if err != nil {
		return models.Plan{}, fmt.Errorf("failed to get plan: %w", err)
	}

	if plan.TotalAmount, err = decimal.NewFromString(totalAmountStr); err != nil {
		return models.Plan{}, fmt.Errorf("failed to parse plan total amount %q: %w", totalAmountStr, err)
	}
	if plan.TotalShares, err = decimal.NewFromString(totalSharesStr); err != nil {
		return models.Plan{}, fmt.Errorf("failed to parse plan total shares %q: %w", totalSharesStr, err)
	}
	if plan.ProtectedShares, err = decimal.NewFromString(protectedStr); err != nil {
		return models.Plan{}, fmt.Errorf("failed to parse plan protected shares %q: %w", protectedStr, err)
	}

	if plan.Installments, err = e.getInstallments(ctx, q, planId); err != nil {
		return models.Plan{}, err
	}

	return plan, nil
}

func (e *Engine) getInstallments(ctx context.Context, q queryer, planId int64) ([]models.Installment, error) {
	rows, err := q.QueryContext(ctx, queryGetInstallments, planId)
	if err != nil {
		return nil, fmt.Errorf("failed to get installments: %w", err)
	}
	defer rows.Close()

	var installments []models.Installment
	for rows.Next() {
		var inst models.Installment
		var amountStr string
		var paidAt sql.NullInt64
		var source sql.NullString

		if err := rows.Scan(&inst.Number, &amountStr, &inst.DueDate, &paidAt, &source, &inst.Status); err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		if inst.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("failed to parse installment amount %q: %w", amountStr, err)
		}
		if paidAt.Valid {
			v := paidAt.Int64
			inst.PaidAt = &v
		}
		if source.Valid {
			s := models.PaymentSource(source.String)
			inst.PaymentSource = &s
		}

		installments = append(installments, inst)
	}

	return installments, rows.Err()
}

func (e *Engine) putPlanState(ctx context.Context, q queryer, plan models.Plan) error {
	_, err := q.ExecContext(ctx, queryUpdatePlan, plan.ProtectedShares.String(), string(plan.Status), plan.Id)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	return nil
}

func (e *Engine) nextPlanId(ctx context.Context, q queryer) (int64, error) {
	if _, err := q.ExecContext(ctx, queryNextCounter, planIdCounter); err != nil {
		return 0, fmt.Errorf("failed to advance plan counter: %w", err)
	}

	var id int64
	if err := q.QueryRowContext(ctx, queryGetCounter, planIdCounter).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read plan counter: %w", err)
	}

	return id, nil
}
