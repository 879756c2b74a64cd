package plans

import (
	"context"
	"database/sql"
	"fmt"

	"reserve-financing-go/internal/models"

	"github.com/shopspring/decimal"
)

// GetPlan returns the plan with its full installment schedule. Unknown ids
// are ErrPlanNotFound, never a zero value.
func (e *Engine) GetPlan(ctx context.Context, planId int64) (models.Plan, error) {
	return e.getPlan(ctx, e.db, planId)
}

// GetUserPlans returns all of the user's plans in creation order.
func (e *Engine) GetUserPlans(ctx context.Context, user string) ([]models.Plan, error) {
	return e.listPlans(ctx, queryGetUserPlans, user)
}

// ListActivePlans returns every plan still in the Active state; the
// collection worker scans these each tick.
func (e *Engine) ListActivePlans(ctx context.Context) ([]models.Plan, error) {
	return e.listPlans(ctx, queryListActivePlans, string(models.PlanActive))
}

// GetPlanSummary pairs a plan with the live value of the owning user's
// position.
func (e *Engine) GetPlanSummary(ctx context.Context, planId int64) (models.PlanSummary, error) {
	plan, err := e.getPlan(ctx, e.db, planId)
	if err != nil {
		return models.PlanSummary{}, err
	}

	values, err := e.ledger.GetValues(ctx, plan.User)
	if err != nil {
		return models.PlanSummary{}, err
	}

	return models.PlanSummary{
		Plan:           plan,
		AvailableValue: values.AvailableValue,
		ProtectedValue: values.ProtectedValue,
	}, nil
}

func (e *Engine) listPlans(ctx context.Context, query string, arg interface{}) ([]models.Plan, error) {
	rows, err := e.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}

	plans, err := scanPlans(rows)
	if err != nil {
		return nil, err
	}

	for i := range plans {
		if plans[i].Installments, err = e.getInstallments(ctx, e.db, plans[i].Id); err != nil {
			return nil, err
		}
	}

	return plans, nil
}

func scanPlans(rows *sql.Rows) ([]models.Plan, error) {
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		var plan models.Plan
		var totalAmountStr, totalSharesStr, protectedStr string

		err := rows.Scan(&plan.Id, &plan.User, &plan.Merchant, &totalAmountStr,
			&totalSharesStr, &protectedStr, &plan.InstallmentsCount, &plan.Status, &plan.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}

		if plan.TotalAmount, err = decimal.NewFromString(totalAmountStr); err != nil {
			return nil, fmt.Errorf("failed to parse plan total amount %q: %w", totalAmountStr, err)
		}
		if plan.TotalShares, err = decimal.NewFromString(totalSharesStr); err != nil {
			return nil, fmt.Errorf("failed to parse plan total shares %q: %w", totalSharesStr, err)
		}
		if plan.ProtectedShares, err = decimal.NewFromString(protectedStr); err != nil {
			return nil, fmt.Errorf("failed to parse plan protected shares %q: %w", protectedStr, err)
		}

		plans = append(plans, plan)
	}

	return plans, rows.Err()
}
