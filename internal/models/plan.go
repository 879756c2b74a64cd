package models

import (
	"github.com/shopspring/decimal"
)

// PlanStatus is the lifecycle state of an installment plan.
// Active -> Completed and Active -> Defaulted are the only transitions;
// Completed and Defaulted are terminal.
type PlanStatus string

const (
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
	PlanDefaulted PlanStatus = "defaulted"
)

// InstallmentStatus is the state of a single installment slot.
// Paid and Failed are terminal; a slot never reverts to Pending.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
	InstallmentFailed  InstallmentStatus = "failed"
)

// PaymentSource tags which pool funded a paid installment.
type PaymentSource string

const (
	SourceAvailable PaymentSource = "available"
	SourceProtected PaymentSource = "protected"
)

// Installment is one slot of a plan's amortization schedule.
// Number is 1-based; the slot at index i has Number i+1.
type Installment struct {
	Number        int               `db:"number"`
	Amount        decimal.Decimal   `db:"amount"`
	DueDate       int64             `db:"due_date"`
	PaidAt        *int64            `db:"paid_at"`
	PaymentSource *PaymentSource    `db:"payment_source"`
	Status        InstallmentStatus `db:"status"`
}

// Plan is an installment financing plan backed by locked reserve shares.
//
// TotalShares is fixed at creation. ProtectedShares starts equal to
// TotalShares and only ever decreases, reaching zero on completion.
type Plan struct {
	Id                int64           `db:"id"`
	User              string          `db:"user_id"`
	Merchant          string          `db:"merchant"`
	TotalAmount       decimal.Decimal `db:"total_amount"`
	TotalShares       decimal.Decimal `db:"total_shares"`
	ProtectedShares   decimal.Decimal `db:"protected_shares"`
	InstallmentsCount int             `db:"installments_count"`
	Installments      []Installment
	Status            PlanStatus `db:"status"`
	CreatedAt         int64      `db:"created_at"`
}

// PlanSummary combines a plan with the live value of the user's position.
type PlanSummary struct {
	Plan           Plan
	AvailableValue decimal.Decimal
	ProtectedValue decimal.Decimal
}
