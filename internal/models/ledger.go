package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShareBalance represents a user's split share position in the reserve.
// Shares are whole-number quantities; both pools are always non-negative.
type ShareBalance struct {
	UserId          string          `db:"user_id"`
	AvailableShares decimal.Decimal `db:"available_shares"`
	ProtectedShares decimal.Decimal `db:"protected_shares"`
	TotalDeposited  decimal.Decimal `db:"total_deposited"`
	LastDepositTs   int64           `db:"last_deposit_ts"`
	Version         int64           `db:"version"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// NewShareBalance returns the zero-valued balance for a user that has never
// deposited. Reading an unknown user yields this, not an error.
func NewShareBalance(userId string) ShareBalance {
	return ShareBalance{
		UserId:          userId,
		AvailableShares: decimal.Zero,
		ProtectedShares: decimal.Zero,
		TotalDeposited:  decimal.Zero,
	}
}

// TotalStats aggregates pool-wide numbers. It is maintained as a best-effort
// side aggregate for observability and is never consumed by business logic.
type TotalStats struct {
	TotalAvailable decimal.Decimal `db:"total_available"`
	TotalProtected decimal.Decimal `db:"total_protected"`
	TotalDeposited decimal.Decimal `db:"total_deposited"`
	UniqueUsers    int64           `db:"unique_users"`
}

// InstanceConfig holds the administrator-mutable runtime settings written once
// at setup.
type InstanceConfig struct {
	MinDepositInterval time.Duration
	SlippageBps        decimal.Decimal
	Paused             bool
	EngineIdentity     string
	AdminIdentity      string
	Asset              string
}

// DepositResult reports the outcome of a reserve deposit.
type DepositResult struct {
	SharesMinted        decimal.Decimal
	AmountDeposited     decimal.Decimal
	NewAvailableBalance decimal.Decimal
	Timestamp           int64
}

// WithdrawResult reports the outcome of a share withdrawal or debit.
type WithdrawResult struct {
	SharesBurned        decimal.Decimal
	AmountsReceived     []decimal.Decimal
	NewAvailableBalance decimal.Decimal
	FromProtected       bool
}

// LockResult reports the pool split after a lock or unlock.
type LockResult struct {
	SharesMoved  decimal.Decimal
	NewAvailable decimal.Decimal
	NewProtected decimal.Decimal
}

// ValueBreakdown is a user's position priced in the underlying asset.
// ProtectedValue is derived as TotalValue - AvailableValue so the three fields
// are always mutually consistent despite floor rounding.
type ValueBreakdown struct {
	AvailableValue decimal.Decimal
	ProtectedValue decimal.Decimal
	TotalValue     decimal.Decimal
}
