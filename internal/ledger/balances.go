package ledger

import (
	"context"
	"fmt"

	"reserve-financing-go/internal/models"
	"reserve-financing-go/internal/pricing"

	"github.com/shopspring/decimal"
)

// GetBalance returns the user's share balance record. Unknown users read as
// the zero-valued default, not an error.
func (s *Service) GetBalance(ctx context.Context, user string) (models.ShareBalance, error) {
	return s.getBalance(ctx, s.db, user)
}

// GetShareTotals returns (available, protected, total) share counts.
func (s *Service) GetShareTotals(ctx context.Context, user string) (decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	bal, err := s.getBalance(ctx, s.db, user)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}

	total, err := pricing.CheckedAdd(bal.AvailableShares, bal.ProtectedShares)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}

	return bal.AvailableShares, bal.ProtectedShares, total, nil
}

// GetValues prices the user's position in the underlying asset using a single
// read of the vault totals. The protected value is derived as total minus
// available rather than rounded independently, so the three figures always
// agree.
func (s *Service) GetValues(ctx context.Context, user string) (models.ValueBreakdown, error) {
	bal, err := s.getBalance(ctx, s.db, user)
	if err != nil {
		return models.ValueBreakdown{}, err
	}

	totalShares, err := pricing.CheckedAdd(bal.AvailableShares, bal.ProtectedShares)
	if err != nil {
		return models.ValueBreakdown{}, err
	}

	totalManaged, vaultShares, err := s.pricer.Totals(ctx)
	if err != nil {
		return models.ValueBreakdown{}, err
	}

	totalValue, err := pricing.ValueForSharesAt(totalShares, totalManaged, vaultShares)
	if err != nil {
		return models.ValueBreakdown{}, err
	}

	availableValue, err := pricing.ValueForSharesAt(bal.AvailableShares, totalManaged, vaultShares)
	if err != nil {
		return models.ValueBreakdown{}, err
	}

	return models.ValueBreakdown{
		AvailableValue: availableValue,
		ProtectedValue: totalValue.Sub(availableValue),
		TotalValue:     totalValue,
	}, nil
}

// SharesForAmount exposes the pricing conversion used to size locks and
// debits.
func (s *Service) SharesForAmount(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.pricer.SharesForAmount(ctx, amount)
}

// GetTotalStats returns the pool-wide aggregate.
func (s *Service) GetTotalStats(ctx context.Context) (models.TotalStats, error) {
	var stats models.TotalStats
	var availableStr, protectedStr, depositedStr string

	err := s.db.QueryRowContext(ctx, queryGetTotalStats).
		Scan(&availableStr, &protectedStr, &depositedStr, &stats.UniqueUsers)
	if err != nil {
		return models.TotalStats{}, fmt.Errorf("failed to get total stats: %w", err)
	}

	if stats.TotalAvailable, err = decimal.NewFromString(availableStr); err != nil {
		return models.TotalStats{}, fmt.Errorf("failed to parse stats available %q: %w", availableStr, err)
	}
	if stats.TotalProtected, err = decimal.NewFromString(protectedStr); err != nil {
		return models.TotalStats{}, fmt.Errorf("failed to parse stats protected %q: %w", protectedStr, err)
	}
	if stats.TotalDeposited, err = decimal.NewFromString(depositedStr); err != nil {
		return models.TotalStats{}, fmt.Errorf("failed to parse stats deposited %q: %w", depositedStr, err)
	}

	return stats, nil
}
