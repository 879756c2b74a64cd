package vault

import (
	"context"

	"reserve-financing-go/internal/models"

	"github.com/shopspring/decimal"
)

// Reserve is the external yield vault consumed by the ledger. The vault owns
// its own investment and rebalancing logic; this interface covers only the
// four operations the financing core needs.
type Reserve interface {
	// Deposit hands amounts to the vault for the given depositor and returns
	// the accepted amounts and the number of shares minted. minAmountsOut is
	// the caller's slippage floor, enforced vault-side as well.
	Deposit(ctx context.Context, amounts, minAmountsOut []decimal.Decimal, depositor string, invest bool) (models.VaultDepositResult, error)

	// Withdraw burns shares on behalf of recipient and returns the per-asset
	// amounts paid out.
	Withdraw(ctx context.Context, shares decimal.Decimal, minAmountsOut []decimal.Decimal, recipient string) ([]decimal.Decimal, error)

	// TotalSupply returns the vault's total shares outstanding.
	TotalSupply(ctx context.Context) (decimal.Decimal, error)

	// FetchTotalManagedFunds returns the vault's per-asset managed value
	// report. Callers sum TotalAmount across entries for the total.
	FetchTotalManagedFunds(ctx context.Context) ([]models.AssetFunds, error)
}
