package models

import (
	"github.com/shopspring/decimal"
)

// AssetFunds is one entry of the vault's managed-funds report. The total
// managed value of the vault is the sum of TotalAmount across all entries.
type AssetFunds struct {
	Asset       string          `json:"asset"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// VaultDepositResult is the vault's response to a deposit call.
type VaultDepositResult struct {
	AmountsAccepted []decimal.Decimal `json:"amounts_accepted"`
	SharesMinted    decimal.Decimal   `json:"shares_minted"`
}
