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

package ledger

import (
	"context"
	"fmt"

	"reserve-financing-go/internal/auth"
	"reserve-financing-go/internal/events"
	"reserve-financing-go/internal/models"
	"reserve-financing-go/internal/pricing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Deposit moves amount of the underlying asset into the vault on behalf of
// user and credits the minted shares to the user's available pool.
//
// The vault call happens between two reads of the balance row; the version
// fence aborts the deposit if the row changed across that call, so a
// reentrant mutation is detected instead of silently overwritten.
func (s *Service) Deposit(ctx context.Context, user string, amount decimal.Decimal) (*models.DepositResult, error) {
	if err := auth.Require(ctx, user); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.getInstanceConfig(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if cfg.Paused {
		return nil, ErrPaused
	}
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}

	bal, err := s.getBalance(ctx, s.db, user)
	if err != nil {
		return nil, err
	}
	isNewUser := bal.Version == 0
	originalVersion := bal.Version

	currentTs := s.now().UTC().Unix()
	if bal.LastDepositTs > 0 {
		if currentTs < bal.LastDepositTs {
			return nil, ErrInvalidTimestamp
		}
		if currentTs-bal.LastDepositTs < int64(cfg.MinDepositInterval.Seconds()) {
			return nil, ErrDepositTooFrequent
		}
	}

	totalManaged, totalShares, err := s.pricer.Totals(ctx)
	if err != nil {
		return nil, err
	}

	expectedShares, err := pricing.SharesForAmountAt(amount, totalManaged, totalShares)
	if err != nil {
		return nil, err
	}

	// Floor of acceptable minted shares: expected minus the configured
	// slippage tolerance in basis points.
	slippage, err := pricing.MulDivFloor(expectedShares, cfg.SlippageBps, decimal.New(bpsDivisor, 0))
	if err != nil {
		return nil, err
	}
	minSharesOut, err := pricing.CheckedSub(expectedShares, slippage)
	if err != nil {
		return nil, err
	}

	result, err := s.reserve.Deposit(ctx,
		[]decimal.Decimal{amount}, []decimal.Decimal{minSharesOut}, user, true)
	if err != nil {
		return nil, fmt.Errorf("vault deposit failed: %w", err)
	}

	actualShares := result.SharesMinted
	if actualShares.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidVaultResponse
	}
	if actualShares.LessThan(minSharesOut) {
		return nil, ErrSlippageExceeded
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.getBalance(ctx, tx, user)
	if err != nil {
		return nil, err
	}
	if current.Version != originalVersion {
		return nil, ErrConcurrentModification
	}

	if current.AvailableShares, err = pricing.CheckedAdd(current.AvailableShares, actualShares); err != nil {
		return nil, err
	}
	if current.TotalDeposited, err = pricing.CheckedAdd(current.TotalDeposited, amount); err != nil {
		return nil, err
	}
	current.LastDepositTs = currentTs
	current.Version++

	if err := s.putBalance(ctx, tx, current, originalVersion); err != nil {
		return nil, err
	}

	if err := s.updateTotalStats(ctx, tx, actualShares, decimal.Zero, amount, isNewUser); err != nil {
		return nil, err
	}

	err = events.Record(ctx, tx, events.TopicDeposit, user, map[string]interface{}{
		"amount":    amount.String(),
		"shares":    actualShares.String(),
		"timestamp": currentTs,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Deposit processed successfully",
		zap.String("user", user),
		zap.String("amount", amount.String()),
		zap.String("shares_minted", actualShares.String()),
		zap.String("new_available", current.AvailableShares.String()))

	return &models.DepositResult{
		SharesMinted:        actualShares,
		AmountDeposited:     amount,
		NewAvailableBalance: current.AvailableShares,
		Timestamp:           currentTs,
	}, nil
}
