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
	"database/sql"
	"fmt"

	"reserve-financing-go/internal/auth"
	"reserve-financing-go/internal/events"
	"reserve-financing-go/internal/models"
	"reserve-financing-go/internal/pricing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WithdrawAvailable burns shares from the user's available pool and pays the
// vault's proceeds out to the given recipient. User-authorized and gated by
// the pause flag.
func (s *Service) WithdrawAvailable(ctx context.Context, user string, shares decimal.Decimal, to string) (*models.WithdrawResult, error) {
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

	return s.withdrawInternal(ctx, user, shares, to, false)
}

// DebitAvailable is the plan-engine variant of WithdrawAvailable, used during
// installment collection. Not pause-gated: collection keeps working through
// an emergency stop.
func (s *Service) DebitAvailable(ctx context.Context, user string, shares decimal.Decimal, to string) (*models.WithdrawResult, error) {
	if err := s.requireEngine(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withdrawInternal(ctx, user, shares, to, false)
}

// DebitProtected burns shares from the user's protected pool. Plan-engine
// authorized; the collection fallback path.
func (s *Service) DebitProtected(ctx context.Context, user string, shares decimal.Decimal, to string) (*models.WithdrawResult, error) {
	if err := s.requireEngine(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withdrawInternal(ctx, user, shares, to, true)
}

// LockShares moves shares from available to protected without touching the
// vault. Plan-engine authorized, pause-gated.
func (s *Service) LockShares(ctx context.Context, user string, shares decimal.Decimal) (*models.LockResult, error) {
	if err := s.requireEngine(ctx); err != nil {
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

	return s.moveShares(ctx, user, shares, true)
}

// UnlockShares releases protected shares back to the available pool. Stays
// usable while paused so existing collateral can be freed.
func (s *Service) UnlockShares(ctx context.Context, user string, shares decimal.Decimal) (*models.LockResult, error) {
	if err := s.requireEngine(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.moveShares(ctx, user, shares, false)
}

// Settlement is one collection debit settled against the ledger: Shares
// burned from one of the user's pools and paid out to Recipient, an optional
// Release of protected shares back to the available pool, and the caller's
// own rows written through Finalize. The whole settlement commits in a
// single transaction, so a failure at any step leaves every balance, pool
// and caller-side row untouched.
type Settlement struct {
	User          string
	Shares        decimal.Decimal
	Recipient     string
	FromProtected bool
	Release       decimal.Decimal
	Finalize      func(tx *sql.Tx) error
}

// Settle executes a collection settlement atomically. Plan-engine authorized;
// like the debit variants it is not pause-gated.
func (s *Service) Settle(ctx context.Context, req Settlement) (*models.WithdrawResult, error) {
	if err := s.requireEngine(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !validAmount(req.Shares) {
		return nil, ErrInvalidAmount
	}
	if req.Release.IsNegative() || !req.Release.IsInteger() {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	bal, err := s.getBalance(ctx, tx, req.User)
	if err != nil {
		return nil, err
	}
	originalVersion := bal.Version

	if req.FromProtected {
		if bal.ProtectedShares.LessThan(req.Shares) {
			return nil, ErrInsufficientProtected
		}
		if bal.ProtectedShares, err = pricing.CheckedSub(bal.ProtectedShares, req.Shares); err != nil {
			return nil, err
		}
	} else {
		if bal.AvailableShares.LessThan(req.Shares) {
			return nil, ErrInsufficientAvailable
		}
		if bal.AvailableShares, err = pricing.CheckedSub(bal.AvailableShares, req.Shares); err != nil {
			return nil, err
		}
	}

	if req.Release.GreaterThan(decimal.Zero) {
		if bal.ProtectedShares.LessThan(req.Release) {
			return nil, ErrInsufficientProtected
		}
		bal.ProtectedShares = bal.ProtectedShares.Sub(req.Release)
		if bal.AvailableShares, err = pricing.CheckedAdd(bal.AvailableShares, req.Release); err != nil {
			return nil, err
		}
	}
	bal.Version++

	if err := s.putBalance(ctx, tx, bal, originalVersion); err != nil {
		return nil, err
	}

	// The recipient absorbs vault-side rounding: zero minimum out.
	amounts, err := s.reserve.Withdraw(ctx, req.Shares, []decimal.Decimal{decimal.Zero}, req.Recipient)
	if err != nil {
		return nil, fmt.Errorf("vault withdrawal failed: %w", err)
	}

	availableDelta, protectedDelta := req.Shares.Neg().Add(req.Release), req.Release.Neg()
	if req.FromProtected {
		availableDelta = req.Release
		protectedDelta = req.Shares.Add(req.Release).Neg()
	}
	if err := s.updateTotalStats(ctx, tx, availableDelta, protectedDelta, decimal.Zero, false); err != nil {
		return nil, err
	}

	amountStrs := make([]string, len(amounts))
	for i, a := range amounts {
		amountStrs[i] = a.String()
	}
	err = events.Record(ctx, tx, events.TopicWithdraw, req.User, map[string]interface{}{
		"to":             req.Recipient,
		"shares":         req.Shares.String(),
		"amounts":        amountStrs,
		"from_protected": req.FromProtected,
	})
	if err != nil {
		return nil, err
	}
	if req.Release.GreaterThan(decimal.Zero) {
		err = events.Record(ctx, tx, events.TopicUnlock, req.User, map[string]interface{}{
			"shares": req.Release.String(),
		})
		if err != nil {
			return nil, err
		}
	}

	if req.Finalize != nil {
		if err := req.Finalize(tx); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Settlement processed successfully",
		zap.String("user", req.User),
		zap.String("to", req.Recipient),
		zap.String("shares", req.Shares.String()),
		zap.String("released", req.Release.String()),
		zap.Bool("from_protected", req.FromProtected))

	return &models.WithdrawResult{
		SharesBurned:        req.Shares,
		AmountsReceived:     amounts,
		NewAvailableBalance: bal.AvailableShares,
		FromProtected:       req.FromProtected,
	}, nil
}

func (s *Service) requireEngine(ctx context.Context) error {
	cfg, err := s.getInstanceConfig(ctx, s.db)
	if err != nil {
		return err
	}
	return auth.Require(ctx, cfg.EngineIdentity)
}

func (s *Service) withdrawInternal(ctx context.Context, user string, shares decimal.Decimal, to string, fromProtected bool) (*models.WithdrawResult, error) {
	if !validAmount(shares) {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	bal, err := s.getBalance(ctx, tx, user)
	if err != nil {
		return nil, err
	}
	originalVersion := bal.Version

	if fromProtected {
		if bal.ProtectedShares.LessThan(shares) {
			return nil, ErrInsufficientProtected
		}
		if bal.ProtectedShares, err = pricing.CheckedSub(bal.ProtectedShares, shares); err != nil {
			return nil, err
		}
	} else {
		if bal.AvailableShares.LessThan(shares) {
			return nil, ErrInsufficientAvailable
		}
		if bal.AvailableShares, err = pricing.CheckedSub(bal.AvailableShares, shares); err != nil {
			return nil, err
		}
	}
	bal.Version++

	if err := s.putBalance(ctx, tx, bal, originalVersion); err != nil {
		return nil, err
	}

	// The recipient absorbs vault-side rounding: zero minimum out.
	amounts, err := s.reserve.Withdraw(ctx, shares, []decimal.Decimal{decimal.Zero}, to)
	if err != nil {
		return nil, fmt.Errorf("vault withdrawal failed: %w", err)
	}

	if fromProtected {
		err = s.updateTotalStats(ctx, tx, decimal.Zero, shares.Neg(), decimal.Zero, false)
	} else {
		err = s.updateTotalStats(ctx, tx, shares.Neg(), decimal.Zero, decimal.Zero, false)
	}
	if err != nil {
		return nil, err
	}

	amountStrs := make([]string, len(amounts))
	for i, a := range amounts {
		amountStrs[i] = a.String()
	}
	err = events.Record(ctx, tx, events.TopicWithdraw, user, map[string]interface{}{
		"to":             to,
		"shares":         shares.String(),
		"amounts":        amountStrs,
		"from_protected": fromProtected,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Withdrawal processed successfully",
		zap.String("user", user),
		zap.String("to", to),
		zap.String("shares", shares.String()),
		zap.Bool("from_protected", fromProtected))

	return &models.WithdrawResult{
		SharesBurned:        shares,
		AmountsReceived:     amounts,
		NewAvailableBalance: bal.AvailableShares,
		FromProtected:       fromProtected,
	}, nil
}

func (s *Service) moveShares(ctx context.Context, user string, shares decimal.Decimal, toProtected bool) (*models.LockResult, error) {
	if !validAmount(shares) {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	bal, err := s.getBalance(ctx, tx, user)
	if err != nil {
		return nil, err
	}
	originalVersion := bal.Version

	if toProtected {
		if bal.AvailableShares.LessThan(shares) {
			return nil, ErrInsufficientAvailable
		}
		bal.AvailableShares = bal.AvailableShares.Sub(shares)
		if bal.ProtectedShares, err = pricing.CheckedAdd(bal.ProtectedShares, shares); err != nil {
			return nil, err
		}
	} else {
		if bal.ProtectedShares.LessThan(shares) {
			return nil, ErrInsufficientProtected
		}
		bal.ProtectedShares = bal.ProtectedShares.Sub(shares)
		if bal.AvailableShares, err = pricing.CheckedAdd(bal.AvailableShares, shares); err != nil {
			return nil, err
		}
	}
	bal.Version++

	if err := s.putBalance(ctx, tx, bal, originalVersion); err != nil {
		return nil, err
	}

	topic := events.TopicUnlock
	availableDelta, protectedDelta := shares, shares.Neg()
	if toProtected {
		topic = events.TopicLock
		availableDelta, protectedDelta = shares.Neg(), shares
	}

	if err := s.updateTotalStats(ctx, tx, availableDelta, protectedDelta, decimal.Zero, false); err != nil {
		return nil, err
	}

	err = events.Record(ctx, tx, topic, user, map[string]interface{}{
		"shares": shares.String(),
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Shares moved between pools",
		zap.String("user", user),
		zap.String("shares", shares.String()),
		zap.Bool("locked", toProtected))

	return &models.LockResult{
		SharesMoved:  shares,
		NewAvailable: bal.AvailableShares,
		NewProtected: bal.ProtectedShares,
	}, nil
}
