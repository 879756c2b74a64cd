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
	"errors"
	"fmt"
	"sync"
	"time"

	"reserve-financing-go/internal/events"
	"reserve-financing-go/internal/models"
	"reserve-financing-go/internal/pricing"
	"reserve-financing-go/internal/vault"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Sentinel errors for ledger operations
var (
	ErrPaused                 = errors.New("ledger is paused")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidTimestamp       = errors.New("invalid timestamp")
	ErrDepositTooFrequent     = errors.New("deposit too frequent")
	ErrSlippageExceeded       = errors.New("slippage exceeded")
	ErrInvalidVaultResponse   = errors.New("invalid vault response")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrInsufficientAvailable  = errors.New("insufficient available shares")
	ErrInsufficientProtected  = errors.New("insufficient protected shares")
	ErrNotInitialized         = errors.New("ledger not initialized")
	ErrAlreadyInitialized     = errors.New("ledger already initialized")
)

// Defaults applied at setup when no explicit configuration is given.
const (
	DefaultMinDepositInterval = 2 * time.Second
	DefaultSlippageBps        = 50
)

const bpsDivisor = 10000

var one = decimal.New(1, 0)

// Service is the share ledger: the sole mutator of user share balances.
// The plan engine moves shares only through the Lock/Unlock/Debit operations,
// never by writing balances itself.
type Service struct {
	db      *sql.DB
	reserve vault.Reserve
	pricer  *pricing.Adapter

	// Serializes mutating operations: the ledger executes one operation at a
	// time against shared state.
	mu sync.Mutex

	now func() time.Time
}

func NewService(ctx context.Context, cfg models.DatabaseConfig, reserve vault.Reserve) (*Service, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service, err := NewServiceWithDB(db, reserve)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, err
	}

	zap.L().Info("Ledger service initialized successfully")
	return service, nil
}

// NewServiceWithDB wraps an already-open database handle and ensures the
// ledger schema exists. The caller owns the handle's lifecycle.
func NewServiceWithDB(db *sql.DB, reserve vault.Reserve) (*Service, error) {
	service := &Service{
		db:      db,
		reserve: reserve,
		pricer:  pricing.NewAdapter(reserve),
		now:     time.Now,
	}
	if err := service.initSchema(); err != nil {
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}
	return service, nil
}

// DB exposes the underlying handle so the plan engine and events share one
// database file.
func (s *Service) DB() *sql.DB {
	return s.db
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema() error {
	schema := `
	-- Per-user split share positions (hot data)
	CREATE TABLE IF NOT EXISTS share_balances (
		user_id TEXT PRIMARY KEY,
		available_shares TEXT NOT NULL DEFAULT '0',
		protected_shares TEXT NOT NULL DEFAULT '0',
		total_deposited TEXT NOT NULL DEFAULT '0',
		last_deposit_ts INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Pool-wide aggregate, observability only
	CREATE TABLE IF NOT EXISTS total_stats (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		total_available TEXT NOT NULL DEFAULT '0',
		total_protected TEXT NOT NULL DEFAULT '0',
		total_deposited TEXT NOT NULL DEFAULT '0',
		unique_users INTEGER NOT NULL DEFAULT 0
	);

	-- Administrator-managed runtime settings, written once at setup
	CREATE TABLE IF NOT EXISTS instance_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		min_deposit_interval_secs INTEGER NOT NULL,
		slippage_tolerance_bps INTEGER NOT NULL,
		paused INTEGER NOT NULL DEFAULT 0,
		engine_identity TEXT NOT NULL,
		admin_identity TEXT NOT NULL,
		asset TEXT NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return events.InitSchema(s.db)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Service) getBalance(ctx context.Context, q queryer, userId string) (models.ShareBalance, error) {
	var bal models.ShareBalance
	var availableStr, protectedStr, depositedStr string

	err := q.QueryRowContext(ctx, queryGetBalance, userId).
		Scan(&bal.UserId, &availableStr, &protectedStr, &depositedStr, &bal.LastDepositTs, &bal.Version)
	if err == sql.ErrNoRows {
		// A user that has never deposited reads as the zero-valued default.
		return models.NewShareBalance(userId), nil
	}
	if err != nil {
		return models.ShareBalance{}, fmt.Errorf("failed to get balance: %w", err)
	}

	if bal.AvailableShares, err = decimal.NewFromString(availableStr); err != nil {
		return models.ShareBalance{}, fmt.Errorf("failed to parse available shares %q: %w", availableStr, err)
	}
	if bal.ProtectedShares, err = decimal.NewFromString(protectedStr); err != nil {
		return models.ShareBalance{}, fmt.Errorf("failed to parse protected shares %q: %w", protectedStr, err)
	}
	if bal.TotalDeposited, err = decimal.NewFromString(depositedStr); err != nil {
		return models.ShareBalance{}, fmt.Errorf("failed to parse total deposited %q: %w", depositedStr, err)
	}

	return bal, nil
}

// putBalance writes an updated balance row, creating it on first use. The
// version predicate makes the write a compare-and-swap: expectVersion is the
// version the caller read, and the stored row must still carry it.
func (s *Service) putBalance(ctx context.Context, q queryer, bal models.ShareBalance, expectVersion int64) error {
	if expectVersion == 0 {
		_, err := q.ExecContext(ctx, queryInsertBalance,
			bal.UserId, bal.AvailableShares.String(), bal.ProtectedShares.String(),
			bal.TotalDeposited.String(), bal.LastDepositTs, bal.Version)
		if err != nil {
			return fmt.Errorf("failed to create balance: %w", err)
		}
		return nil
	}

	result, err := q.ExecContext(ctx, queryUpdateBalance,
		bal.AvailableShares.String(), bal.ProtectedShares.String(), bal.TotalDeposited.String(),
		bal.LastDepositTs, bal.Version, bal.UserId, expectVersion)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("balance update failed - %w", ErrConcurrentModification)
	}

	return nil
}

func (s *Service) getInstanceConfig(ctx context.Context, q queryer) (models.InstanceConfig, error) {
	var cfg models.InstanceConfig
	var intervalSecs, slippageBps int64
	var paused int

	err := q.QueryRowContext(ctx, queryGetInstanceConfig).
		Scan(&intervalSecs, &slippageBps, &paused, &cfg.EngineIdentity, &cfg.AdminIdentity, &cfg.Asset)
	if err == sql.ErrNoRows {
		return models.InstanceConfig{}, ErrNotInitialized
	}
	if err != nil {
		return models.InstanceConfig{}, fmt.Errorf("failed to get instance config: %w", err)
	}

	cfg.MinDepositInterval = time.Duration(intervalSecs) * time.Second
	cfg.SlippageBps = decimal.New(slippageBps, 0)
	cfg.Paused = paused != 0

	return cfg, nil
}

// updateTotalStats applies deltas to the pool-wide aggregate inside the
// caller's transaction.
func (s *Service) updateTotalStats(ctx context.Context, q queryer, availableDelta, protectedDelta, depositedDelta decimal.Decimal, newUser bool) error {
	var availableStr, protectedStr, depositedStr string
	var users int64

	err := q.QueryRowContext(ctx, queryGetTotalStats).Scan(&availableStr, &protectedStr, &depositedStr, &users)
	if err != nil {
		return fmt.Errorf("failed to get total stats: %w", err)
	}

	available, err := decimal.NewFromString(availableStr)
	if err != nil {
		return fmt.Errorf("failed to parse stats available %q: %w", availableStr, err)
	}
	protected, err := decimal.NewFromString(protectedStr)
	if err != nil {
		return fmt.Errorf("failed to parse stats protected %q: %w", protectedStr, err)
	}
	deposited, err := decimal.NewFromString(depositedStr)
	if err != nil {
		return fmt.Errorf("failed to parse stats deposited %q: %w", depositedStr, err)
	}

	if available, err = pricing.CheckedAdd(available, availableDelta); err != nil {
		return err
	}
	if protected, err = pricing.CheckedAdd(protected, protectedDelta); err != nil {
		return err
	}
	if deposited, err = pricing.CheckedAdd(deposited, depositedDelta); err != nil {
		return err
	}
	if newUser {
		users++
	}

	_, err = q.ExecContext(ctx, queryUpdateTotalStats,
		available.String(), protected.String(), deposited.String(), users)
	if err != nil {
		return fmt.Errorf("failed to update total stats: %w", err)
	}

	return nil
}

// validAmount reports whether d is a whole number of at least one unit.
func validAmount(d decimal.Decimal) bool {
	return d.IsInteger() && !d.LessThan(one)
}
