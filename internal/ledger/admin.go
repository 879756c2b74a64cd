package ledger

import (
	"context"
	"fmt"
	"time"

	"reserve-financing-go/internal/auth"
	"reserve-financing-go/internal/events"
	"reserve-financing-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Initialize writes the instance configuration once at setup and seeds the
// stats aggregate. There is no implicit reinitialization: a second call
// fails.
func (s *Service) Initialize(ctx context.Context, cfg models.InstanceConfig) error {
	if err := auth.Require(ctx, cfg.AdminIdentity); err != nil {
		return err
	}
	if cfg.AdminIdentity == "" || cfg.EngineIdentity == "" || cfg.Asset == "" {
		return fmt.Errorf("admin identity, engine identity and asset are all required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getInstanceConfig(ctx, s.db); err == nil {
		return ErrAlreadyInitialized
	} else if err != ErrNotInitialized {
		return err
	}

	if cfg.MinDepositInterval <= 0 {
		cfg.MinDepositInterval = DefaultMinDepositInterval
	}
	if cfg.SlippageBps.IsZero() {
		cfg.SlippageBps = decimal.New(DefaultSlippageBps, 0)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	paused := 0
	if cfg.Paused {
		paused = 1
	}
	_, err = tx.ExecContext(ctx, queryInsertInstanceConfig,
		int64(cfg.MinDepositInterval/time.Second), cfg.SlippageBps.IntPart(), paused,
		cfg.EngineIdentity, cfg.AdminIdentity, cfg.Asset)
	if err != nil {
		return fmt.Errorf("failed to write instance config: %w", err)
	}

	if _, err := tx.ExecContext(ctx, queryInsertTotalStats); err != nil {
		return fmt.Errorf("failed to seed total stats: %w", err)
	}

	err = events.Record(ctx, tx, events.TopicInitialized, cfg.AdminIdentity, map[string]interface{}{
		"engine_identity": cfg.EngineIdentity,
		"asset":           cfg.Asset,
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Instance initialized",
		zap.String("admin", cfg.AdminIdentity),
		zap.String("engine", cfg.EngineIdentity),
		zap.String("asset", cfg.Asset))

	return nil
}

// UpdateConfig replaces the deposit throttle and slippage tolerance.
func (s *Service) UpdateConfig(ctx context.Context, minDepositInterval time.Duration, slippageBps decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.getInstanceConfig(ctx, s.db)
	if err != nil {
		return err
	}
	if err := auth.Require(ctx, cfg.AdminIdentity); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, queryUpdateInstanceConfig,
		int64(minDepositInterval/time.Second), slippageBps.IntPart())
	if err != nil {
		return fmt.Errorf("failed to update instance config: %w", err)
	}

	err = events.Record(ctx, tx, events.TopicConfigUpdated, cfg.AdminIdentity, map[string]interface{}{
		"min_deposit_interval_secs": int64(minDepositInterval / time.Second),
		"slippage_tolerance_bps":    slippageBps.IntPart(),
	})
	if err != nil {
		return err
	}

	return tx.Commit()
}

// RegisterEngine records the plan engine identity authorized for lock,
// unlock and debit operations.
func (s *Service) RegisterEngine(ctx context.Context, identity string) error {
	if identity == "" {
		return fmt.Errorf("engine identity cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.getInstanceConfig(ctx, s.db)
	if err != nil {
		return err
	}
	if err := auth.Require(ctx, cfg.AdminIdentity); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, queryUpdateEngineIdentity, identity); err != nil {
		return fmt.Errorf("failed to update engine identity: %w", err)
	}

	err = events.Record(ctx, tx, events.TopicEngineRegistered, cfg.AdminIdentity, map[string]interface{}{
		"engine_identity": identity,
	})
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Pause stops deposits, user withdrawals and new locks. Unlocks and debits
// stay available so existing collateral can still be released and collected.
func (s *Service) Pause(ctx context.Context) error {
	return s.setPaused(ctx, true)
}

func (s *Service) Unpause(ctx context.Context) error {
	return s.setPaused(ctx, false)
}

func (s *Service) setPaused(ctx context.Context, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.getInstanceConfig(ctx, s.db)
	if err != nil {
		return err
	}
	if err := auth.Require(ctx, cfg.AdminIdentity); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	value := 0
	topic := events.TopicUnpaused
	if paused {
		value = 1
		topic = events.TopicPaused
	}

	if _, err := tx.ExecContext(ctx, queryUpdatePaused, value); err != nil {
		return fmt.Errorf("failed to update pause flag: %w", err)
	}

	if err := events.Record(ctx, tx, topic, cfg.AdminIdentity, map[string]interface{}{}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Pause flag updated", zap.Bool("paused", paused))
	return nil
}

// GetConfig returns the current instance configuration.
func (s *Service) GetConfig(ctx context.Context) (models.InstanceConfig, error) {
	return s.getInstanceConfig(ctx, s.db)
}

// IsPaused reports the emergency-stop flag.
func (s *Service) IsPaused(ctx context.Context) (bool, error) {
	cfg, err := s.getInstanceConfig(ctx, s.db)
	if err != nil {
		return false, err
	}
	return cfg.Paused, nil
}
