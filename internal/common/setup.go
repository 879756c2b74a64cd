package common

import (
	"context"
	"log"
	"strings"

	"reserve-financing-go/internal/ledger"
	"reserve-financing-go/internal/models"
	"reserve-financing-go/internal/plans"
	"reserve-financing-go/internal/vault"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also come from the shell or the container;
	// a missing .env file is fine.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	}
}

type Services struct {
	LedgerService *ledger.Service
	PlanEngine    *plans.Engine
	Reserve       *vault.Client
	Profile       *Profile
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the vault client, ledger and plan engine against
// the instance profile. The profile's vault URL takes precedence over the
// environment default so one binary can serve several instances.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	profile, err := LoadProfile(cfg.Collector.ProfileFile)
	if err != nil {
		return nil, err
	}

	vaultCfg := cfg.Vault
	if profile.VaultURL != "" {
		vaultCfg.BaseURL = profile.VaultURL
	}

	reserve, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, err
	}

	ledgerService, err := ledger.NewService(ctx, cfg.Database, reserve)
	if err != nil {
		return nil, err
	}

	planEngine, err := plans.NewEngine(ledgerService.DB(), ledgerService, profile.EngineIdentity)
	if err != nil {
		ledgerService.Close()
		return nil, err
	}

	return &Services{
		LedgerService: ledgerService,
		PlanEngine:    planEngine,
		Reserve:       reserve,
		Profile:       profile,
	}, nil
}

func (cs *Services) Close() {
	if cs.LedgerService != nil {
		cs.LedgerService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
