package plans

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"reserve-financing-go/internal/auth"
	"reserve-financing-go/internal/ledger"
	"reserve-financing-go/internal/models"
	"reserve-financing-go/internal/pricing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const (
	testAdmin    = "admin"
	testEngine   = "engine"
	testUser     = "alice"
	testMerchant = "acme-store"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// stubReserve is a deterministic vault: it mints at the adapter's expected
// price and pays withdrawals at the current share price. Setting withdrawErr
// makes every withdrawal fail.
type stubReserve struct {
	totalManaged decimal.Decimal
	totalShares  decimal.Decimal
	withdrawErr  error
}

func (s *stubReserve) Deposit(ctx context.Context, amounts, minAmountsOut []decimal.Decimal, depositor string, invest bool) (models.VaultDepositResult, error) {
	minted, err := pricing.SharesForAmountAt(amounts[0], s.totalManaged, s.totalShares)
	if err != nil {
		return models.VaultDepositResult{}, err
	}
	return models.VaultDepositResult{AmountsAccepted: amounts, SharesMinted: minted}, nil
}

func (s *stubReserve) Withdraw(ctx context.Context, shares decimal.Decimal, minAmountsOut []decimal.Decimal, recipient string) ([]decimal.Decimal, error) {
	if s.withdrawErr != nil {
		return nil, s.withdrawErr
	}
	amount, err := pricing.ValueForSharesAt(shares, s.totalManaged, s.totalShares)
	if err != nil {
		return nil, err
	}
	if s.totalShares.IsZero() {
		amount = shares
	}
	return []decimal.Decimal{amount}, nil
}

func (s *stubReserve) TotalSupply(ctx context.Context) (decimal.Decimal, error) {
	return s.totalShares, nil
}

func (s *stubReserve) FetchTotalManagedFunds(ctx context.Context) ([]models.AssetFunds, error) {
	return []models.AssetFunds{{Asset: "XLM", TotalAmount: s.totalManaged}}, nil
}

type fixture struct {
	engine  *Engine
	ledger  *ledger.Service
	reserve *stubReserve
}

// setupPlans wires a plan engine over an in-memory ledger whose vault prices
// 1:1 after the user deposits the given amount. The engine clock starts at
// unix second 1000.
func setupPlans(t *testing.T, depositAmount string) (*fixture, func()) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	reserve := &stubReserve{totalManaged: decimal.Zero, totalShares: decimal.Zero}

	ledgerService, err := ledger.NewServiceWithDB(db, reserve)
	if err != nil {
		t.Fatalf("Failed to create ledger service: %v", err)
	}

	err = ledgerService.Initialize(auth.WithActor(context.Background(), testAdmin), models.InstanceConfig{
		MinDepositInterval: time.Second,
		AdminIdentity:      testAdmin,
		EngineIdentity:     testEngine,
		Asset:              "XLM",
	})
	if err != nil {
		t.Fatalf("Failed to initialize ledger: %v", err)
	}

	if depositAmount != "" {
		if _, err := ledgerService.Deposit(userCtx(), testUser, d(depositAmount)); err != nil {
			t.Fatalf("Seed deposit failed: %v", err)
		}
		reserve.totalManaged = d(depositAmount)
		reserve.totalShares = d(depositAmount)
	}

	engine, err := NewEngine(db, ledgerService, testEngine)
	if err != nil {
		t.Fatalf("Failed to create plan engine: %v", err)
	}
	setClock(engine, 1000)

	f := &fixture{engine: engine, ledger: ledgerService, reserve: reserve}
	cleanup := func() {
		db.Close()
	}

	return f, cleanup
}

func setClock(e *Engine, unixSecs int64) {
	e.now = func() time.Time {
		return time.Unix(unixSecs, 0).UTC()
	}
}

func userCtx() context.Context {
	return auth.WithActor(context.Background(), testUser)
}

func engineLedgerCtx() context.Context {
	return auth.WithActor(context.Background(), testEngine)
}

func (f *fixture) balance(t *testing.T) models.ShareBalance {
	t.Helper()
	bal, err := f.ledger.GetBalance(context.Background(), testUser)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	return bal
}
