package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"reserve-financing-go/internal/auth"
	"reserve-financing-go/internal/models"
	"reserve-financing-go/internal/pricing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const (
	testAdmin  = "admin"
	testEngine = "engine"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// stubReserve is a deterministic in-memory vault. It prices deposits exactly
// the way the adapter expects and pays withdrawals out 1:1 in shares unless
// told otherwise.
type stubReserve struct {
	totalManaged decimal.Decimal
	totalShares  decimal.Decimal

	// mintOverride, when set, replaces the computed minted share count.
	mintOverride *decimal.Decimal
	// onDeposit runs in the middle of the vault deposit call, before the
	// ledger re-reads the balance row.
	onDeposit func()

	withdrawnShares []decimal.Decimal
	recipients      []string
}

func (s *stubReserve) Deposit(ctx context.Context, amounts, minAmountsOut []decimal.Decimal, depositor string, invest bool) (models.VaultDepositResult, error) {
	if s.onDeposit != nil {
		s.onDeposit()
	}

	minted, err := pricing.SharesForAmountAt(amounts[0], s.totalManaged, s.totalShares)
	if err != nil {
		return models.VaultDepositResult{}, err
	}
	if s.mintOverride != nil {
		minted = *s.mintOverride
	}

	return models.VaultDepositResult{
		AmountsAccepted: amounts,
		SharesMinted:    minted,
	}, nil
}

func (s *stubReserve) Withdraw(ctx context.Context, shares decimal.Decimal, minAmountsOut []decimal.Decimal, recipient string) ([]decimal.Decimal, error) {
	s.withdrawnShares = append(s.withdrawnShares, shares)
	s.recipients = append(s.recipients, recipient)

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
	return []models.AssetFunds{
		{Asset: "XLM", TotalAmount: s.totalManaged},
	}, nil
}

// setupLedger returns an initialized service over an in-memory database with
// a controllable clock starting at unix second 1000.
func setupLedger(t *testing.T) (*Service, *stubReserve, func()) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// One connection so every statement sees the same in-memory database.
	db.SetMaxOpenConns(1)

	reserve := &stubReserve{
		totalManaged: decimal.Zero,
		totalShares:  decimal.Zero,
	}

	service, err := NewServiceWithDB(db, reserve)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	setClock(service, 1000)

	err = service.Initialize(adminCtx(), models.InstanceConfig{
		MinDepositInterval: 10 * time.Second,
		AdminIdentity:      testAdmin,
		EngineIdentity:     testEngine,
		Asset:              "XLM",
	})
	if err != nil {
		t.Fatalf("Failed to initialize instance: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, reserve, cleanup
}

func setClock(s *Service, unixSecs int64) {
	s.now = func() time.Time {
		return time.Unix(unixSecs, 0).UTC()
	}
}

func adminCtx() context.Context {
	return auth.WithActor(context.Background(), testAdmin)
}

func engineCtx() context.Context {
	return auth.WithActor(context.Background(), testEngine)
}

func userCtx(user string) context.Context {
	return auth.WithActor(context.Background(), user)
}

// depositFor seeds a user balance and moves the stub vault totals so the
// share price stays 1:1.
func depositFor(t *testing.T, s *Service, reserve *stubReserve, user string, amount string, atUnix int64) {
	t.Helper()

	setClock(s, atUnix)
	if _, err := s.Deposit(userCtx(user), user, d(amount)); err != nil {
		t.Fatalf("Seed deposit failed: %v", err)
	}

	reserve.totalManaged = reserve.totalManaged.Add(d(amount))
	reserve.totalShares = reserve.totalShares.Add(d(amount))
}
