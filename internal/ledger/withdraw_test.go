package ledger

import (
	"database/sql"
	"errors"
	"testing"

	"reserve-financing-go/internal/auth"
)

func TestWithdrawAvailable(t *testing.T) {
	service, reserve, cleanup := setupLedger(t)
	defer cleanup()

	depositFor(t, service, reserve, "alice", "1000", 1000)

	result, err := service.WithdrawAvailable(userCtx("alice"), "alice", d("400"), "alice-wallet")
	if err != nil {
		t.Fatalf("WithdrawAvailable failed: %v", err)
	}

	if !result.SharesBurned.Equal(d("400")) {
		t.Errorf("Expected 400 shares burned, got %s", result.SharesBurned.String())
	}
	if !result.NewAvailableBalance.Equal(d("600")) {
		t.Errorf("Expected 600 available, got %s", result.NewAvailableBalance.String())
	}
	if len(result.AmountsReceived) != 1 || !result.AmountsReceived[0].Equal(d("400")) {
		t.Errorf("Expected 400 paid out at 1:1, got %v", result.AmountsReceived)
	}
	if len(reserve.recipients) != 1 || reserve.recipients[0] != "alice-wallet" {
		t.Errorf("Expected vault payout to alice-wallet, got %v", reserve.recipients)
	}
}

func TestWithdrawAvailable_Insufficient(t *testing.T) {
	service, reserve, cleanup := setupLedger(t)
	defer cleanup()

	depositFor(t, service, reserve, "alice", "100", 1000)

	_, err := service.WithdrawAvailable(userCtx("alice"), "alice", d("101"), "alice-wallet")
	if !errors.Is(err, ErrInsufficientAvailable) {
		t.Errorf("Expected ErrInsufficientAvailable, got %v", err)
	}
}

func TestWithdrawAvailable_Paused(t *testing.T) {
	service, reserve, cleanup := setupLedger(t)
	defer cleanup()

	depositFor(t, service, reserve, "alice", "1000", 1000)
	if err := service.Pause(adminCtx()); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	_, err := service.WithdrawAvailable(userCtx("alice"), "alice", d("100"), "alice-wallet")
	if !errors.Is(err, ErrPaused) {
		t.Errorf("Expected ErrPaused, got %v", err)
	}
}

func TestLockAndUnlockShares(t *testing.T) {
	service, reserve, cleanup := setupLedger(t)
	defer cleanup()

	depositFor(t, service, reserve, "alice", "1000", 1000)

	locked, err := service.LockShares(engineCtx(), "alice", d("300"))
	if err != nil {
		t.Fatalf("LockShares failed: %v", err)
	}
	if !locked.NewAvailable.Equal(d("700")) || !locked.NewProtected.Equal(d("300")) {
		t.Errorf("Expected (700, 300), got (%s, %s)",
			locked.NewAvailable.String(), locked.NewProtected.String())
	}

	unlocked, err := service.UnlockShares(engineCtx(), "alice", d("100"))
	if err != nil {
		t.Fatalf("UnlockShares failed: %v", err)
	}
	if !unlocked.NewAvailable.Equal(d("800")) || !unlocked.NewProtected.Equal(d("200")) {
		t.Errorf("Expected (800, 200), got (%s, %s)",
			unlocked.NewAvailable.String(), unlocked.NewProtected.String())
	}

	// Conservation: the vault was never touched by lock or unlock.
	if len(reserve.withdrawnShares) != 0 {
		t.Errorf("Expected no vault withdrawals, got %v", reserve.withdrawnShares)
	}
}

func TestLockShares_RequiresEngineIdentity(t *testing.T) {
	service, reserve, cleanup := setupLedger(t)
	defer cleanup()

	depositFor(t, service, reserve, "alice", "1000", 1000)

	// The user's own proof is not enough for a lock.
	_, err := service.LockShares(userCtx("alice"), "alice", d("300"))
	if !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
}

func TestLockShares_InsufficientAvailable(t *testing.T) {
	service, reserve, cleanup := setupLedger(t)
	defer cleanup()

	depositFor(t, service, reserve, "alice", "100", 1000)

	_, err := service.LockShares(engineCtx(), "alice", d("200"))
	if !errors.Is(err, ErrInsufficientAvailable) {
		t.Errorf("Expected ErrInsufficientAvailable, got %v", err)
	}
}

func TestUnlockShares_InsufficientProtected(t *testing.T) {
	service, reserve, cleanup := setupLedger(t)
	defer cleanup()

	depositFor(t, service, reserve, "alice", "1000", 1000)

	_, err := service.UnlockShares(engineCtx(), "alice", d("1"))
	if !errors.Is(err, ErrInsufficientProtected) {
		t.Errorf("Expected ErrInsufficientProtected, got %v", err)
	}
}

func TestPauseGating(t *testing.T) {
	service, reserve, cleanup := setupLedger(t)
	defer cleanup()

	depositFor(t, service, reserve, "alice", "1000", 1000)
	if _, err := service.LockShares(engineCtx(), "alice", d("500")); err != nil {
		t.Fatalf("LockShares failed: %v", err)
	}

	if err := service.Pause(adminCtx()); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	// New locks are gated while paused.
	if _, err := service.LockShares(engineCtx(), "alice", d("100")); !errors.Is(err, ErrPaused) {
		t.Errorf("Expected ErrPaused for lock, got %v", err)
	}

	// Unlock and the collection debits keep working so existing collateral
	// can still be released and collected.
	if _, err := service.UnlockShares(engineCtx(), "alice", d("100")); err != nil {
		t.Errorf("Expected unlock while paused to succeed, got %v", err)
	}
	if _, err := service.DebitAvailable(engineCtx(), "alice", d("100"), "merchant"); err != nil {
		t.Errorf("Expected available debit while paused to succeed, got %v", err)
	}
	if _, err := service.DebitProtected(engineCtx(), "alice", d("100"), "merchant"); err != nil {
		t.Errorf("Expected protected debit while paused to succeed, got %v", err)
	}
}

func TestDebitProtected(t *testing.T) {
	service, reserve, cleanup := setupLedger(t)
	defer cleanup()

	depositFor(t, service, reserve, "alice", "1000", 1000)
	if _, err := service.LockShares(engineCtx(), "alice", d("600")); err != nil {
		t.Fatalf("LockShares failed: %v", err)
	}

	result, err := service.DebitProtected(engineCtx(), "alice", d("250"), "merchant")
	if err != nil {
		t.Fatalf("DebitProtected failed: %v", err)
	}
	if !result.FromProtected {
		t.Error("Expected FromProtected to be set")
	}

	bal, err := service.GetBalance(engineCtx(), "alice")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !bal.AvailableShares.Equal(d("400")) || !bal.ProtectedShares.Equal(d("350")) {
		t.Errorf("Expected (400, 350), got (%s, %s)",
			bal.AvailableShares.String(), bal.ProtectedShares.String())
	}
	if reserve.recipients[len(reserve.recipients)-1] != "merchant" {
		t.Errorf("Expected vault payout to merchant, got %v", reserve.recipients)
	}
}

func TestSettle(t *testing.T) {
	service, reserve, cleanup := setupLedger(t)
	defer cleanup()

	depositFor(t, service, reserve, "alice", "1000", 1000)
	if _, err := service.LockShares(engineCtx(), "alice", d("400")); err != nil {
		t.Fatalf("LockShares failed: %v", err)
	}

	finalized := false
	result, err := service.Settle(engineCtx(), Settlement{
		User:      "alice",
		Shares:    d("300"),
		Recipient: "merchant",
		Release:   d("200"),
		Finalize: func(tx *sql.Tx) error {
			finalized = true
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if !finalized {
		t.Error("Expected the finalize step to run")
	}
	if !result.SharesBurned.Equal(d("300")) {
		t.Errorf("Expected 300 shares burned, got %s", result.SharesBurned.String())
	}

	// 300 debited from available, 200 released from protected back into it.
	bal, err := service.GetBalance(engineCtx(), "alice")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !bal.AvailableShares.Equal(d("500")) || !bal.ProtectedShares.Equal(d("200")) {
		t.Errorf("Expected (500, 200), got (%s, %s)",
			bal.AvailableShares.String(), bal.ProtectedShares.String())
	}
	if reserve.recipients[len(reserve.recipients)-1] != "merchant" {
		t.Errorf("Expected vault payout to merchant, got %v", reserve.recipients)
	}
}

func TestSettle_FinalizeFailureRollsBackDebit(t *testing.T) {
	service, reserve, cleanup := setupLedger(t)
	defer cleanup()

	depositFor(t, service, reserve, "alice", "1000", 1000)
	if _, err := service.LockShares(engineCtx(), "alice", d("400")); err != nil {
		t.Fatalf("LockShares failed: %v", err)
	}

	boom := errors.New("finalize failed")
	_, err := service.Settle(engineCtx(), Settlement{
		User:      "alice",
		Shares:    d("300"),
		Recipient: "merchant",
		Release:   d("200"),
		Finalize: func(tx *sql.Tx) error {
			return boom
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the finalize error, got %v", err)
	}

	// The debit and the release rolled back with the finalize step.
	bal, err := service.GetBalance(engineCtx(), "alice")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !bal.AvailableShares.Equal(d("600")) || !bal.ProtectedShares.Equal(d("400")) {
		t.Errorf("Expected (600, 400) untouched, got (%s, %s)",
			bal.AvailableShares.String(), bal.ProtectedShares.String())
	}
}

func TestSettle_RequiresEngineIdentity(t *testing.T) {
	service, reserve, cleanup := setupLedger(t)
	defer cleanup()

	depositFor(t, service, reserve, "alice", "1000", 1000)

	_, err := service.Settle(userCtx("alice"), Settlement{
		User:      "alice",
		Shares:    d("100"),
		Recipient: "merchant",
	})
	if !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
}

func TestSettle_InsufficientRelease(t *testing.T) {
	service, reserve, cleanup := setupLedger(t)
	defer cleanup()

	depositFor(t, service, reserve, "alice", "1000", 1000)
	if _, err := service.LockShares(engineCtx(), "alice", d("100")); err != nil {
		t.Fatalf("LockShares failed: %v", err)
	}

	_, err := service.Settle(engineCtx(), Settlement{
		User:      "alice",
		Shares:    d("300"),
		Recipient: "merchant",
		Release:   d("200"),
	})
	if !errors.Is(err, ErrInsufficientProtected) {
		t.Fatalf("Expected ErrInsufficientProtected, got %v", err)
	}

	bal, err := service.GetBalance(engineCtx(), "alice")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !bal.AvailableShares.Equal(d("900")) || !bal.ProtectedShares.Equal(d("100")) {
		t.Errorf("Expected (900, 100) untouched, got (%s, %s)",
			bal.AvailableShares.String(), bal.ProtectedShares.String())
	}
}
