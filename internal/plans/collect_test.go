package plans

import (
	"context"
	"errors"
	"testing"

	"reserve-financing-go/internal/models"
)

// createTestPlan builds the reference scenario: a 10000 deposit at 1:1
// pricing, then a 3000 plan over three installments due at 2000, 3000 and
// 4000, created at engine time 1000.
func createTestPlan(t *testing.T, f *fixture) int64 {
	t.Helper()

	planId, err := f.engine.CreatePlan(userCtx(), testUser, testMerchant, d("3000"), 3, []int64{2000, 3000, 4000})
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	return planId
}

func TestCollectInstallment_NotDueYet(t *testing.T) {
	f, cleanup := setupPlans(t, "10000")
	defer cleanup()
	planId := createTestPlan(t, f)

	setClock(f.engine, 1500)
	_, err := f.engine.CollectInstallment(userCtx(), planId, 1)
	if !errors.Is(err, ErrNotDueYet) {
		t.Errorf("Expected ErrNotDueYet, got %v", err)
	}
}

func TestCollectInstallment_FromAvailable(t *testing.T) {
	f, cleanup := setupPlans(t, "10000")
	defer cleanup()
	planId := createTestPlan(t, f)

	setClock(f.engine, 2000)
	source, err := f.engine.CollectInstallment(userCtx(), planId, 1)
	if err != nil {
		t.Fatalf("CollectInstallment failed: %v", err)
	}
	if source != models.SourceAvailable {
		t.Errorf("Expected payment from available pool, got %s", source)
	}

	// 1000 debited from available, then floor(1000*3000/3000) = 1000 of
	// collateral released back to it.
	bal := f.balance(t)
	if !bal.AvailableShares.Equal(d("7000")) || !bal.ProtectedShares.Equal(d("2000")) {
		t.Errorf("Expected (7000, 2000), got (%s, %s)",
			bal.AvailableShares.String(), bal.ProtectedShares.String())
	}

	plan, err := f.engine.GetPlan(context.Background(), planId)
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if !plan.ProtectedShares.Equal(d("2000")) {
		t.Errorf("Expected plan protected shares 2000, got %s", plan.ProtectedShares.String())
	}

	inst := plan.Installments[0]
	if inst.Status != models.InstallmentPaid {
		t.Errorf("Expected installment Paid, got %s", inst.Status)
	}
	if inst.PaidAt == nil || *inst.PaidAt != 2000 {
		t.Errorf("Expected paid_at 2000, got %v", inst.PaidAt)
	}
	if inst.PaymentSource == nil || *inst.PaymentSource != models.SourceAvailable {
		t.Errorf("Expected payment source available, got %v", inst.PaymentSource)
	}
}

func TestCollectInstallment_AlreadyPaid(t *testing.T) {
	f, cleanup := setupPlans(t, "10000")
	defer cleanup()
	planId := createTestPlan(t, f)

	setClock(f.engine, 2000)
	if _, err := f.engine.CollectInstallment(userCtx(), planId, 1); err != nil {
		t.Fatalf("CollectInstallment failed: %v", err)
	}

	_, err := f.engine.CollectInstallment(userCtx(), planId, 1)
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Errorf("Expected ErrAlreadyPaid, got %v", err)
	}
}

func TestCollectInstallment_InstallmentNotFound(t *testing.T) {
	f, cleanup := setupPlans(t, "10000")
	defer cleanup()
	planId := createTestPlan(t, f)

	for _, number := range []int{0, 4, -1} {
		_, err := f.engine.CollectInstallment(userCtx(), planId, number)
		if !errors.Is(err, ErrInstallmentNotFound) {
			t.Errorf("Expected ErrInstallmentNotFound for %d, got %v", number, err)
		}
	}
}

func TestCollectInstallment_ProtectedFallback(t *testing.T) {
	f, cleanup := setupPlans(t, "10000")
	defer cleanup()
	planId := createTestPlan(t, f)

	// Drain the available pool below the 1000 shares the installment needs.
	if _, err := f.ledger.WithdrawAvailable(userCtx(), testUser, d("6500"), "alice-wallet"); err != nil {
		t.Fatalf("WithdrawAvailable failed: %v", err)
	}

	setClock(f.engine, 2000)
	source, err := f.engine.CollectInstallment(userCtx(), planId, 1)
	if err != nil {
		t.Fatalf("CollectInstallment failed: %v", err)
	}
	if source != models.SourceProtected {
		t.Errorf("Expected payment from protected pool, got %s", source)
	}

	// The protected pool is reduced by exactly the shares needed, not
	// proportionally.
	bal := f.balance(t)
	if !bal.AvailableShares.Equal(d("500")) || !bal.ProtectedShares.Equal(d("2000")) {
		t.Errorf("Expected (500, 2000), got (%s, %s)",
			bal.AvailableShares.String(), bal.ProtectedShares.String())
	}

	plan, err := f.engine.GetPlan(context.Background(), planId)
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if !plan.ProtectedShares.Equal(d("2000")) {
		t.Errorf("Expected plan protected shares 2000, got %s", plan.ProtectedShares.String())
	}
}

func TestCollectInstallment_Default(t *testing.T) {
	f, cleanup := setupPlans(t, "10000")
	defer cleanup()
	planId := createTestPlan(t, f)

	// Drain both pools below the 1000 shares needed: withdraw most of the
	// available pool and debit the locked collateral down to 500.
	if _, err := f.ledger.WithdrawAvailable(userCtx(), testUser, d("6900"), "alice-wallet"); err != nil {
		t.Fatalf("WithdrawAvailable failed: %v", err)
	}
	if _, err := f.ledger.DebitProtected(engineLedgerCtx(), testUser, d("2500"), "elsewhere"); err != nil {
		t.Fatalf("DebitProtected failed: %v", err)
	}

	setClock(f.engine, 2000)
	_, err := f.engine.CollectInstallment(userCtx(), planId, 1)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}

	// The default transition was committed despite the error.
	plan, err := f.engine.GetPlan(context.Background(), planId)
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if plan.Status != models.PlanDefaulted {
		t.Errorf("Expected Defaulted plan, got %s", plan.Status)
	}
	if plan.Installments[0].Status != models.InstallmentFailed {
		t.Errorf("Expected Failed installment, got %s", plan.Installments[0].Status)
	}

	// The failed slot is terminal: another attempt is rejected, not retried.
	_, err = f.engine.CollectInstallment(userCtx(), planId, 1)
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Errorf("Expected ErrAlreadyPaid on retry, got %v", err)
	}
}

func TestCollectInstallment_FailureMidCollectionChargesNothing(t *testing.T) {
	f, cleanup := setupPlans(t, "10000")
	defer cleanup()
	planId := createTestPlan(t, f)

	// The vault rejects the payout: the whole collection must roll back,
	// leaving the installment collectable and the user uncharged.
	f.reserve.withdrawErr = errors.New("vault unavailable")

	setClock(f.engine, 2000)
	_, err := f.engine.CollectInstallment(userCtx(), planId, 1)
	if err == nil {
		t.Fatal("Expected collection to fail")
	}

	bal := f.balance(t)
	if !bal.AvailableShares.Equal(d("7000")) || !bal.ProtectedShares.Equal(d("3000")) {
		t.Fatalf("Expected (7000, 3000) untouched, got (%s, %s)",
			bal.AvailableShares.String(), bal.ProtectedShares.String())
	}

	plan, err := f.engine.GetPlan(context.Background(), planId)
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if plan.Status != models.PlanActive {
		t.Fatalf("Expected plan still Active, got %s", plan.Status)
	}
	if plan.Installments[0].Status != models.InstallmentPending {
		t.Fatalf("Expected installment still Pending, got %s", plan.Installments[0].Status)
	}
	if !plan.ProtectedShares.Equal(d("3000")) {
		t.Fatalf("Expected plan protected shares untouched, got %s", plan.ProtectedShares.String())
	}

	// Once the vault recovers, the retry charges the user exactly once.
	f.reserve.withdrawErr = nil
	source, err := f.engine.CollectInstallment(userCtx(), planId, 1)
	if err != nil {
		t.Fatalf("CollectInstallment retry failed: %v", err)
	}
	if source != models.SourceAvailable {
		t.Errorf("Expected payment from available pool, got %s", source)
	}

	bal = f.balance(t)
	if !bal.AvailableShares.Equal(d("7000")) || !bal.ProtectedShares.Equal(d("2000")) {
		t.Errorf("Expected (7000, 2000) after a single charge, got (%s, %s)",
			bal.AvailableShares.String(), bal.ProtectedShares.String())
	}
}

func TestCollectInstallment_CompletionUnlocksResidual(t *testing.T) {
	// Price the vault at 3 units per share so the ceiling rounding at plan
	// creation over-collateralizes slightly.
	f, cleanup := setupPlans(t, "1000")
	defer cleanup()
	f.reserve.totalManaged = d("3000")

	planId, err := f.engine.CreatePlan(userCtx(), testUser, testMerchant, d("700"), 3, []int64{2000, 3000, 4000})
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	// ceil(700 * 1000 / 3000) = 234 shares locked for a 700 loan.
	plan, err := f.engine.GetPlan(context.Background(), planId)
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if !plan.TotalShares.Equal(d("234")) {
		t.Fatalf("Expected 234 shares locked, got %s", plan.TotalShares.String())
	}

	setClock(f.engine, 4000)
	for number := 1; number <= 3; number++ {
		if _, err := f.engine.CollectInstallment(userCtx(), planId, number); err != nil {
			t.Fatalf("CollectInstallment %d failed: %v", number, err)
		}
	}

	plan, err = f.engine.GetPlan(context.Background(), planId)
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if plan.Status != models.PlanCompleted {
		t.Errorf("Expected Completed plan, got %s", plan.Status)
	}
	if !plan.ProtectedShares.IsZero() {
		t.Errorf("Expected plan protected shares zeroed, got %s", plan.ProtectedShares.String())
	}

	// Every share that was locked came back: 234 debited for payments, the
	// rest released, leaving nothing protected.
	bal := f.balance(t)
	if !bal.ProtectedShares.IsZero() {
		t.Errorf("Expected no protected shares left, got %s", bal.ProtectedShares.String())
	}
	if !bal.AvailableShares.Equal(d("766")) {
		t.Errorf("Expected 766 available shares, got %s", bal.AvailableShares.String())
	}
}

func TestGetNextDue(t *testing.T) {
	f, cleanup := setupPlans(t, "10000")
	defer cleanup()
	planId := createTestPlan(t, f)

	// Nothing due before the first due date.
	setClock(f.engine, 1500)
	due, err := f.engine.GetNextDue(context.Background(), planId)
	if err != nil {
		t.Fatalf("GetNextDue failed: %v", err)
	}
	if due != nil {
		t.Errorf("Expected nothing due at 1500, got installment %d", due.Number)
	}

	setClock(f.engine, 2000)
	due, err = f.engine.GetNextDue(context.Background(), planId)
	if err != nil {
		t.Fatalf("GetNextDue failed: %v", err)
	}
	if due == nil || due.Number != 1 {
		t.Fatalf("Expected installment 1 due at 2000, got %v", due)
	}

	// Once paid, the scan moves past it.
	if _, err := f.engine.CollectInstallment(userCtx(), planId, 1); err != nil {
		t.Fatalf("CollectInstallment failed: %v", err)
	}
	due, err = f.engine.GetNextDue(context.Background(), planId)
	if err != nil {
		t.Fatalf("GetNextDue failed: %v", err)
	}
	if due != nil {
		t.Errorf("Expected nothing due after paying installment 1, got %v", due)
	}

	setClock(f.engine, 3500)
	due, err = f.engine.GetNextDue(context.Background(), planId)
	if err != nil {
		t.Fatalf("GetNextDue failed: %v", err)
	}
	if due == nil || due.Number != 2 {
		t.Fatalf("Expected installment 2 due at 3500, got %v", due)
	}
}

func TestGetPlanSummary(t *testing.T) {
	f, cleanup := setupPlans(t, "10000")
	defer cleanup()
	planId := createTestPlan(t, f)

	summary, err := f.engine.GetPlanSummary(context.Background(), planId)
	if err != nil {
		t.Fatalf("GetPlanSummary failed: %v", err)
	}
	if summary.Plan.Id != planId {
		t.Errorf("Expected plan %d, got %d", planId, summary.Plan.Id)
	}
	if !summary.AvailableValue.Equal(d("7000")) || !summary.ProtectedValue.Equal(d("3000")) {
		t.Errorf("Expected values (7000, 3000), got (%s, %s)",
			summary.AvailableValue.String(), summary.ProtectedValue.String())
	}
}

func TestListActivePlans(t *testing.T) {
	f, cleanup := setupPlans(t, "10000")
	defer cleanup()
	planId := createTestPlan(t, f)

	active, err := f.engine.ListActivePlans(context.Background())
	if err != nil {
		t.Fatalf("ListActivePlans failed: %v", err)
	}
	if len(active) != 1 || active[0].Id != planId {
		t.Errorf("Expected the one active plan, got %v", active)
	}

	// Pay the whole plan off; it drops out of the active list.
	setClock(f.engine, 4000)
	for number := 1; number <= 3; number++ {
		if _, err := f.engine.CollectInstallment(userCtx(), planId, number); err != nil {
			t.Fatalf("CollectInstallment %d failed: %v", number, err)
		}
	}

	active, err = f.engine.ListActivePlans(context.Background())
	if err != nil {
		t.Fatalf("ListActivePlans failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("Expected no active plans, got %d", len(active))
	}
}
