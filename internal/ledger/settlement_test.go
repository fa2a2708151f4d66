package ledger

import (
	"errors"
	"testing"
	"time"

	"divvy/internal/core"
)

func TestApplyPaymentAllocatesOldestFirst(t *testing.T) {
	l := New()
	roster := users("alice", "bob")
	// Two expenses paid by alice: bob owes 50 (March 1) and 30 (March 5).
	if _, err := l.DeriveAndAppend(expense("e1", 10000, "alice", core.NewDate(2025, 3, 1)), roster); err != nil {
		t.Fatal(err)
	}
	if _, err := l.DeriveAndAppend(expense("e2", 6000, "alice", core.NewDate(2025, 3, 5)), roster); err != nil {
		t.Fatal(err)
	}

	// 70 covers the older 50 fully and reduces the newer 30 to 10.
	res, err := l.ApplyPayment("bob", core.NewMoney(7000), Scope{}, time.Now())
	if err != nil {
		t.Fatalf("ApplyPayment failed: %v", err)
	}
	if len(res.Closed) != 1 || res.Closed[0].ExpenseID != "e1" {
		t.Errorf("closed = %+v, want the e1 debt", res.Closed)
	}
	if len(res.Reduced) != 1 || res.Reduced[0].ExpenseID != "e2" {
		t.Fatalf("reduced = %+v, want the e2 debt", res.Reduced)
	}
	if res.Reduced[0].Amount.Cents != 1000 {
		t.Errorf("reduced debt remaining = %d, want 1000", res.Reduced[0].Amount.Cents)
	}
	if res.Applied.Cents != 7000 || res.Unapplied.Cents != 0 {
		t.Errorf("applied/unapplied = %d/%d, want 7000/0", res.Applied.Cents, res.Unapplied.Cents)
	}
	if got := l.BalanceFor("bob").OwedByMe.Cents; got != 1000 {
		t.Errorf("bob still owes %d, want 1000", got)
	}
}

func TestApplyPaymentCapsOverpayment(t *testing.T) {
	l := New()
	if _, err := l.DeriveAndAppend(expense("e1", 10000, "alice", core.NewDate(2025, 3, 1)), users("alice", "bob")); err != nil {
		t.Fatal(err)
	}

	before := l.TotalOutstanding().Cents
	res, err := l.ApplyPayment("bob", core.NewMoney(9000), Scope{}, time.Now())
	if err != nil {
		t.Fatalf("ApplyPayment failed: %v", err)
	}
	if res.Applied.Cents != 5000 {
		t.Errorf("applied = %d, want 5000", res.Applied.Cents)
	}
	if res.Unapplied.Cents != 4000 {
		t.Errorf("unapplied = %d, want 4000 (excess must be reported, not dropped)", res.Unapplied.Cents)
	}
	// Outstanding never goes below zero.
	after := l.TotalOutstanding().Cents
	if want := before - res.Applied.Cents; after != want {
		t.Errorf("outstanding after = %d, want %d", after, want)
	}
	if after != 0 {
		t.Errorf("outstanding after full payoff = %d, want 0", after)
	}
}

func TestApplyPaymentRejectsNonPositive(t *testing.T) {
	l := New()
	for _, cents := range []int64{0, -500} {
		if _, err := l.ApplyPayment("bob", core.NewMoney(cents), Scope{}, time.Now()); !errors.Is(err, core.ErrNegativePayment) {
			t.Errorf("ApplyPayment(%d) error = %v, want ErrNegativePayment", cents, err)
		}
	}
}

func TestApplyPaymentScope(t *testing.T) {
	l := New()
	// bob owes alice 50 and carol 20.
	if _, err := l.DeriveAndAppend(expense("e1", 10000, "alice", core.NewDate(2025, 3, 1)), users("alice", "bob")); err != nil {
		t.Fatal(err)
	}
	if _, err := l.DeriveAndAppend(expense("e2", 4000, "carol", core.NewDate(2025, 3, 2)), users("carol", "bob")); err != nil {
		t.Fatal(err)
	}

	// Payment scoped to carol leaves the alice debt alone.
	res, err := l.ApplyPayment("bob", core.NewMoney(5000), Scope{Counterparty: "carol"}, time.Now())
	if err != nil {
		t.Fatalf("ApplyPayment failed: %v", err)
	}
	if res.Applied.Cents != 2000 || res.Unapplied.Cents != 3000 {
		t.Errorf("applied/unapplied = %d/%d, want 2000/3000", res.Applied.Cents, res.Unapplied.Cents)
	}
	if got := l.BalanceFor("alice").OwedToMe.Cents; got != 5000 {
		t.Errorf("alice owed-to-me = %d, want 5000 untouched", got)
	}
}

func TestAutoOffsetPair(t *testing.T) {
	l := New()
	// bob owes alice 100; from a separate expense alice owes bob 40.
	if _, err := l.DeriveAndAppend(expense("e1", 20000, "alice", core.NewDate(2025, 3, 1)), users("alice", "bob")); err != nil {
		t.Fatal(err)
	}
	if _, err := l.DeriveAndAppend(expense("e2", 8000, "bob", core.NewDate(2025, 3, 2)), users("alice", "bob")); err != nil {
		t.Fatal(err)
	}

	res := l.AutoOffset(Scope{}, time.Now())
	if res.PairsOffset != 1 {
		t.Fatalf("pairs offset = %d, want 1", res.PairsOffset)
	}
	if len(res.ResidualDebts) != 1 {
		t.Fatalf("residual debts = %+v, want exactly one", res.ResidualDebts)
	}
	residual := res.ResidualDebts[0]
	if residual.FromUserID != "bob" || residual.ToUserID != "alice" {
		t.Errorf("residual direction %s->%s, want bob->alice", residual.FromUserID, residual.ToUserID)
	}
	if residual.Amount.Cents != 6000 {
		t.Errorf("residual amount = %d, want 6000", residual.Amount.Cents)
	}
	// The residual keeps its real originating expense.
	if residual.ExpenseID != "e1" {
		t.Errorf("residual expense id = %q, want e1", residual.ExpenseID)
	}

	// alice's side is fully settled.
	if got := l.BalanceFor("alice").OwedByMe.Cents; got != 0 {
		t.Errorf("alice owed-by-me = %d, want 0 after offset", got)
	}
	if got := l.BalanceFor("bob").OwedByMe.Cents; got != 6000 {
		t.Errorf("bob owed-by-me = %d, want 6000 after offset", got)
	}
}

func TestAutoOffsetIsIdempotent(t *testing.T) {
	l := New()
	roster := users("alice", "bob", "carol")
	if _, err := l.DeriveAndAppend(expense("e1", 30000, "alice", core.NewDate(2025, 3, 1)), roster); err != nil {
		t.Fatal(err)
	}
	if _, err := l.DeriveAndAppend(expense("e2", 9000, "bob", core.NewDate(2025, 3, 2)), roster); err != nil {
		t.Fatal(err)
	}

	first := l.AutoOffset(Scope{}, time.Now())
	if first.PairsOffset == 0 {
		t.Fatal("expected at least one pair to offset")
	}
	snapAfterFirst := l.Snapshot()

	second := l.AutoOffset(Scope{}, time.Now())
	if second.PairsOffset != 0 {
		t.Errorf("second offset touched %d pairs, want 0", second.PairsOffset)
	}
	snapAfterSecond := l.Snapshot()
	if len(snapAfterFirst) != len(snapAfterSecond) {
		t.Fatalf("second offset changed the ledger")
	}
	for i := range snapAfterFirst {
		if snapAfterFirst[i] != snapAfterSecond[i] {
			t.Errorf("debt %d changed on second offset: %+v vs %+v", i, snapAfterFirst[i], snapAfterSecond[i])
		}
	}
}

func TestAutoOffsetEqualTotals(t *testing.T) {
	l := New()
	roster := users("alice", "bob")
	if _, err := l.DeriveAndAppend(expense("e1", 10000, "alice", core.NewDate(2025, 3, 1)), roster); err != nil {
		t.Fatal(err)
	}
	if _, err := l.DeriveAndAppend(expense("e2", 10000, "bob", core.NewDate(2025, 3, 2)), roster); err != nil {
		t.Fatal(err)
	}

	res := l.AutoOffset(Scope{}, time.Now())
	if res.PairsOffset != 1 {
		t.Fatalf("pairs offset = %d, want 1", res.PairsOffset)
	}
	if len(res.ResidualDebts) != 0 {
		t.Errorf("equal totals must cancel completely, got residuals: %+v", res.ResidualDebts)
	}
	if len(res.Settled) != 2 {
		t.Errorf("settled = %+v, want both debts closed", res.Settled)
	}
	if got := l.TotalOutstanding().Cents; got != 0 {
		t.Errorf("total outstanding = %d, want 0", got)
	}
}

func TestAutoOffsetSpansMultipleExpenses(t *testing.T) {
	l := New()
	roster := users("alice", "bob")
	// bob owes alice 50 + 50 across two expenses; alice owes bob 80.
	if _, err := l.DeriveAndAppend(expense("e1", 10000, "alice", core.NewDate(2025, 3, 1)), roster); err != nil {
		t.Fatal(err)
	}
	if _, err := l.DeriveAndAppend(expense("e2", 10000, "alice", core.NewDate(2025, 3, 3)), roster); err != nil {
		t.Fatal(err)
	}
	if _, err := l.DeriveAndAppend(expense("e3", 16000, "bob", core.NewDate(2025, 3, 2)), roster); err != nil {
		t.Fatal(err)
	}

	res := l.AutoOffset(Scope{}, time.Now())
	// 80 cancels: closes the older bob->alice 50 and reduces the newer to 20.
	if len(res.ResidualDebts) != 1 {
		t.Fatalf("residuals = %+v, want one", res.ResidualDebts)
	}
	if res.ResidualDebts[0].ExpenseID != "e2" || res.ResidualDebts[0].Amount.Cents != 2000 {
		t.Errorf("residual = %+v, want 2000 cents on e2", res.ResidualDebts[0])
	}
	if len(res.Settled) != 2 || len(res.Reduced) != 1 {
		t.Errorf("settled/reduced = %d/%d, want 2/1", len(res.Settled), len(res.Reduced))
	}
}
