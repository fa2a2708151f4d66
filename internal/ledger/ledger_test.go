package ledger

import (
	"errors"
	"testing"
	"time"

	"divvy/internal/core"
)

func expense(id string, cents int64, payerID string, date core.Date) core.Expense {
	return core.Expense{
		ID:       id,
		Amount:   core.NewMoney(cents),
		Category: "groceries",
		PayerID:  payerID,
		Date:     date,
	}
}

func TestDeriveAndAppend(t *testing.T) {
	l := New()
	roster := users("alice", "bob", "carol")

	debts, err := l.DeriveAndAppend(expense("e1", 30000, "alice", core.NewDate(2025, 3, 1)), roster)
	if err != nil {
		t.Fatalf("DeriveAndAppend failed: %v", err)
	}
	if len(debts) != 2 {
		t.Fatalf("got %d debts, want 2", len(debts))
	}
	for _, d := range debts {
		if d.ToUserID != "alice" {
			t.Errorf("debt %s directed to %s, want alice", d.ID, d.ToUserID)
		}
		if d.Amount.Cents != 10000 {
			t.Errorf("debt %s amount = %d, want 10000", d.ID, d.Amount.Cents)
		}
		if d.FromUserID == d.ToUserID {
			t.Errorf("debt %s from and to are the same user", d.ID)
		}
		if d.ExpenseID != "e1" {
			t.Errorf("debt %s expense id = %q, want e1", d.ID, d.ExpenseID)
		}
	}

	// Payer alone: no debts, but the expense becomes known to the ledger.
	none, err := l.DeriveAndAppend(expense("e2", 5000, "alice", core.NewDate(2025, 3, 2)), users("alice"))
	if err != nil {
		t.Fatalf("DeriveAndAppend failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("got %d debts for a solo expense, want 0", len(none))
	}
	if n, err := l.Remove("e2"); err != nil || n != 0 {
		t.Errorf("Remove(e2) = (%d, %v), want (0, nil)", n, err)
	}
}

func TestRegenerateIsIdempotent(t *testing.T) {
	l := New()
	roster := users("alice", "bob", "carol")
	exp := expense("e1", 30000, "alice", core.NewDate(2025, 3, 1))

	if _, err := l.DeriveAndAppend(exp, roster); err != nil {
		t.Fatalf("DeriveAndAppend failed: %v", err)
	}

	first, err := l.Regenerate("e1", exp, roster)
	if err != nil {
		t.Fatalf("Regenerate failed: %v", err)
	}
	second, err := l.Regenerate("e1", exp, roster)
	if err != nil {
		t.Fatalf("second Regenerate failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("regeneration changed debt count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("debt %d id changed across regeneration: %s vs %s", i, first[i].ID, second[i].ID)
		}
		if first[i].Amount != second[i].Amount {
			t.Errorf("debt %d amount changed across regeneration", i)
		}
	}
	if got := len(l.Snapshot()); got != 2 {
		t.Errorf("ledger holds %d debts after regeneration, want 2", got)
	}
}

func TestRegenerateReplacesOnUpdate(t *testing.T) {
	l := New()
	exp := expense("e1", 30000, "alice", core.NewDate(2025, 3, 1))
	if _, err := l.DeriveAndAppend(exp, users("alice", "bob", "carol")); err != nil {
		t.Fatalf("DeriveAndAppend failed: %v", err)
	}

	// Update: new amount, payer switched to bob, only two participants.
	updated := expense("e1", 10000, "bob", core.NewDate(2025, 3, 1))
	debts, err := l.Regenerate("e1", updated, users("alice", "bob"))
	if err != nil {
		t.Fatalf("Regenerate failed: %v", err)
	}
	if len(debts) != 1 {
		t.Fatalf("got %d debts, want 1", len(debts))
	}
	if debts[0].FromUserID != "alice" || debts[0].ToUserID != "bob" || debts[0].Amount.Cents != 5000 {
		t.Errorf("unexpected regenerated debt: %+v", debts[0])
	}
	if got := len(l.Snapshot()); got != 1 {
		t.Errorf("ledger holds %d debts, want 1 (old debts must be gone)", got)
	}
}

func TestUnknownReferences(t *testing.T) {
	l := New()

	if _, err := l.Regenerate("ghost", expense("ghost", 100, "alice", core.NewDate(2025, 1, 1)), users("alice", "bob")); !errors.Is(err, core.ErrUnknownExpense) {
		t.Errorf("Regenerate(ghost) error = %v, want ErrUnknownExpense", err)
	}
	if _, err := l.Remove("ghost"); !errors.Is(err, core.ErrUnknownExpense) {
		t.Errorf("Remove(ghost) error = %v, want ErrUnknownExpense", err)
	}
	if _, err := l.MarkPaid("ghost", time.Now()); !errors.Is(err, core.ErrUnknownDebt) {
		t.Errorf("MarkPaid(ghost) error = %v, want ErrUnknownDebt", err)
	}
}

func TestRemove(t *testing.T) {
	l := New()
	if _, err := l.DeriveAndAppend(expense("e1", 30000, "alice", core.NewDate(2025, 3, 1)), users("alice", "bob", "carol")); err != nil {
		t.Fatalf("DeriveAndAppend failed: %v", err)
	}

	n, err := l.Remove("e1")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Remove deleted %d debts, want 2", n)
	}
	if got := len(l.Snapshot()); got != 0 {
		t.Errorf("ledger holds %d debts after remove, want 0", got)
	}
	// The expense is gone now; a second remove is an unknown reference.
	if _, err := l.Remove("e1"); !errors.Is(err, core.ErrUnknownExpense) {
		t.Errorf("second Remove error = %v, want ErrUnknownExpense", err)
	}
}

func TestMarkPaidIsOneWay(t *testing.T) {
	l := New()
	debts, err := l.DeriveAndAppend(expense("e1", 10000, "alice", core.NewDate(2025, 3, 1)), users("alice", "bob"))
	if err != nil {
		t.Fatalf("DeriveAndAppend failed: %v", err)
	}

	paidAt := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	paid, err := l.MarkPaid(debts[0].ID, paidAt)
	if err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
	if !paid.IsPaid || !paid.PaidAt.Equal(paidAt) {
		t.Errorf("debt not marked paid: %+v", paid)
	}

	// Second call is a no-op; the original timestamp survives.
	later := paidAt.Add(48 * time.Hour)
	again, err := l.MarkPaid(debts[0].ID, later)
	if err != nil {
		t.Fatalf("repeat MarkPaid failed: %v", err)
	}
	if !again.PaidAt.Equal(paidAt) {
		t.Errorf("repeat MarkPaid moved PaidAt to %v, want %v", again.PaidAt, paidAt)
	}
}

func TestListForUser(t *testing.T) {
	l := New()
	roster := users("alice", "bob", "carol")
	if _, err := l.DeriveAndAppend(expense("e1", 30000, "alice", core.NewDate(2025, 3, 2)), roster); err != nil {
		t.Fatal(err)
	}
	if _, err := l.DeriveAndAppend(expense("e2", 9000, "bob", core.NewDate(2025, 3, 1)), roster); err != nil {
		t.Fatal(err)
	}

	bob := l.ListForUser("bob")
	// bob owes alice (e1) and is owed by alice and carol (e2).
	if len(bob) != 3 {
		t.Fatalf("ListForUser(bob) returned %d debts, want 3", len(bob))
	}
	// Oldest originating expense first.
	if bob[0].ExpenseID != "e2" {
		t.Errorf("first debt from %s, want e2 (older expense)", bob[0].ExpenseID)
	}

	if got := l.ListForUser("nobody"); len(got) != 0 {
		t.Errorf("ListForUser(nobody) returned %d debts, want 0", len(got))
	}
}

func TestReplaceAll(t *testing.T) {
	l := New()
	if _, err := l.DeriveAndAppend(expense("e1", 30000, "alice", core.NewDate(2025, 3, 1)), users("alice", "bob")); err != nil {
		t.Fatal(err)
	}

	authoritative := []core.Debt{
		{
			ID:          "d-remote",
			FromUserID:  "carol",
			ToUserID:    "alice",
			Amount:      core.NewMoney(700),
			ExpenseID:   "e9",
			ExpenseDate: core.NewDate(2025, 2, 1),
		},
	}
	l.ReplaceAll(authoritative)

	snap := l.Snapshot()
	if len(snap) != 1 || snap[0].ID != "d-remote" {
		t.Fatalf("reload was merged, not replaced: %+v", snap)
	}
	// The replaced projection's expenses are known, the old ones are not.
	if _, err := l.Remove("e1"); !errors.Is(err, core.ErrUnknownExpense) {
		t.Errorf("Remove(e1) after reload error = %v, want ErrUnknownExpense", err)
	}
	if n, err := l.Remove("e9"); err != nil || n != 1 {
		t.Errorf("Remove(e9) = (%d, %v), want (1, nil)", n, err)
	}
}

func TestBalanceFor(t *testing.T) {
	l := New()
	roster := users("alice", "bob", "carol")
	// alice paid 300: bob and carol owe her 100 each.
	if _, err := l.DeriveAndAppend(expense("e1", 30000, "alice", core.NewDate(2025, 3, 1)), roster); err != nil {
		t.Fatal(err)
	}
	// bob paid 90: alice and carol owe him 30 each.
	if _, err := l.DeriveAndAppend(expense("e2", 9000, "bob", core.NewDate(2025, 3, 2)), roster); err != nil {
		t.Fatal(err)
	}

	alice := l.BalanceFor("alice")
	if alice.OwedToMe.Cents != 20000 {
		t.Errorf("alice owed-to-me = %d, want 20000", alice.OwedToMe.Cents)
	}
	if alice.OwedByMe.Cents != 3000 {
		t.Errorf("alice owed-by-me = %d, want 3000", alice.OwedByMe.Cents)
	}
	if alice.Net.Cents != 17000 {
		t.Errorf("alice net = %d, want 17000", alice.Net.Cents)
	}

	carol := l.BalanceFor("carol")
	if carol.Net.Cents != -13000 {
		t.Errorf("carol net = %d, want -13000", carol.Net.Cents)
	}

	// Paid debts drop out of balances.
	debts := l.ListForUser("carol")
	for _, d := range debts {
		if d.FromUserID == "carol" {
			if _, err := l.MarkPaid(d.ID, time.Now()); err != nil {
				t.Fatal(err)
			}
		}
	}
	if got := l.BalanceFor("carol").OwedByMe.Cents; got != 0 {
		t.Errorf("carol owed-by-me after paying = %d, want 0", got)
	}
}
