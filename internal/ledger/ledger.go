package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"divvy/internal/core"
)

// Ledger is the in-memory debt aggregate. It owns every debt record,
// indexed by debt id and by originating expense id. All operations take the
// ledger lock so a regeneration (remove then re-derive) is never observable
// half-applied.
type Ledger struct {
	mu        sync.Mutex
	debts     map[string]*core.Debt
	byExpense map[string][]string // expense id -> debt ids, entry kept even when empty
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		debts:     make(map[string]*core.Debt),
		byExpense: make(map[string][]string),
	}
}

// debtID derives a stable id from the originating expense and the debtor,
// so re-deriving the same expense yields the same debt ids.
func debtID(expenseID, fromUserID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("divvy/debt/"+expenseID+"/"+fromUserID)).String()
}

// DeriveAndAppend splits the expense across the participants and appends the
// resulting debts. Calling it again for the same expense replaces that
// expense's debts, which makes derivation idempotent.
func (l *Ledger) DeriveAndAppend(exp core.Expense, participants []core.User) ([]core.Debt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deriveLocked(exp, participants)
}

// Regenerate removes all debts for the expense and derives them again from
// the updated fields. It is a full replace, not a patch. Targeting an
// expense the ledger has never seen returns ErrUnknownExpense.
func (l *Ledger) Regenerate(expenseID string, updated core.Expense, participants []core.User) ([]core.Debt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byExpense[expenseID]; !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownExpense, expenseID)
	}
	l.removeLocked(expenseID)
	updated.ID = expenseID
	return l.deriveLocked(updated, participants)
}

// Remove deletes every debt referencing the expense and returns how many
// were deleted. Targeting an unknown expense returns ErrUnknownExpense so
// callers can tell "nothing to do" from "gone".
func (l *Ledger) Remove(expenseID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byExpense[expenseID]; !ok {
		return 0, fmt.Errorf("%w: %s", core.ErrUnknownExpense, expenseID)
	}
	n := l.removeLocked(expenseID)
	delete(l.byExpense, expenseID)
	return n, nil
}

// MarkPaid flips the debt to paid and stamps PaidAt. Paying an already-paid
// debt is a no-op; the transition is one-way.
func (l *Ledger) MarkPaid(debtID string, now time.Time) (core.Debt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d, ok := l.debts[debtID]
	if !ok {
		return core.Debt{}, fmt.Errorf("%w: %s", core.ErrUnknownDebt, debtID)
	}
	if !d.IsPaid {
		d.IsPaid = true
		d.PaidAt = now
	}
	return *d, nil
}

// ListForUser returns every debt where the user is debtor or creditor,
// oldest originating expense first.
func (l *Ledger) ListForUser(userID string) []core.Debt {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []core.Debt
	for _, d := range l.debts {
		if d.FromUserID == userID || d.ToUserID == userID {
			out = append(out, *d)
		}
	}
	sortDebts(out)
	return out
}

// Snapshot returns a copy of the full ledger, oldest first.
func (l *Ledger) Snapshot() []core.Debt {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]core.Debt, 0, len(l.debts))
	for _, d := range l.debts {
		out = append(out, *d)
	}
	sortDebts(out)
	return out
}

// ReplaceAll swaps the entire ledger for an authoritative snapshot. The
// local projection is provisional; a full reload wins wholesale, it is
// never merged record by record.
func (l *Ledger) ReplaceAll(debts []core.Debt) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.debts = make(map[string]*core.Debt, len(debts))
	l.byExpense = make(map[string][]string)
	for i := range debts {
		d := debts[i]
		l.debts[d.ID] = &d
		l.byExpense[d.ExpenseID] = append(l.byExpense[d.ExpenseID], d.ID)
	}
}

func (l *Ledger) deriveLocked(exp core.Expense, participants []core.User) ([]core.Debt, error) {
	shares, err := SplitEqually(exp.Amount, exp.PayerID, participants)
	if err != nil {
		return nil, err
	}

	l.removeLocked(exp.ID)
	ids := make([]string, 0, len(shares))
	out := make([]core.Debt, 0, len(shares))
	for _, sh := range shares {
		d := core.Debt{
			ID:          debtID(exp.ID, sh.FromUserID),
			FromUserID:  sh.FromUserID,
			ToUserID:    exp.PayerID,
			Amount:      sh.Amount,
			ExpenseID:   exp.ID,
			ExpenseDate: exp.Date,
		}
		l.debts[d.ID] = &d
		ids = append(ids, d.ID)
		out = append(out, d)
	}
	// Register the expense even when the split produced no debts, so a later
	// Regenerate or Remove is not treated as an unknown reference.
	l.byExpense[exp.ID] = ids
	return out, nil
}

func (l *Ledger) removeLocked(expenseID string) int {
	ids := l.byExpense[expenseID]
	for _, id := range ids {
		delete(l.debts, id)
	}
	l.byExpense[expenseID] = nil
	return len(ids)
}

func sortDebts(debts []core.Debt) {
	sort.Slice(debts, func(i, j int) bool {
		if !debts[i].ExpenseDate.Equal(debts[j].ExpenseDate.Time) {
			return debts[i].ExpenseDate.Before(debts[j].ExpenseDate.Time)
		}
		return debts[i].ID < debts[j].ID
	})
}
