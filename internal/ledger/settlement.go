package ledger

import (
	"fmt"
	"sort"
	"time"

	"divvy/internal/core"
)

// Scope narrows a settlement operation. An empty scope covers the whole
// ledger; a set Counterparty restricts ApplyPayment to debts owed to that
// user and AutoOffset to pairs involving that user.
type Scope struct {
	Counterparty string
}

// PaymentResult reports what a payment touched. Applied is capped at the
// payer's total outstanding; the excess comes back in Unapplied instead of
// being dropped.
type PaymentResult struct {
	Closed    []core.Debt
	Reduced   []core.Debt
	Applied   core.Money
	Unapplied core.Money
}

// OffsetResult reports which mutual positions were cancelled. Settled holds
// debts closed outright, Reduced the ones that survive with a smaller amount,
// and ResidualDebts every debt still outstanding in the offset pairs.
type OffsetResult struct {
	PairsOffset   int
	Settled       []core.Debt
	Reduced       []core.Debt
	ResidualDebts []core.Debt
}

// ApplyPayment allocates a payment from a user across their outstanding
// debts, oldest originating expense first. Debts fully covered by the
// remaining payment are closed; the last debt that only partially absorbs
// it is reduced. Non-positive amounts are rejected.
func (l *Ledger) ApplyPayment(fromUserID string, amount core.Money, scope Scope, now time.Time) (PaymentResult, error) {
	if amount.Cents <= 0 {
		return PaymentResult{}, fmt.Errorf("%w: got %s", core.ErrNegativePayment, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	debts := l.outstandingLocked(func(d *core.Debt) bool {
		if d.FromUserID != fromUserID {
			return false
		}
		return scope.Counterparty == "" || d.ToUserID == scope.Counterparty
	})

	closed, reduced, applied := allocate(debts, amount.Cents, now)
	return PaymentResult{
		Closed:    closed,
		Reduced:   reduced,
		Applied:   core.NewMoney(applied),
		Unapplied: core.NewMoney(amount.Cents - applied),
	}, nil
}

// AutoOffset cancels mutual debt between every pair of users that owe each
// other, down to the net directional difference. The cancelled amount is
// allocated against each direction's debts oldest-first, exactly like a
// payment, so every surviving debt keeps its originating expense. Running
// it again without new expenses changes nothing: after one pass a pair has
// outstanding debt in at most one direction.
func (l *Ledger) AutoOffset(scope Scope, now time.Time) OffsetResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	type direction struct {
		debts []*core.Debt
		total int64
	}
	pairs := make(map[[2]string]map[string]*direction)

	for _, d := range l.outstandingLocked(nil) {
		if scope.Counterparty != "" && d.FromUserID != scope.Counterparty && d.ToUserID != scope.Counterparty {
			continue
		}
		key := pairKey(d.FromUserID, d.ToUserID)
		if pairs[key] == nil {
			pairs[key] = make(map[string]*direction, 2)
		}
		dir := pairs[key][d.FromUserID]
		if dir == nil {
			dir = &direction{}
			pairs[key][d.FromUserID] = dir
		}
		dir.debts = append(dir.debts, d)
		dir.total += d.Amount.Cents
	}

	keys := make([][2]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	var result OffsetResult
	for _, key := range keys {
		a, b := pairs[key][key[0]], pairs[key][key[1]]
		if a == nil || b == nil {
			continue
		}
		offset := a.total
		if b.total < offset {
			offset = b.total
		}
		if offset == 0 {
			continue
		}
		for _, dir := range []*direction{a, b} {
			closed, reduced, _ := allocate(dir.debts, offset, now)
			result.Settled = append(result.Settled, closed...)
			result.Reduced = append(result.Reduced, reduced...)
		}
		result.PairsOffset++

		for _, dir := range []*direction{a, b} {
			for _, d := range dir.debts {
				if d.Outstanding() {
					result.ResidualDebts = append(result.ResidualDebts, *d)
				}
			}
		}
	}
	sortDebts(result.Settled)
	sortDebts(result.Reduced)
	sortDebts(result.ResidualDebts)
	return result
}

// outstandingLocked returns pointers to unpaid debts matching the filter,
// oldest originating expense first. Caller must hold the lock.
func (l *Ledger) outstandingLocked(match func(*core.Debt) bool) []*core.Debt {
	var out []*core.Debt
	for _, d := range l.debts {
		if !d.Outstanding() {
			continue
		}
		if match != nil && !match(d) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpenseDate.Equal(out[j].ExpenseDate.Time) {
			return out[i].ExpenseDate.Before(out[j].ExpenseDate.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// allocate spends the budget across the debts in order, closing debts it
// fully covers and reducing the one it only partially covers.
func allocate(debts []*core.Debt, budget int64, now time.Time) (closed, reduced []core.Debt, applied int64) {
	for _, d := range debts {
		if budget <= 0 {
			break
		}
		if d.Amount.Cents <= budget {
			budget -= d.Amount.Cents
			applied += d.Amount.Cents
			d.IsPaid = true
			d.PaidAt = now
			closed = append(closed, *d)
			continue
		}
		d.Amount.Cents -= budget
		applied += budget
		budget = 0
		reduced = append(reduced, *d)
	}
	return closed, reduced, applied
}

func pairKey(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}
