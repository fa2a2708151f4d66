package ledger

import (
	"divvy/internal/core"
)

// Balance is one user's aggregate position. Net is positive when others owe
// the user money, negative when the user owes.
type Balance struct {
	UserID   string
	OwedToMe core.Money
	OwedByMe core.Money
	Net      core.Money
}

// BalanceFor recomputes the user's totals from the current ledger state.
// Only outstanding debts count; paid debts are history.
func (l *Ledger) BalanceFor(userID string) Balance {
	b := Balance{UserID: userID}
	for _, d := range l.Snapshot() {
		if !d.Outstanding() {
			continue
		}
		if d.ToUserID == userID {
			b.OwedToMe = b.OwedToMe.Add(d.Amount)
		}
		if d.FromUserID == userID {
			b.OwedByMe = b.OwedByMe.Add(d.Amount)
		}
	}
	b.Net = b.OwedToMe.Sub(b.OwedByMe)
	return b
}

// TotalOutstanding sums every unpaid debt in the ledger.
func (l *Ledger) TotalOutstanding() core.Money {
	var total core.Money
	for _, d := range l.Snapshot() {
		if d.Outstanding() {
			total = total.Add(d.Amount)
		}
	}
	return total
}
