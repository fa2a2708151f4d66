// Package ledger implements the shared-expense settlement engine: equal
// splits, the debt ledger aggregate, balance aggregation, payment allocation
// and mutual-debt offsetting, plus recurring-template expansion.
package ledger

import (
	"fmt"
	"sort"

	"divvy/internal/core"
)

// Share is one debtor's portion of an expense.
type Share struct {
	FromUserID string
	Amount     core.Money
}

// SplitEqually divides an expense amount among the participants, one share
// per participant other than the payer. The payer is counted toward N even
// if the roster omits them.
//
// Rounding: each debtor owes floor(amount/N) cents; the remainder cents are
// handed out one each to debtors in ascending user-id order, so repeated
// derivation produces identical shares. Shares that round to zero cents are
// dropped (a debt must be positive).
func SplitEqually(amount core.Money, payerID string, participants []core.User) ([]Share, error) {
	if amount.Cents <= 0 {
		return nil, fmt.Errorf("%w: amount %d cents", core.ErrInvalidSplit, amount.Cents)
	}
	if payerID == "" {
		return nil, fmt.Errorf("%w: no payer", core.ErrInvalidSplit)
	}

	seen := make(map[string]bool, len(participants)+1)
	debtors := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		if p.ID != payerID {
			debtors = append(debtors, p.ID)
		}
	}
	n := int64(len(debtors)) + 1 // the payer always participates

	if len(debtors) == 0 {
		return nil, nil
	}
	sort.Strings(debtors)

	base := amount.Cents / n
	rem := amount.Cents % n

	shares := make([]Share, 0, len(debtors))
	for i, id := range debtors {
		cents := base
		if int64(i) < rem {
			cents++
		}
		if cents == 0 {
			continue
		}
		shares = append(shares, Share{FromUserID: id, Amount: core.NewMoney(cents)})
	}
	return shares, nil
}
