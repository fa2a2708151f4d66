package remote

import (
	"context"
	"time"
)

// Entry is one row of the external settlement journal. Every debt change
// that leaves the household service is flattened into this shape.
type Entry struct {
	Kind        string
	DebtID      string
	ExpenseID   string
	FromUserID  string
	ToUserID    string
	AmountCents int64
	IsPaid      bool
	At          time.Time
}

// Journal is the port for outbound settlement sinks.
type Journal interface {
	Append(ctx context.Context, e Entry) (rowRef string, err error)
}
