package amqp

import (
	"encoding/json"
	"time"
)

// Message kinds routed through the sync queue.
const (
	KindDebtSync   = "debt.sync"
	KindDebtDelete = "debt.delete"
)

// DebtSyncMessage is a lightweight notification that a debt changed and
// should be written to the settlement journal. It carries only identifiers,
// the worker fetches the current row from the database.
type DebtSyncMessage struct {
	Kind      string    `json:"kind"`
	DebtID    string    `json:"debt_id"`
	ExpenseID string    `json:"expense_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewDebtSyncMessage creates a sync notification for a single debt
func NewDebtSyncMessage(debtID string) *DebtSyncMessage {
	return &DebtSyncMessage{
		Kind:      KindDebtSync,
		DebtID:    debtID,
		Timestamp: time.Now(),
	}
}

// NewDebtDeleteMessage creates a deletion notification. The expense id is
// included because the debt row no longer exists when the worker runs.
func NewDebtDeleteMessage(debtID, expenseID string) *DebtSyncMessage {
	return &DebtSyncMessage{
		Kind:      KindDebtDelete,
		DebtID:    debtID,
		ExpenseID: expenseID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *DebtSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DebtSyncMessageFromJSON creates a message from JSON bytes
func DebtSyncMessageFromJSON(data []byte) (*DebtSyncMessage, error) {
	var msg DebtSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
