package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"divvy/internal/amqp"
	"divvy/internal/core"
	"divvy/internal/remote"
	"divvy/internal/storage"
)

// SyncWorker pushes debt changes from SQLite to the settlement journal.
// It is driven two ways: AMQP messages for near-real-time sync, and a
// periodic sweep over unsynced rows in case messages are lost.
type SyncWorker struct {
	storage   *storage.SQLiteRepository
	journal   remote.Journal
	batchSize int
}

func NewSyncWorker(storage *storage.SQLiteRepository, journal remote.Journal, batchSize int) *SyncWorker {
	return &SyncWorker{
		storage:   storage,
		journal:   journal,
		batchSize: batchSize,
	}
}

// HandleMessage processes a single debt sync message from AMQP.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.DebtSyncMessage) error {
	switch msg.Kind {
	case amqp.KindDebtDelete:
		return w.handleDelete(ctx, msg)
	default:
		return w.handleSync(ctx, msg)
	}
}

func (w *SyncWorker) handleSync(ctx context.Context, msg *amqp.DebtSyncMessage) error {
	debt, err := w.storage.GetDebt(ctx, msg.DebtID)
	if errors.Is(err, core.ErrUnknownDebt) {
		// Deleted before we got to it; nothing to journal.
		slog.WarnContext(ctx, "Debt vanished before sync", "debt_id", msg.DebtID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get debt from storage: %w", err)
	}

	return w.syncDebt(ctx, debt)
}

func (w *SyncWorker) handleDelete(ctx context.Context, msg *amqp.DebtSyncMessage) error {
	ref, err := w.journal.Append(ctx, remote.Entry{
		Kind:      amqp.KindDebtDelete,
		DebtID:    msg.DebtID,
		ExpenseID: msg.ExpenseID,
		At:        msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("journal delete entry: %w", err)
	}

	slog.InfoContext(ctx, "Journaled debt deletion",
		"debt_id", msg.DebtID,
		"expense_id", msg.ExpenseID,
		"journal_ref", ref)
	return nil
}

func (w *SyncWorker) syncDebt(ctx context.Context, debt core.Debt) error {
	ref, err := w.journal.Append(ctx, remote.Entry{
		Kind:        amqp.KindDebtSync,
		DebtID:      debt.ID,
		ExpenseID:   debt.ExpenseID,
		FromUserID:  debt.FromUserID,
		ToUserID:    debt.ToUserID,
		AmountCents: debt.Amount.Cents,
		IsPaid:      debt.IsPaid,
		At:          debt.ExpenseDate.Time,
	})
	if err != nil {
		return fmt.Errorf("journal debt entry: %w", err)
	}

	if err := w.storage.MarkDebtSynced(ctx, debt.ID); err != nil {
		return fmt.Errorf("mark debt synced: %w", err)
	}

	slog.InfoContext(ctx, "Journaled debt",
		"debt_id", debt.ID,
		"amount_cents", debt.Amount.Cents,
		"is_paid", debt.IsPaid,
		"journal_ref", ref)
	return nil
}

// ProcessPendingDebts sweeps debts that never made it to the journal.
// Returns the number of debts synced.
func (w *SyncWorker) ProcessPendingDebts(ctx context.Context) (int, error) {
	pending, err := w.storage.ListUnsyncedDebts(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list unsynced debts: %w", err)
	}

	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending debts", "count", len(pending))

	synced := 0
	for _, debt := range pending {
		if err := w.syncDebt(ctx, debt); err != nil {
			slog.ErrorContext(ctx, "Failed to sync pending debt",
				"debt_id", debt.ID,
				"error", err)
			continue
		}
		synced++
	}

	return synced, nil
}
