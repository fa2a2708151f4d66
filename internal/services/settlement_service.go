package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"divvy/internal/amqp"
	"divvy/internal/core"
	"divvy/internal/ledger"
	"divvy/internal/storage"
)

// SettlementService orchestrates expense and debt operations across the
// SQLite store, the in-memory ledger and AMQP. The database is the local
// source of truth; the ledger is rebuilt from it on startup and kept in
// lockstep on every write.
type SettlementService struct {
	storage    *storage.SQLiteRepository
	ledger     *ledger.Ledger
	amqpClient *amqp.Client
	now        func() time.Time
}

func NewSettlementService(storage *storage.SQLiteRepository, l *ledger.Ledger, amqpClient *amqp.Client) *SettlementService {
	return &SettlementService{
		storage:    storage,
		ledger:     l,
		amqpClient: amqpClient,
		now:        time.Now,
	}
}

// Reload rebuilds the in-memory ledger from the database.
func (s *SettlementService) Reload(ctx context.Context) error {
	debts, err := s.storage.ListDebts(ctx)
	if err != nil {
		return fmt.Errorf("load debts: %w", err)
	}
	s.ledger.ReplaceAll(debts)
	return nil
}

// Roster returns every registered household member.
func (s *SettlementService) Roster(ctx context.Context) ([]core.User, error) {
	return s.storage.ListUsers(ctx)
}

// AddUser registers a household member.
func (s *SettlementService) AddUser(ctx context.Context, u core.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	return s.storage.CreateUser(ctx, u)
}

// CreateExpense persists an expense and derives its debts against the
// current roster. Recurring expenses are stored as templates only; their
// debts appear when the recurring processor materializes instances.
func (s *SettlementService) CreateExpense(ctx context.Context, e core.Expense) ([]core.Debt, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	if e.IsRecurring {
		if err := s.storage.CreateExpense(ctx, e); err != nil {
			return nil, fmt.Errorf("save template: %w", err)
		}
		return nil, nil
	}

	roster, err := s.storage.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	if err := s.storage.CreateExpense(ctx, e); err != nil {
		return nil, fmt.Errorf("save expense: %w", err)
	}

	debts, err := s.ledger.DeriveAndAppend(e, roster)
	if err != nil {
		return nil, fmt.Errorf("derive debts: %w", err)
	}
	if err := s.storage.ReplaceDebts(ctx, e.ID, debts); err != nil {
		return nil, fmt.Errorf("save debts: %w", err)
	}

	s.publishSync(ctx, debts)
	return debts, nil
}

// UpdateExpense replaces an expense and regenerates its debts. Payment
// status of previously derived debts is discarded along with them.
func (s *SettlementService) UpdateExpense(ctx context.Context, e core.Expense) ([]core.Debt, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	if err := s.storage.UpdateExpense(ctx, e); err != nil {
		return nil, err
	}

	if e.IsRecurring {
		// A template derives no debts of its own. Drop whatever was
		// derived before the expense became recurring.
		removed := s.debtsForExpense(e.ID)
		if err := s.storage.ReplaceDebts(ctx, e.ID, nil); err != nil {
			return nil, fmt.Errorf("delete debts: %w", err)
		}
		if _, err := s.ledger.Remove(e.ID); err != nil && !errors.Is(err, core.ErrUnknownExpense) {
			return nil, err
		}
		for _, d := range removed {
			if err := s.publishDelete(ctx, d.ID, e.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to publish delete message",
					"debt_id", d.ID, "error", err)
			}
		}
		return nil, nil
	}

	roster, err := s.storage.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	debts, err := s.ledger.Regenerate(e.ID, e, roster)
	if errors.Is(err, core.ErrUnknownExpense) {
		// Zero-debt expenses leave no ledger trace across restarts.
		debts, err = s.ledger.DeriveAndAppend(e, roster)
	}
	if err != nil {
		return nil, err
	}
	if err := s.storage.ReplaceDebts(ctx, e.ID, debts); err != nil {
		return nil, fmt.Errorf("save debts: %w", err)
	}

	s.publishSync(ctx, debts)
	return debts, nil
}

// DeleteExpense removes an expense and every debt derived from it.
func (s *SettlementService) DeleteExpense(ctx context.Context, id string) error {
	removed := s.debtsForExpense(id)

	if err := s.storage.DeleteExpense(ctx, id); err != nil {
		return err
	}
	if _, err := s.storage.DeleteDebtsByExpense(ctx, id); err != nil {
		return fmt.Errorf("delete debts: %w", err)
	}
	// Templates and replayed instances may have no ledger entry.
	if _, err := s.ledger.Remove(id); err != nil && !errors.Is(err, core.ErrUnknownExpense) {
		return err
	}

	for _, d := range removed {
		if err := s.publishDelete(ctx, d.ID, id); err != nil {
			slog.ErrorContext(ctx, "Failed to publish delete message",
				"debt_id", d.ID, "error", err)
		}
	}
	return nil
}

// GetExpense loads one expense by id.
func (s *SettlementService) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	return s.storage.GetExpense(ctx, id)
}

// ListDebts returns the outstanding debts involving a user, or the whole
// ledger when userID is empty.
func (s *SettlementService) ListDebts(ctx context.Context, userID string) []core.Debt {
	if userID == "" {
		return s.ledger.Snapshot()
	}
	return s.ledger.ListForUser(userID)
}

// MarkDebtPaid settles a single debt.
func (s *SettlementService) MarkDebtPaid(ctx context.Context, debtID string) (core.Debt, error) {
	d, err := s.ledger.MarkPaid(debtID, s.now())
	if err != nil {
		return core.Debt{}, err
	}
	if err := s.storage.SaveDebt(ctx, d); err != nil {
		return core.Debt{}, fmt.Errorf("save debt: %w", err)
	}
	s.publishSync(ctx, []core.Debt{d})
	return d, nil
}

// BalanceFor reports a user's aggregate position.
func (s *SettlementService) BalanceFor(ctx context.Context, userID string) ledger.Balance {
	return s.ledger.BalanceFor(userID)
}

// ApplyPayment spreads a payment from a user across their outstanding
// debts, persists whatever it touched and reports the outcome.
func (s *SettlementService) ApplyPayment(ctx context.Context, fromUserID string, amount core.Money, scope ledger.Scope) (ledger.PaymentResult, error) {
	res, err := s.ledger.ApplyPayment(fromUserID, amount, scope, s.now())
	if err != nil {
		return ledger.PaymentResult{}, err
	}

	touched := append(append([]core.Debt{}, res.Closed...), res.Reduced...)
	if err := s.persistDebts(ctx, touched); err != nil {
		return ledger.PaymentResult{}, err
	}
	s.publishSync(ctx, touched)
	return res, nil
}

// AutoOffset cancels mutual debt between users and persists the result.
func (s *SettlementService) AutoOffset(ctx context.Context, scope ledger.Scope) (ledger.OffsetResult, error) {
	res := s.ledger.AutoOffset(scope, s.now())

	touched := append(append([]core.Debt{}, res.Settled...), res.Reduced...)
	if err := s.persistDebts(ctx, touched); err != nil {
		return ledger.OffsetResult{}, err
	}
	s.publishSync(ctx, touched)
	return res, nil
}

func (s *SettlementService) persistDebts(ctx context.Context, debts []core.Debt) error {
	for _, d := range debts {
		if err := s.storage.SaveDebt(ctx, d); err != nil {
			return fmt.Errorf("save debt %s: %w", d.ID, err)
		}
	}
	return nil
}

func (s *SettlementService) debtsForExpense(expenseID string) []core.Debt {
	var out []core.Debt
	for _, d := range s.ledger.Snapshot() {
		if d.ExpenseID == expenseID {
			out = append(out, d)
		}
	}
	return out
}

func (s *SettlementService) publishSync(ctx context.Context, debts []core.Debt) {
	if s.amqpClient == nil {
		return
	}
	for _, d := range debts {
		if err := s.amqpClient.PublishDebtSync(ctx, d.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish sync message",
				"debt_id", d.ID, "error", err)
			// Keep going, the debt is saved locally and the pending-sync
			// sweep will pick it up.
		}
	}
}

func (s *SettlementService) publishDelete(ctx context.Context, debtID, expenseID string) error {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping delete message")
		return nil
	}
	return s.amqpClient.PublishDebtDelete(ctx, debtID, expenseID)
}

// Close closes both storage and AMQP connections
func (s *SettlementService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close settlement service: %v", errs)
	}
	return nil
}
