package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"divvy/internal/core"
	"divvy/internal/ledger"
	"divvy/internal/storage"
)

// RecurringProcessor materializes expense instances from recurring
// templates, one calendar month at a time. Instance ids are derived from
// the template and the occurrence date, so running a month twice creates
// nothing new.
type RecurringProcessor struct {
	storage           *storage.SQLiteRepository
	settlementService *SettlementService
}

// NewRecurringProcessor creates a new recurring expense processor
func NewRecurringProcessor(storage *storage.SQLiteRepository, settlementService *SettlementService) *RecurringProcessor {
	return &RecurringProcessor{
		storage:           storage,
		settlementService: settlementService,
	}
}

// ExpandMonth previews the instances the templates would produce for a
// month without persisting anything.
func (p *RecurringProcessor) ExpandMonth(ctx context.Context, month, year int) ([]core.ExpenseInstance, error) {
	templates, err := p.storage.ListRecurringTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	return ledger.ExpandMonth(templates, month, year)
}

// ProcessMonth materializes every due instance for the given month and
// derives debts for the ones that did not exist yet. Returns the number of
// instances created.
func (p *RecurringProcessor) ProcessMonth(ctx context.Context, month, year int) (int, error) {
	if p.storage == nil || p.settlementService == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	instances, err := p.ExpandMonth(ctx, month, year)
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Processing recurring templates",
		"instances", len(instances),
		"month", month,
		"year", year)

	created := 0
	for _, inst := range instances {
		exists, err := p.storage.ExpenseExists(ctx, inst.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to check instance existence",
				"instance_id", inst.ID,
				"error", err)
			continue
		}
		if exists {
			continue
		}

		if err := p.storage.CreateExpenseInstance(ctx, inst); err != nil {
			slog.ErrorContext(ctx, "Failed to store expense instance",
				"instance_id", inst.ID,
				"template_id", inst.TemplateID,
				"error", err)
			continue
		}

		if err := p.deriveDebts(ctx, inst); err != nil {
			slog.ErrorContext(ctx, "Failed to derive debts for instance",
				"instance_id", inst.ID,
				"error", err)
			continue
		}

		created++
		slog.InfoContext(ctx, "Materialized expense instance",
			"instance_id", inst.ID,
			"template_id", inst.TemplateID,
			"amount_cents", inst.Amount.Cents,
			"date", inst.Date.Format("2006-01-02"))
	}

	return created, nil
}

// ProcessCurrentMonth is the ticker entry point.
func (p *RecurringProcessor) ProcessCurrentMonth(ctx context.Context, now time.Time) (int, error) {
	return p.ProcessMonth(ctx, int(now.Month()), now.Year())
}

func (p *RecurringProcessor) deriveDebts(ctx context.Context, inst core.ExpenseInstance) error {
	roster, err := p.storage.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}

	debts, err := p.settlementService.ledger.DeriveAndAppend(inst.Expense(), roster)
	if err != nil {
		return err
	}
	if err := p.storage.ReplaceDebts(ctx, inst.ID, debts); err != nil {
		return fmt.Errorf("save debts: %w", err)
	}
	p.settlementService.publishSync(ctx, debts)
	return nil
}
