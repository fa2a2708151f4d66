// Package storage persists users, expenses and debts in SQLite. It is the
// authoritative local store; the in-memory ledger is a projection rebuilt
// from it.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"divvy/internal/core"
)

const dayFormat = "2006-01-02"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- users ---

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users (id, name, created_at) VALUES (?, ?, ?)",
		u.ID, u.Name, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		var u core.User
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// --- expenses ---

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) error {
	return r.createExpense(ctx, e, "")
}

// CreateExpenseInstance stores a materialized occurrence of a recurring
// template. The template link makes idempotent expansion checks cheap.
func (r *SQLiteRepository) CreateExpenseInstance(ctx context.Context, inst core.ExpenseInstance) error {
	return r.createExpense(ctx, inst.Expense(), inst.TemplateID)
}

func (r *SQLiteRepository) createExpense(ctx context.Context, e core.Expense, templateID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (id, amount_cents, category, description, payer_id, expense_date,
		                       is_recurring, frequency, start_date, end_date, template_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Amount.Cents, e.Category, e.Description, e.PayerID, dayString(e.Date),
		boolToInt(e.IsRecurring), string(e.Frequency), dayString(e.StartDate), dayString(e.EndDate),
		templateID, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, amount_cents, category, description, payer_id, expense_date,
		        is_recurring, frequency, start_date, end_date
		 FROM expenses WHERE id = ?`, id)

	e, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return core.Expense{}, fmt.Errorf("%w: %s", core.ErrUnknownExpense, id)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

// UpdateExpense replaces every stored field of the expense. It is a full
// replace to match debt regeneration semantics.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET amount_cents = ?, category = ?, description = ?, payer_id = ?,
		        expense_date = ?, is_recurring = ?, frequency = ?, start_date = ?, end_date = ?
		 WHERE id = ?`,
		e.Amount.Cents, e.Category, e.Description, e.PayerID, dayString(e.Date),
		boolToInt(e.IsRecurring), string(e.Frequency), dayString(e.StartDate), dayString(e.EndDate),
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", core.ErrUnknownExpense, e.ID)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", core.ErrUnknownExpense, id)
	}
	return nil
}

func (r *SQLiteRepository) ExpenseExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM expenses WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check expense existence: %w", err)
	}
	return true, nil
}

// ListRecurringTemplates returns every recurring expense template.
func (r *SQLiteRepository) ListRecurringTemplates(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, amount_cents, category, description, payer_id, expense_date,
		        is_recurring, frequency, start_date, end_date
		 FROM expenses WHERE is_recurring = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list recurring templates: %w", err)
	}
	defer rows.Close()

	var templates []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

// --- debts ---

// ReplaceDebts swaps all debts of an expense for a fresh derivation in one
// transaction, so a half-applied regeneration is never visible.
func (r *SQLiteRepository) ReplaceDebts(ctx context.Context, expenseID string, debts []core.Debt) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM debts WHERE expense_id = ?", expenseID); err != nil {
		return fmt.Errorf("delete old debts: %w", err)
	}
	now := time.Now().Unix()
	for _, d := range debts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO debts (id, from_user_id, to_user_id, amount_cents, expense_id, expense_date,
			                    is_paid, paid_at, synced, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			d.ID, d.FromUserID, d.ToUserID, d.Amount.Cents, d.ExpenseID, dayString(d.ExpenseDate),
			boolToInt(d.IsPaid), paidAtValue(d.PaidAt), now,
		); err != nil {
			return fmt.Errorf("insert debt: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteDebtsByExpense(ctx context.Context, expenseID string) (int, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM debts WHERE expense_id = ?", expenseID)
	if err != nil {
		return 0, fmt.Errorf("delete debts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted debts: %w", err)
	}
	return int(n), nil
}

// SaveDebt writes back a debt mutated by a payment, offset or mark-paid.
// The record is flagged unsynced until the sync worker mirrors it.
func (r *SQLiteRepository) SaveDebt(ctx context.Context, d core.Debt) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE debts SET amount_cents = ?, is_paid = ?, paid_at = ?, synced = 0 WHERE id = ?`,
		d.Amount.Cents, boolToInt(d.IsPaid), paidAtValue(d.PaidAt), d.ID,
	)
	if err != nil {
		return fmt.Errorf("update debt: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", core.ErrUnknownDebt, d.ID)
	}
	return nil
}

func (r *SQLiteRepository) GetDebt(ctx context.Context, id string) (core.Debt, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, from_user_id, to_user_id, amount_cents, expense_id, expense_date, is_paid, paid_at
		 FROM debts WHERE id = ?`, id)

	d, err := scanDebt(row)
	if err == sql.ErrNoRows {
		return core.Debt{}, fmt.Errorf("%w: %s", core.ErrUnknownDebt, id)
	}
	if err != nil {
		return core.Debt{}, fmt.Errorf("get debt: %w", err)
	}
	return d, nil
}

// ListDebts returns the complete debt collection, oldest expense first.
func (r *SQLiteRepository) ListDebts(ctx context.Context) ([]core.Debt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, from_user_id, to_user_id, amount_cents, expense_id, expense_date, is_paid, paid_at
		 FROM debts ORDER BY expense_date, id`)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	defer rows.Close()
	return collectDebts(rows)
}

// ListUnsyncedDebts returns debts the sync worker has not mirrored yet.
func (r *SQLiteRepository) ListUnsyncedDebts(ctx context.Context, limit int) ([]core.Debt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, from_user_id, to_user_id, amount_cents, expense_id, expense_date, is_paid, paid_at
		 FROM debts WHERE synced = 0 ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unsynced debts: %w", err)
	}
	defer rows.Close()
	return collectDebts(rows)
}

func (r *SQLiteRepository) MarkDebtSynced(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE debts SET synced = 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("mark debt synced: %w", err)
	}
	return nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e          core.Expense
		cents      int64
		date       string
		recurring  int
		freq       string
		start, end string
	)
	err := row.Scan(&e.ID, &cents, &e.Category, &e.Description, &e.PayerID, &date,
		&recurring, &freq, &start, &end)
	if err != nil {
		return core.Expense{}, err
	}
	e.Amount = core.NewMoney(cents)
	e.Date = parseDay(date)
	e.IsRecurring = recurring != 0
	e.Frequency = core.Frequency(freq)
	e.StartDate = parseDay(start)
	e.EndDate = parseDay(end)
	return e, nil
}

func scanDebt(row rowScanner) (core.Debt, error) {
	var (
		d      core.Debt
		cents  int64
		date   string
		isPaid int
		paidAt sql.NullInt64
	)
	err := row.Scan(&d.ID, &d.FromUserID, &d.ToUserID, &cents, &d.ExpenseID, &date, &isPaid, &paidAt)
	if err != nil {
		return core.Debt{}, err
	}
	d.Amount = core.NewMoney(cents)
	d.ExpenseDate = parseDay(date)
	d.IsPaid = isPaid != 0
	if paidAt.Valid {
		d.PaidAt = time.Unix(paidAt.Int64, 0).UTC()
	}
	return d, nil
}

func collectDebts(rows *sql.Rows) ([]core.Debt, error) {
	var debts []core.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		debts = append(debts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate debts: %w", err)
	}
	return debts, nil
}

func dayString(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dayFormat)
}

func parseDay(s string) core.Date {
	if s == "" {
		return core.Date{}
	}
	t, err := time.Parse(dayFormat, s)
	if err != nil {
		return core.Date{}
	}
	return core.DateOf(t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func paidAtValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}
