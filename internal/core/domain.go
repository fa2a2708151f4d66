package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

type (
	// Frequency is the cadence of a recurring expense template.
	Frequency string

	// Date is a calendar day. The time-of-day component is always midnight UTC.
	Date struct {
		time.Time
	}

	// User is a participant in the household ledger.
	User struct {
		ID   string
		Name string
	}

	// Expense is a logged shared expense. When IsRecurring is set the record
	// acts as a template: it is never split directly, its monthly expansions
	// are.
	Expense struct {
		ID          string
		Amount      Money
		Category    string
		Description string
		PayerID     string
		Date        Date

		IsRecurring bool
		Frequency   Frequency
		StartDate   Date
		EndDate     Date // zero means open-ended
	}

	// ExpenseInstance is a materialized occurrence of a recurring template
	// for one target month. Its ID is deterministic so re-expanding the same
	// month never duplicates it.
	ExpenseInstance struct {
		ID         string
		TemplateID string
		Amount     Money
		Category   string
		PayerID    string
		Date       Date
	}

	// Debt is a directional obligation from one user to another, tied to the
	// expense that created it.
	Debt struct {
		ID          string
		FromUserID  string
		ToUserID    string
		Amount      Money
		ExpenseID   string
		ExpenseDate Date
		IsPaid      bool
		PaidAt      time.Time // zero while unpaid
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidSplit     = errors.New("invalid split")
	ErrNegativePayment  = errors.New("payment amount must be positive")
	ErrUnknownExpense   = errors.New("unknown expense")
	ErrUnknownDebt      = errors.New("unknown debt")
	ErrUnknownFrequency = errors.New("unknown frequency")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyPayer       = errors.New("empty payer")
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
)

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as an int.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year.
func (d Date) Year() int {
	return d.Time.Year()
}

func (f Frequency) Validate() error {
	switch f {
	case Daily, Weekly, Monthly:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFrequency, string(f))
	}
}

func (u User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("empty user id")
	}
	if strings.TrimSpace(u.Name) == "" {
		return errors.New("empty user name")
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if strings.TrimSpace(e.PayerID) == "" {
		return ErrEmptyPayer
	}
	if e.IsRecurring {
		if err := e.Frequency.Validate(); err != nil {
			return err
		}
		if err := e.StartDate.Validate(); err != nil {
			return errors.New("invalid start date: " + err.Error())
		}
		if !e.EndDate.IsZero() && e.EndDate.Before(e.StartDate.Time) {
			return errors.New("end date must not be before start date")
		}
		return nil
	}
	return e.Date.Validate()
}

// InstanceID derives the deterministic id for a template's occurrence in a
// given month. Frequencies that fire more than once per month disambiguate
// with the day.
func InstanceID(templateID string, year, month int) string {
	return fmt.Sprintf("%s_%d_%02d", templateID, year, month)
}

// DailyInstanceID is the day-qualified variant used by daily and weekly
// expansions, which can emit several occurrences within one month.
func DailyInstanceID(templateID string, year, month, day int) string {
	return fmt.Sprintf("%s_%d_%02d_%02d", templateID, year, month, day)
}

// Expense converts a materialized instance into a plain expense so it flows
// through the same debt-derivation path as a one-off expense.
func (i ExpenseInstance) Expense() Expense {
	return Expense{
		ID:       i.ID,
		Amount:   i.Amount,
		Category: i.Category,
		PayerID:  i.PayerID,
		Date:     i.Date,
	}
}

// Outstanding reports whether the debt still counts toward balances.
func (d Debt) Outstanding() bool {
	return !d.IsPaid && d.Amount.Cents > 0
}
