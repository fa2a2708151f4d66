package ledger

import (
	"fmt"
	"time"

	"divvy/internal/core"
)

// stepper emits the occurrence dates of one template inside the target
// month. Each frequency has its own stepping algorithm.
type stepper interface {
	datesIn(tpl core.Expense, monthStart, monthEnd time.Time) []core.Date
}

type (
	dailyStepper   struct{}
	weeklyStepper  struct{}
	monthlyStepper struct{}
)

// steppers maps each frequency to its stepping strategy.
var steppers = map[core.Frequency]stepper{
	core.Daily:   dailyStepper{},
	core.Weekly:  weeklyStepper{},
	core.Monthly: monthlyStepper{},
}

// ExpandMonth turns recurring templates into dated instances for one target
// month. Expansion is deterministic: instance ids derive from the template
// id and the occurrence date, so expanding the same month twice yields the
// same instances. Templates that start after the target month, or end before
// it, contribute nothing.
func ExpandMonth(templates []core.Expense, month, year int) ([]core.ExpenseInstance, error) {
	if month < 1 || month > 12 {
		return nil, core.ErrInvalidMonth
	}
	monthStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)

	var instances []core.ExpenseInstance
	for _, tpl := range templates {
		if !tpl.IsRecurring {
			continue
		}
		step, ok := steppers[tpl.Frequency]
		if !ok {
			return nil, fmt.Errorf("%w: %q", core.ErrUnknownFrequency, string(tpl.Frequency))
		}
		for _, d := range step.datesIn(tpl, monthStart, monthEnd) {
			if d.Before(tpl.StartDate.Time) {
				continue
			}
			if !tpl.EndDate.IsZero() && d.After(tpl.EndDate.Time) {
				continue
			}
			instances = append(instances, instanceAt(tpl, d))
		}
	}
	return instances, nil
}

func instanceAt(tpl core.Expense, d core.Date) core.ExpenseInstance {
	id := core.InstanceID(tpl.ID, d.Year(), d.Month())
	if tpl.Frequency != core.Monthly {
		id = core.DailyInstanceID(tpl.ID, d.Year(), d.Month(), d.Day())
	}
	return core.ExpenseInstance{
		ID:         id,
		TemplateID: tpl.ID,
		Amount:     tpl.Amount,
		Category:   tpl.Category,
		PayerID:    tpl.PayerID,
		Date:       d,
	}
}

func (dailyStepper) datesIn(tpl core.Expense, monthStart, monthEnd time.Time) []core.Date {
	start := tpl.StartDate.Time
	if start.Before(monthStart) {
		start = monthStart
	}
	var out []core.Date
	for d := start; !d.After(monthEnd); d = d.AddDate(0, 0, 1) {
		out = append(out, core.DateOf(d))
	}
	return out
}

func (weeklyStepper) datesIn(tpl core.Expense, monthStart, monthEnd time.Time) []core.Date {
	d := tpl.StartDate.Time
	if d.Before(monthStart) {
		// Jump whole weeks to keep the start-date phase.
		days := int(monthStart.Sub(d).Hours() / 24)
		d = d.AddDate(0, 0, (days/7)*7)
	}
	var out []core.Date
	for ; !d.After(monthEnd); d = d.AddDate(0, 0, 7) {
		if !d.Before(monthStart) {
			out = append(out, core.DateOf(d))
		}
	}
	return out
}

// Monthly templates anchored on a day the target month does not have are
// clamped to the month's last day, so a day-31 template still fires in
// February.
func (monthlyStepper) datesIn(tpl core.Expense, monthStart, monthEnd time.Time) []core.Date {
	if tpl.StartDate.After(monthEnd) {
		return nil
	}
	day := tpl.StartDate.Day()
	if last := monthEnd.Day(); day > last {
		day = last
	}
	return []core.Date{core.NewDate(monthStart.Year(), int(monthStart.Month()), day)}
}
