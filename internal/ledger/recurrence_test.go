package ledger

import (
	"errors"
	"testing"

	"divvy/internal/core"
)

func monthlyTemplate(id string, startYear, startMonth, startDay int) core.Expense {
	return core.Expense{
		ID:          id,
		Amount:      core.NewMoney(45000),
		Category:    "rent",
		PayerID:     "alice",
		IsRecurring: true,
		Frequency:   core.Monthly,
		StartDate:   core.NewDate(startYear, startMonth, startDay),
	}
}

func TestExpandMonthMonthly(t *testing.T) {
	tpl := monthlyTemplate("tpl", 2025, 1, 15)

	instances, err := ExpandMonth([]core.Expense{tpl}, 1, 2025)
	if err != nil {
		t.Fatalf("ExpandMonth failed: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("got %d instances, want 1", len(instances))
	}
	inst := instances[0]
	if inst.ID != "tpl_2025_01" {
		t.Errorf("instance id = %q, want %q", inst.ID, "tpl_2025_01")
	}
	if !inst.Date.Equal(core.NewDate(2025, 1, 15).Time) {
		t.Errorf("instance date = %v, want 2025-01-15", inst.Date)
	}
	if inst.Amount.Cents != 45000 {
		t.Errorf("instance amount = %d, want 45000", inst.Amount.Cents)
	}

	// Re-expanding the same month must produce the same id, never a duplicate.
	again, err := ExpandMonth([]core.Expense{tpl}, 1, 2025)
	if err != nil {
		t.Fatalf("second ExpandMonth failed: %v", err)
	}
	if len(again) != 1 || again[0].ID != inst.ID {
		t.Errorf("second expansion differs: %+v", again)
	}
}

func TestExpandMonthClampsMissingDay(t *testing.T) {
	// Day-31 template stepping into February lands on the month's last day.
	tpl := monthlyTemplate("tpl", 2025, 1, 31)

	instances, err := ExpandMonth([]core.Expense{tpl}, 2, 2025)
	if err != nil {
		t.Fatalf("ExpandMonth failed: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("got %d instances, want 1", len(instances))
	}
	if !instances[0].Date.Equal(core.NewDate(2025, 2, 28).Time) {
		t.Errorf("instance date = %v, want 2025-02-28", instances[0].Date)
	}

	// Leap year February keeps the 29th.
	leap, err := ExpandMonth([]core.Expense{monthlyTemplate("tpl", 2024, 1, 31)}, 2, 2024)
	if err != nil {
		t.Fatalf("ExpandMonth failed: %v", err)
	}
	if len(leap) != 1 || !leap[0].Date.Equal(core.NewDate(2024, 2, 29).Time) {
		t.Errorf("leap-year instance = %+v, want 2024-02-29", leap)
	}
}

func TestExpandMonthBounds(t *testing.T) {
	tpl := monthlyTemplate("tpl", 2025, 3, 10)

	// Start date after the target month: nothing.
	before, err := ExpandMonth([]core.Expense{tpl}, 2, 2025)
	if err != nil {
		t.Fatalf("ExpandMonth failed: %v", err)
	}
	if len(before) != 0 {
		t.Errorf("expected no instances before start, got %d", len(before))
	}

	// End date before the target month: nothing.
	ended := tpl
	ended.EndDate = core.NewDate(2025, 4, 30)
	after, err := ExpandMonth([]core.Expense{ended}, 5, 2025)
	if err != nil {
		t.Fatalf("ExpandMonth failed: %v", err)
	}
	if len(after) != 0 {
		t.Errorf("expected no instances past end date, got %d", len(after))
	}

	// Non-recurring expenses are skipped, not an error.
	oneOff := core.Expense{ID: "x", Amount: core.NewMoney(100), Category: "misc", PayerID: "alice", Date: core.NewDate(2025, 3, 1)}
	none, err := ExpandMonth([]core.Expense{oneOff}, 3, 2025)
	if err != nil {
		t.Fatalf("ExpandMonth failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no instances for one-off expense, got %d", len(none))
	}
}

func TestExpandMonthWeekly(t *testing.T) {
	tpl := monthlyTemplate("wk", 2025, 1, 6) // a Monday
	tpl.Frequency = core.Weekly

	instances, err := ExpandMonth([]core.Expense{tpl}, 2, 2025)
	if err != nil {
		t.Fatalf("ExpandMonth failed: %v", err)
	}
	// Mondays in Feb 2025: 3, 10, 17, 24.
	wantDays := []int{3, 10, 17, 24}
	if len(instances) != len(wantDays) {
		t.Fatalf("got %d instances, want %d: %+v", len(instances), len(wantDays), instances)
	}
	for i, inst := range instances {
		if inst.Date.Day() != wantDays[i] {
			t.Errorf("instance %d on day %d, want %d", i, inst.Date.Day(), wantDays[i])
		}
		want := core.DailyInstanceID("wk", 2025, 2, wantDays[i])
		if inst.ID != want {
			t.Errorf("instance %d id = %q, want %q", i, inst.ID, want)
		}
	}
}

func TestExpandMonthDaily(t *testing.T) {
	tpl := monthlyTemplate("day", 2025, 2, 26)
	tpl.Frequency = core.Daily
	tpl.EndDate = core.NewDate(2025, 3, 2)

	instances, err := ExpandMonth([]core.Expense{tpl}, 3, 2025)
	if err != nil {
		t.Fatalf("ExpandMonth failed: %v", err)
	}
	// March occurrences capped by the end date: 1st and 2nd.
	if len(instances) != 2 {
		t.Fatalf("got %d instances, want 2: %+v", len(instances), instances)
	}
	if instances[0].Date.Day() != 1 || instances[1].Date.Day() != 2 {
		t.Errorf("unexpected days: %d, %d", instances[0].Date.Day(), instances[1].Date.Day())
	}
}

func TestExpandMonthUnknownFrequency(t *testing.T) {
	tpl := monthlyTemplate("bad", 2025, 1, 1)
	tpl.Frequency = "yearly"

	_, err := ExpandMonth([]core.Expense{tpl}, 1, 2025)
	if !errors.Is(err, core.ErrUnknownFrequency) {
		t.Errorf("ExpandMonth error = %v, want ErrUnknownFrequency", err)
	}
}
