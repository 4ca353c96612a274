package application

import (
	"context"
	"log"
	"strings"
	"testing"
	"time"

	"careledger/internal/audit"
	billing "careledger/internal/billing/domain"
	"careledger/internal/billing/infrastructure/memory"

	"github.com/shopspring/decimal"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type captureLog struct {
	entries []audit.Entry
}

func (l *captureLog) Log(_ context.Context, entry audit.Entry) error {
	l.entries = append(l.entries, entry)
	return nil
}

var testLogger = log.New(testWriter{}, "", 0)

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func monitorFixture(t *testing.T, budget decimal.Decimal, now time.Time) (*BudgetMonitor, *memory.ServiceRepository, *memory.StatementRepository, *captureLog) {
	t.Helper()
	services := memory.NewServiceRepository()
	statements := memory.NewStatementRepository()
	activity := &captureLog{}

	svc := &billing.Service{
		ServiceID:   "SV-CL001-0001",
		ClientID:    "CL001",
		StartDate:   time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC),
		SetupBudget: budget,
	}
	if err := services.Create(context.Background(), svc); err != nil {
		t.Fatalf("create service: %v", err)
	}

	monitor, err := NewBudgetMonitor(services, statements, activity, testLogger, WithMonitorClock(fixedClock{now}))
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	return monitor, services, statements, activity
}

func addDebit(t *testing.T, statements *memory.StatementRepository, serviceID string, date time.Time, amount string) {
	t.Helper()
	debit, err := decimal.NewFromString(amount)
	if err != nil {
		t.Fatalf("parse amount: %v", err)
	}
	st := &billing.Statement{
		ServiceID:   serviceID,
		Date:        date,
		Description: "Care visit",
		Debit:       debit,
	}
	if err := statements.Insert(context.Background(), st); err != nil {
		t.Fatalf("insert statement: %v", err)
	}
}

func TestBudgetMonitorExactBudgetDoesNotAlert(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	monitor, _, statements, activity := monitorFixture(t, decimal.NewFromFloat(200.00), now)

	addDebit(t, statements, "SV-CL001-0001", time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC), "120.00")
	addDebit(t, statements, "SV-CL001-0001", time.Date(2024, time.May, 12, 0, 0, 0, 0, time.UTC), "80.00")

	monitor.Check(context.Background(), "SV-CL001-0001", "carol", "")
	if len(activity.entries) != 0 {
		t.Fatalf("got %d alerts, want none for total == budget", len(activity.entries))
	}
}

func TestBudgetMonitorExceededAlertsWithMonthTag(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	monitor, _, statements, activity := monitorFixture(t, decimal.NewFromFloat(200.00), now)

	addDebit(t, statements, "SV-CL001-0001", time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC), "120.00")
	addDebit(t, statements, "SV-CL001-0001", time.Date(2024, time.May, 12, 0, 0, 0, 0, time.UTC), "80.01")

	monitor.Check(context.Background(), "SV-CL001-0001", "carol", "")
	if len(activity.entries) != 1 {
		t.Fatalf("got %d alerts, want 1", len(activity.entries))
	}
	entry := activity.entries[0]
	if entry.Category != audit.CategoryBudget {
		t.Fatalf("category = %q, want budget", entry.Category)
	}
	if entry.User != "carol" {
		t.Fatalf("user = %q, want carol", entry.User)
	}
	if !strings.Contains(entry.Action, "2024-05") {
		t.Fatalf("alert %q missing month tag", entry.Action)
	}
	if !strings.Contains(entry.Action, "200.01") || !strings.Contains(entry.Action, "200.00") {
		t.Fatalf("alert %q missing totals", entry.Action)
	}
}

func TestBudgetMonitorIgnoresOtherMonths(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	monitor, _, statements, activity := monitorFixture(t, decimal.NewFromFloat(100.00), now)

	addDebit(t, statements, "SV-CL001-0001", time.Date(2024, time.April, 30, 0, 0, 0, 0, time.UTC), "500.00")
	addDebit(t, statements, "SV-CL001-0001", time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC), "50.00")

	monitor.Check(context.Background(), "SV-CL001-0001", "carol", "")
	if len(activity.entries) != 0 {
		t.Fatalf("april debits leaked into the may window: %d alerts", len(activity.entries))
	}
}

func TestBudgetMonitorContextDateSelectsWindow(t *testing.T) {
	now := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	monitor, _, statements, activity := monitorFixture(t, decimal.NewFromFloat(100.00), now)

	addDebit(t, statements, "SV-CL001-0001", time.Date(2024, time.April, 10, 0, 0, 0, 0, time.UTC), "150.00")

	monitor.Check(context.Background(), "SV-CL001-0001", "carol", "2024-04-15")
	if len(activity.entries) != 1 {
		t.Fatalf("got %d alerts, want 1 for the april window", len(activity.entries))
	}
	if !strings.Contains(activity.entries[0].Action, "2024-04") {
		t.Fatalf("alert %q missing april tag", activity.entries[0].Action)
	}
}

func TestBudgetMonitorFirstPartialMonthUsesStartDate(t *testing.T) {
	// Debits before the service start in the same month are outside the window.
	now := time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)
	monitor, _, statements, activity := monitorFixture(t, decimal.NewFromFloat(100.00), now)

	addDebit(t, statements, "SV-CL001-0001", time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC), "150.00")

	monitor.Check(context.Background(), "SV-CL001-0001", "carol", "")
	if len(activity.entries) != 1 {
		t.Fatalf("got %d alerts, want 1", len(activity.entries))
	}
}

func TestBudgetMonitorDisabledWithoutBudget(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	monitor, _, statements, activity := monitorFixture(t, decimal.Zero, now)

	addDebit(t, statements, "SV-CL001-0001", time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC), "9999.00")

	monitor.Check(context.Background(), "SV-CL001-0001", "carol", "")
	if len(activity.entries) != 0 {
		t.Fatalf("monitoring must be disabled with no budget; got %d alerts", len(activity.entries))
	}
}

func TestBudgetMonitorUnknownServiceIsSwallowed(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	monitor, _, _, activity := monitorFixture(t, decimal.NewFromFloat(200.00), now)

	monitor.Check(context.Background(), "SV-missing", "carol", "")
	if len(activity.entries) != 0 {
		t.Fatalf("got %d alerts for an unknown service", len(activity.entries))
	}
}
