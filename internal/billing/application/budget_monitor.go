package application

import (
	"context"
	"fmt"
	"log"

	"careledger/internal/audit"
	billing "careledger/internal/billing/domain"
	"careledger/internal/observability/metrics"

	"github.com/shopspring/decimal"
)

// BudgetMonitor evaluates month-windowed debit totals against a service's
// setup budget. It is a side effect of ledger mutations, never a gate: a
// failed check is logged and swallowed, the triggering mutation stands.
type BudgetMonitor struct {
	services    billing.ServiceRepository
	statements  billing.StatementRepository
	activityLog audit.Logger
	clock       Clock
	logger      *log.Logger
}

// MonitorOption customizes the monitor.
type MonitorOption func(*BudgetMonitor)

// WithMonitorClock assigns a clock.
func WithMonitorClock(clock Clock) MonitorOption {
	return func(m *BudgetMonitor) { m.clock = clock }
}

// NewBudgetMonitor constructs a monitor.
func NewBudgetMonitor(services billing.ServiceRepository, statements billing.StatementRepository, activityLog audit.Logger, logger *log.Logger, opts ...MonitorOption) (*BudgetMonitor, error) {
	if services == nil || statements == nil {
		return nil, fmt.Errorf("budget monitor: nil repository")
	}
	monitor := &BudgetMonitor{
		services:    services,
		statements:  statements,
		activityLog: activityLog,
		clock:       systemClock{},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(monitor)
	}
	return monitor, nil
}

// Check re-evaluates the budget window for a service. contextDate accepts the
// two flexible layouts; anything else (including empty) means today.
// triggeredBy defaults to System.
func (m *BudgetMonitor) Check(ctx context.Context, serviceID, triggeredBy, contextDate string) {
	if m == nil {
		return
	}
	outcome, err := m.evaluate(ctx, serviceID, triggeredBy, contextDate)
	metrics.ObserveBudgetCheck(outcome)
	if err != nil && m.logger != nil {
		m.logger.Printf("budget check error: service=%s err=%v", serviceID, err)
	}
}

func (m *BudgetMonitor) evaluate(ctx context.Context, serviceID, triggeredBy, contextDate string) (string, error) {
	svc, err := m.services.Get(ctx, serviceID)
	if err != nil {
		return metrics.BudgetOutcomeError, err
	}
	if !svc.BudgetEnabled() {
		return metrics.BudgetOutcomeDisabled, nil
	}

	ctxDate, ok := billing.ParseFlexibleDate(contextDate)
	if !ok {
		ctxDate = billing.DateOnly(m.clock.Now())
	}
	windowStart := billing.EffectiveWindowStart(svc.StartDate, ctxDate)
	_, windowEnd := billing.MonthWindow(ctxDate)

	entries, err := m.statements.ListByService(ctx, serviceID)
	if err != nil {
		return metrics.BudgetOutcomeError, err
	}
	total := decimal.Zero
	for i := range entries {
		d := entries[i].Date
		if d.IsZero() || d.Before(windowStart) || d.After(windowEnd) {
			continue
		}
		total = total.Add(entries[i].Debit)
	}

	if total.LessThanOrEqual(svc.SetupBudget) {
		return metrics.BudgetOutcomeOK, nil
	}

	if triggeredBy == "" {
		triggeredBy = billing.SystemUser
	}
	monthTag := fmt.Sprintf("%04d-%02d", ctxDate.Year(), int(ctxDate.Month()))
	message := fmt.Sprintf("Monthly expenses for service %s exceeded setup budget for %s (£%s > £%s)",
		serviceID, monthTag, total.StringFixed(2), svc.SetupBudget.StringFixed(2))
	if m.activityLog != nil {
		if err := m.activityLog.Log(ctx, audit.Entry{
			User:     triggeredBy,
			Action:   message,
			Category: audit.CategoryBudget,
		}); err != nil && m.logger != nil {
			m.logger.Printf("budget alert log error: service=%s err=%v", serviceID, err)
		}
	}
	return metrics.BudgetOutcomeAlerted, nil
}
