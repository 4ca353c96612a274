package application

import (
	"context"
	"errors"
	"fmt"
	"log"

	"careledger/internal/audit"
	billing "careledger/internal/billing/domain"
	"careledger/internal/observability/metrics"

	"github.com/shopspring/decimal"
)

// LedgerService exposes statement reads and mutations. Every mutation is
// audited and followed by a budget check for the affected month.
type LedgerService struct {
	services    billing.ServiceRepository
	statements  billing.StatementRepository
	monitor     *BudgetMonitor
	activityLog audit.Logger
	clock       Clock
	logger      *log.Logger
}

// LedgerOption customizes the ledger service.
type LedgerOption func(*LedgerService)

// WithLedgerClock assigns a clock.
func WithLedgerClock(clock Clock) LedgerOption {
	return func(s *LedgerService) { s.clock = clock }
}

// NewLedgerService constructs a ledger service.
func NewLedgerService(services billing.ServiceRepository, statements billing.StatementRepository, monitor *BudgetMonitor, activityLog audit.Logger, logger *log.Logger, opts ...LedgerOption) (*LedgerService, error) {
	if services == nil || statements == nil {
		return nil, errors.New("ledger: nil repository")
	}
	service := &LedgerService{
		services:    services,
		statements:  statements,
		monitor:     monitor,
		activityLog: activityLog,
		clock:       systemClock{},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// StatementInput carries one manual ledger entry.
type StatementInput struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Credit      decimal.Decimal `json:"credit"`
	Debit       decimal.Decimal `json:"debit"`
}

// List returns a service's statements in canonical order together with the
// running balance of the full ledger.
func (s *LedgerService) List(ctx context.Context, serviceID string) ([]billing.Statement, decimal.Decimal, error) {
	if _, err := s.services.Get(ctx, serviceID); err != nil {
		return nil, decimal.Zero, err
	}
	entries, err := s.statements.ListByService(ctx, serviceID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	balance := decimal.Zero
	for i := range entries {
		balance = balance.Add(entries[i].Credit).Sub(entries[i].Debit)
	}
	return entries, balance, nil
}

// Add appends one statement to a service's ledger.
func (s *LedgerService) Add(ctx context.Context, serviceID string, input StatementInput, enteredBy string) (*billing.Statement, error) {
	svc, err := s.services.Get(ctx, serviceID)
	if err != nil {
		metrics.ObserveLedgerMutation("add", metrics.ResultError)
		return nil, err
	}
	date, ok := billing.ParseFlexibleDate(input.Date)
	if !ok {
		metrics.ObserveLedgerMutation("add", metrics.ResultError)
		return nil, billing.ErrInvalidDate
	}
	if date.Before(billing.DateOnly(svc.StartDate)) {
		metrics.ObserveLedgerMutation("add", metrics.ResultError)
		return nil, fmt.Errorf("%w: %s is before service start %s", billing.ErrDateBeforeStart, billing.FormatDate(date), billing.FormatDate(svc.StartDate))
	}
	st := &billing.Statement{
		ID:          billing.NewStatementID(),
		ServiceID:   serviceID,
		Date:        date,
		Description: input.Description,
		Credit:      input.Credit,
		Debit:       input.Debit,
		EnteredBy:   enteredBy,
		CreatedAt:   s.clock.Now(),
	}
	if err := st.Validate(); err != nil {
		metrics.ObserveLedgerMutation("add", metrics.ResultError)
		return nil, err
	}
	if err := s.statements.Insert(ctx, st); err != nil {
		metrics.ObserveLedgerMutation("add", metrics.ResultError)
		return nil, err
	}
	metrics.ObserveLedgerMutation("add", metrics.ResultSuccess)
	s.logActivity(ctx, enteredBy, fmt.Sprintf("Statement added to service %s: %s", serviceID, st.Description))
	s.checkBudget(ctx, serviceID, enteredBy, billing.FormatDate(date))
	return st, nil
}

// StatementPatch mutates a statement. Nil pointers leave fields unchanged.
type StatementPatch struct {
	Date        *string          `json:"date"`
	Description *string          `json:"description"`
	Credit      *decimal.Decimal `json:"credit"`
	Debit       *decimal.Decimal `json:"debit"`
}

// Update applies a patch to one statement.
func (s *LedgerService) Update(ctx context.Context, serviceID, statementID string, patch StatementPatch, updatedBy string) (*billing.Statement, error) {
	svc, err := s.services.Get(ctx, serviceID)
	if err != nil {
		metrics.ObserveLedgerMutation("update", metrics.ResultError)
		return nil, err
	}
	st, err := s.statements.Get(ctx, statementID)
	if err != nil {
		metrics.ObserveLedgerMutation("update", metrics.ResultError)
		return nil, err
	}
	if st.ServiceID != serviceID {
		metrics.ObserveLedgerMutation("update", metrics.ResultError)
		return nil, billing.ErrStatementNotFound
	}
	if patch.Date != nil {
		date, ok := billing.ParseFlexibleDate(*patch.Date)
		if !ok {
			metrics.ObserveLedgerMutation("update", metrics.ResultError)
			return nil, billing.ErrInvalidDate
		}
		if date.Before(billing.DateOnly(svc.StartDate)) {
			metrics.ObserveLedgerMutation("update", metrics.ResultError)
			return nil, fmt.Errorf("%w: %s is before service start %s", billing.ErrDateBeforeStart, billing.FormatDate(date), billing.FormatDate(svc.StartDate))
		}
		st.Date = date
	}
	if patch.Description != nil {
		st.Description = *patch.Description
	}
	if patch.Credit != nil {
		st.Credit = *patch.Credit
	}
	if patch.Debit != nil {
		st.Debit = *patch.Debit
	}
	if err := st.Validate(); err != nil {
		metrics.ObserveLedgerMutation("update", metrics.ResultError)
		return nil, err
	}
	if err := s.statements.Update(ctx, st); err != nil {
		metrics.ObserveLedgerMutation("update", metrics.ResultError)
		return nil, err
	}
	metrics.ObserveLedgerMutation("update", metrics.ResultSuccess)
	s.logActivity(ctx, updatedBy, fmt.Sprintf("Statement %s updated on service %s", statementID, serviceID))
	s.checkBudget(ctx, serviceID, updatedBy, billing.FormatDate(st.Date))
	return st, nil
}

// Delete removes one statement.
func (s *LedgerService) Delete(ctx context.Context, serviceID, statementID, deletedBy string) error {
	if _, err := s.services.Get(ctx, serviceID); err != nil {
		metrics.ObserveLedgerMutation("delete", metrics.ResultError)
		return err
	}
	st, err := s.statements.Get(ctx, statementID)
	if err != nil {
		metrics.ObserveLedgerMutation("delete", metrics.ResultError)
		return err
	}
	if st.ServiceID != serviceID {
		metrics.ObserveLedgerMutation("delete", metrics.ResultError)
		return billing.ErrStatementNotFound
	}
	if err := s.statements.Delete(ctx, statementID); err != nil {
		metrics.ObserveLedgerMutation("delete", metrics.ResultError)
		return err
	}
	metrics.ObserveLedgerMutation("delete", metrics.ResultSuccess)
	s.logActivity(ctx, deletedBy, fmt.Sprintf("Statement %s deleted from service %s", statementID, serviceID))
	s.checkBudget(ctx, serviceID, deletedBy, billing.FormatDate(st.Date))
	return nil
}

func (s *LedgerService) checkBudget(ctx context.Context, serviceID, user, contextDate string) {
	if s.monitor == nil {
		return
	}
	s.monitor.Check(ctx, serviceID, user, contextDate)
}

func (s *LedgerService) logActivity(ctx context.Context, user, action string) {
	if s.activityLog == nil {
		return
	}
	if err := s.activityLog.Log(ctx, audit.Entry{User: user, Action: action, Category: audit.CategoryStatement}); err != nil && s.logger != nil {
		s.logger.Printf("activity log error: %v", err)
	}
}
