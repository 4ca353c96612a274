package application

import (
	"context"
	"errors"
	"log"
	"time"

	billing "careledger/internal/billing/domain"
	"careledger/internal/observability/metrics"
)

// BackfillResult reports one backfill run.
type BackfillResult struct {
	ServicesScanned int `json:"servicesScanned"`
	EntriesInserted int `json:"entriesInserted"`
}

// Backfill inserts the monthly-fee entries each billable service is missing,
// from its start month through the current month. Re-running it is a no-op
// for months that already carry a monthly entry. It never consults the
// budget monitor.
type Backfill struct {
	services   billing.ServiceRepository
	statements billing.StatementRepository
	clock      Clock
	logger     *log.Logger
}

// BackfillOption customizes the backfill job.
type BackfillOption func(*Backfill)

// WithBackfillClock assigns a clock.
func WithBackfillClock(clock Clock) BackfillOption {
	return func(b *Backfill) { b.clock = clock }
}

// NewBackfill constructs a backfill job.
func NewBackfill(services billing.ServiceRepository, statements billing.StatementRepository, logger *log.Logger, opts ...BackfillOption) (*Backfill, error) {
	if services == nil || statements == nil {
		return nil, errors.New("backfill: nil repository")
	}
	job := &Backfill{
		services:   services,
		statements: statements,
		clock:      systemClock{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(job)
	}
	return job, nil
}

// Run performs one full pass over the billable services.
func (b *Backfill) Run(ctx context.Context) (*BackfillResult, error) {
	today := billing.DateOnly(b.clock.Now())
	services, err := b.services.ListBillable(ctx, today)
	if err != nil {
		return nil, err
	}

	result := &BackfillResult{ServicesScanned: len(services)}
	now := b.clock.Now()
	for i := range services {
		inserted, err := b.fillService(ctx, &services[i], today, now)
		if err != nil {
			return nil, err
		}
		result.EntriesInserted += inserted
	}

	metrics.ObserveBackfillEntries(result.EntriesInserted)
	if b.logger != nil {
		b.logger.Printf("backfill: %d services scanned, %d monthly entries inserted", result.ServicesScanned, result.EntriesInserted)
	}
	return result, nil
}

func (b *Backfill) fillService(ctx context.Context, svc *billing.Service, today, now time.Time) (int, error) {
	end := svc.BackfillEnd(today)
	months := billing.MonthSequence(svc.StartDate, end)
	if len(months) == 0 {
		return 0, nil
	}

	existing, err := b.statements.ListByService(ctx, svc.ServiceID)
	if err != nil {
		return 0, err
	}
	covered := map[string]bool{}
	for i := range existing {
		if existing[i].IsMonthlyFee() {
			covered[existing[i].Date.Format("2006-01")] = true
		}
	}

	var batch []*billing.Statement
	for _, month := range months {
		if covered[month.Format("2006-01")] {
			continue
		}
		entry := billing.BackfillEntry(svc, month)
		entry.CreatedAt = now
		batch = append(batch, &entry)
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := b.statements.InsertBatch(ctx, batch); err != nil {
		return 0, err
	}
	return len(batch), nil
}
