package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	billing "careledger/internal/billing/domain"
)

// ServiceRepository persists services.
type ServiceRepository struct {
	db *sql.DB
}

// NewServiceRepository constructs a repository.
func NewServiceRepository(db *sql.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

const serviceColumns = `service_id, client_id, reference, service_type, referred_by, insurance,
	setup_fee, setup_budget, monthly_fee, initial_fee, pension_setup, pension_fee,
	annual_fee, year_end_fee, carer_budget, agency_budget, start_date, end_date,
	carers, agency, pa, optional, notes, created_at`

// Create inserts a service.
func (r *ServiceRepository) Create(ctx context.Context, svc *billing.Service) error {
	if r == nil || r.db == nil {
		return errors.New("service repo: nil db")
	}
	if svc == nil {
		return errors.New("service repo: nil service")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO services (`+serviceColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
		svc.ServiceID, svc.ClientID, svc.Reference, svc.ServiceType, svc.ReferredBy, svc.Insurance,
		svc.SetupFee, svc.SetupBudget, svc.MonthlyFee, svc.InitialFee, svc.PensionSetup, svc.PensionFee,
		svc.AnnualFee, svc.YearEndFee, svc.CarerBudget, svc.AgencyBudget, nullDate(svc.StartDate), nullDate(svc.EndDate),
		nullJSON(svc.Carers), nullJSON(svc.Agency), nullJSON(svc.PA), nullJSON(svc.Optional), svc.Notes, svc.CreatedAt,
	)
	return err
}

// Get fetches a service by id.
func (r *ServiceRepository) Get(ctx context.Context, serviceID string) (*billing.Service, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("service repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+serviceColumns+`
FROM services
WHERE service_id = $1
LIMIT 1`, serviceID)
	svc, err := scanService(row)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, fmt.Errorf("%w: %s", billing.ErrServiceNotFound, serviceID)
	}
	return svc, nil
}

// List returns all services, newest first.
func (r *ServiceRepository) List(ctx context.Context) ([]billing.Service, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("service repo: nil db")
	}
	return r.list(ctx, `
SELECT `+serviceColumns+`
FROM services
ORDER BY created_at DESC, service_id DESC`)
}

// ListByReference returns the services sharing a YI reference.
func (r *ServiceRepository) ListByReference(ctx context.Context, reference string) ([]billing.Service, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("service repo: nil db")
	}
	return r.list(ctx, `
SELECT `+serviceColumns+`
FROM services
WHERE lower(reference) = lower($1)`, reference)
}

// ListBillable returns services with a positive monthly fee whose start date
// is on or before the given day.
func (r *ServiceRepository) ListBillable(ctx context.Context, on time.Time) ([]billing.Service, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("service repo: nil db")
	}
	return r.list(ctx, `
SELECT `+serviceColumns+`
FROM services
WHERE monthly_fee > 0 AND start_date IS NOT NULL AND start_date <= $1
ORDER BY service_id ASC`, on)
}

// Update rewrites the mutable fields of a service.
func (r *ServiceRepository) Update(ctx context.Context, svc *billing.Service) error {
	if r == nil || r.db == nil {
		return errors.New("service repo: nil db")
	}
	if svc == nil {
		return errors.New("service repo: nil service")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE services
SET reference = $1, service_type = $2, referred_by = $3, insurance = $4, setup_fee = $5,
	setup_budget = $6, monthly_fee = $7, initial_fee = $8, pension_setup = $9, pension_fee = $10,
	annual_fee = $11, year_end_fee = $12, carer_budget = $13, agency_budget = $14,
	start_date = $15, end_date = $16, carers = $17, agency = $18, pa = $19, optional = $20, notes = $21
WHERE service_id = $22`,
		svc.Reference, svc.ServiceType, svc.ReferredBy, svc.Insurance, svc.SetupFee,
		svc.SetupBudget, svc.MonthlyFee, svc.InitialFee, svc.PensionSetup, svc.PensionFee,
		svc.AnnualFee, svc.YearEndFee, svc.CarerBudget, svc.AgencyBudget,
		nullDate(svc.StartDate), nullDate(svc.EndDate),
		nullJSON(svc.Carers), nullJSON(svc.Agency), nullJSON(svc.PA), nullJSON(svc.Optional), svc.Notes,
		svc.ServiceID,
	)
	if err != nil {
		return err
	}
	return mustExist(result, billing.ErrServiceNotFound)
}

// Delete removes a service; the statements FK cascades.
func (r *ServiceRepository) Delete(ctx context.Context, serviceID string) error {
	if r == nil || r.db == nil {
		return errors.New("service repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM services WHERE service_id = $1`, serviceID)
	if err != nil {
		return err
	}
	return mustExist(result, billing.ErrServiceNotFound)
}

// NextSequence atomically advances the per-client counter used to mint
// service ids.
func (r *ServiceRepository) NextSequence(ctx context.Context, clientID string) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("service repo: nil db")
	}
	var seq int
	err := r.db.QueryRowContext(ctx, `
INSERT INTO service_sequences (client_id, seq)
VALUES ($1, 1)
ON CONFLICT (client_id) DO UPDATE SET seq = service_sequences.seq + 1
RETURNING seq`, clientID).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *ServiceRepository) list(ctx context.Context, query string, args ...any) ([]billing.Service, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		if svc != nil {
			result = append(result, *svc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (*billing.Service, error) {
	var svc billing.Service
	var startDate, endDate sql.NullTime
	var carers, agency, pa, optional []byte
	err := row.Scan(
		&svc.ServiceID,
		&svc.ClientID,
		&svc.Reference,
		&svc.ServiceType,
		&svc.ReferredBy,
		&svc.Insurance,
		&svc.SetupFee,
		&svc.SetupBudget,
		&svc.MonthlyFee,
		&svc.InitialFee,
		&svc.PensionSetup,
		&svc.PensionFee,
		&svc.AnnualFee,
		&svc.YearEndFee,
		&svc.CarerBudget,
		&svc.AgencyBudget,
		&startDate,
		&endDate,
		&carers,
		&agency,
		&pa,
		&optional,
		&svc.Notes,
		&svc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if startDate.Valid {
		svc.StartDate = startDate.Time.UTC()
	}
	if endDate.Valid {
		svc.EndDate = endDate.Time.UTC()
	}
	svc.Carers = json.RawMessage(carers)
	svc.Agency = json.RawMessage(agency)
	svc.PA = json.RawMessage(pa)
	svc.Optional = json.RawMessage(optional)
	svc.CreatedAt = svc.CreatedAt.UTC()
	return &svc, nil
}

func mustExist(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

func nullDate(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
