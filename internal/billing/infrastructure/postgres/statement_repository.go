package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	billing "careledger/internal/billing/domain"
)

// StatementRepository persists ledger entries. The serial seq column
// preserves insertion order; every read is ordered by entry date ascending
// with seq as the tie-break, which is the one canonical ledger order.
type StatementRepository struct {
	db *sql.DB
}

// NewStatementRepository constructs a repository.
func NewStatementRepository(db *sql.DB) *StatementRepository {
	return &StatementRepository{db: db}
}

// Insert stores one entry, minting an id when absent.
func (r *StatementRepository) Insert(ctx context.Context, st *billing.Statement) error {
	if r == nil || r.db == nil {
		return errors.New("statement repo: nil db")
	}
	if st == nil {
		return errors.New("statement repo: nil statement")
	}
	if st.ID == "" {
		st.ID = billing.NewStatementID()
	}
	return r.db.QueryRowContext(ctx, `
INSERT INTO statements (id, service_id, entry_date, description, credit, debit, entered_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING seq`,
		st.ID, st.ServiceID, nullDate(st.Date), st.Description, st.Credit, st.Debit, st.EnteredBy, st.CreatedAt,
	).Scan(&st.Seq)
}

// InsertBatch stores a group of entries in one transaction. Nothing persists
// if any insert fails.
func (r *StatementRepository) InsertBatch(ctx context.Context, batch []*billing.Statement) error {
	if r == nil || r.db == nil {
		return errors.New("statement repo: nil db")
	}
	if len(batch) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, st := range batch {
		if st == nil {
			_ = tx.Rollback()
			return errors.New("statement repo: nil statement in batch")
		}
		if st.ID == "" {
			st.ID = billing.NewStatementID()
		}
		err := tx.QueryRowContext(ctx, `
INSERT INTO statements (id, service_id, entry_date, description, credit, debit, entered_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING seq`,
			st.ID, st.ServiceID, nullDate(st.Date), st.Description, st.Credit, st.Debit, st.EnteredBy, st.CreatedAt,
		).Scan(&st.Seq)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Get fetches one entry by id.
func (r *StatementRepository) Get(ctx context.Context, id string) (*billing.Statement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("statement repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, service_id, entry_date, description, credit, debit, entered_by, created_at, seq
FROM statements
WHERE id = $1
LIMIT 1`, id)
	st, err := scanStatement(row)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("%w: %s", billing.ErrStatementNotFound, id)
	}
	return st, nil
}

// ListByService returns a service's ledger in canonical order. Entries
// without a date sort last.
func (r *StatementRepository) ListByService(ctx context.Context, serviceID string) ([]billing.Statement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("statement repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, service_id, entry_date, description, credit, debit, entered_by, created_at, seq
FROM statements
WHERE service_id = $1
ORDER BY entry_date ASC NULLS LAST, seq ASC`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		if st != nil {
			result = append(result, *st)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Update rewrites the mutable fields of one entry.
func (r *StatementRepository) Update(ctx context.Context, st *billing.Statement) error {
	if r == nil || r.db == nil {
		return errors.New("statement repo: nil db")
	}
	if st == nil {
		return errors.New("statement repo: nil statement")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE statements
SET entry_date = $1, description = $2, credit = $3, debit = $4
WHERE id = $5`, nullDate(st.Date), st.Description, st.Credit, st.Debit, st.ID)
	if err != nil {
		return err
	}
	return mustExist(result, billing.ErrStatementNotFound)
}

// Delete removes one entry.
func (r *StatementRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("statement repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM statements WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return mustExist(result, billing.ErrStatementNotFound)
}

func scanStatement(row rowScanner) (*billing.Statement, error) {
	var st billing.Statement
	var date sql.NullTime
	err := row.Scan(
		&st.ID,
		&st.ServiceID,
		&date,
		&st.Description,
		&st.Credit,
		&st.Debit,
		&st.EnteredBy,
		&st.CreatedAt,
		&st.Seq,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if date.Valid {
		st.Date = date.Time.UTC()
	}
	st.CreatedAt = st.CreatedAt.UTC()
	return &st, nil
}
