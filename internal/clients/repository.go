package clients

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository persists clients and councils.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetClient fetches one client.
func (r *Repository) GetClient(ctx context.Context, id string) (*Client, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("clients repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, first_name, last_name, dob, gender, council_id, phone, email,
	address, status, disabilities, optional_fields
FROM clients
WHERE id = $1`, id)
	return scanClient(row)
}

// ListClients returns all clients ordered by id.
func (r *Repository) ListClients(ctx context.Context) ([]Client, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("clients repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, first_name, last_name, dob, gender, council_id, phone, email,
	address, status, disabilities, optional_fields
FROM clients
ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *client)
	}
	return result, rows.Err()
}

// CreateClient inserts a client.
func (r *Repository) CreateClient(ctx context.Context, c *Client) error {
	if r == nil || r.db == nil {
		return errors.New("clients repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO clients (
	id, title, first_name, last_name, dob, gender, council_id, phone, email,
	address, status, disabilities, optional_fields
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		c.ID, c.Title, c.FirstName, c.LastName, nullTime(c.DOB), c.Gender,
		nullInt(c.CouncilID), c.Phone, c.Email, c.Address, c.Status,
		nullJSON(c.Disabilities), nullJSON(c.OptionalFields))
	return err
}

// UpdateClient overwrites a client record.
func (r *Repository) UpdateClient(ctx context.Context, c *Client) error {
	if r == nil || r.db == nil {
		return errors.New("clients repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE clients SET
	title = $2, first_name = $3, last_name = $4, dob = $5, gender = $6,
	council_id = $7, phone = $8, email = $9, address = $10, status = $11,
	disabilities = $12, optional_fields = $13
WHERE id = $1`,
		c.ID, c.Title, c.FirstName, c.LastName, nullTime(c.DOB), c.Gender,
		nullInt(c.CouncilID), c.Phone, c.Email, c.Address, c.Status,
		nullJSON(c.Disabilities), nullJSON(c.OptionalFields))
	if err != nil {
		return err
	}
	return mustAffect(res, ErrClientNotFound)
}

// DeleteClient removes a client; services cascade via the schema.
func (r *Repository) DeleteClient(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("clients repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrClientNotFound)
}

// GetCouncil fetches one council.
func (r *Repository) GetCouncil(ctx context.Context, id int64) (*Council, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("clients repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, address, city, postcode, status, created_at
FROM councils
WHERE id = $1`, id)
	var c Council
	err := row.Scan(&c.ID, &c.Name, &c.Address, &c.City, &c.Postcode, &c.Status, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouncilNotFound
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

// ListCouncils returns councils, optionally only enabled ones.
func (r *Repository) ListCouncils(ctx context.Context, enabledOnly bool) ([]Council, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("clients repo: nil db")
	}
	query := `
SELECT id, name, address, city, postcode, status, created_at
FROM councils`
	if enabledOnly {
		query += `
WHERE status = 'Enabled'`
	}
	query += `
ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Council
	for rows.Next() {
		var c Council
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.City, &c.Postcode, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		result = append(result, c)
	}
	return result, rows.Err()
}

// CreateCouncil inserts a council and assigns its id.
func (r *Repository) CreateCouncil(ctx context.Context, c *Council) error {
	if r == nil || r.db == nil {
		return errors.New("clients repo: nil db")
	}
	if c.Status == "" {
		c.Status = "Enabled"
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return r.db.QueryRowContext(ctx, `
INSERT INTO councils (name, address, city, postcode, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id`,
		c.Name, c.Address, c.City, c.Postcode, c.Status, c.CreatedAt).Scan(&c.ID)
}

// UpdateCouncil overwrites a council record.
func (r *Repository) UpdateCouncil(ctx context.Context, c *Council) error {
	if r == nil || r.db == nil {
		return errors.New("clients repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE councils SET name = $2, address = $3, city = $4, postcode = $5, status = $6
WHERE id = $1`,
		c.ID, c.Name, c.Address, c.City, c.Postcode, c.Status)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrCouncilNotFound)
}

// SetCouncilStatus toggles Enabled/Disabled.
func (r *Repository) SetCouncilStatus(ctx context.Context, id int64, status string) error {
	if r == nil || r.db == nil {
		return errors.New("clients repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `UPDATE councils SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrCouncilNotFound)
}

// DeleteCouncil removes a council; client references null out via the schema.
func (r *Repository) DeleteCouncil(ctx context.Context, id int64) error {
	if r == nil || r.db == nil {
		return errors.New("clients repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM councils WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrCouncilNotFound)
}

// ClientExists reports whether a client id is known.
func (r *Repository) ClientExists(ctx context.Context, id string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("clients repo: nil db")
	}
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM clients WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*Client, error) {
	var c Client
	var dob sql.NullTime
	var councilID sql.NullInt64
	var disabilities, optional []byte
	err := row.Scan(&c.ID, &c.Title, &c.FirstName, &c.LastName, &dob, &c.Gender,
		&councilID, &c.Phone, &c.Email, &c.Address, &c.Status, &disabilities, &optional)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	if dob.Valid {
		c.DOB = dob.Time.UTC()
	}
	if councilID.Valid {
		c.CouncilID = councilID.Int64
	}
	c.Disabilities = disabilities
	c.OptionalFields = optional
	return &c, nil
}

func mustAffect(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
