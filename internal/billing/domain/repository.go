package billing

import (
	"context"
	"time"
)

// ServiceRepository persists services.
type ServiceRepository interface {
	Create(ctx context.Context, svc *Service) error
	Get(ctx context.Context, serviceID string) (*Service, error)
	List(ctx context.Context) ([]Service, error)
	// ListByReference returns services sharing a YI reference, case-insensitive.
	ListByReference(ctx context.Context, reference string) ([]Service, error)
	// ListBillable returns services with a positive monthly fee starting on or
	// before the given day.
	ListBillable(ctx context.Context, on time.Time) ([]Service, error)
	Update(ctx context.Context, svc *Service) error
	// Delete removes the service and cascades to its statements.
	Delete(ctx context.Context, serviceID string) error
	// NextSequence atomically allocates the next per-client service sequence.
	NextSequence(ctx context.Context, clientID string) (int, error)
}

// StatementRepository persists ledger entries.
type StatementRepository interface {
	Insert(ctx context.Context, st *Statement) error
	// InsertBatch persists all entries in a single transaction; either every
	// entry commits or none do.
	InsertBatch(ctx context.Context, entries []*Statement) error
	Get(ctx context.Context, id string) (*Statement, error)
	// ListByService returns entries in canonical order: date ascending,
	// insertion order as the tie-break.
	ListByService(ctx context.Context, serviceID string) ([]Statement, error)
	Update(ctx context.Context, st *Statement) error
	Delete(ctx context.Context, id string) error
}
