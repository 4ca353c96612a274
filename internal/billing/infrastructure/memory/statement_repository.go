package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	billing "careledger/internal/billing/domain"
)

// StatementRepository is an in-memory ledger for demo/testing. A monotonic
// counter stands in for the serial seq column so ordering matches the
// database-backed repository.
type StatementRepository struct {
	mu      sync.RWMutex
	data    map[string]*billing.Statement
	nextSeq int64
}

// NewStatementRepository constructs a repository.
func NewStatementRepository() *StatementRepository {
	return &StatementRepository{data: make(map[string]*billing.Statement)}
}

// Insert stores one entry, minting an id when absent.
func (r *StatementRepository) Insert(ctx context.Context, st *billing.Statement) error {
	_ = ctx
	if st == nil {
		return errors.New("statement repo: nil statement")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(st)
}

// InsertBatch stores a group of entries; nothing persists if any entry is
// invalid.
func (r *StatementRepository) InsertBatch(ctx context.Context, batch []*billing.Statement) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range batch {
		if st == nil {
			return errors.New("statement repo: nil statement in batch")
		}
		if st.ID != "" {
			if _, exists := r.data[st.ID]; exists {
				return fmt.Errorf("statement repo: duplicate id %s", st.ID)
			}
		}
	}
	for _, st := range batch {
		if err := r.insertLocked(st); err != nil {
			return err
		}
	}
	return nil
}

func (r *StatementRepository) insertLocked(st *billing.Statement) error {
	if st.ID == "" {
		st.ID = billing.NewStatementID()
	}
	if _, exists := r.data[st.ID]; exists {
		return fmt.Errorf("statement repo: duplicate id %s", st.ID)
	}
	r.nextSeq++
	st.Seq = r.nextSeq
	clone := *st
	r.data[st.ID] = &clone
	return nil
}

// Get fetches one entry by id.
func (r *StatementRepository) Get(ctx context.Context, id string) (*billing.Statement, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := r.data[id]
	if st == nil {
		return nil, fmt.Errorf("%w: %s", billing.ErrStatementNotFound, id)
	}
	clone := *st
	return &clone, nil
}

// ListByService returns a service's ledger in canonical order.
func (r *StatementRepository) ListByService(ctx context.Context, serviceID string) ([]billing.Statement, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []billing.Statement
	for _, st := range r.data {
		if st.ServiceID == serviceID {
			result = append(result, *st)
		}
	}
	billing.SortStatements(result)
	return result, nil
}

// Update rewrites one entry.
func (r *StatementRepository) Update(ctx context.Context, st *billing.Statement) error {
	_ = ctx
	if st == nil {
		return errors.New("statement repo: nil statement")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.data[st.ID]
	if existing == nil {
		return fmt.Errorf("%w: %s", billing.ErrStatementNotFound, st.ID)
	}
	clone := *st
	clone.Seq = existing.Seq
	r.data[st.ID] = &clone
	return nil
}

func (r *StatementRepository) deleteByService(serviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, st := range r.data {
		if st.ServiceID == serviceID {
			delete(r.data, id)
		}
	}
}

// Delete removes one entry.
func (r *StatementRepository) Delete(ctx context.Context, id string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[id]; !exists {
		return fmt.Errorf("%w: %s", billing.ErrStatementNotFound, id)
	}
	delete(r.data, id)
	return nil
}
