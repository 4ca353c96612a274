package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	billing "careledger/internal/billing/domain"
)

// ServiceRepository is an in-memory repository for demo/testing.
type ServiceRepository struct {
	mu         sync.RWMutex
	data       map[string]*billing.Service
	sequences  map[string]int
	statements *StatementRepository
}

// NewServiceRepository constructs a repository.
func NewServiceRepository() *ServiceRepository {
	return &ServiceRepository{
		data:      make(map[string]*billing.Service),
		sequences: make(map[string]int),
	}
}

// AttachStatements links a ledger so deleting a service also removes its
// entries, matching the database foreign key.
func (r *ServiceRepository) AttachStatements(statements *StatementRepository) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements = statements
}

// Create inserts a service.
func (r *ServiceRepository) Create(ctx context.Context, svc *billing.Service) error {
	_ = ctx
	if svc == nil {
		return errors.New("service repo: nil service")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[svc.ServiceID]; exists {
		return fmt.Errorf("service repo: duplicate id %s", svc.ServiceID)
	}
	r.data[svc.ServiceID] = cloneService(svc)
	return nil
}

// Get fetches a service by id.
func (r *ServiceRepository) Get(ctx context.Context, serviceID string) (*billing.Service, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc := r.data[serviceID]
	if svc == nil {
		return nil, fmt.Errorf("%w: %s", billing.ErrServiceNotFound, serviceID)
	}
	return cloneService(svc), nil
}

// List returns all services.
func (r *ServiceRepository) List(ctx context.Context) ([]billing.Service, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]billing.Service, 0, len(r.data))
	for _, svc := range r.data {
		result = append(result, *cloneService(svc))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ServiceID < result[j].ServiceID })
	return result, nil
}

// ListByReference returns the services sharing a YI reference.
func (r *ServiceRepository) ListByReference(ctx context.Context, reference string) ([]billing.Service, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []billing.Service
	for _, svc := range r.data {
		if strings.EqualFold(svc.Reference, reference) {
			result = append(result, *cloneService(svc))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ServiceID < result[j].ServiceID })
	return result, nil
}

// ListBillable returns services with a positive monthly fee started on or
// before the given day.
func (r *ServiceRepository) ListBillable(ctx context.Context, on time.Time) ([]billing.Service, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []billing.Service
	for _, svc := range r.data {
		if svc.MonthlyFee.IsPositive() && !svc.StartDate.IsZero() && !svc.StartDate.After(on) {
			result = append(result, *cloneService(svc))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ServiceID < result[j].ServiceID })
	return result, nil
}

// Update rewrites a service.
func (r *ServiceRepository) Update(ctx context.Context, svc *billing.Service) error {
	_ = ctx
	if svc == nil {
		return errors.New("service repo: nil service")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[svc.ServiceID]; !exists {
		return fmt.Errorf("%w: %s", billing.ErrServiceNotFound, svc.ServiceID)
	}
	r.data[svc.ServiceID] = cloneService(svc)
	return nil
}

// Delete removes a service and, when a ledger is attached, its entries.
func (r *ServiceRepository) Delete(ctx context.Context, serviceID string) error {
	_ = ctx
	r.mu.Lock()
	if _, exists := r.data[serviceID]; !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", billing.ErrServiceNotFound, serviceID)
	}
	delete(r.data, serviceID)
	statements := r.statements
	r.mu.Unlock()

	if statements != nil {
		statements.deleteByService(serviceID)
	}
	return nil
}

// NextSequence advances the per-client counter.
func (r *ServiceRepository) NextSequence(ctx context.Context, clientID string) (int, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sequences[clientID]++
	return r.sequences[clientID], nil
}

func cloneService(svc *billing.Service) *billing.Service {
	clone := *svc
	clone.Carers = cloneRaw(svc.Carers)
	clone.Agency = cloneRaw(svc.Agency)
	clone.PA = cloneRaw(svc.PA)
	clone.Optional = cloneRaw(svc.Optional)
	return &clone
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
