package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"careledger/internal/audit"
	billing "careledger/internal/billing/domain"

	"github.com/shopspring/decimal"
)

// ClientChecker verifies client ids before a service is attached to them.
type ClientChecker interface {
	ClientExists(ctx context.Context, clientID string) (bool, error)
}

// CatalogService owns the service lifecycle: creation with sequence
// assignment and charge seeding, updates, deletion with statement cascade.
type CatalogService struct {
	services    billing.ServiceRepository
	statements  billing.StatementRepository
	clientCheck ClientChecker
	activityLog audit.Logger
	clock       Clock
	logger      *log.Logger
}

// CatalogOption customizes the catalog service.
type CatalogOption func(*CatalogService)

// WithCatalogClock assigns a clock.
func WithCatalogClock(clock Clock) CatalogOption {
	return func(s *CatalogService) { s.clock = clock }
}

// NewCatalogService constructs a catalog service.
func NewCatalogService(services billing.ServiceRepository, statements billing.StatementRepository, clientCheck ClientChecker, activityLog audit.Logger, logger *log.Logger, opts ...CatalogOption) (*CatalogService, error) {
	if services == nil || statements == nil {
		return nil, errors.New("catalog: nil repository")
	}
	service := &CatalogService{
		services:    services,
		statements:  statements,
		clientCheck: clientCheck,
		activityLog: activityLog,
		clock:       systemClock{},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// CreateServiceInput carries the fields accepted at creation. Date strings
// accept both flexible layouts; an empty start date means today.
type CreateServiceInput struct {
	ClientID     string          `json:"clientId"`
	Reference    string          `json:"reference"`
	ServiceType  string          `json:"serviceType"`
	ReferredBy   string          `json:"referredBy"`
	Insurance    string          `json:"insurance"`
	SetupFee     string          `json:"setupFee"`
	SetupBudget  decimal.Decimal `json:"setupBudget"`
	MonthlyFee   decimal.Decimal `json:"monthlyFee"`
	InitialFee   decimal.Decimal `json:"initialFee"`
	PensionSetup decimal.Decimal `json:"pensionSetup"`
	PensionFee   decimal.Decimal `json:"pensionFee"`
	AnnualFee    decimal.Decimal `json:"annualFee"`
	YearEndFee   decimal.Decimal `json:"yearEndFee"`
	CarerBudget  decimal.Decimal `json:"carerBudget"`
	AgencyBudget decimal.Decimal `json:"agencyBudget"`
	StartDate    string          `json:"startDate"`
	EndDate      string          `json:"endDate"`
	Carers       json.RawMessage `json:"carers"`
	Agency       json.RawMessage `json:"agency"`
	PA           json.RawMessage `json:"pa"`
	Optional     json.RawMessage `json:"optional"`
	Notes        string          `json:"notes"`
}

// Create persists a new service and seeds its ledger with the one-time and
// backfilled monthly charges.
func (s *CatalogService) Create(ctx context.Context, input CreateServiceInput, createdBy string) (*billing.Service, error) {
	if input.ClientID == "" {
		return nil, errors.New("catalog: missing clientId")
	}
	if s.clientCheck != nil {
		exists, err := s.clientCheck.ClientExists(ctx, input.ClientID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", billing.ErrClientNotFound, input.ClientID)
		}
	}
	if err := s.validateReference(ctx, input.ClientID, input.ReferredBy, input.Reference, ""); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	startDate, ok := billing.ParseFlexibleDate(input.StartDate)
	if !ok {
		startDate = billing.DateOnly(now)
	}
	endDate, _ := billing.ParseFlexibleDate(input.EndDate)

	seq, err := s.services.NextSequence(ctx, input.ClientID)
	if err != nil {
		return nil, err
	}
	svc := &billing.Service{
		ServiceID:    billing.BuildServiceID(input.ClientID, seq),
		ClientID:     input.ClientID,
		Reference:    input.Reference,
		ServiceType:  input.ServiceType,
		ReferredBy:   input.ReferredBy,
		Insurance:    input.Insurance,
		SetupFee:     input.SetupFee,
		SetupBudget:  input.SetupBudget,
		MonthlyFee:   input.MonthlyFee,
		InitialFee:   input.InitialFee,
		PensionSetup: input.PensionSetup,
		PensionFee:   input.PensionFee,
		AnnualFee:    input.AnnualFee,
		YearEndFee:   input.YearEndFee,
		CarerBudget:  input.CarerBudget,
		AgencyBudget: input.AgencyBudget,
		StartDate:    startDate,
		EndDate:      endDate,
		Carers:       input.Carers,
		Agency:       input.Agency,
		PA:           input.PA,
		Optional:     input.Optional,
		Notes:        input.Notes,
		CreatedAt:    now,
	}
	if err := s.services.Create(ctx, svc); err != nil {
		return nil, err
	}

	seeds := billing.SeedEntries(svc, now)
	if len(seeds) > 0 {
		batch := make([]*billing.Statement, len(seeds))
		for i := range seeds {
			seeds[i].ServiceID = svc.ServiceID
			batch[i] = &seeds[i]
		}
		if err := s.statements.InsertBatch(ctx, batch); err != nil {
			return nil, err
		}
	}

	s.logActivity(ctx, createdBy, fmt.Sprintf("Service '%s' added for client %s", svc.ServiceID, svc.ClientID))
	return svc, nil
}

// Get fetches one service.
func (s *CatalogService) Get(ctx context.Context, serviceID string) (*billing.Service, error) {
	return s.services.Get(ctx, serviceID)
}

// List returns all services.
func (s *CatalogService) List(ctx context.Context) ([]billing.Service, error) {
	return s.services.List(ctx)
}

// ServicePatch mutates a service. A nil pointer leaves the field unchanged; a
// present zero value clears it. This is the one consistent convention for
// every field.
type ServicePatch struct {
	Reference    *string          `json:"reference"`
	ServiceType  *string          `json:"serviceType"`
	ReferredBy   *string          `json:"referredBy"`
	Insurance    *string          `json:"insurance"`
	SetupFee     *string          `json:"setupFee"`
	SetupBudget  *decimal.Decimal `json:"setupBudget"`
	MonthlyFee   *decimal.Decimal `json:"monthlyFee"`
	InitialFee   *decimal.Decimal `json:"initialFee"`
	PensionSetup *decimal.Decimal `json:"pensionSetup"`
	PensionFee   *decimal.Decimal `json:"pensionFee"`
	AnnualFee    *decimal.Decimal `json:"annualFee"`
	YearEndFee   *decimal.Decimal `json:"yearEndFee"`
	CarerBudget  *decimal.Decimal `json:"carerBudget"`
	AgencyBudget *decimal.Decimal `json:"agencyBudget"`
	StartDate    *string          `json:"startDate"`
	EndDate      *string          `json:"endDate"`
	Carers       json.RawMessage  `json:"carers"`
	Agency       json.RawMessage  `json:"agency"`
	PA           json.RawMessage  `json:"pa"`
	Optional     json.RawMessage  `json:"optional"`
	Notes        *string          `json:"notes"`
}

// Update applies a patch.
func (s *CatalogService) Update(ctx context.Context, serviceID string, patch ServicePatch, updatedBy string) (*billing.Service, error) {
	svc, err := s.services.Get(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	newReference := svc.Reference
	if patch.Reference != nil {
		newReference = *patch.Reference
	}
	newCategory := svc.ReferredBy
	if patch.ReferredBy != nil {
		newCategory = *patch.ReferredBy
	}
	if err := s.validateReference(ctx, svc.ClientID, newCategory, newReference, serviceID); err != nil {
		return nil, err
	}

	svc.Reference = newReference
	svc.ReferredBy = newCategory
	applyString(&svc.ServiceType, patch.ServiceType)
	applyString(&svc.Insurance, patch.Insurance)
	applyString(&svc.SetupFee, patch.SetupFee)
	applyString(&svc.Notes, patch.Notes)
	applyDecimal(&svc.SetupBudget, patch.SetupBudget)
	applyDecimal(&svc.MonthlyFee, patch.MonthlyFee)
	applyDecimal(&svc.InitialFee, patch.InitialFee)
	applyDecimal(&svc.PensionSetup, patch.PensionSetup)
	applyDecimal(&svc.PensionFee, patch.PensionFee)
	applyDecimal(&svc.AnnualFee, patch.AnnualFee)
	applyDecimal(&svc.YearEndFee, patch.YearEndFee)
	applyDecimal(&svc.CarerBudget, patch.CarerBudget)
	applyDecimal(&svc.AgencyBudget, patch.AgencyBudget)
	if patch.StartDate != nil {
		start, ok := billing.ParseFlexibleDate(*patch.StartDate)
		if !ok && *patch.StartDate != "" {
			return nil, billing.ErrInvalidDate
		}
		svc.StartDate = start
	}
	if patch.EndDate != nil {
		end, ok := billing.ParseFlexibleDate(*patch.EndDate)
		if !ok && *patch.EndDate != "" {
			return nil, billing.ErrInvalidDate
		}
		svc.EndDate = end
	}
	if patch.Carers != nil {
		svc.Carers = patch.Carers
	}
	if patch.Agency != nil {
		svc.Agency = patch.Agency
	}
	if patch.PA != nil {
		svc.PA = patch.PA
	}
	if patch.Optional != nil {
		svc.Optional = patch.Optional
	}

	if err := s.services.Update(ctx, svc); err != nil {
		return nil, err
	}
	s.logActivity(ctx, updatedBy, fmt.Sprintf("Service '%s' updated", serviceID))
	return svc, nil
}

// Delete removes a service; its statements cascade.
func (s *CatalogService) Delete(ctx context.Context, serviceID, deletedBy string) error {
	if _, err := s.services.Get(ctx, serviceID); err != nil {
		return err
	}
	if err := s.services.Delete(ctx, serviceID); err != nil {
		return err
	}
	s.logActivity(ctx, deletedBy, fmt.Sprintf("Service '%s' deleted", serviceID))
	return nil
}

// validateReference enforces YI-reference uniqueness: a reference may only be
// reused by the same client under the same referredBy category.
func (s *CatalogService) validateReference(ctx context.Context, clientID, category, reference, ignoreServiceID string) error {
	if reference == "" {
		return nil
	}
	others, err := s.services.ListByReference(ctx, reference)
	if err != nil {
		return err
	}
	for i := range others {
		if ignoreServiceID != "" && others[i].ServiceID == ignoreServiceID {
			continue
		}
		if norm(others[i].ClientID) != norm(clientID) {
			return billing.ErrReferenceInUse
		}
		if norm(others[i].ReferredBy) != norm(category) {
			return billing.ErrReferenceCategory
		}
	}
	return nil
}

func (s *CatalogService) logActivity(ctx context.Context, user, action string) {
	if s.activityLog == nil {
		return
	}
	if err := s.activityLog.Log(ctx, audit.Entry{User: user, Action: action, Category: audit.CategoryService}); err != nil && s.logger != nil {
		s.logger.Printf("activity log error: %v", err)
	}
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func applyDecimal(dst *decimal.Decimal, src *decimal.Decimal) {
	if src != nil {
		*dst = *src
	}
}
