package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Service is a billable engagement for one client.
type Service struct {
	ServiceID   string
	ClientID    string
	Reference   string
	ServiceType string
	ReferredBy  string
	Insurance   string

	// SetupFee is the label of the one-time setup charge; labels containing
	// "Payroll" unlock the pension and year-end one-time charges.
	SetupFee     string
	SetupBudget  decimal.Decimal
	MonthlyFee   decimal.Decimal
	InitialFee   decimal.Decimal
	PensionSetup decimal.Decimal
	PensionFee   decimal.Decimal
	AnnualFee    decimal.Decimal
	YearEndFee   decimal.Decimal
	CarerBudget  decimal.Decimal
	AgencyBudget decimal.Decimal

	StartDate time.Time
	EndDate   time.Time

	// Free-form collections carried opaquely for the frontend.
	Carers   json.RawMessage
	Agency   json.RawMessage
	PA       json.RawMessage
	Optional json.RawMessage
	Notes    string

	CreatedAt time.Time
}

// BudgetEnabled reports whether the setup budget gates this service.
// Absent or non-positive budgets disable monitoring.
func (s *Service) BudgetEnabled() bool {
	return s != nil && s.SetupBudget.IsPositive()
}

// Active reports whether the service has started by the given day and has not
// ended before it.
func (s *Service) Active(on time.Time) bool {
	if s == nil || s.StartDate.After(on) {
		return false
	}
	return true
}

// BackfillEnd caps monthly backfill at the earlier of today and the end date.
func (s *Service) BackfillEnd(today time.Time) time.Time {
	if !s.EndDate.IsZero() && s.EndDate.Before(today) {
		return s.EndDate
	}
	return today
}

// BuildServiceID formats SV-<clientID>-<4-digit-sequence>.
func BuildServiceID(clientID string, seq int) string {
	return fmt.Sprintf("SV-%s-%04d", clientID, seq)
}

// ServiceIDSequence extracts the numeric suffix of a service id, 0 when the
// suffix is not numeric.
func ServiceIDSequence(serviceID string) int {
	idx := strings.LastIndex(serviceID, "-")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(serviceID[idx+1:])
	if err != nil {
		return 0
	}
	return n
}
