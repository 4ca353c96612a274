package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// payrollMarker in the setup-fee label unlocks the pension charge set.
const payrollMarker = "Payroll"

// SeedEntries produces the ledger rows created once at service creation:
// one-time charges first, then the monthly backfill through now's month.
func SeedEntries(svc *Service, now time.Time) []Statement {
	entries := OneTimeEntries(svc)
	return append(entries, MonthlyEntriesThrough(svc, now)...)
}

// OneTimeEntries produces the setup charges dated at the service start date.
// Zero or absent amounts are omitted entirely.
func OneTimeEntries(svc *Service) []Statement {
	startDate := svc.StartDate
	startYear := startDate.Year()
	var entries []Statement

	push := func(description string, debit decimal.Decimal) {
		if !debit.IsPositive() {
			return
		}
		entries = append(entries, Statement{
			Date:        startDate,
			Description: description,
			Credit:      decimal.Zero,
			Debit:       debit,
			EnteredBy:   SystemUser,
		})
	}

	push(svc.SetupFee, svc.InitialFee)

	if strings.Contains(svc.SetupFee, payrollMarker) {
		push("Pension Setup Fee", svc.PensionSetup)
		push(fmt.Sprintf("Annual Pension Fee %d-%d", startYear, startYear+1), svc.PensionFee)
		push(fmt.Sprintf("Annual Year End Fee %d-%d", startYear, startYear+1), svc.YearEndFee)
	}
	return entries
}

// MonthlyEntriesThrough produces one monthly-fee debit dated the 1st of every
// month from the service start month through now's month inclusive. None when
// the monthly fee is not positive.
func MonthlyEntriesThrough(svc *Service, now time.Time) []Statement {
	if !svc.MonthlyFee.IsPositive() {
		return nil
	}
	var entries []Statement
	for _, month := range MonthSequence(svc.StartDate, now) {
		entries = append(entries, Statement{
			Date:        month,
			Description: "Monthly Fee - " + MonthLabelShort(month),
			Credit:      decimal.Zero,
			Debit:       svc.MonthlyFee,
			EnteredBy:   SystemUser,
		})
	}
	return entries
}

// BackfillEntry builds the debit the recurring scheduler inserts for a month
// that lacks a monthly-fee entry.
func BackfillEntry(svc *Service, month time.Time) Statement {
	return Statement{
		ServiceID:   svc.ServiceID,
		Date:        month,
		Description: "Monthly Fee - " + MonthLabelLong(month),
		Credit:      decimal.Zero,
		Debit:       svc.MonthlyFee,
		EnteredBy:   SystemUser,
	}
}
