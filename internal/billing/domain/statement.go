package billing

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SystemUser attributes entries written by the engine itself.
const SystemUser = "System"

// monthlyFeeMarker identifies entries reserved for the automatic backfill.
const monthlyFeeMarker = "monthly fee"

// Statement is one ledger entry belonging to exactly one service.
type Statement struct {
	ID          string
	ServiceID   string
	Date        time.Time
	Description string
	Credit      decimal.Decimal
	Debit       decimal.Decimal
	EnteredBy   string
	CreatedAt   time.Time

	// Seq is the insertion order assigned by the store; it is the tie-break
	// for entries sharing a date and must never be exposed as an id.
	Seq int64 `json:"-"`
}

// NewStatementID generates a random statement id.
func NewStatementID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "st-" + hex.EncodeToString(buf)
}

// IsMonthlyFee reports whether the description marks an automatic monthly-fee
// entry (case-insensitive substring match).
func (s *Statement) IsMonthlyFee() bool {
	return DescriptionIsMonthlyFee(s.Description)
}

// DescriptionIsMonthlyFee matches the reserved monthly-fee marker.
func DescriptionIsMonthlyFee(description string) bool {
	return strings.Contains(strings.ToLower(description), monthlyFeeMarker)
}

// DuplicateKey collapses an entry to the tuple used by import deduplication:
// date, lowercased description, credit, debit. EnteredBy is deliberately not
// part of the key; see the import engine notes.
func (s *Statement) DuplicateKey() string {
	return FormatDate(s.Date) + "|" + strings.ToLower(s.Description) + "|" +
		s.Credit.StringFixed(2) + "|" + s.Debit.StringFixed(2)
}

// SortStatements orders entries by date ascending with insertion order as the
// tie-break. The sort is stable so equal (date, seq) pairs keep their slice
// order.
func SortStatements(entries []Statement) {
	sort.SliceStable(entries, func(i, j int) bool {
		di, dj := entries[i].Date, entries[j].Date
		if !di.Equal(dj) {
			if di.IsZero() {
				return false
			}
			if dj.IsZero() {
				return true
			}
			return di.Before(dj)
		}
		return entries[i].Seq < entries[j].Seq
	})
}

// Validate checks amount signs.
func (s *Statement) Validate() error {
	if s.Credit.IsNegative() || s.Debit.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}
