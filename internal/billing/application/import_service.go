package application

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	billing "careledger/internal/billing/domain"
	"careledger/internal/observability/metrics"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotCSV rejects uploads whose filename lacks a .csv extension.
	ErrNotCSV = errors.New("import: file is not a CSV")
	// ErrEmptyFile rejects uploads with no content.
	ErrEmptyFile = errors.New("import: file is empty")
	// ErrMissingColumns rejects uploads whose header lacks a required column.
	ErrMissingColumns = errors.New("import: missing required columns")
	// ErrMalformedCSV rejects uploads the CSV parser cannot read.
	ErrMalformedCSV = errors.New("import: malformed CSV")
)

var importColumns = []string{"serviceid", "date", "description", "credit", "debit"}

// ImportSummary reports the outcome of one bulk upload. Every data row in
// the file lands in exactly one bucket.
type ImportSummary struct {
	Inserted           int      `json:"inserted"`
	SkippedMonthly     int      `json:"skippedMonthly"`
	SkippedDuplicates  int      `json:"skippedDuplicates"`
	SkippedBeforeStart int      `json:"skippedBeforeStart"`
	SkippedMissing     int      `json:"skippedMissing"`
	UnknownServices    []string `json:"unknownServices"`
	Errors             []string `json:"errors"`
}

// ImportService parses uploaded statement CSVs and inserts the surviving
// rows in one transaction. Row failures never abort the batch; only
// malformed files and storage failures do.
type ImportService struct {
	services   billing.ServiceRepository
	statements billing.StatementRepository
	monitor    *BudgetMonitor
	clock      Clock
	logger     *log.Logger
}

// ImportOption customizes the import service.
type ImportOption func(*ImportService)

// WithImportClock assigns a clock.
func WithImportClock(clock Clock) ImportOption {
	return func(s *ImportService) { s.clock = clock }
}

// NewImportService constructs an import service.
func NewImportService(services billing.ServiceRepository, statements billing.StatementRepository, monitor *BudgetMonitor, logger *log.Logger, opts ...ImportOption) (*ImportService, error) {
	if services == nil || statements == nil {
		return nil, errors.New("import: nil repository")
	}
	service := &ImportService{
		services:   services,
		statements: statements,
		monitor:    monitor,
		clock:      systemClock{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

type importRow struct {
	line        int
	serviceID   string
	date        time.Time
	description string
	credit      decimal.Decimal
	debit       decimal.Decimal
}

type rowError struct {
	line int
	msg  string
}

// Import processes one uploaded file attributed to uploadedBy.
func (s *ImportService) Import(ctx context.Context, filename string, r io.Reader, uploadedBy string) (*ImportSummary, error) {
	started := time.Now()
	summary, err := s.run(ctx, filename, r, uploadedBy)
	if err != nil {
		metrics.ObserveImport(metrics.ResultError, time.Since(started))
		return nil, err
	}
	metrics.ObserveImport(metrics.ResultSuccess, time.Since(started))
	return summary, nil
}

func (s *ImportService) run(ctx context.Context, filename string, r io.Reader, uploadedBy string) (*ImportSummary, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return nil, ErrNotCSV
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyFile
	}

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	columns, err := headerIndex(records[0])
	if err != nil {
		return nil, err
	}

	summary := &ImportSummary{UnknownServices: []string{}, Errors: []string{}}
	var rowErrors []rowError

	// First pass: field-level validation in file order.
	groupOrder := []string{}
	groups := map[string][]importRow{}
	for i, record := range records[1:] {
		line := i + 2
		row := importRow{
			line:        line,
			serviceID:   strings.TrimSpace(field(record, columns["serviceid"])),
			description: strings.TrimSpace(field(record, columns["description"])),
		}
		dateStr := strings.TrimSpace(field(record, columns["date"]))
		if row.serviceID == "" || dateStr == "" || row.description == "" {
			summary.SkippedMissing++
			continue
		}
		if billing.DescriptionIsMonthlyFee(row.description) {
			summary.SkippedMonthly++
			continue
		}
		date, ok := billing.ParseFlexibleDate(dateStr)
		if !ok {
			rowErrors = append(rowErrors, rowError{line, fmt.Sprintf("row %d: invalid date %q", line, dateStr)})
			continue
		}
		row.date = date
		row.credit, err = parseAmount(field(record, columns["credit"]))
		if err != nil {
			rowErrors = append(rowErrors, rowError{line, fmt.Sprintf("row %d: invalid credit: %v", line, err)})
			continue
		}
		row.debit, err = parseAmount(field(record, columns["debit"]))
		if err != nil {
			rowErrors = append(rowErrors, rowError{line, fmt.Sprintf("row %d: invalid debit: %v", line, err)})
			continue
		}
		if _, seen := groups[row.serviceID]; !seen {
			groupOrder = append(groupOrder, row.serviceID)
		}
		groups[row.serviceID] = append(groups[row.serviceID], row)
	}

	// Second pass: per-service duplicate and start-date checks.
	now := s.clock.Now()
	var batch []*billing.Statement
	checkedServices := []string{}
	unknown := map[string]int{}
	for _, serviceID := range groupOrder {
		group := groups[serviceID]
		svc, err := s.services.Get(ctx, serviceID)
		if errors.Is(err, billing.ErrServiceNotFound) {
			unknown[serviceID] = len(group)
			continue
		}
		if err != nil {
			return nil, err
		}
		existing, err := s.statements.ListByService(ctx, serviceID)
		if err != nil {
			return nil, err
		}
		seen := map[string]bool{}
		for i := range existing {
			seen[existing[i].DuplicateKey()] = true
		}
		startDate := billing.DateOnly(svc.StartDate)
		for _, row := range group {
			if row.date.Before(startDate) {
				summary.SkippedBeforeStart++
				rowErrors = append(rowErrors, rowError{row.line, fmt.Sprintf("row %d: date %s is before service start date", row.line, billing.FormatDate(row.date))})
				continue
			}
			st := &billing.Statement{
				ID:          billing.NewStatementID(),
				ServiceID:   serviceID,
				Date:        row.date,
				Description: row.description,
				Credit:      row.credit,
				Debit:       row.debit,
				EnteredBy:   uploadedBy,
				CreatedAt:   now,
			}
			key := st.DuplicateKey()
			if seen[key] {
				summary.SkippedDuplicates++
				rowErrors = append(rowErrors, rowError{row.line, fmt.Sprintf("row %d: duplicate entry for %s", row.line, serviceID)})
				continue
			}
			seen[key] = true
			batch = append(batch, st)
			summary.Inserted++
		}
		checkedServices = append(checkedServices, serviceID)
	}

	if len(batch) > 0 {
		if err := s.statements.InsertBatch(ctx, batch); err != nil {
			return nil, err
		}
	}
	for _, serviceID := range checkedServices {
		if s.monitor != nil {
			s.monitor.Check(ctx, serviceID, uploadedBy, "")
		}
	}

	unknownRows := 0
	for id, n := range unknown {
		summary.UnknownServices = append(summary.UnknownServices, id)
		unknownRows += n
	}
	sort.Strings(summary.UnknownServices)
	sort.Slice(rowErrors, func(i, j int) bool { return rowErrors[i].line < rowErrors[j].line })
	for _, re := range rowErrors {
		summary.Errors = append(summary.Errors, re.msg)
	}

	metrics.ObserveImportRows(metrics.RowInserted, summary.Inserted)
	metrics.ObserveImportRows(metrics.RowSkippedMonthly, summary.SkippedMonthly)
	metrics.ObserveImportRows(metrics.RowDuplicate, summary.SkippedDuplicates)
	metrics.ObserveImportRows(metrics.RowBeforeStart, summary.SkippedBeforeStart)
	metrics.ObserveImportRows(metrics.RowUnknownService, unknownRows)
	metrics.ObserveImportRows(metrics.RowInvalid, summary.SkippedMissing+len(rowErrors)-summary.SkippedBeforeStart-summary.SkippedDuplicates)

	if s.logger != nil {
		s.logger.Printf("import %s by %s: %d inserted, %d monthly, %d duplicate, %d before-start, %d unknown-service rows",
			filename, uploadedBy, summary.Inserted, summary.SkippedMonthly, summary.SkippedDuplicates, summary.SkippedBeforeStart, unknownRows)
	}
	return summary, nil
}

func headerIndex(header []string) (map[string]int, error) {
	index := map[string]int{}
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, name := range importColumns {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return index, nil
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%q is negative", s)
	}
	return d, nil
}
