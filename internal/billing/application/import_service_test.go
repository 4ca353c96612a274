package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	billing "careledger/internal/billing/domain"
	"careledger/internal/billing/infrastructure/memory"

	"github.com/shopspring/decimal"
)

func importFixture(t *testing.T, now time.Time) (*ImportService, *memory.ServiceRepository, *memory.StatementRepository, *captureLog) {
	t.Helper()
	services := memory.NewServiceRepository()
	statements := memory.NewStatementRepository()
	activity := &captureLog{}

	svc := &billing.Service{
		ServiceID:   "SV-CL001-0001",
		ClientID:    "CL001",
		StartDate:   time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC),
		SetupBudget: decimal.NewFromInt(10000),
	}
	if err := services.Create(context.Background(), svc); err != nil {
		t.Fatalf("create service: %v", err)
	}

	monitor, err := NewBudgetMonitor(services, statements, activity, testLogger, WithMonitorClock(fixedClock{now}))
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	importer, err := NewImportService(services, statements, monitor, testLogger, WithImportClock(fixedClock{now}))
	if err != nil {
		t.Fatalf("new importer: %v", err)
	}
	return importer, services, statements, activity
}

func runImport(t *testing.T, importer *ImportService, csv string) *ImportSummary {
	t.Helper()
	summary, err := importer.Import(context.Background(), "upload.csv", strings.NewReader(csv), "carol")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	return summary
}

func TestImportRejectsNonCSVFilename(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	importer, _, _, _ := importFixture(t, now)

	_, err := importer.Import(context.Background(), "upload.xlsx", strings.NewReader("serviceId,date,description,credit,debit\n"), "carol")
	if !errors.Is(err, ErrNotCSV) {
		t.Fatalf("err = %v, want ErrNotCSV", err)
	}
}

func TestImportRejectsEmptyFile(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	importer, _, _, _ := importFixture(t, now)

	_, err := importer.Import(context.Background(), "upload.csv", strings.NewReader("  \n"), "carol")
	if !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("err = %v, want ErrEmptyFile", err)
	}
}

func TestImportRejectsMissingColumns(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	importer, _, _, _ := importFixture(t, now)

	_, err := importer.Import(context.Background(), "upload.csv", strings.NewReader("serviceId,date,credit,debit\nSV-CL001-0001,2024-05-01,0,10\n"), "carol")
	if !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("err = %v, want ErrMissingColumns", err)
	}
}

func TestImportHeaderCaseAndOrderInsensitive(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	importer, _, statements, _ := importFixture(t, now)

	csv := "Debit,DESCRIPTION,date,Credit,ServiceID\n" +
		"50.00,Equipment,2024-05-01,0,SV-CL001-0001\n"
	summary := runImport(t, importer, csv)
	if summary.Inserted != 1 {
		t.Fatalf("inserted = %d, want 1", summary.Inserted)
	}
	entries, _ := statements.ListByService(context.Background(), "SV-CL001-0001")
	if len(entries) != 1 || entries[0].Description != "Equipment" {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].EnteredBy != "carol" {
		t.Fatalf("enteredBy = %q, want uploader", entries[0].EnteredBy)
	}
}

func TestImportStripsBOM(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	importer, _, _, _ := importFixture(t, now)

	csv := "\ufeffserviceId,date,description,credit,debit\n" +
		"SV-CL001-0001,2024-05-01,Equipment,0,50.00\n"
	summary := runImport(t, importer, csv)
	if summary.Inserted != 1 {
		t.Fatalf("inserted = %d, want 1; errors: %v", summary.Inserted, summary.Errors)
	}
}

func TestImportSkipsMonthlyFeeRows(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	importer, _, statements, _ := importFixture(t, now)

	csv := "serviceId,date,description,credit,debit\n" +
		"SV-CL001-0001,2024-05-01,Monthly Fee - May 24,0,100.00\n" +
		"SV-CL001-0001,2024-05-01,MONTHLY FEE catchup,0,100.00\n" +
		"SV-CL001-0001,2024-05-02,Equipment,0,50.00\n"
	summary := runImport(t, importer, csv)
	if summary.SkippedMonthly != 2 {
		t.Fatalf("skippedMonthly = %d, want 2", summary.SkippedMonthly)
	}
	if summary.Inserted != 1 {
		t.Fatalf("inserted = %d, want 1", summary.Inserted)
	}
	entries, _ := statements.ListByService(context.Background(), "SV-CL001-0001")
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
}

func TestImportDuplicateAgainstExisting(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	importer, _, statements, _ := importFixture(t, now)

	existing := &billing.Statement{
		ServiceID:   "SV-CL001-0001",
		Date:        time.Date(2024, time.March, 16, 0, 0, 0, 0, time.UTC),
		Description: "Equipment",
		Credit:      decimal.Zero,
		Debit:       decimal.NewFromFloat(50),
	}
	if err := statements.Insert(context.Background(), existing); err != nil {
		t.Fatalf("insert: %v", err)
	}

	csv := "serviceId,date,description,credit,debit\n" +
		"SV-CL001-0001,2024-03-16,Equipment,0,50.00\n"
	summary := runImport(t, importer, csv)
	if summary.SkippedDuplicates != 1 {
		t.Fatalf("skippedDuplicates = %d, want 1", summary.SkippedDuplicates)
	}
	if summary.Inserted != 0 {
		t.Fatalf("inserted = %d, want 0", summary.Inserted)
	}
}

func TestImportDuplicateWithinBatch(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	importer, _, _, _ := importFixture(t, now)

	csv := "serviceId,date,description,credit,debit\n" +
		"SV-CL001-0001,2024-05-01,Equipment,0,50.00\n" +
		"SV-CL001-0001,2024-05-01,EQUIPMENT,0,50.00\n"
	summary := runImport(t, importer, csv)
	if summary.Inserted != 1 {
		t.Fatalf("inserted = %d, want 1", summary.Inserted)
	}
	if summary.SkippedDuplicates != 1 {
		t.Fatalf("skippedDuplicates = %d, want 1", summary.SkippedDuplicates)
	}
}

func TestImportBeforeServiceStart(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	importer, services, _, _ := importFixture(t, now)

	svc := &billing.Service{
		ServiceID: "SV-CL001-0002",
		ClientID:  "CL001",
		StartDate: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := services.Create(context.Background(), svc); err != nil {
		t.Fatalf("create: %v", err)
	}

	csv := "serviceId,date,description,credit,debit\n" +
		"SV-CL001-0002,2024-05-20,Care visit,0,50.00\n"
	summary := runImport(t, importer, csv)
	if summary.SkippedBeforeStart != 1 {
		t.Fatalf("skippedBeforeStart = %d, want 1", summary.SkippedBeforeStart)
	}
	if len(summary.Errors) != 1 || !strings.Contains(summary.Errors[0], "before service start") {
		t.Fatalf("errors = %v", summary.Errors)
	}
}

func TestImportUnknownServicesCollected(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	importer, _, _, _ := importFixture(t, now)

	csv := "serviceId,date,description,credit,debit\n" +
		"SV-zzz,2024-05-01,Care visit,0,50.00\n" +
		"SV-aaa,2024-05-01,Care visit,0,50.00\n" +
		"SV-zzz,2024-05-02,Care visit,0,60.00\n" +
		"SV-CL001-0001,2024-05-01,Equipment,0,10.00\n"
	summary := runImport(t, importer, csv)
	if summary.Inserted != 1 {
		t.Fatalf("inserted = %d, want 1", summary.Inserted)
	}
	if len(summary.UnknownServices) != 2 {
		t.Fatalf("unknownServices = %v, want 2 distinct ids", summary.UnknownServices)
	}
	// Sorted.
	if summary.UnknownServices[0] != "SV-aaa" || summary.UnknownServices[1] != "SV-zzz" {
		t.Fatalf("unknownServices order = %v", summary.UnknownServices)
	}
}

func TestImportRowErrors(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	importer, _, _, _ := importFixture(t, now)

	csv := "serviceId,date,description,credit,debit\n" +
		"SV-CL001-0001,bad-date,Care visit,0,50.00\n" +
		"SV-CL001-0001,2024-05-01,Care visit,abc,50.00\n" +
		"SV-CL001-0001,2024-05-01,Care visit,0,-5\n" +
		",2024-05-01,Care visit,0,50.00\n"
	summary := runImport(t, importer, csv)
	if summary.Inserted != 0 {
		t.Fatalf("inserted = %d, want 0", summary.Inserted)
	}
	if summary.SkippedMissing != 1 {
		t.Fatalf("skippedMissing = %d, want 1", summary.SkippedMissing)
	}
	if len(summary.Errors) != 3 {
		t.Fatalf("errors = %v, want 3", summary.Errors)
	}
	// Errors keep file order.
	if !strings.Contains(summary.Errors[0], "row 2") {
		t.Fatalf("first error = %q, want row 2", summary.Errors[0])
	}
}

func TestImportAccountsForEveryRow(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	importer, _, statements, _ := importFixture(t, now)

	existing := &billing.Statement{
		ServiceID:   "SV-CL001-0001",
		Date:        time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		Description: "Existing",
		Credit:      decimal.Zero,
		Debit:       decimal.NewFromInt(10),
	}
	if err := statements.Insert(context.Background(), existing); err != nil {
		t.Fatalf("insert: %v", err)
	}

	csv := "serviceId,date,description,credit,debit\n" +
		"SV-CL001-0001,2024-05-02,New entry,0,20.00\n" + // inserted
		"SV-CL001-0001,2024-05-03,Monthly Fee - May 24,0,100.00\n" + // monthly
		"SV-CL001-0001,2024-05-01,Existing,0,10.00\n" + // duplicate
		"SV-CL001-0001,2024-03-01,Too early,0,5.00\n" + // before start
		"SV-unknown,2024-05-02,Orphan,0,5.00\n" + // unknown service
		"SV-unknown,2024-05-03,Orphan 2,0,5.00\n"
	summary := runImport(t, importer, csv)

	dataRows := 6
	unknownRows := 2
	accounted := summary.Inserted + summary.SkippedMonthly + summary.SkippedDuplicates +
		summary.SkippedBeforeStart + unknownRows
	if accounted != dataRows {
		t.Fatalf("accounted %d of %d rows: %+v", accounted, dataRows, summary)
	}
}

func TestImportTriggersBudgetCheckPerService(t *testing.T) {
	now := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	importer, services, _, activity := importFixture(t, now)

	// Tight budget so the import trips it.
	svc, err := services.Get(context.Background(), "SV-CL001-0001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	svc.SetupBudget = decimal.NewFromInt(10)
	if err := services.Update(context.Background(), svc); err != nil {
		t.Fatalf("update: %v", err)
	}

	csv := "serviceId,date,description,credit,debit\n" +
		"SV-CL001-0001,2024-05-02,Care visit,0,20.00\n" +
		"SV-CL001-0001,2024-05-03,Care visit evening,0,20.00\n"
	summary := runImport(t, importer, csv)
	if summary.Inserted != 2 {
		t.Fatalf("inserted = %d, want 2", summary.Inserted)
	}
	// One check per service, not per row.
	if len(activity.entries) != 1 {
		t.Fatalf("got %d budget alerts, want 1", len(activity.entries))
	}
}
