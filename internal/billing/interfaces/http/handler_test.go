package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"careledger/internal/audit"
	"careledger/internal/auth"
	"careledger/internal/billing/application"
	billing "careledger/internal/billing/domain"
	"careledger/internal/billing/infrastructure/memory"
	"careledger/internal/clients"

	"github.com/shopspring/decimal"
)

type stubClients struct {
	known map[string]*clients.Client
}

func (s *stubClients) ClientExists(ctx context.Context, clientID string) (bool, error) {
	_, ok := s.known[clientID]
	return ok, nil
}

func (s *stubClients) GetClient(ctx context.Context, clientID string) (*clients.Client, error) {
	c, ok := s.known[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", clients.ErrClientNotFound, clientID)
	}
	return c, nil
}

type nopAudit struct{}

func (nopAudit) Log(ctx context.Context, entry audit.Entry) error { return nil }

type frozenClock struct{ now time.Time }

func (c frozenClock) Now() time.Time { return c.now }

func newTestHandler(t *testing.T) (*Handler, *memory.StatementRepository) {
	t.Helper()
	services := memory.NewServiceRepository()
	statements := memory.NewStatementRepository()
	services.AttachStatements(statements)
	directory := &stubClients{known: map[string]*clients.Client{
		"CL001": {ID: "CL001", FirstName: "Ada", LastName: "Lovelace"},
	}}
	logger := log.New(io.Discard, "", 0)

	clock := frozenClock{now: time.Date(2024, time.March, 20, 12, 0, 0, 0, time.UTC)}
	monitor, err := application.NewBudgetMonitor(services, statements, nopAudit{}, logger, application.WithMonitorClock(clock))
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	catalog, err := application.NewCatalogService(services, statements, directory, nopAudit{}, logger, application.WithCatalogClock(clock))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	ledger, err := application.NewLedgerService(services, statements, monitor, nopAudit{}, logger, application.WithLedgerClock(clock))
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	importer, err := application.NewImportService(services, statements, monitor, logger)
	if err != nil {
		t.Fatalf("importer: %v", err)
	}
	handler, err := NewHandler(catalog, ledger, importer, directory, logger)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return handler, statements
}

func doRequest(handler *Handler, method, target, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req = req.WithContext(auth.WithIdentity(req.Context(), "alice", auth.RoleAdmin))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func doJSON(handler *Handler, method, target string, payload any) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	return doRequest(handler, method, target, "application/json", bytes.NewReader(body))
}

func createService(t *testing.T, handler *Handler) *billing.Service {
	t.Helper()
	rec := doJSON(handler, http.MethodPost, "/api/services", map[string]any{
		"clientId":    "CL001",
		"reference":   "YI-1001",
		"referredBy":  "Young Individuals",
		"startDate":   "2024-03-15",
		"monthlyFee":  "100",
		"setupBudget": "200",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var svc billing.Service
	if err := json.Unmarshal(rec.Body.Bytes(), &svc); err != nil {
		t.Fatalf("decode service: %v", err)
	}
	return &svc
}

func TestCreateServiceEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)
	svc := createService(t, handler)
	if svc.ServiceID != "SV-CL001-0001" {
		t.Fatalf("serviceID = %q", svc.ServiceID)
	}
	if got := svc.StartDate.Format("2006-01-02"); got != "2024-03-15" {
		t.Fatalf("startDate = %s", got)
	}
}

func TestCreateServiceUnknownClient(t *testing.T) {
	handler, _ := newTestHandler(t)
	rec := doJSON(handler, http.MethodPost, "/api/services", map[string]any{
		"clientId": "CL999", "reference": "R1",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestReferenceConflictMapsTo409(t *testing.T) {
	handler, _ := newTestHandler(t)
	directoryAdd(handler, t)
	createService(t, handler)

	rec := doJSON(handler, http.MethodPost, "/api/services", map[string]any{
		"clientId": "CL002", "reference": "YI-1001", "referredBy": "Young Individuals",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (body %s)", rec.Code, rec.Body.String())
	}
}

// directoryAdd registers a second client on the handler's stub directory.
func directoryAdd(handler *Handler, t *testing.T) {
	t.Helper()
	dir, ok := handler.clientDir.(*stubClients)
	if !ok {
		t.Fatalf("unexpected directory type")
	}
	dir.known["CL002"] = &clients.Client{ID: "CL002"}
}

func TestStatementsPage(t *testing.T) {
	handler, _ := newTestHandler(t)
	svc := createService(t, handler)

	rec := doJSON(handler, http.MethodPost, "/api/services/"+svc.ServiceID+"/statements", map[string]any{
		"date": "20/03/2024", "description": "Council payment", "credit": "500",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(handler, http.MethodGet, "/api/services/"+svc.ServiceID+"/statements", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"Seq"`) {
		t.Fatalf("internal ordering field leaked into the response: %s", rec.Body.String())
	}
	var page statementPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Statements) == 0 {
		t.Fatalf("no statements returned")
	}
	// Creation seeds a monthly fee for March, so the balance nets the
	// manual credit against the seeded debit.
	want := decimal.NewFromInt(400)
	if !page.Balance.Equal(want) {
		t.Fatalf("balance = %s, want %s", page.Balance, want)
	}
}

func TestAddStatementBeforeStartRejected(t *testing.T) {
	handler, _ := newTestHandler(t)
	svc := createService(t, handler)

	rec := doJSON(handler, http.MethodPost, "/api/services/"+svc.ServiceID+"/statements", map[string]any{
		"date": "01/03/2024", "description": "Too early", "debit": "10",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteStatementEndpoint(t *testing.T) {
	handler, statements := newTestHandler(t)
	svc := createService(t, handler)

	entries, err := statements.ListByService(context.Background(), svc.ServiceID)
	if err != nil || len(entries) == 0 {
		t.Fatalf("no seeded entries: %v", err)
	}
	target := "/api/services/" + svc.ServiceID + "/statements/" + entries[0].ID
	rec := doRequest(handler, http.MethodDelete, target, "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doRequest(handler, http.MethodDelete, target, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestUploadEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)
	svc := createService(t, handler)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "upload.csv")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fmt.Fprintf(part, "serviceId,date,description,credit,debit\n%s,2024-04-01,Carer wages,,50\n", svc.ServiceID)
	mw.Close()

	rec := doRequest(handler, http.MethodPost, "/api/services/"+svc.ServiceID+"/statements/upload", mw.FormDataContentType(), &buf)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	var summary application.ImportSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Inserted != 1 {
		t.Fatalf("inserted = %d, want 1 (%+v)", summary.Inserted, summary)
	}
}

func TestUploadRejectsNonCSV(t *testing.T) {
	handler, _ := newTestHandler(t)
	svc := createService(t, handler)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "upload.txt")
	fmt.Fprintln(part, "not a csv")
	mw.Close()

	rec := doRequest(handler, http.MethodPost, "/api/services/"+svc.ServiceID+"/statements/upload", mw.FormDataContentType(), &buf)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCSVReportEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)
	svc := createService(t, handler)

	rec := doRequest(handler, http.MethodGet, "/api/services/"+svc.ServiceID+"/statements/report/csv", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), svc.ServiceID) {
		t.Fatalf("disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(rec.Body.String(), "Ada Lovelace") {
		t.Fatalf("report missing client name: %s", rec.Body.String())
	}
}

func TestReportBadDateQuery(t *testing.T) {
	handler, _ := newTestHandler(t)
	svc := createService(t, handler)

	rec := doRequest(handler, http.MethodGet, "/api/services/"+svc.ServiceID+"/statements/report/csv?start=nonsense", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUnknownReportFormat(t *testing.T) {
	handler, _ := newTestHandler(t)
	svc := createService(t, handler)

	rec := doRequest(handler, http.MethodGet, "/api/services/"+svc.ServiceID+"/statements/report/doc", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestServiceNotFoundEndpoints(t *testing.T) {
	handler, _ := newTestHandler(t)
	for _, target := range []string{
		"/api/services/SV-CL001-9999",
		"/api/services/SV-CL001-9999/statements",
		"/api/services/SV-CL001-9999/statements/download",
	} {
		rec := doRequest(handler, http.MethodGet, target, "", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s status = %d, want 404", target, rec.Code)
		}
	}
}
