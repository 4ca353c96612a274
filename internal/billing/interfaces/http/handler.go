package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"careledger/internal/auth"
	"careledger/internal/billing/application"
	billing "careledger/internal/billing/domain"
	"careledger/internal/billing/interfaces"
	"careledger/internal/clients"
	"careledger/internal/observability/metrics"

	"github.com/shopspring/decimal"
)

const maxUploadBytes = 10 << 20

// ClientDirectory resolves clients for report headers.
type ClientDirectory interface {
	GetClient(ctx context.Context, clientID string) (*clients.Client, error)
}

// Handler provides the service and statement HTTP endpoints.
type Handler struct {
	catalog   *application.CatalogService
	ledger    *application.LedgerService
	importer  *application.ImportService
	clientDir ClientDirectory
	logger    *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(catalog *application.CatalogService, ledger *application.LedgerService, importer *application.ImportService, clientDir ClientDirectory, logger *log.Logger) (*Handler, error) {
	if catalog == nil || ledger == nil || importer == nil {
		return nil, errors.New("billing handler: nil service")
	}
	return &Handler{catalog: catalog, ledger: ledger, importer: importer, clientDir: clientDir, logger: logger}, nil
}

// ServeHTTP handles /api/services and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/services" {
		switch r.Method {
		case http.MethodGet:
			h.handleListServices(w, r)
		case http.MethodPost:
			h.handleCreateService(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/services/")
	if path == r.URL.Path {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(path, "/")
	serviceID := parts[0]
	if serviceID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case len(parts) == 1:
		h.handleService(w, r, serviceID)
	case len(parts) == 2 && parts[1] == "statements":
		h.handleStatements(w, r, serviceID)
	case len(parts) == 3 && parts[1] == "statements" && parts[2] == "upload":
		h.handleUpload(w, r)
	case len(parts) == 3 && parts[1] == "statements" && parts[2] == "download":
		h.handleExport(w, r, serviceID, "pdf")
	case len(parts) == 4 && parts[1] == "statements" && parts[2] == "report":
		h.handleExport(w, r, serviceID, parts[3])
	case len(parts) == 3 && parts[1] == "statements":
		h.handleStatement(w, r, serviceID, parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleListServices(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var input application.CreateServiceInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	svc, err := h.catalog.Create(r.Context(), input, auth.UsernameFromContext(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

func (h *Handler) handleService(w http.ResponseWriter, r *http.Request, serviceID string) {
	switch r.Method {
	case http.MethodGet:
		svc, err := h.catalog.Get(r.Context(), serviceID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, svc)
	case http.MethodPut:
		var patch application.ServicePatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		svc, err := h.catalog.Update(r.Context(), serviceID, patch, auth.UsernameFromContext(r.Context()))
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, svc)
	case http.MethodDelete:
		if err := h.catalog.Delete(r.Context(), serviceID, auth.UsernameFromContext(r.Context())); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type statementPage struct {
	Statements []billing.Statement `json:"statements"`
	Balance    decimal.Decimal     `json:"balance"`
}

func (h *Handler) handleStatements(w http.ResponseWriter, r *http.Request, serviceID string) {
	switch r.Method {
	case http.MethodGet:
		entries, balance, err := h.ledger.List(r.Context(), serviceID)
		if err != nil {
			respondError(w, err)
			return
		}
		if entries == nil {
			entries = []billing.Statement{}
		}
		writeJSON(w, http.StatusOK, statementPage{Statements: entries, Balance: balance})
	case http.MethodPost:
		var input application.StatementInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		st, err := h.ledger.Add(r.Context(), serviceID, input, auth.UsernameFromContext(r.Context()))
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, st)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request, serviceID, statementID string) {
	switch r.Method {
	case http.MethodPut:
		var patch application.StatementPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		st, err := h.ledger.Update(r.Context(), serviceID, statementID, patch, auth.UsernameFromContext(r.Context()))
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	case http.MethodDelete:
		if err := h.ledger.Delete(r.Context(), serviceID, statementID, auth.UsernameFromContext(r.Context())); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	summary, err := h.importer.Import(r.Context(), header.Filename, file, auth.UsernameFromContext(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, serviceID, format string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	started := time.Now()
	body, contentType, filename, err := h.buildExport(r, serviceID, format)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		respondError(w, err)
		return
	}
	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) buildExport(r *http.Request, serviceID, format string) ([]byte, string, string, error) {
	svc, err := h.catalog.Get(r.Context(), serviceID)
	if err != nil {
		return nil, "", "", err
	}
	entries, _, err := h.ledger.List(r.Context(), serviceID)
	if err != nil {
		return nil, "", "", err
	}
	client := &clients.Client{ID: svc.ClientID}
	if h.clientDir != nil {
		resolved, err := h.clientDir.GetClient(r.Context(), svc.ClientID)
		if err == nil {
			client = resolved
		} else if !errors.Is(err, clients.ErrClientNotFound) {
			return nil, "", "", err
		}
	}

	switch format {
	case "pdf":
		body, err := interfaces.BuildStatementPDF(client, svc, entries)
		return body, "application/pdf", "statement-" + serviceID + ".pdf", err
	case "csv":
		start, err := parseDateQuery(r, "start")
		if err != nil {
			return nil, "", "", err
		}
		end, err := parseDateQuery(r, "end")
		if err != nil {
			return nil, "", "", err
		}
		body, err := interfaces.BuildStatementCSV(client, svc, entries, start, end)
		return body, "text/csv", "statement-" + serviceID + ".csv", err
	case "xlsx":
		body, err := interfaces.BuildStatementXLSX(client, svc, entries)
		return body, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "statement-" + serviceID + ".xlsx", err
	default:
		return nil, "", "", fmt.Errorf("%w: unknown report format %q", errBadRequest, format)
	}
}

var errBadRequest = errors.New("bad request")

func parseDateQuery(r *http.Request, key string) (*time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	date, ok := billing.ParseFlexibleDate(value)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a date", errBadRequest, key)
	}
	return &date, nil
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrServiceNotFound),
		errors.Is(err, billing.ErrStatementNotFound),
		errors.Is(err, billing.ErrClientNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, billing.ErrReferenceInUse),
		errors.Is(err, billing.ErrReferenceCategory):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, billing.ErrInvalidDate),
		errors.Is(err, billing.ErrDateBeforeStart),
		errors.Is(err, billing.ErrNegativeAmount),
		errors.Is(err, application.ErrNotCSV),
		errors.Is(err, application.ErrEmptyFile),
		errors.Is(err, application.ErrMissingColumns),
		errors.Is(err, application.ErrMalformedCSV),
		errors.Is(err, errBadRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
