package clients

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"careledger/internal/audit"
	"careledger/internal/auth"
)

// Handler provides client and council HTTP endpoints.
type Handler struct {
	repo        *Repository
	activityLog audit.Logger
	logger      *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(repo *Repository, activityLog audit.Logger, logger *log.Logger) (*Handler, error) {
	if repo == nil {
		return nil, errors.New("clients handler: nil repository")
	}
	return &Handler{repo: repo, activityLog: activityLog, logger: logger}, nil
}

// ServeHTTP handles /api/clients, /api/councils and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/clients":
		h.handleClients(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/clients/"):
		h.handleClient(w, r, strings.TrimPrefix(r.URL.Path, "/api/clients/"))
	case r.URL.Path == "/api/councils":
		h.handleCouncils(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/councils/"):
		h.handleCouncil(w, r, strings.TrimPrefix(r.URL.Path, "/api/councils/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleClients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.repo.ListClients(r.Context())
		if err != nil {
			respondClientError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var client Client
		if err := json.NewDecoder(r.Body).Decode(&client); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if client.ID == "" {
			http.Error(w, "id is required", http.StatusBadRequest)
			return
		}
		if err := h.repo.CreateClient(r.Context(), &client); err != nil {
			respondClientError(w, err)
			return
		}
		h.logActivity(r.Context(), r, audit.CategoryClient, "Client "+client.ID+" added")
		writeJSON(w, http.StatusCreated, client)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleClient(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		client, err := h.repo.GetClient(r.Context(), id)
		if err != nil {
			respondClientError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, client)
	case http.MethodPut:
		var client Client
		if err := json.NewDecoder(r.Body).Decode(&client); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		client.ID = id
		if err := h.repo.UpdateClient(r.Context(), &client); err != nil {
			respondClientError(w, err)
			return
		}
		h.logActivity(r.Context(), r, audit.CategoryClient, "Client "+id+" updated")
		writeJSON(w, http.StatusOK, client)
	case http.MethodDelete:
		if err := h.repo.DeleteClient(r.Context(), id); err != nil {
			respondClientError(w, err)
			return
		}
		h.logActivity(r.Context(), r, audit.CategoryClient, "Client "+id+" deleted")
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCouncils(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		enabledOnly := r.URL.Query().Get("enabled") == "true"
		list, err := h.repo.ListCouncils(r.Context(), enabledOnly)
		if err != nil {
			respondClientError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var council Council
		if err := json.NewDecoder(r.Body).Decode(&council); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if council.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		if err := h.repo.CreateCouncil(r.Context(), &council); err != nil {
			respondClientError(w, err)
			return
		}
		h.logActivity(r.Context(), r, audit.CategoryCouncil, "Council "+council.Name+" added")
		writeJSON(w, http.StatusCreated, council)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCouncil(w http.ResponseWriter, r *http.Request, path string) {
	parts := strings.Split(path, "/")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(parts) == 2 && parts[1] == "status" {
		if r.Method != http.MethodPatch {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
			http.Error(w, "status is required", http.StatusBadRequest)
			return
		}
		if err := h.repo.SetCouncilStatus(r.Context(), id, body.Status); err != nil {
			respondClientError(w, err)
			return
		}
		h.logActivity(r.Context(), r, audit.CategoryCouncil, "Council status changed to "+body.Status)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if len(parts) != 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		council, err := h.repo.GetCouncil(r.Context(), id)
		if err != nil {
			respondClientError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, council)
	case http.MethodPut:
		var council Council
		if err := json.NewDecoder(r.Body).Decode(&council); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		council.ID = id
		if err := h.repo.UpdateCouncil(r.Context(), &council); err != nil {
			respondClientError(w, err)
			return
		}
		h.logActivity(r.Context(), r, audit.CategoryCouncil, "Council "+council.Name+" updated")
		writeJSON(w, http.StatusOK, council)
	case http.MethodDelete:
		if err := h.repo.DeleteCouncil(r.Context(), id); err != nil {
			respondClientError(w, err)
			return
		}
		h.logActivity(r.Context(), r, audit.CategoryCouncil, "Council deleted")
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) logActivity(ctx context.Context, r *http.Request, category, action string) {
	if h.activityLog == nil {
		return
	}
	entry := audit.Entry{User: auth.UsernameFromContext(r.Context()), Action: action, Category: category}
	if err := h.activityLog.Log(ctx, entry); err != nil && h.logger != nil {
		h.logger.Printf("activity log error: %v", err)
	}
}

func respondClientError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrClientNotFound), errors.Is(err, ErrCouncilNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
