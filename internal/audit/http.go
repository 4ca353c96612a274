package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ListHandler serves the activity log, newest first.
type ListHandler struct {
	repo *Repository
}

// NewListHandler constructs a handler.
func NewListHandler(repo *Repository) *ListHandler {
	return &ListHandler{repo: repo}
}

func (h *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	entries, err := h.repo.List(r.Context(), limit)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}
