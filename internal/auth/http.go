package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"careledger/internal/audit"
)

// LoginHandler authenticates against the credential resolver and issues
// session tokens.
type LoginHandler struct {
	resolver    *Resolver
	secret      []byte
	tokenTTL    time.Duration
	activityLog audit.Logger
}

// NewLoginHandler constructs a login handler.
func NewLoginHandler(resolver *Resolver, secret []byte, tokenTTL time.Duration, activityLog audit.Logger) *LoginHandler {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &LoginHandler{resolver: resolver, secret: secret, tokenTTL: tokenTTL, activityLog: activityLog}
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	cred, err := h.resolver.Lookup(r.Context(), req.Username)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if cred == nil || !cred.CheckPassword(req.Password) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if !cred.Enabled {
		http.Error(w, "account disabled", http.StatusForbidden)
		return
	}
	token, err := IssueJWT(cred.Username, cred.Role, cred.DisplayName, h.secret, h.tokenTTL)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if h.activityLog != nil {
		_ = h.activityLog.Log(r.Context(), audit.Entry{
			User:     cred.Username,
			Action:   "User '" + cred.Username + "' logged in",
			Category: audit.CategoryAuth,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"token":       token,
		"username":    cred.Username,
		"displayName": cred.DisplayName,
		"role":        cred.Role,
		"permissions": cred.Permissions,
	})
}

// ProfileHandler returns the identity behind a session token.
type ProfileHandler struct {
	resolver *Resolver
}

// NewProfileHandler constructs a profile handler.
func NewProfileHandler(resolver *Resolver) *ProfileHandler {
	return &ProfileHandler{resolver: resolver}
}

func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	username := UsernameFromContext(r.Context())
	if username == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	cred, err := h.resolver.Lookup(r.Context(), username)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if cred == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"username":    cred.Username,
		"displayName": cred.DisplayName,
		"role":        cred.Role,
		"enabled":     cred.Enabled,
		"permissions": cred.Permissions,
	})
}
