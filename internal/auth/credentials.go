package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Credential is a resolvable login identity.
type Credential struct {
	Username     string
	DisplayName  string
	Role         Role
	Enabled      bool
	PasswordHash []byte
	Permissions  json.RawMessage
}

// CheckPassword verifies a plaintext password against the stored bcrypt hash.
func (c *Credential) CheckPassword(plain string) bool {
	if c == nil || len(c.PasswordHash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(c.PasswordHash, []byte(plain)) == nil
}

// Source resolves a username to a credential. A (nil, nil) return means the
// source does not know the user; resolution falls through to the next source.
type Source interface {
	Lookup(ctx context.Context, username string) (*Credential, error)
}

// Resolver checks sources in order. The configured super-admin set is expected
// first so it shadows same-named database users.
type Resolver struct {
	sources []Source
}

// NewResolver constructs a resolver with a defined precedence order.
func NewResolver(sources ...Source) *Resolver {
	return &Resolver{sources: sources}
}

// Lookup returns the first credential any source knows, or (nil, nil).
func (r *Resolver) Lookup(ctx context.Context, username string) (*Credential, error) {
	if r == nil {
		return nil, errors.New("auth: nil resolver")
	}
	for _, source := range r.sources {
		if source == nil {
			continue
		}
		cred, err := source.Lookup(ctx, username)
		if err != nil {
			return nil, err
		}
		if cred != nil {
			return cred, nil
		}
	}
	return nil, nil
}

// StaticSource holds the in-process super admins parsed from configuration.
type StaticSource struct {
	credentials []Credential
}

type superAdminConfig struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// NewStaticSourceFromJSON parses the SUPERADMINS JSON list. Entries without a
// username or password are dropped; passwords are hashed at load so plaintext
// never lives past startup.
func NewStaticSourceFromJSON(raw string) (*StaticSource, error) {
	source := &StaticSource{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return source, nil
	}
	var items []superAdminConfig
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	for _, item := range items {
		username := strings.TrimSpace(item.Username)
		if username == "" || item.Password == "" {
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(item.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = username
		}
		source.credentials = append(source.credentials, Credential{
			Username:     username,
			DisplayName:  name,
			Role:         RoleSuperAdmin,
			Enabled:      true,
			PasswordHash: hash,
		})
	}
	return source, nil
}

// Lookup matches usernames case-insensitively.
func (s *StaticSource) Lookup(_ context.Context, username string) (*Credential, error) {
	if s == nil {
		return nil, nil
	}
	for i := range s.credentials {
		if strings.EqualFold(s.credentials[i].Username, username) {
			cred := s.credentials[i]
			return &cred, nil
		}
	}
	return nil, nil
}

// Len reports how many super admins are configured.
func (s *StaticSource) Len() int {
	if s == nil {
		return 0
	}
	return len(s.credentials)
}

// DBSource resolves credentials from the users table.
type DBSource struct {
	db *sql.DB
}

// NewDBSource constructs a database credential source.
func NewDBSource(db *sql.DB) *DBSource {
	return &DBSource{db: db}
}

// Lookup matches usernames case-insensitively.
func (s *DBSource) Lookup(ctx context.Context, username string) (*Credential, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("auth: nil db source")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT username, COALESCE(display_name, ''), role, enabled, password_hash, permissions
FROM users
WHERE lower(username) = lower($1)`, username)

	var cred Credential
	var role string
	var hash string
	var permissions []byte
	err := row.Scan(&cred.Username, &cred.DisplayName, &role, &cred.Enabled, &hash, &permissions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	normalized, ok := NormalizeRole(role)
	if !ok {
		normalized = RoleStaff
	}
	cred.Role = normalized
	cred.PasswordHash = []byte(hash)
	cred.Permissions = permissions
	return &cred, nil
}
