package clients

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrClientNotFound is returned for unknown client ids.
	ErrClientNotFound = errors.New("clients: client not found")
	// ErrCouncilNotFound is returned for unknown council ids.
	ErrCouncilNotFound = errors.New("clients: council not found")
)

// Client is a person receiving care services.
type Client struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	DOB       time.Time `json:"-"`
	Gender    string    `json:"gender"`
	CouncilID int64     `json:"councilId,omitempty"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	Status    string    `json:"status"`

	// Opaque collections round-tripped for the frontend.
	Disabilities   json.RawMessage `json:"disabilities,omitempty"`
	OptionalFields json.RawMessage `json:"optionalFields,omitempty"`
}

// FullName joins first and last name, falling back to the id.
func (c *Client) FullName() string {
	name := c.FirstName
	if c.LastName != "" {
		if name != "" {
			name += " "
		}
		name += c.LastName
	}
	if name == "" {
		return c.ID
	}
	return name
}

// Council is a local authority funding clients.
type Council struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	Postcode  string    `json:"postcode"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
