package audit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Categories used by the activity log.
const (
	CategoryGeneral   = "general"
	CategoryService   = "service"
	CategoryStatement = "statement"
	CategoryBudget    = "budget"
	CategoryClient    = "client"
	CategoryCouncil   = "council"
	CategoryAuth      = "auth"
)

// Entry is one activity-log record.
type Entry struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger appends activity entries. Appends are fire-and-forget: failures must
// never roll back the business mutation that triggered them.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random activity id.
func NewID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "act-" + hex.EncodeToString(buf)
}
