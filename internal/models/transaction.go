package models

import (
	"time"

	"github.com/baharkarakas/booklend/internal/policy"
)

// Transaction is one ledger entry: the status a request moved into.
// Entries are never updated or deleted.
type Transaction struct {
	ID        string        `json:"id"`
	RequestID string        `json:"request_id"`
	Type      policy.Status `json:"type"`
	CreatedAt time.Time     `json:"created_at"`
}
