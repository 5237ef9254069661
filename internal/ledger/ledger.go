// Package ledger is the append-only audit trail of request status changes.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/baharkarakas/booklend/internal/models"
	"github.com/baharkarakas/booklend/internal/policy"
	repo "github.com/baharkarakas/booklend/internal/repository"
)

type Ledger struct {
	txns repo.Transactions
	now  func() time.Time
}

func New(txns repo.Transactions, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{txns: txns, now: now}
}

// Append records that requestID moved into status. It must run on the
// Transactions repository of the unit of work that persists the status
// change, so the entry and the change commit together.
func (l *Ledger) Append(ctx context.Context, txns repo.Transactions, requestID string, status policy.Status) (models.Transaction, error) {
	if requestID == "" {
		return models.Transaction{}, fmt.Errorf("ledger: empty request id")
	}
	t, err := txns.Create(ctx, models.Transaction{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Type:      status,
		CreatedAt: l.now().UTC(),
	})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("ledger: append %s for %s: %w", status, requestID, err)
	}
	return t, nil
}

// History returns the entries of requestID in the order they were written.
func (l *Ledger) History(ctx context.Context, requestID string) ([]models.Transaction, error) {
	out, err := l.txns.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("ledger: history %s: %w", requestID, err)
	}
	return out, nil
}
