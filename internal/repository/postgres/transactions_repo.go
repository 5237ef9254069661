package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/baharkarakas/booklend/internal/models"
)

// transactionsRepo is append-only: there is no update or delete statement
// for the ledger.
type transactionsRepo struct{ q querier }

func (r *transactionsRepo) Create(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	const q = `
INSERT INTO transactions (id, request_id, type, created_at)
VALUES ($1, $2, $3, COALESCE($4::timestamptz, now()))
RETURNING id, request_id, type, created_at;
`
	var createdAt any
	if !t.CreatedAt.IsZero() {
		createdAt = t.CreatedAt
	}
	err := r.q.QueryRow(ctx, q, t.ID, t.RequestID, t.Type, createdAt).
		Scan(&t.ID, &t.RequestID, &t.Type, &t.CreatedAt)
	return t, mapErr(err)
}

func (r *transactionsRepo) ListByRequest(ctx context.Context, requestID string) ([]models.Transaction, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id, request_id, type, created_at
		   FROM transactions
		  WHERE request_id=$1
		  ORDER BY created_at, seq`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.RequestID, &t.Type, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
