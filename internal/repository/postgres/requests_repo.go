package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/baharkarakas/booklend/internal/models"
	repo "github.com/baharkarakas/booklend/internal/repository"
)

type requestsRepo struct{ q querier }

const requestCols = `id, from_user_id, to_user_id, book_id, status, otp, otp_expires_at,
       transaction_ids, version, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (models.Request, error) {
	var r models.Request
	err := row.Scan(
		&r.ID, &r.FromUserID, &r.ToUserID, &r.BookID, &r.Status, &r.OTP, &r.OTPExpiresAt,
		&r.TransactionIDs, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, mapErr(err)
}

func ids(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func (r *requestsRepo) Create(ctx context.Context, q models.Request) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Version == 0 {
		q.Version = 1
	}
	_, err := r.q.Exec(ctx,
		`INSERT INTO requests(id, from_user_id, to_user_id, book_id, status, otp, otp_expires_at, transaction_ids, version)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		q.ID, q.FromUserID, q.ToUserID, q.BookID, q.Status, q.OTP, q.OTPExpiresAt, ids(q.TransactionIDs), q.Version,
	)
	return mapErr(err)
}

func (r *requestsRepo) GetByID(ctx context.Context, id string) (models.Request, error) {
	return scanRequest(r.q.QueryRow(ctx, `SELECT `+requestCols+` FROM requests WHERE id=$1`, id))
}

func (r *requestsRepo) ListByUser(ctx context.Context, userID string) ([]models.Request, error) {
	return r.list(ctx, `WHERE from_user_id=$1 OR to_user_id=$1`, userID)
}

func (r *requestsRepo) Find(ctx context.Context, f repo.RequestFilter) ([]models.Request, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.FromUserID != "" {
		add("from_user_id=$%d", f.FromUserID)
	}
	if f.BookID != "" {
		add("book_id=$%d", f.BookID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", statuses)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	return r.list(ctx, where, args...)
}

func (r *requestsRepo) list(ctx context.Context, where string, args ...any) ([]models.Request, error) {
	rows, err := r.q.Query(ctx, `SELECT `+requestCols+` FROM requests `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Request
	for rows.Next() {
		q, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *requestsRepo) Update(ctx context.Context, q models.Request, expected int64) (models.Request, error) {
	out, err := scanRequest(r.q.QueryRow(ctx,
		`UPDATE requests
		    SET status=$3, otp=$4, otp_expires_at=$5, transaction_ids=$6,
		        version = version + 1, updated_at = now()
		  WHERE id=$1 AND version=$2
		  RETURNING `+requestCols,
		q.ID, expected, q.Status, q.OTP, q.OTPExpiresAt, ids(q.TransactionIDs),
	))
	if !errors.Is(err, repo.ErrNotFound) {
		return out, err
	}
	// No row matched: either the request is gone or someone else moved it on.
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM requests WHERE id=$1)`, q.ID).Scan(&exists); err != nil {
		return models.Request{}, mapErr(err)
	}
	if exists {
		return models.Request{}, repo.ErrVersionConflict
	}
	return models.Request{}, repo.ErrNotFound
}
