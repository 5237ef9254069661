package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/baharkarakas/booklend/internal/models"
	repo "github.com/baharkarakas/booklend/internal/repository"
)

type booksRepo struct{ q querier }

const bookCols = `id, owner_id, title, author, is_available, created_at, updated_at`

func scanBook(row interface{ Scan(...any) error }) (models.Book, error) {
	var b models.Book
	err := row.Scan(&b.ID, &b.OwnerID, &b.Title, &b.Author, &b.IsAvailable, &b.CreatedAt, &b.UpdatedAt)
	return b, mapErr(err)
}

func (r *booksRepo) Create(ctx context.Context, b models.Book) (models.Book, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return scanBook(r.q.QueryRow(ctx,
		`INSERT INTO books(id, owner_id, title, author, is_available)
		 VALUES($1,$2,$3,$4,$5)
		 RETURNING `+bookCols,
		b.ID, b.OwnerID, b.Title, b.Author, b.IsAvailable,
	))
}

func (r *booksRepo) GetByID(ctx context.Context, id string) (models.Book, error) {
	return scanBook(r.q.QueryRow(ctx, `SELECT `+bookCols+` FROM books WHERE id=$1`, id))
}

func (r *booksRepo) List(ctx context.Context) ([]models.Book, error) {
	rows, err := r.q.Query(ctx, `SELECT `+bookCols+` FROM books ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *booksRepo) SetAvailability(ctx context.Context, id string, available bool) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE books SET is_available=$2, updated_at=now() WHERE id=$1`,
		id, available,
	)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *booksRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM books WHERE id=$1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
