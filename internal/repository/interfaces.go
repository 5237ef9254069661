package repository

import (
	"context"
	"errors"

	"github.com/baharkarakas/booklend/internal/models"
	"github.com/baharkarakas/booklend/internal/policy"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
	// ErrVersionConflict means a compare-and-swap update lost to another writer.
	ErrVersionConflict = errors.New("version conflict")
)

type Users interface {
	Create(ctx context.Context, username, email, passwordHash string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

type Books interface {
	Create(ctx context.Context, b models.Book) (models.Book, error)
	GetByID(ctx context.Context, id string) (models.Book, error)
	List(ctx context.Context) ([]models.Book, error)
	SetAvailability(ctx context.Context, id string, available bool) error
	Delete(ctx context.Context, id string) error
}

// RequestFilter selects requests; zero fields match anything.
type RequestFilter struct {
	FromUserID string
	BookID     string
	Statuses   []policy.Status
}

type Requests interface {
	Create(ctx context.Context, r models.Request) error
	GetByID(ctx context.Context, id string) (models.Request, error)
	ListByUser(ctx context.Context, userID string) ([]models.Request, error)
	Find(ctx context.Context, f RequestFilter) ([]models.Request, error)
	// Update writes r only if the stored version still equals expected,
	// bumping it by one. Otherwise it returns ErrVersionConflict.
	Update(ctx context.Context, r models.Request, expected int64) (models.Request, error)
}

// Transactions is the ledger table. There is deliberately no update or delete.
type Transactions interface {
	Create(ctx context.Context, t models.Transaction) (models.Transaction, error)
	ListByRequest(ctx context.Context, requestID string) ([]models.Transaction, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}

// Tx is the set of repositories bound to one unit of work.
type Tx interface {
	Books() Books
	Requests() Requests
	Transactions() Transactions
}

// Store hands out repositories and runs atomic units of work.
// Either every write made through the Tx passed to fn is committed, or none.
type Store interface {
	Tx
	WithTx(ctx context.Context, fn func(Tx) error) error
}
