package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	repo "github.com/baharkarakas/booklend/internal/repository"
)

type Repositories struct {
	Store     *Store
	Users     repo.Users
	AuditLogs repo.AuditLogs
}

func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Store:     NewStore(pool),
		Users:     &usersRepo{pool},
		AuditLogs: &auditLogsRepo{pool},
	}
}
