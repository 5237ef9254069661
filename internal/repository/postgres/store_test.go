package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/booklend/internal/db"
	"github.com/baharkarakas/booklend/internal/models"
	"github.com/baharkarakas/booklend/internal/policy"
	repo "github.com/baharkarakas/booklend/internal/repository"
)

func testRepos(t *testing.T) Repositories {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.RunMigrations(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE transactions, requests, books, users, audit_logs`)
	require.NoError(t, err)
	return NewRepositories(pool)
}

func TestPostgres_RequestLifecycle(t *testing.T) {
	r := testRepos(t)
	ctx := context.Background()

	owner, err := r.Users.Create(ctx, "alice", "alice@example.com", "hash")
	require.NoError(t, err)
	_, err = r.Users.Create(ctx, "alice2", "alice@example.com", "hash")
	require.ErrorIs(t, err, repo.ErrDuplicate)

	book, err := r.Store.Books().Create(ctx, models.Book{OwnerID: owner.ID, Title: "T", Author: "A", IsAvailable: true})
	require.NoError(t, err)

	req := models.Request{ID: "r1", FromUserID: "carol", ToUserID: owner.ID, BookID: book.ID, Status: policy.StatusRequested}
	err = r.Store.WithTx(ctx, func(tx repo.Tx) error {
		// Ledger row first; the foreign key is deferred to commit.
		entry, err := tx.Transactions().Create(ctx, models.Transaction{RequestID: req.ID, Type: req.Status, CreatedAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		req.TransactionIDs = []string{entry.ID}
		return tx.Requests().Create(ctx, req)
	})
	require.NoError(t, err)

	got, err := r.Store.Requests().GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Len(t, got.TransactionIDs, 1)
	assert.Nil(t, got.OTP)

	code := "4321"
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	got.SetOTP(code, exp)
	updated, err := r.Store.Requests().Update(ctx, got, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	require.NotNil(t, updated.OTP)
	assert.Equal(t, code, *updated.OTP)
	assert.True(t, exp.Equal(*updated.OTPExpiresAt))

	_, err = r.Store.Requests().Update(ctx, got, 1)
	require.ErrorIs(t, err, repo.ErrVersionConflict)
	_, err = r.Store.Requests().Update(ctx, models.Request{ID: "missing"}, 1)
	require.ErrorIs(t, err, repo.ErrNotFound)

	open, err := r.Store.Requests().Find(ctx, repo.RequestFilter{BookID: book.ID, Statuses: []policy.Status{policy.StatusRequested}})
	require.NoError(t, err)
	assert.Len(t, open, 1)

	mine, err := r.Store.Requests().ListByUser(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	hist, err := r.Store.Transactions().ListByRequest(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, policy.StatusRequested, hist[0].Type)
}

func TestPostgres_WithTxRollsBack(t *testing.T) {
	r := testRepos(t)
	ctx := context.Background()

	book, err := r.Store.Books().Create(ctx, models.Book{OwnerID: "a", Title: "T", Author: "A", IsAvailable: true})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = r.Store.WithTx(ctx, func(tx repo.Tx) error {
		require.NoError(t, tx.Books().SetAvailability(ctx, book.ID, false))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := r.Store.Books().GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAvailable)

	require.NoError(t, r.Store.Books().Delete(ctx, book.ID))
	_, err = r.Store.Books().GetByID(ctx, book.ID)
	require.ErrorIs(t, err, repo.ErrNotFound)
	require.ErrorIs(t, r.Store.Books().SetAvailability(ctx, book.ID, true), repo.ErrNotFound)

	require.NoError(t, r.AuditLogs.Create(ctx, models.AuditLog{EntityType: "request", Action: "denied_transition", Details: map[string]any{"kind": "unauthorized"}}))
}
