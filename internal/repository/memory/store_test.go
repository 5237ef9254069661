package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/booklend/internal/models"
	"github.com/baharkarakas/booklend/internal/policy"
	repo "github.com/baharkarakas/booklend/internal/repository"
)

func seed(t *testing.T, s *Store) (models.Book, models.Request) {
	t.Helper()
	ctx := context.Background()
	b, err := s.Books().Create(ctx, models.Book{OwnerID: "a", Title: "T", Author: "A", IsAvailable: true})
	require.NoError(t, err)
	r := models.Request{ID: "r1", FromUserID: "c", ToUserID: "a", BookID: b.ID, Status: policy.StatusRequested}
	require.NoError(t, s.Requests().Create(ctx, r))
	got, err := s.Requests().GetByID(ctx, "r1")
	require.NoError(t, err)
	return b, got
}

func TestWithTx_CommitsAllOrNothing(t *testing.T) {
	s := New()
	ctx := context.Background()
	b, r := seed(t, s)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx repo.Tx) error {
		_, err := tx.Transactions().Create(ctx, models.Transaction{RequestID: r.ID, Type: policy.StatusGave})
		require.NoError(t, err)
		r.Status = policy.StatusGave
		_, err = tx.Requests().Update(ctx, r, r.Version)
		require.NoError(t, err)
		require.NoError(t, tx.Books().SetAvailability(ctx, b.ID, false))

		// Writes are visible inside the unit.
		inTx, err := tx.Requests().GetByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, policy.StatusGave, inTx.Status)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Requests().GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, policy.StatusRequested, got.Status)
	book, err := s.Books().GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, book.IsAvailable)
	hist, err := s.Transactions().ListByRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, hist)

	require.NoError(t, s.WithTx(ctx, func(tx repo.Tx) error {
		if _, err := tx.Transactions().Create(ctx, models.Transaction{RequestID: r.ID, Type: policy.StatusGave}); err != nil {
			return err
		}
		return tx.Books().SetAvailability(ctx, b.ID, false)
	}))
	book, err = s.Books().GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, book.IsAvailable)
	hist, err = s.Transactions().ListByRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestRequests_UpdateIsCompareAndSwap(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, r := seed(t, s)
	require.Equal(t, int64(1), r.Version)

	r.Status = policy.StatusRejected
	updated, err := s.Requests().Update(ctx, r, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	r.Status = policy.StatusCancelled
	_, err = s.Requests().Update(ctx, r, 1)
	require.ErrorIs(t, err, repo.ErrVersionConflict)

	got, err := s.Requests().GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, policy.StatusRejected, got.Status)

	_, err = s.Requests().Update(ctx, models.Request{ID: "missing"}, 1)
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRequests_ReadsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, r := seed(t, s)

	code := "1234"
	r.OTP = &code
	r.TransactionIDs = append(r.TransactionIDs, "x")
	_, err := s.Requests().Update(ctx, r, r.Version)
	require.NoError(t, err)

	got, err := s.Requests().GetByID(ctx, r.ID)
	require.NoError(t, err)
	*got.OTP = "0000"
	got.TransactionIDs[0] = "mutated"

	again, err := s.Requests().GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "1234", *again.OTP)
	assert.Equal(t, []string{"x"}, again.TransactionIDs)
}

func TestRequests_FindAndListByUser(t *testing.T) {
	s := New()
	ctx := context.Background()
	b, _ := seed(t, s)
	require.NoError(t, s.Requests().Create(ctx, models.Request{ID: "r2", FromUserID: "d", ToUserID: "a", BookID: b.ID, Status: policy.StatusCancelled}))

	all, err := s.Requests().ListByUser(ctx, "a")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "r1", all[0].ID)

	mine, err := s.Requests().ListByUser(ctx, "d")
	require.NoError(t, err)
	require.Len(t, mine, 1)

	open, err := s.Requests().Find(ctx, repo.RequestFilter{BookID: b.ID, Statuses: []policy.Status{policy.StatusRequested}})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "r1", open[0].ID)

	err = s.Requests().Create(ctx, models.Request{ID: "r2"})
	require.ErrorIs(t, err, repo.ErrDuplicate)
}

func TestUsers_DuplicateEmail(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.Users().Create(ctx, "alice", "a@x.io", "h")
	require.NoError(t, err)
	_, err = s.Users().Create(ctx, "alice2", "a@x.io", "h")
	require.ErrorIs(t, err, repo.ErrDuplicate)

	_, err = s.Users().GetByEmail(ctx, "nobody@x.io")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestBooks_Delete(t *testing.T) {
	s := New()
	ctx := context.Background()
	b, _ := seed(t, s)
	require.NoError(t, s.Books().Delete(ctx, b.ID))
	_, err := s.Books().GetByID(ctx, b.ID)
	require.ErrorIs(t, err, repo.ErrNotFound)
	require.ErrorIs(t, s.Books().Delete(ctx, b.ID), repo.ErrNotFound)
}
