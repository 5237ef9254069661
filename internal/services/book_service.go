package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/baharkarakas/booklend/internal/models"
	"github.com/baharkarakas/booklend/internal/policy"
	repo "github.com/baharkarakas/booklend/internal/repository"
	"github.com/baharkarakas/booklend/internal/validate"
)

// BookService manages the shelf. Availability is never set here: it only
// changes as a side effect of RequestService.Transition.
type BookService struct {
	store  repo.Store
	users  repo.Users
	policy *policy.Policy
	log    *slog.Logger
}

func NewBookService(store repo.Store, users repo.Users, p *policy.Policy, log *slog.Logger) *BookService {
	if p == nil {
		p = policy.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	return &BookService{store: store, users: users, policy: p, log: log}
}

func (s *BookService) List(ctx context.Context) ([]BookView, error) {
	books, err := s.store.Books().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	names := newNameCache(s.users)
	out := make([]BookView, 0, len(books))
	for _, b := range books {
		out = append(out, bookView(ctx, names, b))
	}
	return out, nil
}

func (s *BookService) Add(ctx context.Context, callerID, title, author string) (BookView, error) {
	owner := models.NormalizeID(callerID)
	title, author = strings.TrimSpace(title), strings.TrimSpace(author)

	errs := validate.Collect(
		validate.Required("owner", owner),
		validate.Required("title", title),
		validate.Required("author", author),
		validate.MaxLen("title", title, 300),
		validate.MaxLen("author", author, 200),
	)
	if len(errs) > 0 {
		return BookView{}, &Error{Kind: KindValidation, Msg: errs.Error(), Err: errs}
	}

	b, err := s.store.Books().Create(ctx, models.Book{
		OwnerID:     owner,
		Title:       title,
		Author:      author,
		IsAvailable: true,
	})
	if err != nil {
		return BookView{}, fmt.Errorf("create book: %w", err)
	}
	s.log.Info("book added", "book_id", b.ID, "owner", owner)
	return bookView(ctx, newNameCache(s.users), b), nil
}

// Delete removes a book owned by the caller. A book with a request still in
// flight stays on the shelf.
func (s *BookService) Delete(ctx context.Context, callerID, bookID string) error {
	caller := models.NormalizeID(callerID)
	id := models.NormalizeID(bookID)
	if id == "" {
		return newErr(KindValidation, "book id is required")
	}
	err := s.store.WithTx(ctx, func(tx repo.Tx) error {
		b, err := tx.Books().GetByID(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return errBookNotFound(id)
		}
		if err != nil {
			return fmt.Errorf("load book %s: %w", id, err)
		}
		if b.OwnerID != caller {
			return newErr(KindUnauthorized, "only the book owner can remove it")
		}
		reqs, err := tx.Requests().Find(ctx, repo.RequestFilter{BookID: id})
		if err != nil {
			return fmt.Errorf("find requests: %w", err)
		}
		for _, r := range reqs {
			if !s.policy.IsTerminal(r.Status) {
				return newErr(KindInvalidState, "book has an open request (%s)", r.Status)
			}
		}
		return tx.Books().Delete(ctx, id)
	})
	if err != nil {
		if KindOf(err) == "" && (errors.Is(err, repo.ErrVersionConflict) || errors.Is(err, repo.ErrDuplicate)) {
			return errConflict(err)
		}
		return err
	}
	s.log.Info("book removed", "book_id", id, "owner", caller)
	return nil
}
