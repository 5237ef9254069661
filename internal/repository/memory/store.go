// Package memory is an in-process implementation of the repository
// interfaces. It backs APP_STORE=memory and the service tests.
package memory

import (
	"context"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/baharkarakas/booklend/internal/models"
	repo "github.com/baharkarakas/booklend/internal/repository"
)

// Store keeps every table in maps. Units of work are serialized store-wide
// by txMu and buffer their writes until commit; plain reads never wait for
// a unit.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	now  func() time.Time
	seq  int64

	users    map[string]models.User
	books    map[string]models.Book
	requests map[string]models.Request
	txns     map[string]models.Transaction
	order    map[string]int64
	audit    []models.AuditLog
}

type Option func(*Store)

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		users:    map[string]models.User{},
		books:    map[string]models.Book{},
		requests: map[string]models.Request{},
		txns:     map[string]models.Transaction{},
		order:    map[string]int64{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Users() repo.Users               { return usersRepo{s} }
func (s *Store) AuditLogs() *AuditLogs           { return &AuditLogs{s: s} }
func (s *Store) Books() repo.Books               { return booksRepo{s: s} }
func (s *Store) Requests() repo.Requests         { return requestsRepo{s: s} }
func (s *Store) Transactions() repo.Transactions { return txnsRepo{s: s} }

// PutUser stores u as given, keeping its id.
func (s *Store) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
		u.UpdatedAt = u.CreatedAt
	}
	s.users[u.ID] = u
	s.order[u.ID] = s.nextSeq()
}

func (s *Store) WithTx(ctx context.Context, fn func(repo.Tx) error) error {
	return s.run(ctx, func(u *unit) error { return fn(u) })
}

func (s *Store) run(ctx context.Context, fn func(u *unit) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	u := &unit{
		s:        s,
		books:    map[string]*models.Book{},
		requests: map[string]models.Request{},
	}
	if err := fn(u); err != nil {
		return err
	}
	u.commit()
	return nil
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

// unit buffers the writes of one unit of work. A nil book marks a delete.
type unit struct {
	s        *Store
	books    map[string]*models.Book
	bookIDs  []string
	requests map[string]models.Request
	reqIDs   []string
	txns     []models.Transaction
}

func (u *unit) Books() repo.Books               { return booksRepo{s: u.s, u: u} }
func (u *unit) Requests() repo.Requests         { return requestsRepo{s: u.s, u: u} }
func (u *unit) Transactions() repo.Transactions { return txnsRepo{s: u.s, u: u} }

func (u *unit) commit() {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range u.bookIDs {
		b := u.books[id]
		if b == nil {
			delete(s.books, id)
			delete(s.order, id)
			continue
		}
		if _, ok := s.order[id]; !ok {
			s.order[id] = s.nextSeq()
		}
		s.books[id] = *b
	}
	for _, id := range u.reqIDs {
		if _, ok := s.order[id]; !ok {
			s.order[id] = s.nextSeq()
		}
		s.requests[id] = u.requests[id]
	}
	for _, t := range u.txns {
		s.order[t.ID] = s.nextSeq()
		s.txns[t.ID] = t
	}
}

func (u *unit) putBook(b *models.Book) {
	if _, ok := u.books[b.ID]; !ok {
		u.bookIDs = append(u.bookIDs, b.ID)
	}
	u.books[b.ID] = b
}

func (u *unit) putRequest(r models.Request) {
	if _, ok := u.requests[r.ID]; !ok {
		u.reqIDs = append(u.reqIDs, r.ID)
	}
	u.requests[r.ID] = r
}

func (s *Store) seqOf(id string) int64 {
	if n, ok := s.order[id]; ok {
		return n
	}
	return math.MaxInt64
}

// ---------- books ----------

type booksRepo struct {
	s *Store
	u *unit
}

func (r booksRepo) do(ctx context.Context, fn func(u *unit) error) error {
	if r.u != nil {
		return fn(r.u)
	}
	return r.s.run(ctx, fn)
}

func (r booksRepo) get(id string) (models.Book, bool) {
	if r.u != nil {
		if b, ok := r.u.books[id]; ok {
			if b == nil {
				return models.Book{}, false
			}
			return *b, true
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.books[id]
	return b, ok
}

func (r booksRepo) Create(ctx context.Context, b models.Book) (models.Book, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := r.s.now()
	b.CreatedAt, b.UpdatedAt = now, now
	err := r.do(ctx, func(u *unit) error {
		cp := b
		u.putBook(&cp)
		return nil
	})
	return b, err
}

func (r booksRepo) GetByID(_ context.Context, id string) (models.Book, error) {
	b, ok := r.get(id)
	if !ok {
		return models.Book{}, repo.ErrNotFound
	}
	return b, nil
}

func (r booksRepo) List(_ context.Context) ([]models.Book, error) {
	r.s.mu.RLock()
	out := make([]models.Book, 0, len(r.s.books))
	for _, b := range r.s.books {
		out = append(out, b)
	}
	r.s.mu.RUnlock()
	if r.u != nil {
		out = slices.DeleteFunc(out, func(b models.Book) bool {
			_, touched := r.u.books[b.ID]
			return touched
		})
		for _, id := range r.u.bookIDs {
			if b := r.u.books[id]; b != nil {
				out = append(out, *b)
			}
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return r.s.seqOf(out[i].ID) < r.s.seqOf(out[j].ID) })
	return out, nil
}

func (r booksRepo) SetAvailability(ctx context.Context, id string, available bool) error {
	return r.do(ctx, func(u *unit) error {
		b, ok := booksRepo{s: r.s, u: u}.get(id)
		if !ok {
			return repo.ErrNotFound
		}
		b.IsAvailable = available
		b.UpdatedAt = r.s.now()
		u.putBook(&b)
		return nil
	})
}

func (r booksRepo) Delete(ctx context.Context, id string) error {
	return r.do(ctx, func(u *unit) error {
		if _, ok := (booksRepo{s: r.s, u: u}).get(id); !ok {
			return repo.ErrNotFound
		}
		if _, ok := u.books[id]; !ok {
			u.bookIDs = append(u.bookIDs, id)
		}
		u.books[id] = nil
		return nil
	})
}

// ---------- requests ----------

type requestsRepo struct {
	s *Store
	u *unit
}

func (r requestsRepo) do(ctx context.Context, fn func(u *unit) error) error {
	if r.u != nil {
		return fn(r.u)
	}
	return r.s.run(ctx, fn)
}

func (r requestsRepo) get(id string) (models.Request, bool) {
	if r.u != nil {
		if q, ok := r.u.requests[id]; ok {
			return q.Clone(), true
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	q, ok := r.s.requests[id]
	if !ok {
		return models.Request{}, false
	}
	return q.Clone(), true
}

func (r requestsRepo) all() []models.Request {
	r.s.mu.RLock()
	out := make([]models.Request, 0, len(r.s.requests))
	for _, q := range r.s.requests {
		if r.u != nil {
			if _, touched := r.u.requests[q.ID]; touched {
				continue
			}
		}
		out = append(out, q.Clone())
	}
	r.s.mu.RUnlock()
	if r.u != nil {
		for _, id := range r.u.reqIDs {
			q := r.u.requests[id]
			out = append(out, q.Clone())
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return r.s.seqOf(out[i].ID) < r.s.seqOf(out[j].ID) })
	return out
}

func (r requestsRepo) Create(ctx context.Context, q models.Request) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return r.do(ctx, func(u *unit) error {
		if _, exists := (requestsRepo{s: r.s, u: u}).get(q.ID); exists {
			return repo.ErrDuplicate
		}
		now := r.s.now()
		if q.CreatedAt.IsZero() {
			q.CreatedAt = now
		}
		q.UpdatedAt = now
		if q.Version == 0 {
			q.Version = 1
		}
		u.putRequest(q.Clone())
		return nil
	})
}

func (r requestsRepo) GetByID(_ context.Context, id string) (models.Request, error) {
	q, ok := r.get(id)
	if !ok {
		return models.Request{}, repo.ErrNotFound
	}
	return q, nil
}

func (r requestsRepo) ListByUser(_ context.Context, userID string) ([]models.Request, error) {
	return slices.DeleteFunc(r.all(), func(q models.Request) bool { return !q.Involves(userID) }), nil
}

func (r requestsRepo) Find(_ context.Context, f repo.RequestFilter) ([]models.Request, error) {
	return slices.DeleteFunc(r.all(), func(q models.Request) bool {
		if f.FromUserID != "" && q.FromUserID != f.FromUserID {
			return true
		}
		if f.BookID != "" && q.BookID != f.BookID {
			return true
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, q.Status) {
			return true
		}
		return false
	}), nil
}

func (r requestsRepo) Update(ctx context.Context, q models.Request, expected int64) (models.Request, error) {
	var out models.Request
	err := r.do(ctx, func(u *unit) error {
		cur, ok := (requestsRepo{s: r.s, u: u}).get(q.ID)
		if !ok {
			return repo.ErrNotFound
		}
		if cur.Version != expected {
			return repo.ErrVersionConflict
		}
		q.Version = expected + 1
		q.CreatedAt = cur.CreatedAt
		q.UpdatedAt = r.s.now()
		out = q.Clone()
		u.putRequest(q.Clone())
		return nil
	})
	return out, err
}

// ---------- ledger ----------

type txnsRepo struct {
	s *Store
	u *unit
}

func (r txnsRepo) Create(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.s.now()
	}
	if r.u != nil {
		r.u.txns = append(r.u.txns, t)
		return t, nil
	}
	err := r.s.run(ctx, func(u *unit) error {
		u.txns = append(u.txns, t)
		return nil
	})
	return t, err
}

func (r txnsRepo) ListByRequest(_ context.Context, requestID string) ([]models.Transaction, error) {
	r.s.mu.RLock()
	var out []models.Transaction
	for _, t := range r.s.txns {
		if t.RequestID == requestID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return r.s.seqOf(out[i].ID) < r.s.seqOf(out[j].ID) })
	r.s.mu.RUnlock()
	if r.u != nil {
		for _, t := range r.u.txns {
			if t.RequestID == requestID {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// ---------- users ----------

type usersRepo struct{ s *Store }

func (r usersRepo) Create(_ context.Context, username, email, passwordHash string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return models.User{}, repo.ErrDuplicate
		}
	}
	now := r.s.now()
	u := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.s.users[u.ID] = u
	r.s.order[u.ID] = r.s.nextSeq()
	return u, nil
}

func (r usersRepo) GetByID(_ context.Context, id string) (models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return models.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (r usersRepo) GetByEmail(_ context.Context, email string) (models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repo.ErrNotFound
}

func (r usersRepo) List(_ context.Context) ([]models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool { return r.s.seqOf(out[i].ID) < r.s.seqOf(out[j].ID) })
	return out, nil
}

// ---------- audit ----------

type AuditLogs struct{ s *Store }

func (a *AuditLogs) Create(_ context.Context, l models.AuditLog) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.CreatedAt = a.s.now()
	a.s.audit = append(a.s.audit, l)
	return nil
}

// Entries returns a copy of everything logged so far.
func (a *AuditLogs) Entries() []models.AuditLog {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	return slices.Clone(a.s.audit)
}
