package services_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/booklend/internal/lock"
	"github.com/baharkarakas/booklend/internal/models"
	"github.com/baharkarakas/booklend/internal/otp"
	"github.com/baharkarakas/booklend/internal/policy"
	repo "github.com/baharkarakas/booklend/internal/repository"
	"github.com/baharkarakas/booklend/internal/repository/memory"
	"github.com/baharkarakas/booklend/internal/services"
	"github.com/baharkarakas/booklend/internal/worker"
)

const (
	ownerA    = "owner-a"
	readerC   = "reader-c"
	strangerX = "stranger-x"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx   context.Context
	clock *fakeClock
	mem   *memory.Store
	locks *lock.Local
	pool  *worker.Pool
	reqs  *services.RequestService
	books *services.BookService
	book  services.BookView
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	store    func(*memory.Store) repo.Store
	lockWait time.Duration
}

func withStore(wrap func(*memory.Store) repo.Store) fixtureOption {
	return func(c *fixtureConfig) { c.store = wrap }
}

func withLockWait(d time.Duration) fixtureOption {
	return func(c *fixtureConfig) { c.lockWait = d }
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{lockWait: time.Second}
	for _, o := range opts {
		o(&cfg)
	}

	clock := &fakeClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	mem := memory.New(memory.WithClock(clock.Now))
	mem.PutUser(models.User{ID: ownerA, Username: "Alice", Email: "alice@example.com"})
	mem.PutUser(models.User{ID: readerC, Username: "Carol", Email: "carol@example.com"})
	mem.PutUser(models.User{ID: strangerX, Username: "Xavier", Email: "x@example.com"})

	var store repo.Store = mem
	if cfg.store != nil {
		store = cfg.store(mem)
	}

	log := quietLogger()
	pool := worker.NewPool(1)
	t.Cleanup(pool.Stop)

	locks := lock.NewLocal(cfg.lockWait)
	f := &fixture{
		ctx:   context.Background(),
		clock: clock,
		mem:   mem,
		locks: locks,
		pool:  pool,
		reqs: services.NewRequestService(services.RequestDeps{
			Store: store,
			Users: mem.Users(),
			OTP:   otp.New(otp.WithClock(clock.Now)),
			Locks: locks,
			Audit: services.NewAuditor(mem.AuditLogs(), pool, log),
			Now:   clock.Now,
			Log:   log,
		}),
		books: services.NewBookService(store, mem.Users(), nil, log),
	}

	b, err := f.books.Add(f.ctx, ownerA, "The Dispossessed", "Ursula K. Le Guin")
	require.NoError(t, err)
	f.book = b
	return f
}

func (f *fixture) request(t *testing.T) services.RequestView {
	t.Helper()
	v, err := f.reqs.Create(f.ctx, readerC, f.book.ID)
	require.NoError(t, err)
	return v
}

// give moves a requested request to gave the way an owner would.
func (f *fixture) give(t *testing.T, id string) {
	t.Helper()
	code, err := f.reqs.GenerateOTP(f.ctx, ownerA, id)
	require.NoError(t, err)
	_, err = f.reqs.Transition(f.ctx, ownerA, id, policy.StatusGave, code.Value)
	require.NoError(t, err)
}

func (f *fixture) giveBack(t *testing.T, id string) {
	t.Helper()
	code, err := f.reqs.GenerateOTP(f.ctx, readerC, id)
	require.NoError(t, err)
	_, err = f.reqs.Transition(f.ctx, readerC, id, policy.StatusReturned, code.Value)
	require.NoError(t, err)
}

// inStatus creates a request and drives it into s.
func (f *fixture) inStatus(t *testing.T, s policy.Status) string {
	t.Helper()
	id := f.request(t).ID
	switch s {
	case policy.StatusRequested:
	case policy.StatusGave:
		f.give(t, id)
	case policy.StatusReturned:
		f.give(t, id)
		f.giveBack(t, id)
	case policy.StatusRejected:
		_, err := f.reqs.Transition(f.ctx, ownerA, id, policy.StatusRejected, "")
		require.NoError(t, err)
	case policy.StatusCancelled:
		_, err := f.reqs.Transition(f.ctx, readerC, id, policy.StatusCancelled, "")
		require.NoError(t, err)
	default:
		t.Fatalf("no route to %s", s)
	}
	return id
}

func (f *fixture) stored(t *testing.T, id string) models.Request {
	t.Helper()
	r, err := f.mem.Requests().GetByID(f.ctx, id)
	require.NoError(t, err)
	return r
}

func (f *fixture) available(t *testing.T) bool {
	t.Helper()
	b, err := f.mem.Books().GetByID(f.ctx, f.book.ID)
	require.NoError(t, err)
	return b.IsAvailable
}

// gatedStore holds every ledger append until at least three request reads
// happened, which lets two racing transitions both take their snapshot
// before either commits.
type gatedStore struct {
	*memory.Store
	armed atomic.Bool
	reads atomic.Int32
	ready chan struct{}
	once  sync.Once
}

func newGatedStore(m *memory.Store) *gatedStore {
	return &gatedStore{Store: m, ready: make(chan struct{})}
}

func (g *gatedStore) seen() {
	if g.armed.Load() && g.reads.Add(1) >= 3 {
		g.once.Do(func() { close(g.ready) })
	}
}

func (g *gatedStore) wait() {
	if !g.armed.Load() {
		return
	}
	select {
	case <-g.ready:
	case <-time.After(5 * time.Second):
	}
}

func (g *gatedStore) Requests() repo.Requests {
	return gatedRequests{Requests: g.Store.Requests(), g: g}
}

func (g *gatedStore) WithTx(ctx context.Context, fn func(repo.Tx) error) error {
	return g.Store.WithTx(ctx, func(tx repo.Tx) error { return fn(gatedTx{Tx: tx, g: g}) })
}

type gatedTx struct {
	repo.Tx
	g *gatedStore
}

func (t gatedTx) Requests() repo.Requests {
	return gatedRequests{Requests: t.Tx.Requests(), g: t.g}
}

func (t gatedTx) Transactions() repo.Transactions {
	return gatedTxns{Transactions: t.Tx.Transactions(), g: t.g}
}

type gatedRequests struct {
	repo.Requests
	g *gatedStore
}

func (r gatedRequests) GetByID(ctx context.Context, id string) (models.Request, error) {
	r.g.seen()
	return r.Requests.GetByID(ctx, id)
}

type gatedTxns struct {
	repo.Transactions
	g *gatedStore
}

func (t gatedTxns) Create(ctx context.Context, tr models.Transaction) (models.Transaction, error) {
	t.g.wait()
	return t.Transactions.Create(ctx, tr)
}
