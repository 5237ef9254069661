package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/baharkarakas/booklend/internal/ledger"
	"github.com/baharkarakas/booklend/internal/lock"
	"github.com/baharkarakas/booklend/internal/metrics"
	"github.com/baharkarakas/booklend/internal/models"
	"github.com/baharkarakas/booklend/internal/otp"
	"github.com/baharkarakas/booklend/internal/policy"
	repo "github.com/baharkarakas/booklend/internal/repository"
)

// RequestService runs the lending request lifecycle. Every mutating call
// holds the per-request lock, re-checks the version it started from and
// commits the request, its ledger entry and the book's availability in one
// unit of work.
type RequestService struct {
	store  repo.Store
	users  repo.Users
	policy *policy.Policy
	otp    *otp.Service
	ledger *ledger.Ledger
	locks  lock.Locker
	audit  *Auditor
	now    func() time.Time
	log    *slog.Logger
}

type RequestDeps struct {
	Store  repo.Store
	Users  repo.Users
	Policy *policy.Policy
	OTP    *otp.Service
	Ledger *ledger.Ledger
	Locks  lock.Locker
	Audit  *Auditor
	Now    func() time.Time
	Log    *slog.Logger
}

func NewRequestService(d RequestDeps) *RequestService {
	s := &RequestService{
		store:  d.Store,
		users:  d.Users,
		policy: d.Policy,
		otp:    d.OTP,
		ledger: d.Ledger,
		locks:  d.Locks,
		audit:  d.Audit,
		now:    d.Now,
		log:    d.Log,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.policy == nil {
		s.policy = policy.Default()
	}
	if s.otp == nil {
		s.otp = otp.New(otp.WithClock(s.now))
	}
	if s.ledger == nil {
		s.ledger = ledger.New(d.Store.Transactions(), s.now)
	}
	if s.locks == nil {
		s.locks = lock.NewLocal(lock.DefaultWait)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// ----------------- Queries -----------------

// List returns every request the caller sent or received.
func (s *RequestService) List(ctx context.Context, callerID string) ([]RequestView, error) {
	caller := models.NormalizeID(callerID)
	if caller == "" {
		return nil, newErr(KindValidation, "caller is required")
	}
	reqs, err := s.store.Requests().ListByUser(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	names := newNameCache(s.users)
	books := map[string]models.Book{}
	out := make([]RequestView, 0, len(reqs))
	for _, r := range reqs {
		b, ok := books[r.BookID]
		if !ok {
			b, err = s.store.Books().GetByID(ctx, r.BookID)
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return nil, fmt.Errorf("load book %s: %w", r.BookID, err)
			}
			books[r.BookID] = b
		}
		out = append(out, requestView(ctx, names, r, b))
	}
	return out, nil
}

// History returns the ledger of a request. Only its two parties may read it.
func (s *RequestService) History(ctx context.Context, callerID, requestID string) ([]models.Transaction, error) {
	caller := models.NormalizeID(callerID)
	id := models.NormalizeID(requestID)
	r, err := s.store.Requests().GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, errRequestNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load request %s: %w", id, err)
	}
	if !r.Involves(caller) {
		return nil, newErr(KindUnauthorized, "you are not a party to this request")
	}
	return s.ledger.History(ctx, id)
}

// ----------------- Create -----------------

func (s *RequestService) Create(ctx context.Context, callerID, bookID string) (RequestView, error) {
	caller := models.NormalizeID(callerID)
	book := models.NormalizeID(bookID)
	view, err := s.create(ctx, caller, book)
	if err != nil {
		s.fail("create", "", caller, err)
		return RequestView{}, err
	}
	metrics.RequestsCreated.Inc()
	s.log.Info("request created", "request_id", view.ID, "book_id", book, "from", caller, "to", view.ToUser.ID)
	return view, nil
}

func (s *RequestService) create(ctx context.Context, caller, bookID string) (RequestView, error) {
	if caller == "" {
		return RequestView{}, newErr(KindValidation, "caller is required")
	}
	if bookID == "" {
		return RequestView{}, newErr(KindValidation, "book is required")
	}

	release, err := s.acquire(ctx, lock.CreateKey(caller, bookID))
	if err != nil {
		return RequestView{}, err
	}
	defer release()

	var (
		created models.Request
		b       models.Book
	)
	err = s.store.WithTx(ctx, func(tx repo.Tx) error {
		existing, err := tx.Requests().Find(ctx, repo.RequestFilter{FromUserID: caller, BookID: bookID})
		if err != nil {
			return fmt.Errorf("find requests: %w", err)
		}
		for _, r := range existing {
			if !s.policy.IsTerminal(r.Status) {
				return newErr(KindDuplicateRequest, "you've already requested this book")
			}
		}

		b, err = tx.Books().GetByID(ctx, bookID)
		if errors.Is(err, repo.ErrNotFound) {
			return errBookNotFound(bookID)
		}
		if err != nil {
			return fmt.Errorf("load book %s: %w", bookID, err)
		}
		if b.OwnerID == caller {
			return newErr(KindSelfRequest, "you cannot request your own book")
		}

		now := s.now().UTC()
		r := models.Request{
			ID:         uuid.NewString(),
			FromUserID: caller,
			ToUserID:   b.OwnerID,
			BookID:     b.ID,
			Status:     s.policy.Initial(),
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		entry, err := s.ledger.Append(ctx, tx.Transactions(), r.ID, r.Status)
		if err != nil {
			return err
		}
		r.TransactionIDs = []string{entry.ID}
		if err := tx.Requests().Create(ctx, r); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		created = r
		return nil
	})
	if err != nil {
		return RequestView{}, s.txErr(err)
	}
	return requestView(ctx, newNameCache(s.users), created, b), nil
}

// ----------------- Transition -----------------

// Transition moves a request into target. otpCode is only consulted when
// the policy requires a passcode for target.
func (s *RequestService) Transition(ctx context.Context, callerID, requestID string, target policy.Status, otpCode string) (RequestView, error) {
	caller := models.NormalizeID(callerID)
	id := models.NormalizeID(requestID)
	target = policy.Status(strings.TrimSpace(string(target)))

	view, from, err := s.transition(ctx, caller, id, target, strings.TrimSpace(otpCode))
	if err != nil {
		s.fail("transition", id, caller, err)
		return RequestView{}, err
	}
	metrics.StatusTransitions.WithLabelValues(string(from), string(target)).Inc()
	s.log.Info("request transitioned", "request_id", id, "from", from, "to", target, "caller", caller)
	return view, nil
}

func (s *RequestService) transition(ctx context.Context, caller, id string, target policy.Status, code string) (RequestView, policy.Status, error) {
	snap, err := s.snapshot(ctx, id)
	if err != nil {
		return RequestView{}, "", err
	}

	release, err := s.acquire(ctx, lock.RequestKey(id))
	if err != nil {
		return RequestView{}, "", err
	}
	defer release()

	var (
		updated models.Request
		b       models.Book
		from    policy.Status
	)
	err = s.store.WithTx(ctx, func(tx repo.Tx) error {
		r, err := s.reload(ctx, tx, snap)
		if err != nil {
			return err
		}
		from = r.Status

		if !s.policy.Allowed(r.Status, target) {
			return newErr(KindInvalidTransition, "invalid transition from %s to %s", r.Status, target)
		}

		b, err = tx.Books().GetByID(ctx, r.BookID)
		if errors.Is(err, repo.ErrNotFound) {
			return errBookNotFound(r.BookID)
		}
		if err != nil {
			return fmt.Errorf("load book %s: %w", r.BookID, err)
		}

		parties := policy.Parties{Owner: b.OwnerID, Requester: r.FromUserID}
		if actor := s.policy.Actor(target); !actor.Permits(parties, caller) {
			if actor == policy.ActorOwner {
				return newErr(KindUnauthorized, "only the book owner can move a request to %s", target)
			}
			return newErr(KindUnauthorized, "only the requester can move a request to %s", target)
		}

		if s.policy.RequiresOTP(target) {
			if err := s.otp.Validate(r.OTP, r.OTPExpiresAt, code, s.now()); err != nil {
				return otpErr(err)
			}
		}

		// A passcode never outlives the status it was issued for.
		r.ClearOTP()
		r.Status = target
		entry, err := s.ledger.Append(ctx, tx.Transactions(), r.ID, target)
		if err != nil {
			return err
		}
		r.TransactionIDs = append(r.TransactionIDs, entry.ID)

		updated, err = tx.Requests().Update(ctx, r, snap.Version)
		if err != nil {
			return fmt.Errorf("update request: %w", err)
		}

		b.IsAvailable = s.policy.Available(target)
		if err := tx.Books().SetAvailability(ctx, b.ID, b.IsAvailable); err != nil {
			return fmt.Errorf("set availability of %s: %w", b.ID, err)
		}
		return nil
	})
	if err != nil {
		return RequestView{}, "", s.txErr(err)
	}
	return requestView(ctx, newNameCache(s.users), updated, b), from, nil
}

func otpErr(err error) *Error {
	if errors.Is(err, otp.ErrExpired) {
		return &Error{Kind: KindOTPExpired, Msg: "OTP expired", Err: err}
	}
	return &Error{Kind: KindInvalidOTP, Msg: "invalid OTP", Err: err}
}

// ----------------- OTP -----------------

// GenerateOTP issues a passcode for the next handover step. While the
// request is requested only the owner may ask; once the book was given only
// the receiver may.
func (s *RequestService) GenerateOTP(ctx context.Context, callerID, requestID string) (otp.Code, error) {
	caller := models.NormalizeID(callerID)
	id := models.NormalizeID(requestID)

	code, status, err := s.generateOTP(ctx, caller, id)
	if err != nil {
		s.fail("generate_otp", id, caller, err)
		return otp.Code{}, err
	}
	metrics.OTPGenerated.WithLabelValues(string(status)).Inc()
	s.log.Info("otp generated", "request_id", id, "status", status, "caller", caller, "expires_at", code.ExpiresAt)
	return code, nil
}

func (s *RequestService) generateOTP(ctx context.Context, caller, id string) (otp.Code, policy.Status, error) {
	snap, err := s.snapshot(ctx, id)
	if err != nil {
		return otp.Code{}, "", err
	}

	release, err := s.acquire(ctx, lock.RequestKey(id))
	if err != nil {
		return otp.Code{}, "", err
	}
	defer release()

	var (
		code   otp.Code
		status policy.Status
	)
	err = s.store.WithTx(ctx, func(tx repo.Tx) error {
		r, err := s.reload(ctx, tx, snap)
		if err != nil {
			return err
		}
		status = r.Status

		issuer, ok := s.policy.OTPIssuer(r.Status)
		if !ok {
			return newErr(KindInvalidState, "invalid state %s to generate OTP", r.Status)
		}
		parties := policy.Parties{Owner: r.ToUserID, Requester: r.FromUserID}
		if !issuer.Permits(parties, caller) {
			if issuer == policy.ActorOwner {
				return newErr(KindUnauthorized, "only the book owner can generate an OTP")
			}
			return newErr(KindUnauthorized, "only the book receiver can generate an OTP")
		}

		code, err = s.otp.Generate()
		if err != nil {
			return err
		}
		r.SetOTP(code.Value, code.ExpiresAt)
		if _, err := tx.Requests().Update(ctx, r, snap.Version); err != nil {
			return fmt.Errorf("store otp: %w", err)
		}
		return nil
	})
	if err != nil {
		return otp.Code{}, "", s.txErr(err)
	}
	return code, status, nil
}

// ----------------- Helpers -----------------

// snapshot reads the request before any lock is taken. Its version is the
// one the caller acted upon.
func (s *RequestService) snapshot(ctx context.Context, id string) (models.Request, error) {
	if id == "" {
		return models.Request{}, newErr(KindValidation, "request id is required")
	}
	r, err := s.store.Requests().GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return models.Request{}, errRequestNotFound(id)
	}
	if err != nil {
		return models.Request{}, fmt.Errorf("load request %s: %w", id, err)
	}
	return r, nil
}

// reload re-reads the request under the lock and fails if anyone changed it
// after snap was taken.
func (s *RequestService) reload(ctx context.Context, tx repo.Tx, snap models.Request) (models.Request, error) {
	r, err := tx.Requests().GetByID(ctx, snap.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return models.Request{}, errRequestNotFound(snap.ID)
	}
	if err != nil {
		return models.Request{}, fmt.Errorf("reload request %s: %w", snap.ID, err)
	}
	if r.Version != snap.Version {
		return models.Request{}, errConflict(repo.ErrVersionConflict)
	}
	return r, nil
}

func (s *RequestService) acquire(ctx context.Context, key string) (func(), error) {
	release, err := s.locks.Acquire(ctx, key)
	if errors.Is(err, lock.ErrTimeout) {
		return nil, &Error{
			Kind: KindConcurrentModification,
			Msg:  "another operation on this request is in progress, retry shortly",
			Err:  err,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	return release, nil
}

// txErr keeps business errors as they are and turns storage-level write
// conflicts into ConcurrentModification.
func (s *RequestService) txErr(err error) error {
	if KindOf(err) != "" {
		return err
	}
	if errors.Is(err, repo.ErrVersionConflict) || errors.Is(err, repo.ErrDuplicate) {
		return errConflict(err)
	}
	return err
}

func (s *RequestService) fail(op, requestID, caller string, err error) {
	kind := KindOf(err)
	if kind == "" {
		metrics.WorkflowFailures.WithLabelValues(op, "internal").Inc()
		s.log.Error("workflow "+op, "request_id", requestID, "caller", caller, "err", err)
		return
	}
	metrics.WorkflowFailures.WithLabelValues(op, string(kind)).Inc()
	s.log.Warn("workflow "+op+" rejected", "request_id", requestID, "caller", caller, "kind", kind, "err", err)
	s.audit.Denied(op, requestID, caller, err)
}
