// Package otp issues and checks the 4-digit passcodes that confirm a
// physical handover or return.
package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

const (
	minCode    = 1000
	maxCode    = 9999
	DefaultTTL = time.Hour
)

var (
	ErrInvalid = errors.New("invalid otp")
	ErrExpired = errors.New("otp expired")
)

// Code is a freshly generated passcode and the instant it stops being valid.
type Code struct {
	Value     string    `json:"otp"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IntN returns a uniform integer in [0, n).
type IntN func(n int64) (int64, error)

func cryptoIntN(n int64) (int64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

type Service struct {
	now  func() time.Time
	intn IntN
	ttl  time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithSource(f IntN) Option              { return func(s *Service) { s.intn = f } }

func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func New(opts ...Option) *Service {
	s := &Service{now: time.Now, intn: cryptoIntN, ttl: DefaultTTL}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) TTL() time.Duration { return s.ttl }

// Generate draws a code in [1000, 9999] and stamps it with now+TTL.
// Nothing is stored; the caller persists the pair on the request.
func (s *Service) Generate() (Code, error) {
	n, err := s.intn(maxCode - minCode + 1)
	if err != nil {
		return Code{}, fmt.Errorf("otp: random source: %w", err)
	}
	return Code{
		Value:     strconv.FormatInt(minCode+n, 10),
		ExpiresAt: s.now().Add(s.ttl),
	}, nil
}

// Validate checks supplied against the stored pair at instant now.
// A code is still good at exactly its expiry instant.
func (s *Service) Validate(stored *string, expiresAt *time.Time, supplied string, now time.Time) error {
	if stored == nil || *stored == "" || expiresAt == nil {
		return ErrInvalid
	}
	if subtle.ConstantTimeCompare([]byte(*stored), []byte(supplied)) != 1 {
		return ErrInvalid
	}
	if now.After(*expiresAt) {
		return ErrExpired
	}
	return nil
}
