package models

import (
	"slices"
	"time"

	"github.com/baharkarakas/booklend/internal/policy"
)

type Request struct {
	ID             string        `json:"id"`
	FromUserID     string        `json:"from_user_id"`
	ToUserID       string        `json:"to_user_id"`
	BookID         string        `json:"book_id"`
	Status         policy.Status `json:"status"`
	OTP            *string       `json:"-"`
	OTPExpiresAt   *time.Time    `json:"-"`
	TransactionIDs []string      `json:"transaction_ids"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// SetOTP stores a passcode together with its expiry.
func (r *Request) SetOTP(code string, expiresAt time.Time) {
	r.OTP = &code
	r.OTPExpiresAt = &expiresAt
}

func (r *Request) ClearOTP() {
	r.OTP = nil
	r.OTPExpiresAt = nil
}

func (r Request) HasOTP() bool { return r.OTP != nil && r.OTPExpiresAt != nil }

// Clone returns a copy that shares no mutable state with r.
func (r Request) Clone() Request {
	out := r
	out.TransactionIDs = slices.Clone(r.TransactionIDs)
	if r.OTP != nil {
		v := *r.OTP
		out.OTP = &v
	}
	if r.OTPExpiresAt != nil {
		v := *r.OTPExpiresAt
		out.OTPExpiresAt = &v
	}
	return out
}

// Involves reports whether user is one of the two parties.
func (r Request) Involves(user string) bool {
	return user != "" && (user == r.FromUserID || user == r.ToUserID)
}
