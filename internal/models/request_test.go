package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func pending() Request {
	return Request{ID: "r1", FromUserID: "carol", ToUserID: "alice", TransactionIDs: []string{"t1"}}
}

func TestRequest_OTPHelpers(t *testing.T) {
	assert.False(t, pending().HasOTP())

	r := pending()
	r.SetOTP("1234", time.Unix(100, 0))
	assert.True(t, r.HasOTP())
	assert.True(t, r.Clone().HasOTP())

	r.ClearOTP()
	assert.False(t, r.HasOTP())
	assert.Nil(t, r.OTPExpiresAt)
}

func TestRequest_CloneIsDeep(t *testing.T) {
	r := pending()
	r.SetOTP("1234", time.Unix(100, 0))
	c := r.Clone()

	*c.OTP = "0000"
	c.TransactionIDs[0] = "changed"
	assert.Equal(t, "1234", *r.OTP)
	assert.Equal(t, []string{"t1"}, r.TransactionIDs)
}

func TestRequest_Involves(t *testing.T) {
	assert.True(t, pending().Involves("carol"))
	assert.True(t, pending().Involves("alice"))
	assert.False(t, pending().Involves("bob"))
	assert.False(t, Request{}.Involves(""))
}
