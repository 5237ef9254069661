package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/booklend/internal/api/httpx"
	"github.com/baharkarakas/booklend/internal/middleware"
	"github.com/baharkarakas/booklend/internal/policy"
	"github.com/baharkarakas/booklend/internal/services"
)

type RequestHandler struct {
	Svc *services.RequestService
}

func NewRequestHandler(svc *services.RequestService) *RequestHandler {
	return &RequestHandler{Svc: svc}
}

// otpInput accepts the passcode as a JSON string or an integer.
type otpInput string

func (o *otpInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*o = otpInput(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("otp must be a string or a number")
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return errors.New("otp must be an integer")
	}
	*o = otpInput(n.String())
	return nil
}

type createRequestReq struct {
	Book string `json:"book"`
}

type transitionReq struct {
	Status string   `json:"status"`
	OTP    otpInput `json:"otp"`
}

func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	out, err := h.Svc.List(r.Context(), uid)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.List(w, out, len(out))
}

func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	var req createRequestReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.BadRequest(w, "invalid request body")
		return
	}
	v, err := h.Svc.Create(r.Context(), uid, req.Book)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, v)
}

func (h *RequestHandler) Transition(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	var req transitionReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if req.Status == "" {
		httpx.BadRequest(w, "status is required")
		return
	}
	v, err := h.Svc.Transition(r.Context(), uid, chi.URLParam(r, "id"), policy.Status(req.Status), string(req.OTP))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, v)
}

func (h *RequestHandler) GenerateOTP(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	code, err := h.Svc.GenerateOTP(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, code)
}

func (h *RequestHandler) History(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	txns, err := h.Svc.History(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, txns)
}
