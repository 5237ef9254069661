package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/baharkarakas/booklend/internal/services"
)

type APIError struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

type listEnvelope struct {
	Success bool        `json:"success"`
	Count   int         `json:"count"`
	Data    interface{} `json:"data"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK wraps data in the success envelope.
func OK(w http.ResponseWriter, status int, data interface{}) {
	WriteJSON(w, status, envelope{Success: true, Data: data})
}

// List is OK for collections, adding the item count.
func List(w http.ResponseWriter, data interface{}, n int) {
	WriteJSON(w, http.StatusOK, listEnvelope{Success: true, Count: n, Data: data})
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details interface{}) {
	WriteJSON(w, status, APIError{
		Error:   msg,
		Code:    code,
		Details: details,
	})
}

// StatusFor maps a business error kind to its HTTP status.
func StatusFor(k services.Kind) int {
	switch k {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindUnauthorized:
		return http.StatusForbidden
	case services.KindInvalidTransition, services.KindDuplicateRequest,
		services.KindInvalidState, services.KindConcurrentModification:
		return http.StatusConflict
	case services.KindInvalidOTP, services.KindOTPExpired, services.KindSelfRequest:
		return http.StatusUnprocessableEntity
	case services.KindValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Fail writes err. Business errors keep their message; anything else is
// logged and reported as an internal error.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := services.KindOf(err)
	if kind == "" {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
		return
	}
	var details interface{}
	if kind.Retryable() {
		w.Header().Set("Retry-After", "1")
		details = map[string]bool{"retryable": true}
	}
	WriteError(w, StatusFor(kind), string(kind), err.Error(), details)
}

// Decode reads a JSON body into v. An empty body leaves v untouched.
func Decode(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func BadRequest(w http.ResponseWriter, msg string) {
	WriteError(w, http.StatusBadRequest, string(services.KindValidation), msg, nil)
}
