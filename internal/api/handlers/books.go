package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/booklend/internal/api/httpx"
	"github.com/baharkarakas/booklend/internal/middleware"
	"github.com/baharkarakas/booklend/internal/services"
)

type BookHandler struct {
	Svc *services.BookService
}

func NewBookHandler(svc *services.BookService) *BookHandler {
	return &BookHandler{Svc: svc}
}

type addBookReq struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

func (h *BookHandler) List(w http.ResponseWriter, r *http.Request) {
	books, err := h.Svc.List(r.Context())
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.List(w, books, len(books))
}

func (h *BookHandler) Add(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	var req addBookReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.BadRequest(w, "invalid request body")
		return
	}
	b, err := h.Svc.Add(r.Context(), uid, req.Title, req.Author)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, b)
}

func (h *BookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	if err := h.Svc.Delete(r.Context(), uid, chi.URLParam(r, "id")); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]string{"id": chi.URLParam(r, "id")})
}
