package handlers

import (
	"net/http"
	"strings"

	"github.com/baharkarakas/booklend/internal/api/httpx"
	"github.com/baharkarakas/booklend/internal/auth"
	"github.com/baharkarakas/booklend/internal/models"
	"github.com/baharkarakas/booklend/internal/services"
)

type AuthHandler struct {
	TM     *auth.TokenManager
	Users  *services.UserService
	AppEnv string
}

func NewAuthHandler(tm *auth.TokenManager, users *services.UserService, appEnv string) *AuthHandler {
	return &AuthHandler{TM: tm, Users: users, AppEnv: appEnv}
}

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Dev only: issue tokens for an arbitrary user id.
	UserID string `json:"user_id,omitempty"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.BadRequest(w, "invalid request body")
		return
	}
	u, err := h.Users.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, u)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.BadRequest(w, "invalid request body")
		return
	}

	var uid string
	switch {
	case h.AppEnv == "dev" && req.Email == "" && strings.TrimSpace(req.UserID) != "":
		uid = models.NormalizeID(req.UserID)
	default:
		u, err := h.Users.Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "invalid credentials", nil)
			return
		}
		uid = u.ID
	}
	h.issue(w, r, uid)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if err := httpx.Decode(r, &req); err != nil || req.RefreshToken == "" {
		httpx.BadRequest(w, "refresh_token is required")
		return
	}
	claims, isRefresh, err := h.TM.ParseAny(req.RefreshToken)
	if err != nil || !isRefresh {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "invalid refresh token", nil)
		return
	}
	h.issue(w, r, claims.UserID)
}

func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, uid string) {
	pair, err := h.TM.GeneratePair(uid)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, pair)
}
