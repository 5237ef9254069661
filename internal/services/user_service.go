package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/baharkarakas/booklend/internal/auth"
	"github.com/baharkarakas/booklend/internal/models"
	repo "github.com/baharkarakas/booklend/internal/repository"
)

// UserService is the thin identity collaborator: registration and
// credential checks. The lending core only reads users for display names.
type UserService struct {
	r repo.Users
}

func NewUserService(r repo.Users) *UserService { return &UserService{r: r} }

func (s *UserService) Register(ctx context.Context, username, email, password string) (models.User, error) {
	u := models.User{Username: strings.TrimSpace(username), Email: strings.ToLower(strings.TrimSpace(email))}
	if err := u.Validate(); err != nil {
		return models.User{}, &Error{Kind: KindValidation, Msg: err.Error(), Err: err}
	}
	if len(password) < 8 {
		return models.User{}, newErr(KindValidation, "password too short")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.r.Create(ctx, u.Username, u.Email, hash)
	if errors.Is(err, repo.ErrDuplicate) {
		return models.User{}, newErr(KindValidation, "email already registered")
	}
	return created, err
}

// Authenticate returns the user behind email if password matches.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	u, err := s.r.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repo.ErrNotFound) {
		return models.User{}, newErr(KindUnauthorized, "invalid credentials")
	}
	if err != nil {
		return models.User{}, err
	}
	if err := auth.VerifyPassword(password, u.PasswordHash); err != nil {
		return models.User{}, newErr(KindUnauthorized, "invalid credentials")
	}
	return u, nil
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) { return s.r.List(ctx) }
