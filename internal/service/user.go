package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/google/uuid"
)

// UserService manages the users registrations belong to.
type UserService struct {
	base
	users UserStore
}

// NewUserService constructs a UserService.
func NewUserService(users UserStore, timeout time.Duration, log *slog.Logger) *UserService {
	return &UserService{base: newBase(timeout, log), users: users}
}

// CreateUser stores a new user. Emails are compared case-insensitively.
func (s *UserService) CreateUser(ctx context.Context, req model.CreateUserRequest) (*model.User, error) {
	name := strings.TrimSpace(req.DisplayName)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" {
		return nil, model.Validationf("display_name is required")
	}
	if email == "" {
		return nil, model.Validationf("email is required")
	}

	u := &model.User{
		ID:          uuid.NewString(),
		DisplayName: name,
		Email:       email,
		CreatedAt:   s.now().UTC(),
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser returns a single user by ID.
func (s *UserService) GetUser(ctx context.Context, id string) (*model.User, error) {
	if err := validateID("user id", id); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.users.GetByID(ctx, id)
}
