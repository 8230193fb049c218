package users

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-lims/meridian-lims/internal/authz"
	"github.com/meridian-lims/meridian-lims/internal/shared"
)

// Service handles user management business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser registers a new active account with a hashed password.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	email, err := shared.NormalizeEmail(in.Email)
	if err != nil {
		return User{}, err
	}
	if len(in.Password) < 8 {
		return User{}, shared.Validationf("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return s.repo.CreateUser(ctx, email, strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName), string(hash), in.IsSuperuser)
}

// UpdateUser applies a partial profile update.
func (s *Service) UpdateUser(ctx context.Context, id int64, in UpdateUserInput) (User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if in.Password != nil {
		if len(*in.Password) < 8 {
			return User{}, shared.Validationf("password must be at least 8 characters")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
		if err != nil {
			return User{}, err
		}
		if err := s.repo.UpdatePassword(ctx, id, string(hash)); err != nil {
			return User{}, err
		}
	}
	firstName, lastName := user.FirstName, user.LastName
	if in.FirstName != nil {
		firstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		lastName = strings.TrimSpace(*in.LastName)
	}
	return s.repo.UpdateUser(ctx, id, firstName, lastName)
}

// Deactivate disables an account. Actors cannot lock themselves out by
// deactivating their own account.
func (s *Service) Deactivate(ctx context.Context, actor authz.Subject, id int64) (User, error) {
	if actor.UserID == id {
		return User{}, shared.Forbiddenf("cannot deactivate your own account")
	}
	return s.repo.SetActive(ctx, id, false)
}

// Activate re-enables a previously deactivated account.
func (s *Service) Activate(ctx context.Context, id int64) (User, error) {
	return s.repo.SetActive(ctx, id, true)
}
