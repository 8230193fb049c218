package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-lims/meridian-lims/internal/authz"
	"github.com/meridian-lims/meridian-lims/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	logger   *slog.Logger
	repo     Repository
	tokens   *TokenIssuer
	denylist *Denylist
}

// NewService constructs a new Service.
func NewService(logger *slog.Logger, repo Repository, tokens *TokenIssuer, denylist *Denylist) *Service {
	return &Service{logger: logger, repo: repo, tokens: tokens, denylist: denylist}
}

// Authenticate validates email/password credentials. Inactive accounts and
// unknown emails fail the same way as a wrong password. The submitted email
// is normalized the same way registration normalizes it, so the casing used
// at signup does not matter at login.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	normalized, err := shared.NormalizeEmail(email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	user, err := s.repo.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates the credentials, records a session and issues a
// bearer token bound to it.
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (LoginResult, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return LoginResult{}, err
	}

	sessionID := uuid.New()
	token, expiresAt, err := s.tokens.Issue(user.ID, sessionID)
	if err != nil {
		return LoginResult{}, err
	}
	now := time.Now().UTC()
	err = s.repo.CreateSession(ctx, Session{
		ID:        sessionID,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
		IP:        ip,
		UserAgent: userAgent,
	})
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("touch last login", slog.Any("error", err))
	}
	return LoginResult{Token: token, ExpiresAt: expiresAt, User: *user}, nil
}

// Logout revokes the token's session in postgres and lists it in the
// denylist for the token's remaining lifetime.
func (s *Service) Logout(ctx context.Context, claims Claims) error {
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return shared.ErrUnauthenticated
	}
	if err := s.repo.RevokeSession(ctx, sessionID); err != nil {
		return err
	}
	remaining := time.Until(claims.ExpiresAt.Time)
	if err := s.denylist.Revoke(ctx, claims.SessionID, remaining); err != nil {
		s.logger.Warn("denylist session", slog.Any("error", err))
	}
	return nil
}

// ResolveSubject verifies a raw bearer token and loads the caller's
// authorization subject: identity, superuser flag, roles and permissions.
func (s *Service) ResolveSubject(ctx context.Context, rawToken string) (authz.Subject, Claims, error) {
	claims, err := s.tokens.Parse(rawToken)
	if err != nil {
		return authz.Subject{}, Claims{}, err
	}
	revoked, err := s.denylist.IsRevoked(ctx, claims.SessionID)
	if err != nil {
		return authz.Subject{}, Claims{}, err
	}
	if revoked {
		return authz.Subject{}, Claims{}, shared.ErrUnauthenticated
	}
	userID, err := claims.UserID()
	if err != nil {
		return authz.Subject{}, Claims{}, err
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return authz.Subject{}, Claims{}, shared.ErrUnauthenticated
	}
	if !user.IsActive {
		return authz.Subject{}, Claims{}, shared.ErrInactive
	}
	roles, err := s.repo.SubjectRoles(ctx, userID)
	if err != nil {
		return authz.Subject{}, Claims{}, err
	}
	subject := authz.Subject{
		UserID:      user.ID,
		Email:       user.Email,
		IsSuperuser: user.IsSuperuser,
		Roles:       roles,
	}
	return subject, claims, nil
}

// PurgeExpiredSessions removes stale session rows. Used by the maintenance
// worker.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.PurgeExpiredSessions(ctx, time.Now())
}
