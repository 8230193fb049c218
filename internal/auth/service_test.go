package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-lims/meridian-lims/internal/authz"
	"github.com/meridian-lims/meridian-lims/internal/shared"
)

type memoryAuthRepo struct {
	users    map[int64]*User
	byEmail  map[string]int64
	roles    map[int64][]authz.SubjectRole
	sessions map[uuid.UUID]Session
}

func newMemoryAuthRepo() *memoryAuthRepo {
	return &memoryAuthRepo{
		users:    make(map[int64]*User),
		byEmail:  make(map[string]int64),
		roles:    make(map[int64][]authz.SubjectRole),
		sessions: make(map[uuid.UUID]Session),
	}
}

func (r *memoryAuthRepo) addUser(u User) {
	clone := u
	r.users[u.ID] = &clone
	r.byEmail[u.Email] = u.ID
}

func (r *memoryAuthRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	id, ok := r.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	u := *r.users[id]
	return &u, nil
}

func (r *memoryAuthRepo) FindByID(ctx context.Context, id int64) (*User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (r *memoryAuthRepo) SubjectRoles(ctx context.Context, userID int64) ([]authz.SubjectRole, error) {
	return r.roles[userID], nil
}

func (r *memoryAuthRepo) CreateSession(ctx context.Context, s Session) error {
	r.sessions[s.ID] = s
	return nil
}

func (r *memoryAuthRepo) RevokeSession(ctx context.Context, id uuid.UUID) error {
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	s.RevokedAt = &now
	r.sessions[id] = s
	return nil
}

func (r *memoryAuthRepo) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	if u, ok := r.users[userID]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (r *memoryAuthRepo) PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	for id, s := range r.sessions {
		if s.ExpiresAt.Before(before) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

var _ Repository = (*memoryAuthRepo)(nil)

func newTestAuth(t *testing.T) (*Service, *memoryAuthRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := newMemoryAuthRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(logger, repo, NewTokenIssuer("test-secret", time.Hour), NewDenylist(rdb))

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.addUser(User{ID: 1, Email: "ivy@example.com", PasswordHash: string(hash), IsActive: true})
	repo.addUser(User{ID: 2, Email: "dormant@example.com", PasswordHash: string(hash), IsActive: false})
	repo.roles[1] = []authz.SubjectRole{{ID: 5, Name: "tech", Rank: 50, Permissions: []string{"manage_samples"}}}
	return svc, repo
}

func TestLoginIssuesResolvableToken(t *testing.T) {
	svc, repo := newTestAuth(t)
	ctx := context.Background()

	result, err := svc.Login(ctx, "ivy@example.com", "correct-horse", "127.0.0.1", "go-test")
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.Len(t, repo.sessions, 1)

	subject, claims, err := svc.ResolveSubject(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), subject.UserID)
	assert.Equal(t, "ivy@example.com", subject.Email)
	assert.Equal(t, 50, subject.MaxRank())
	assert.True(t, subject.HasPermission("manage_samples"))
	assert.NotEmpty(t, claims.SessionID)
	require.NotNil(t, repo.users[1].LastLoginAt)
}

func TestLoginAcceptsAnyEmailCasing(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	// Accounts are stored under the normalized address; the casing submitted
	// at login must not matter.
	result, err := svc.Login(ctx, " Ivy@Example.COM ", "correct-horse", "", "")
	require.NoError(t, err)

	subject, _, err := svc.ResolveSubject(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, "ivy@example.com", subject.Email)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, "ivy@example.com", "wrong-password", "", "")
	assert.True(t, errors.Is(err, shared.ErrInvalidCredentials))

	_, err = svc.Login(ctx, "nobody@example.com", "correct-horse", "", "")
	assert.True(t, errors.Is(err, shared.ErrInvalidCredentials))

	_, err = svc.Login(ctx, "dormant@example.com", "correct-horse", "", "")
	assert.True(t, errors.Is(err, shared.ErrInvalidCredentials))
}

func TestLogoutDenylistsToken(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	result, err := svc.Login(ctx, "ivy@example.com", "correct-horse", "", "")
	require.NoError(t, err)

	_, claims, err := svc.ResolveSubject(ctx, result.Token)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, claims))

	_, _, err = svc.ResolveSubject(ctx, result.Token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrUnauthenticated))
}

func TestResolveSubjectDeactivatedAccount(t *testing.T) {
	svc, repo := newTestAuth(t)
	ctx := context.Background()

	result, err := svc.Login(ctx, "ivy@example.com", "correct-horse", "", "")
	require.NoError(t, err)

	// Account gets deactivated after the token was issued.
	repo.users[1].IsActive = false

	_, _, err = svc.ResolveSubject(ctx, result.Token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInactive))
}

func TestPurgeExpiredSessions(t *testing.T) {
	svc, repo := newTestAuth(t)
	ctx := context.Background()

	repo.sessions[uuid.New()] = Session{ExpiresAt: time.Now().Add(-time.Hour)}
	repo.sessions[uuid.New()] = Session{ExpiresAt: time.Now().Add(time.Hour)}

	n, err := svc.PurgeExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, repo.sessions, 1)
}
