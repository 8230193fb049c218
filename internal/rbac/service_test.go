package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-lims/meridian-lims/internal/authz"
	"github.com/meridian-lims/meridian-lims/internal/shared"
)

type memoryRepo struct {
	roles      map[int64]Role
	perms      map[int64]Permission
	grants     map[int64]map[int64]struct{}
	userRoles  map[int64]map[int64]struct{}
	users      map[int64]struct{}
	nextRoleID int64
	nextPermID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		roles:     make(map[int64]Role),
		perms:     make(map[int64]Permission),
		grants:    make(map[int64]map[int64]struct{}),
		userRoles: make(map[int64]map[int64]struct{}),
		users:     make(map[int64]struct{}),
	}
}

func (r *memoryRepo) snapshot() *memoryRepo {
	clone := newMemoryRepo()
	clone.nextRoleID, clone.nextPermID = r.nextRoleID, r.nextPermID
	for id, role := range r.roles {
		clone.roles[id] = role
	}
	for id, p := range r.perms {
		clone.perms[id] = p
	}
	for id, set := range r.grants {
		dst := make(map[int64]struct{}, len(set))
		for k := range set {
			dst[k] = struct{}{}
		}
		clone.grants[id] = dst
	}
	for id, set := range r.userRoles {
		dst := make(map[int64]struct{}, len(set))
		for k := range set {
			dst[k] = struct{}{}
		}
		clone.userRoles[id] = dst
	}
	for id := range r.users {
		clone.users[id] = struct{}{}
	}
	return clone
}

func (r *memoryRepo) restore(from *memoryRepo) {
	r.roles, r.perms, r.grants = from.roles, from.perms, from.grants
	r.userRoles, r.users = from.userRoles, from.users
	r.nextRoleID, r.nextPermID = from.nextRoleID, from.nextPermID
}

// WithTx rolls the whole store back when fn fails, mirroring the database
// transaction semantics the service relies on.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	saved := r.snapshot()
	if err := fn(ctx, r); err != nil {
		r.restore(saved)
		return err
	}
	return nil
}

func (r *memoryRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, shared.NotFoundf("role not found")
	}
	return role, nil
}

func (r *memoryRepo) GetRoleByName(ctx context.Context, name string) (Role, error) {
	for _, role := range r.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return Role{}, shared.NotFoundf("role not found")
}

func (r *memoryRepo) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for id := int64(1); id <= r.nextRoleID; id++ {
		if role, ok := r.roles[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r *memoryRepo) RolesByIDs(ctx context.Context, ids []int64) ([]Role, error) {
	var out []Role
	for _, id := range ids {
		if role, ok := r.roles[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r *memoryRepo) MaxRoleRankExcept(ctx context.Context, excludeID int64) (int, error) {
	max := 0
	for _, role := range r.roles {
		if role.ID != excludeID && role.Rank > max {
			max = role.Rank
		}
	}
	return max, nil
}

func (r *memoryRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	var out []Permission
	for id := int64(1); id <= r.nextPermID; id++ {
		if p, ok := r.perms[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) PermissionsByNames(ctx context.Context, names []string) ([]Permission, error) {
	var out []Permission
	for _, name := range names {
		for _, p := range r.perms {
			if p.Name == name {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (r *memoryRepo) RolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	var names []string
	for pid := range r.grants[roleID] {
		names = append(names, r.perms[pid].Name)
	}
	return names, nil
}

func (r *memoryRepo) UserRoles(ctx context.Context, userID int64) ([]RoleWithPermissions, error) {
	var out []RoleWithPermissions
	for roleID := range r.userRoles[userID] {
		perms, _ := r.RolePermissions(ctx, roleID)
		out = append(out, RoleWithPermissions{Role: r.roles[roleID], Permissions: perms})
	}
	return out, nil
}

func (r *memoryRepo) RoleHolders(ctx context.Context, roleID int64) ([]int64, error) {
	var out []int64
	for userID, set := range r.userRoles {
		if _, ok := set[roleID]; ok {
			out = append(out, userID)
		}
	}
	return out, nil
}

func (r *memoryRepo) MaxRankForUser(ctx context.Context, userID int64) (int, error) {
	max := 0
	for roleID := range r.userRoles[userID] {
		if role, ok := r.roles[roleID]; ok && role.Rank > max {
			max = role.Rank
		}
	}
	return max, nil
}

func (r *memoryRepo) UserExists(ctx context.Context, userID int64) (bool, error) {
	_, ok := r.users[userID]
	return ok, nil
}

func (r *memoryRepo) CreateRole(ctx context.Context, name, description string, rank int) (Role, error) {
	if _, err := r.GetRoleByName(ctx, name); err == nil {
		return Role{}, shared.DuplicateNamef("role %q already exists", name)
	}
	r.nextRoleID++
	role := Role{ID: r.nextRoleID, Name: name, Description: description, Rank: rank}
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRepo) UpdateRole(ctx context.Context, id int64, name, description string, rank int) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, shared.NotFoundf("role not found")
	}
	role.Name, role.Description, role.Rank = name, description, rank
	r.roles[id] = role
	return role, nil
}

func (r *memoryRepo) DeleteRole(ctx context.Context, id int64) error {
	if _, ok := r.roles[id]; !ok {
		return shared.NotFoundf("role not found")
	}
	delete(r.roles, id)
	delete(r.grants, id)
	return nil
}

func (r *memoryRepo) CreatePermission(ctx context.Context, name, description string) (Permission, bool, error) {
	for _, p := range r.perms {
		if p.Name == name {
			return p, false, nil
		}
	}
	r.nextPermID++
	p := Permission{ID: r.nextPermID, Name: name, Description: description}
	r.perms[p.ID] = p
	return p, true, nil
}

func (r *memoryRepo) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	set := make(map[int64]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		set[id] = struct{}{}
	}
	r.grants[roleID] = set
	return nil
}

func (r *memoryRepo) AssignRole(ctx context.Context, userID, roleID int64) error {
	if r.userRoles[userID] == nil {
		r.userRoles[userID] = make(map[int64]struct{})
	}
	r.userRoles[userID][roleID] = struct{}{}
	return nil
}

func (r *memoryRepo) RemoveRole(ctx context.Context, userID, roleID int64) error {
	delete(r.userRoles[userID], roleID)
	return nil
}

func (r *memoryRepo) ClearUserRoles(ctx context.Context, userID int64) error {
	delete(r.userRoles, userID)
	return nil
}

func (r *memoryRepo) addUser(id int64) {
	r.users[id] = struct{}{}
}

var _ Repository = (*memoryRepo)(nil)

func newTestService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo)

	_, err := svc.EnsurePermissions(context.Background(), CorePermissions())
	require.NoError(t, err)
	_, err = svc.EnsureRootRole(context.Background(), 100)
	require.NoError(t, err)
	return svc, repo
}

func subjectFor(t *testing.T, svc *Service, repo *memoryRepo, userID int64) authz.Subject {
	t.Helper()
	roles, err := repo.UserRoles(context.Background(), userID)
	require.NoError(t, err)
	subject := authz.Subject{UserID: userID}
	for _, role := range roles {
		subject.Roles = append(subject.Roles, authz.SubjectRole{
			ID:          role.ID,
			Name:        role.Name,
			Rank:        role.Rank,
			Permissions: role.Permissions,
		})
	}
	return subject
}

var superuser = authz.Subject{UserID: 999, IsSuperuser: true}

func TestEnsurePermissionsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.EnsurePermissions(ctx, []string{"view_reports", "manage_users"})
	require.NoError(t, err)
	assert.Equal(t, []string{"view_reports"}, first.Created)
	assert.Equal(t, []string{"manage_users"}, first.Existing)

	second, err := svc.EnsurePermissions(ctx, []string{"view_reports", "manage_users"})
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Equal(t, []string{"manage_users", "view_reports"}, second.Existing)
}

func TestCreateRoleDuplicateName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, CreateRoleInput{Name: "auditor", Rank: 30})
	require.NoError(t, err)

	_, err = svc.CreateRole(ctx, CreateRoleInput{Name: "auditor", Rank: 40})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrDuplicateName))
}

func TestCreateRoleAboveRootForbidden(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateRole(context.Background(), CreateRoleInput{Name: "demigod", Rank: 150})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}

func TestRootRoleProtections(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	root, err := svc.GetRoleByName(ctx, RootRoleName)
	require.NoError(t, err)
	require.Equal(t, 100, root.Rank)

	_, err = svc.CreateRole(ctx, CreateRoleInput{Name: "supervisor", Rank: 80})
	require.NoError(t, err)

	lower := 50
	_, err = svc.UpdateRole(ctx, root.ID, UpdateRoleInput{Rank: &lower})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	rename := "superadmin"
	_, err = svc.UpdateRole(ctx, root.ID, UpdateRoleInput{Name: &rename})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	err = svc.DeleteRole(ctx, root.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	// Raising the root role's rank stays legal.
	higher := 120
	updated, err := svc.UpdateRole(ctx, root.ID, UpdateRoleInput{Rank: &higher})
	require.NoError(t, err)
	assert.Equal(t, 120, updated.Rank)

	// Lowering is legal while the root role stays the highest-ranked role.
	lowered := 110
	updated, err = svc.UpdateRole(ctx, root.ID, UpdateRoleInput{Rank: &lowered})
	require.NoError(t, err)
	assert.Equal(t, 110, updated.Rank)

	// It may drop all the way to the runner-up's rank, but not below it.
	atRunnerUp := 80
	updated, err = svc.UpdateRole(ctx, root.ID, UpdateRoleInput{Rank: &atRunnerUp})
	require.NoError(t, err)
	assert.Equal(t, 80, updated.Rank)

	belowRunnerUp := 79
	_, err = svc.UpdateRole(ctx, root.ID, UpdateRoleInput{Rank: &belowRunnerUp})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}

func TestUpdateRoleRenameCollision(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateRole(ctx, CreateRoleInput{Name: "alpha", Rank: 10})
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, CreateRoleInput{Name: "beta", Rank: 20})
	require.NoError(t, err)

	rename := "beta"
	_, err = svc.UpdateRole(ctx, a.ID, UpdateRoleInput{Name: &rename})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrDuplicateName))
}

func TestUpdateRoleUnknownPermissionsSkipped(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, CreateRoleInput{Name: "auditor", Rank: 30})
	require.NoError(t, err)

	perms := []string{"manage_users", "does_not_exist"}
	updated, err := svc.UpdateRole(ctx, role.ID, UpdateRoleInput{Permissions: &perms})
	require.NoError(t, err)
	assert.Equal(t, []string{"manage_users"}, updated.Permissions)
}

func TestDeleteRoleConflictWhileAssigned(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addUser(10)

	role, err := svc.CreateRole(ctx, CreateRoleInput{Name: "auditor", Rank: 30})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, superuser, 10, role.ID))

	err = svc.DeleteRole(ctx, role.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))

	require.NoError(t, svc.RemoveRole(ctx, superuser, 10, role.ID))
	require.NoError(t, svc.DeleteRole(ctx, role.ID))
}

func TestAssignRoleIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addUser(10)

	role, err := svc.CreateRole(ctx, CreateRoleInput{Name: "auditor", Rank: 30})
	require.NoError(t, err)

	require.NoError(t, svc.AssignRole(ctx, superuser, 10, role.ID))
	require.NoError(t, svc.AssignRole(ctx, superuser, 10, role.ID))

	roles, err := svc.UserRoles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, role.ID, roles[0].ID)
}

func TestAssignRoleNotFound(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addUser(10)

	err := svc.AssignRole(ctx, superuser, 10, 9999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	role, err := svc.CreateRole(ctx, CreateRoleInput{Name: "auditor", Rank: 30})
	require.NoError(t, err)
	err = svc.AssignRole(ctx, superuser, 77, role.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestRankGateRequiresStrictlyHigherRank(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addUser(1)
	repo.addUser(2)

	fifty, err := svc.CreateRole(ctx, CreateRoleInput{Name: "tech_lead", Rank: 50})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, superuser, 1, fifty.ID))

	actor := subjectFor(t, svc, repo, 1)
	require.Equal(t, 50, actor.MaxRank())

	err = svc.AssignRole(ctx, actor, 2, fifty.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	err = svc.RemoveRole(ctx, actor, 2, fifty.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}

func TestSelfLockoutGuard(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addUser(1)

	role, err := svc.CreateRole(ctx, CreateRoleInput{Name: "auditor", Rank: 30})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, superuser, 1, role.ID))

	actor := subjectFor(t, svc, repo, 1)
	err = svc.RemoveRole(ctx, actor, 1, role.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
	assert.Contains(t, err.Error(), "highest-ranked")
}

func TestLastRootHolderProtected(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addUser(1)
	repo.addUser(2)

	root, err := svc.GetRoleByName(ctx, RootRoleName)
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, superuser, 1, root.ID))

	err = svc.RemoveRole(ctx, superuser, 1, root.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	// With a second holder the removal goes through.
	require.NoError(t, svc.AssignRole(ctx, superuser, 2, root.ID))
	require.NoError(t, svc.RemoveRole(ctx, superuser, 1, root.ID))
}

func TestReplaceRolesAtomicOnInvalidID(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addUser(10)

	auditor, err := svc.CreateRole(ctx, CreateRoleInput{Name: "auditor", Rank: 30})
	require.NoError(t, err)
	clerk, err := svc.CreateRole(ctx, CreateRoleInput{Name: "clerk", Rank: 10})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, superuser, 10, clerk.ID))

	err = svc.ReplaceRoles(ctx, superuser, 10, []int64{auditor.ID, 99999})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	roles, err := svc.UserRoles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, roles, 1, "failed replace must not partially mutate")
	assert.Equal(t, clerk.ID, roles[0].ID)
}

func TestReplaceRolesInstallsExactSet(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addUser(10)

	auditor, err := svc.CreateRole(ctx, CreateRoleInput{Name: "auditor", Rank: 30})
	require.NoError(t, err)
	clerk, err := svc.CreateRole(ctx, CreateRoleInput{Name: "clerk", Rank: 10})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, superuser, 10, clerk.ID))

	require.NoError(t, svc.ReplaceRoles(ctx, superuser, 10, []int64{auditor.ID}))

	roles, err := svc.UserRoles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, auditor.ID, roles[0].ID)
}

func TestScenarioAuditorGainsPermissionViaRole(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addUser(10)

	_, err := svc.EnsurePermissions(ctx, []string{"view_reports"})
	require.NoError(t, err)
	auditor, err := svc.CreateRole(ctx, CreateRoleInput{Name: "auditor", Rank: 30})
	require.NoError(t, err)
	perms := []string{"view_reports"}
	_, err = svc.UpdateRole(ctx, auditor.ID, UpdateRoleInput{Permissions: &perms})
	require.NoError(t, err)

	before := subjectFor(t, svc, repo, 10)
	assert.False(t, before.HasPermission("view_reports"))

	require.NoError(t, svc.AssignRole(ctx, superuser, 10, auditor.ID))

	after := subjectFor(t, svc, repo, 10)
	assert.True(t, after.HasPermission("view_reports"))
	assert.True(t, after.HasMinRank(30))
	assert.False(t, after.HasMinRank(31))
}

func TestScenarioManagerAssignsTechButNotPeer(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addUser(1)
	repo.addUser(2)

	_, err := svc.EnsurePermissions(ctx, []string{"manage_users"})
	require.NoError(t, err)
	manager, err := svc.CreateRole(ctx, CreateRoleInput{Name: "manager", Rank: 90})
	require.NoError(t, err)
	perms := []string{"manage_users"}
	_, err = svc.UpdateRole(ctx, manager.ID, UpdateRoleInput{Permissions: &perms})
	require.NoError(t, err)
	tech, err := svc.CreateRole(ctx, CreateRoleInput{Name: "tech", Rank: 50})
	require.NoError(t, err)

	require.NoError(t, svc.AssignRole(ctx, superuser, 1, manager.ID))
	actor := subjectFor(t, svc, repo, 1)

	require.NoError(t, svc.AssignRole(ctx, actor, 2, tech.ID))

	err = svc.AssignRole(ctx, actor, 2, manager.ID)
	require.Error(t, err, "90 is not strictly greater than 90")
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}

func TestMaxRankDefaultsToZeroForRolelessUser(t *testing.T) {
	svc, repo := newTestService(t)
	repo.addUser(10)

	rank, err := svc.MaxRank(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, rank)
}
