package authz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-lims/meridian-lims/internal/shared"
)

func subjectWithRoles(roles ...SubjectRole) Subject {
	return Subject{UserID: 1, Email: "user@lab.test", Roles: roles}
}

func TestMaxRankDefaultsToZero(t *testing.T) {
	assert.Equal(t, 0, subjectWithRoles().MaxRank())
}

func TestMaxRankWithOnlyNegativeRanks(t *testing.T) {
	// Ranks are unconstrained integers; zero is the roleless default, not a
	// floor, so a subject holding only negative-rank roles reports the
	// highest of those.
	s := subjectWithRoles(
		SubjectRole{ID: 1, Name: "quarantined", Rank: -10},
		SubjectRole{ID: 2, Name: "probation", Rank: -5},
	)
	assert.Equal(t, -5, s.MaxRank())
	assert.False(t, s.HasMinRank(0))
	assert.True(t, s.HasMinRank(-5))
}

func TestMaxRankPicksHighestRole(t *testing.T) {
	s := subjectWithRoles(
		SubjectRole{ID: 1, Name: "tech", Rank: 50},
		SubjectRole{ID: 2, Name: "supervisor", Rank: 80},
	)
	assert.Equal(t, 80, s.MaxRank())
}

func TestSuperuserBypassesAllChecks(t *testing.T) {
	s := Subject{UserID: 7, IsSuperuser: true}
	assert.True(t, s.HasPermission("manage_users"))
	assert.True(t, s.HasPermission("anything_at_all"))
	assert.True(t, s.HasMinRank(0))
	assert.True(t, s.HasMinRank(1_000_000))
	require.NoError(t, RequirePermission(s, "manage_roles"))
	require.NoError(t, RequireMinRank(s, 100))
}

func TestHasPermissionUnionsRoles(t *testing.T) {
	s := subjectWithRoles(
		SubjectRole{ID: 1, Name: "auditor", Rank: 30, Permissions: []string{"view_reports"}},
		SubjectRole{ID: 2, Name: "clerk", Rank: 10, Permissions: []string{"manage_users"}},
	)
	assert.True(t, s.HasPermission("view_reports"))
	assert.True(t, s.HasPermission("manage_users"))
	assert.False(t, s.HasPermission("manage_roles"))

	perms := s.EffectivePermissions()
	assert.Len(t, perms, 2)
	assert.Contains(t, perms, "view_reports")
	assert.Contains(t, perms, "manage_users")
}

func TestHasMinRankBoundary(t *testing.T) {
	s := subjectWithRoles(SubjectRole{ID: 1, Name: "auditor", Rank: 30})
	assert.True(t, s.HasMinRank(30))
	assert.False(t, s.HasMinRank(31))
}

func TestRequirePermissionDenied(t *testing.T) {
	err := RequirePermission(subjectWithRoles(), "manage_users")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
	assert.Contains(t, err.Error(), "manage_users")
}

func TestRequireMinRankDenied(t *testing.T) {
	err := RequireMinRank(subjectWithRoles(), 50)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}

func TestCanManageRoleRequiresStrictlyHigherRank(t *testing.T) {
	actor := subjectWithRoles(SubjectRole{ID: 1, Name: "manager", Rank: 50})

	assert.True(t, CanManageRole(actor, 49))
	assert.False(t, CanManageRole(actor, 50), "equal rank must not be sufficient")
	assert.False(t, CanManageRole(actor, 51))

	super := Subject{UserID: 2, IsSuperuser: true}
	assert.True(t, CanManageRole(super, 100))

	err := RequireCanManageRole(actor, 50)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}
