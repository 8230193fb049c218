// Package rbac implements the role registry, permission catalog and role
// assignment store backing the authorization engine.
package rbac

import "time"

// RootRoleName designates the structurally protected maximum-privilege role.
// It cannot be renamed, demoted or deleted.
const RootRoleName = "admin"

// Core permission names guaranteed to exist after bootstrap.
const (
	PermManageUsers = "manage_users"
	PermManageRoles = "manage_roles"
)

// CorePermissions lists the permission names every deployment starts with.
func CorePermissions() []string {
	return []string{
		PermManageUsers,
		PermManageRoles,
	}
}

// Role is a named privilege grouping with a numeric rank. Higher ranks
// dominate lower ones.
type Role struct {
	ID          int64
	Name        string
	Description string
	Rank        int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsRoot reports whether the role is the protected root role.
func (r Role) IsRoot() bool {
	return r.Name == RootRoleName
}

// Permission is an atomic named capability grantable to roles.
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// RoleWithPermissions is a role annotated with its granted permission names.
type RoleWithPermissions struct {
	Role
	Permissions []string
}

// BootstrapResult partitions an EnsurePermissions call into the names that
// were created and those that already existed.
type BootstrapResult struct {
	Created  []string
	Existing []string
}

// CreateRoleInput carries the fields for a new role.
type CreateRoleInput struct {
	Name        string
	Description string
	Rank        int
}

// UpdateRoleInput carries a partial role update. Nil fields are untouched.
// Permissions, when present, fully replaces the role's grant set.
type UpdateRoleInput struct {
	Name        *string
	Description *string
	Rank        *int
	Permissions *[]string
}
