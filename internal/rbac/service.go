package rbac

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/meridian-lims/meridian-lims/internal/authz"
	"github.com/meridian-lims/meridian-lims/internal/shared"
)

// Service enforces the role registry invariants and the role assignment
// rules on top of the repository.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListRoles returns all roles with their permission sets, in id order.
func (s *Service) ListRoles(ctx context.Context) ([]RoleWithPermissions, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RoleWithPermissions, 0, len(roles))
	for _, role := range roles {
		perms, err := s.repo.RolePermissions(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, RoleWithPermissions{Role: role, Permissions: perms})
	}
	return out, nil
}

// GetRole fetches one role with its permission set.
func (s *Service) GetRole(ctx context.Context, id int64) (RoleWithPermissions, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	perms, err := s.repo.RolePermissions(ctx, id)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	return RoleWithPermissions{Role: role, Permissions: perms}, nil
}

// GetRoleByName fetches a role by its unique name.
func (s *Service) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return s.repo.GetRoleByName(ctx, name)
}

// CreateRole inserts a new role. No role may be ranked above the root role.
func (s *Service) CreateRole(ctx context.Context, in CreateRoleInput) (Role, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Role{}, shared.Validationf("role name required")
	}

	var created Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetRoleByName(ctx, in.Name); err == nil {
			return shared.DuplicateNamef("role %q already exists", in.Name)
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if in.Name != RootRoleName {
			root, err := tx.GetRoleByName(ctx, RootRoleName)
			if err == nil && in.Rank > root.Rank {
				return shared.Forbiddenf("cannot create a role ranked above the %q role", RootRoleName)
			} else if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return err
			}
		}
		role, err := tx.CreateRole(ctx, in.Name, strings.TrimSpace(in.Description), in.Rank)
		if err != nil {
			return err
		}
		created = role
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	return created, nil
}

// UpdateRole applies a partial update. Root role protections: the root role
// keeps its name and never has its rank lowered; no other role may be raised
// above it. A permission set in the input fully replaces prior grants;
// unknown permission names are skipped.
func (s *Service) UpdateRole(ctx context.Context, id int64, in UpdateRoleInput) (RoleWithPermissions, error) {
	var updated RoleWithPermissions
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.GetRole(ctx, id)
		if err != nil {
			return err
		}

		name := role.Name
		if in.Name != nil {
			name = strings.TrimSpace(*in.Name)
			if name == "" {
				return shared.Validationf("role name required")
			}
		}
		description := role.Description
		if in.Description != nil {
			description = strings.TrimSpace(*in.Description)
		}
		rank := role.Rank
		if in.Rank != nil {
			rank = *in.Rank
		}

		if role.IsRoot() {
			if name != RootRoleName {
				return shared.Forbiddenf("cannot rename the %q role", RootRoleName)
			}
			if rank < role.Rank {
				highest, err := tx.MaxRoleRankExcept(ctx, role.ID)
				if err != nil {
					return err
				}
				if rank < highest {
					return shared.Forbiddenf("cannot lower the %q role below the highest-ranked role", RootRoleName)
				}
			}
		} else {
			if root, err := tx.GetRoleByName(ctx, RootRoleName); err == nil {
				if rank > root.Rank {
					return shared.Forbiddenf("cannot rank a role above the %q role", RootRoleName)
				}
			} else if !errors.Is(err, shared.ErrNotFound) {
				return err
			}
			if name != role.Name {
				if existing, err := tx.GetRoleByName(ctx, name); err == nil && existing.ID != id {
					return shared.DuplicateNamef("role %q already exists", name)
				} else if err != nil && !errors.Is(err, shared.ErrNotFound) {
					return err
				}
			}
		}

		role, err = tx.UpdateRole(ctx, id, name, description, rank)
		if err != nil {
			return err
		}

		if in.Permissions != nil {
			if err := replacePermissions(ctx, tx, id, *in.Permissions); err != nil {
				return err
			}
		}

		perms, err := tx.RolePermissions(ctx, id)
		if err != nil {
			return err
		}
		updated = RoleWithPermissions{Role: role, Permissions: perms}
		return nil
	})
	if err != nil {
		return RoleWithPermissions{}, err
	}
	return updated, nil
}

// DeleteRole removes an unassigned, non-root role together with its grants.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.GetRole(ctx, id)
		if err != nil {
			return err
		}
		if role.IsRoot() {
			return shared.Forbiddenf("cannot delete the %q role", RootRoleName)
		}
		holders, err := tx.RoleHolders(ctx, id)
		if err != nil {
			return err
		}
		if len(holders) > 0 {
			return shared.Conflictf("role %q is still assigned to %d user(s)", role.Name, len(holders))
		}
		return tx.DeleteRole(ctx, id)
	})
}

// RolePermissions returns the permission names granted by a role.
func (s *Service) RolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.RolePermissions(ctx, roleID)
}

// UpdateRolePermissions replaces a role's grant set. Unknown permission
// names are skipped rather than rejected, tolerating stale references.
func (s *Service) UpdateRolePermissions(ctx context.Context, roleID int64, names []string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetRole(ctx, roleID); err != nil {
			return err
		}
		return replacePermissions(ctx, tx, roleID, names)
	})
}

func replacePermissions(ctx context.Context, tx TxRepository, roleID int64, names []string) error {
	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	known, err := tx.PermissionsByNames(ctx, cleaned)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(known))
	for _, p := range known {
		ids = append(ids, p.ID)
	}
	return tx.ReplaceRolePermissions(ctx, roleID, ids)
}

// ListPermissions returns the full permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// EnsurePermissions idempotently creates any missing permissions among
// names, partitioning the result into created and pre-existing sets.
func (s *Service) EnsurePermissions(ctx context.Context, names []string) (BootstrapResult, error) {
	sorted := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	var result BootstrapResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		result = BootstrapResult{}
		for _, name := range sorted {
			_, inserted, err := tx.CreatePermission(ctx, name, "")
			if err != nil {
				return err
			}
			if inserted {
				result.Created = append(result.Created, name)
			} else {
				result.Existing = append(result.Existing, name)
			}
		}
		return nil
	})
	if err != nil {
		return BootstrapResult{}, err
	}
	return result, nil
}

// EnsureRootRole guarantees the root role exists at the given rank with the
// core permissions granted. Existing root roles are left untouched.
func (s *Service) EnsureRootRole(ctx context.Context, rank int) (Role, error) {
	var root Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetRoleByName(ctx, RootRoleName)
		if err == nil {
			root = existing
			return nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		created, err := tx.CreateRole(ctx, RootRoleName, "Root role with maximum rank", rank)
		if err != nil {
			return err
		}
		core, err := tx.PermissionsByNames(ctx, CorePermissions())
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(core))
		for _, p := range core {
			ids = append(ids, p.ID)
		}
		if err := tx.ReplaceRolePermissions(ctx, created.ID, ids); err != nil {
			return err
		}
		root = created
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	return root, nil
}

// AssignRole grants a role to a user on behalf of the actor. Assigning an
// already-held role succeeds without effect.
func (s *Service) AssignRole(ctx context.Context, actor authz.Subject, userID, roleID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}
		if err := authz.RequireCanManageRole(actor, role.Rank); err != nil {
			return err
		}
		return tx.AssignRole(ctx, userID, roleID)
	})
}

// RemoveRole revokes a role from a user on behalf of the actor. Removing a
// role the user does not hold succeeds without effect.
func (s *Service) RemoveRole(ctx context.Context, actor authz.Subject, userID, roleID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.checkRemoval(ctx, tx, actor, userID, role); err != nil {
			return err
		}
		return tx.RemoveRole(ctx, userID, roleID)
	})
}

// ReplaceRoles atomically installs exactly roleIDs as the user's role set.
// Any invalid role id aborts the whole operation.
func (s *Service) ReplaceRoles(ctx context.Context, actor authz.Subject, userID int64, roleIDs []int64) error {
	unique := make([]int64, 0, len(roleIDs))
	seen := make(map[int64]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}
		wanted, err := tx.RolesByIDs(ctx, unique)
		if err != nil {
			return err
		}
		if len(wanted) != len(unique) {
			found := make(map[int64]struct{}, len(wanted))
			for _, r := range wanted {
				found[r.ID] = struct{}{}
			}
			for _, id := range unique {
				if _, ok := found[id]; !ok {
					return shared.NotFoundf("role %d not found", id)
				}
			}
		}

		current, err := tx.UserRoles(ctx, userID)
		if err != nil {
			return err
		}
		currentByID := make(map[int64]Role, len(current))
		for _, r := range current {
			currentByID[r.ID] = r.Role
		}
		wantedByID := make(map[int64]Role, len(wanted))
		for _, r := range wanted {
			wantedByID[r.ID] = r
		}

		for _, role := range wanted {
			if _, held := currentByID[role.ID]; !held {
				if err := authz.RequireCanManageRole(actor, role.Rank); err != nil {
					return err
				}
			}
		}
		for _, held := range current {
			if _, keep := wantedByID[held.ID]; !keep {
				if err := s.checkRemoval(ctx, tx, actor, userID, held.Role); err != nil {
					return err
				}
			}
		}

		if err := tx.ClearUserRoles(ctx, userID); err != nil {
			return err
		}
		for _, role := range wanted {
			if err := tx.AssignRole(ctx, userID, role.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// checkRemoval applies the revocation gates: self-lockout protection, the
// strict rank gate, and the last-root-holder safety rail.
func (s *Service) checkRemoval(ctx context.Context, tx TxRepository, actor authz.Subject, userID int64, role Role) error {
	if !actor.IsSuperuser && actor.UserID == userID && role.Rank >= actor.MaxRank() {
		return shared.Forbiddenf("cannot remove your own highest-ranked role")
	}
	if err := authz.RequireCanManageRole(actor, role.Rank); err != nil {
		return err
	}
	if role.IsRoot() {
		holders, err := tx.RoleHolders(ctx, role.ID)
		if err != nil {
			return err
		}
		if len(holders) == 1 && holders[0] == userID {
			return shared.Forbiddenf("cannot remove the %q role from its last holder", RootRoleName)
		}
	}
	return nil
}

// UserRoles returns the roles held by a user, each with its permission set.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]RoleWithPermissions, error) {
	ok, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.NotFoundf("user %d not found", userID)
	}
	return s.repo.UserRoles(ctx, userID)
}

// RoleHolders returns the ids of users currently holding the role.
func (s *Service) RoleHolders(ctx context.Context, roleID int64) ([]int64, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.RoleHolders(ctx, roleID)
}

// MaxRank returns the user's highest role rank, 0 when the user holds none.
func (s *Service) MaxRank(ctx context.Context, userID int64) (int, error) {
	return s.repo.MaxRankForUser(ctx, userID)
}

func requireUser(ctx context.Context, tx TxRepository, userID int64) error {
	ok, err := tx.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NotFoundf("user %d not found", userID)
	}
	return nil
}
