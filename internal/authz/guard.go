package authz

import (
	"github.com/meridian-lims/meridian-lims/internal/shared"
)

// RequirePermission fails with ErrForbidden unless the subject holds the
// named permission.
func RequirePermission(subject Subject, name string) error {
	if subject.HasPermission(name) {
		return nil
	}
	return shared.Forbiddenf("permission %q required", name)
}

// RequireMinRank fails with ErrForbidden unless the subject's highest role
// rank meets the threshold.
func RequireMinRank(subject Subject, minRank int) error {
	if subject.HasMinRank(minRank) {
		return nil
	}
	return shared.Forbiddenf("role rank %d or higher required", minRank)
}

// CanManageRole reports whether the actor may grant or revoke a role of the
// given rank. Non-superusers must outrank the role strictly; holding the
// same rank is not enough.
func CanManageRole(actor Subject, roleRank int) bool {
	if actor.IsSuperuser {
		return true
	}
	return actor.MaxRank() > roleRank
}

// RequireCanManageRole fails with ErrForbidden when CanManageRole denies.
func RequireCanManageRole(actor Subject, roleRank int) error {
	if CanManageRole(actor, roleRank) {
		return nil
	}
	return shared.Forbiddenf("cannot assign or remove a role with rank equal to or higher than your own")
}
