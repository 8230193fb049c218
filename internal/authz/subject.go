// Package authz implements the authorization decision core. All checks are
// pure functions over a Subject snapshot resolved once per request; nothing
// in this package performs I/O.
package authz

// SubjectRole is one role held by a subject, denormalized with its grants.
type SubjectRole struct {
	ID          int64
	Name        string
	Rank        int
	Permissions []string
}

// Subject is the per-request authorization identity, distinct from the
// persisted user record.
type Subject struct {
	UserID      int64
	Email       string
	IsSuperuser bool
	Roles       []SubjectRole
}

// MaxRank returns the highest rank among the subject's roles, 0 when the
// subject holds none. Superuser status is handled by the check functions,
// not encoded here.
func (s Subject) MaxRank() int {
	if len(s.Roles) == 0 {
		return 0
	}
	max := s.Roles[0].Rank
	for _, r := range s.Roles[1:] {
		if r.Rank > max {
			max = r.Rank
		}
	}
	return max
}

// EffectivePermissions returns the union of permissions across all roles.
func (s Subject) EffectivePermissions() map[string]struct{} {
	perms := make(map[string]struct{})
	for _, r := range s.Roles {
		for _, p := range r.Permissions {
			perms[p] = struct{}{}
		}
	}
	return perms
}

// HasPermission reports whether the subject holds the named permission
// through any of its roles. Superusers hold every permission.
func (s Subject) HasPermission(name string) bool {
	if s.IsSuperuser {
		return true
	}
	for _, r := range s.Roles {
		for _, p := range r.Permissions {
			if p == name {
				return true
			}
		}
	}
	return false
}

// HasMinRank reports whether the subject's highest role rank meets the
// threshold. Superusers satisfy any threshold.
func (s Subject) HasMinRank(minRank int) bool {
	if s.IsSuperuser {
		return true
	}
	return s.MaxRank() >= minRank
}
