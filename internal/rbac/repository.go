package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-lims/meridian-lims/internal/platform/db"
	"github.com/meridian-lims/meridian-lims/internal/shared"
)

const uniqueViolation = "23505"

// Reader defines the read-side data access shared by pool and transaction.
type Reader interface {
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	RolesByIDs(ctx context.Context, ids []int64) ([]Role, error)
	MaxRoleRankExcept(ctx context.Context, excludeID int64) (int, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	PermissionsByNames(ctx context.Context, names []string) ([]Permission, error)
	RolePermissions(ctx context.Context, roleID int64) ([]string, error)
	UserRoles(ctx context.Context, userID int64) ([]RoleWithPermissions, error)
	RoleHolders(ctx context.Context, roleID int64) ([]int64, error)
	MaxRankForUser(ctx context.Context, userID int64) (int, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// TxRepository is the mutation surface available inside a transaction.
type TxRepository interface {
	Reader
	CreateRole(ctx context.Context, name, description string, rank int) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string, rank int) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	CreatePermission(ctx context.Context, name, description string) (Permission, bool, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
	ClearUserRoles(ctx context.Context, userID int64) error
}

// Repository provides reads plus transactional mutation scopes.
type Repository interface {
	Reader
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

type dbtx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	queries
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{queries: queries{db: pool}, pool: pool}
}

// WithTx runs fn against a transaction-scoped repository.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &queries{db: tx})
	})
}

var _ Repository = (*PGRepository)(nil)

type queries struct {
	db dbtx
}

const roleColumns = `id, name, description, rank, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Rank, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.NotFoundf("role not found")
		}
		return Role{}, err
	}
	return role, nil
}

func (q *queries) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(q.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

func (q *queries) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return scanRole(q.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
}

func (q *queries) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := q.db.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func (q *queries) RolesByIDs(ctx context.Context, ids []int64) ([]Role, error) {
	rows, err := q.db.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Rank, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (q *queries) MaxRoleRankExcept(ctx context.Context, excludeID int64) (int, error) {
	var rank int
	err := q.db.QueryRow(ctx, `SELECT COALESCE(MAX(rank), 0) FROM roles WHERE id <> $1`, excludeID).Scan(&rank)
	return rank, err
}

func (q *queries) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := q.db.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func (q *queries) PermissionsByNames(ctx context.Context, names []string) ([]Permission, error) {
	rows, err := q.db.Query(ctx, `SELECT id, name, description FROM permissions WHERE name = ANY($1) ORDER BY name`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (q *queries) RolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := q.db.Query(ctx, `
		SELECT p.name
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (q *queries) UserRoles(ctx context.Context, userID int64) ([]RoleWithPermissions, error) {
	rows, err := q.db.Query(ctx, `
		SELECT r.id, r.name, r.description, r.rank, r.created_at, r.updated_at,
		       COALESCE(array_agg(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}')
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		GROUP BY r.id
		ORDER BY r.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []RoleWithPermissions
	for rows.Next() {
		var role RoleWithPermissions
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Rank,
			&role.CreatedAt, &role.UpdatedAt, &role.Permissions); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (q *queries) RoleHolders(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := q.db.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1 ORDER BY user_id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q *queries) MaxRankForUser(ctx context.Context, userID int64) (int, error) {
	var rank int
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(r.rank), 0)
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1`, userID).Scan(&rank)
	return rank, err
}

func (q *queries) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	return exists, err
}

func (q *queries) CreateRole(ctx context.Context, name, description string, rank int) (Role, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO roles (name, description, rank)
		VALUES ($1, $2, $3)
		RETURNING `+roleColumns, name, description, rank)
	role, err := scanRole(row)
	if err != nil {
		return Role{}, mapUniqueViolation(err, name)
	}
	return role, nil
}

func (q *queries) UpdateRole(ctx context.Context, id int64, name, description string, rank int) (Role, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE roles
		SET name = $2, description = $3, rank = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+roleColumns, id, name, description, rank)
	role, err := scanRole(row)
	if err != nil {
		return Role{}, mapUniqueViolation(err, name)
	}
	return role, nil
}

func (q *queries) DeleteRole(ctx context.Context, id int64) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("role not found")
	}
	return nil
}

func (q *queries) CreatePermission(ctx context.Context, name, description string) (Permission, bool, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO permissions (name, description)
		VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
		RETURNING id, name, description`, name, description)
	var p Permission
	if err := row.Scan(&p.ID, &p.Name, &p.Description); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the insert race or the permission already existed.
			existing, lookupErr := q.PermissionsByNames(ctx, []string{name})
			if lookupErr != nil {
				return Permission{}, false, lookupErr
			}
			if len(existing) == 0 {
				return Permission{}, false, shared.NotFoundf("permission %q not found after upsert", name)
			}
			return existing[0], false, nil
		}
		return Permission{}, false, err
	}
	return p, true, nil
}

func (q *queries) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	for _, pid := range permissionIDs {
		if _, err := q.db.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, roleID, pid); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, userID, roleID)
	return err
}

func (q *queries) RemoveRole(ctx context.Context, userID, roleID int64) error {
	_, err := q.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

func (q *queries) ClearUserRoles(ctx context.Context, userID int64) error {
	_, err := q.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID)
	return err
}

// mapUniqueViolation converts a unique-constraint race on the role name into
// the client-facing duplicate error.
func mapUniqueViolation(err error, name string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return shared.DuplicateNamef("role %q already exists", name)
	}
	return err
}
