package projects

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-lims/meridian-lims/internal/shared"
)

// RepositoryPort defines data access methods for projects.
type RepositoryPort interface {
	ListProjects(ctx context.Context) ([]Project, error)
	ListProjectsForTechnician(ctx context.Context, userID int64) ([]Project, error)
	GetProject(ctx context.Context, id int64) (Project, error)
	CreateProject(ctx context.Context, name string) (Project, error)
	UpdateProject(ctx context.Context, id int64, name string) (Project, error)
	DeleteProject(ctx context.Context, id int64) error
	AddressIDs(ctx context.Context, projectID int64) ([]int64, error)
	TechnicianIDs(ctx context.Context, projectID int64) ([]int64, error)
	IsTechnicianAssigned(ctx context.Context, projectID, userID int64) (bool, error)
	AssignTechnician(ctx context.Context, projectID, userID int64) error
	RemoveTechnician(ctx context.Context, projectID, userID int64) (bool, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const projectColumns = `id, name, created_at, updated_at`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	if err := row.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, shared.NotFoundf("project not found")
		}
		return Project{}, err
	}
	return p, nil
}

func collectProjects(rows pgx.Rows) ([]Project, error) {
	defer rows.Close()
	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func collectIDs(rows pgx.Rows) ([]int64, error) {
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListProjects returns all projects ordered by id.
func (r *Repository) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectProjects(rows)
}

// ListProjectsForTechnician returns the projects the user is assigned to.
func (r *Repository) ListProjectsForTechnician(ctx context.Context, userID int64) ([]Project, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.created_at, p.updated_at
		FROM projects p
		JOIN project_technicians pt ON pt.project_id = p.id
		WHERE pt.user_id = $1
		ORDER BY p.id`, userID)
	if err != nil {
		return nil, err
	}
	return collectProjects(rows)
}

// GetProject fetches one project by id.
func (r *Repository) GetProject(ctx context.Context, id int64) (Project, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

// CreateProject inserts a new project.
func (r *Repository) CreateProject(ctx context.Context, name string) (Project, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO projects (name) VALUES ($1)
		RETURNING `+projectColumns, name)
	return scanProject(row)
}

// UpdateProject renames a project.
func (r *Repository) UpdateProject(ctx context.Context, id int64, name string) (Project, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE projects SET name = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+projectColumns, id, name)
	return scanProject(row)
}

// DeleteProject removes a project; addresses and samples cascade.
func (r *Repository) DeleteProject(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("project not found")
	}
	return nil
}

// AddressIDs returns the ids of the project's addresses.
func (r *Repository) AddressIDs(ctx context.Context, projectID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM addresses WHERE project_id = $1 ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// TechnicianIDs returns the ids of the assigned technicians.
func (r *Repository) TechnicianIDs(ctx context.Context, projectID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM project_technicians WHERE project_id = $1 ORDER BY user_id`, projectID)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// IsTechnicianAssigned reports whether the user is assigned to the project.
func (r *Repository) IsTechnicianAssigned(ctx context.Context, projectID, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM project_technicians WHERE project_id = $1 AND user_id = $2
		)`, projectID, userID).Scan(&exists)
	return exists, err
}

// AssignTechnician adds the user to the project; re-assigning is a no-op.
func (r *Repository) AssignTechnician(ctx context.Context, projectID, userID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO project_technicians (project_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, projectID, userID)
	return err
}

// RemoveTechnician unassigns the user, reporting whether a row was removed.
func (r *Repository) RemoveTechnician(ctx context.Context, projectID, userID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM project_technicians WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

var _ RepositoryPort = (*Repository)(nil)
