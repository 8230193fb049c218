package addresses

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-lims/meridian-lims/internal/shared"
)

// RepositoryPort defines data access methods for addresses.
type RepositoryPort interface {
	ListByProject(ctx context.Context, projectID int64) ([]Address, error)
	GetAddress(ctx context.Context, id int64) (Address, error)
	CreateAddress(ctx context.Context, projectID int64, name string, date time.Time) (Address, error)
	RenameAddress(ctx context.Context, id int64, name string) (Address, error)
	DeleteAddress(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const addressColumns = `id, project_id, name, date, created_at, updated_at`

func scanAddress(row pgx.Row) (Address, error) {
	var a Address
	if err := row.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Date, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Address{}, shared.NotFoundf("address not found")
		}
		return Address{}, err
	}
	return a, nil
}

// ListByProject returns the project's addresses ordered by date then id.
func (r *Repository) ListByProject(ctx context.Context, projectID int64) ([]Address, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+addressColumns+` FROM addresses
		WHERE project_id = $1
		ORDER BY date, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Address
	for rows.Next() {
		var a Address
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Date, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAddress fetches one address by id.
func (r *Repository) GetAddress(ctx context.Context, id int64) (Address, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id = $1`, id)
	return scanAddress(row)
}

// CreateAddress inserts a new address row for the site/day pair.
func (r *Repository) CreateAddress(ctx context.Context, projectID int64, name string, date time.Time) (Address, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO addresses (project_id, name, date)
		VALUES ($1, $2, $3)
		RETURNING `+addressColumns, projectID, name, date)
	a, err := scanAddress(row)
	if err != nil {
		return Address{}, mapUniquePerDay(err, name)
	}
	return a, nil
}

// RenameAddress updates the name, keeping the original date.
func (r *Repository) RenameAddress(ctx context.Context, id int64, name string) (Address, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE addresses SET name = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+addressColumns, id, name)
	a, err := scanAddress(row)
	if err != nil {
		return Address{}, mapUniquePerDay(err, name)
	}
	return a, nil
}

// DeleteAddress removes an address; its samples cascade.
func (r *Repository) DeleteAddress(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM addresses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("address not found")
	}
	return nil
}

func mapUniquePerDay(err error, name string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.DuplicateNamef("address %q already exists for this date", name)
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)
