package samples

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-lims/meridian-lims/internal/shared"
)

// RepositoryPort defines data access methods for samples.
type RepositoryPort interface {
	ListSamples(ctx context.Context) ([]Sample, error)
	ListByAddress(ctx context.Context, addressID int64, date *time.Time) ([]Sample, error)
	GetSample(ctx context.Context, id int64) (Sample, error)
	CreateSample(ctx context.Context, addressID int64, description *string) (Sample, error)
	UpdateSample(ctx context.Context, s Sample) (Sample, error)
	DeleteSample(ctx context.Context, id int64) error
	AddressProject(ctx context.Context, addressID int64) (int64, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sampleColumns = `id, address_id, description, is_inside, flow_rate, volume_required,
	start_time, stop_time, fields, fibers, created_at, updated_at`

func scanSample(row pgx.Row) (Sample, error) {
	var s Sample
	err := row.Scan(&s.ID, &s.AddressID, &s.Description, &s.IsInside, &s.FlowRate, &s.VolumeRequired,
		&s.StartTime, &s.StopTime, &s.Fields, &s.Fibers, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sample{}, shared.NotFoundf("sample not found")
		}
		return Sample{}, err
	}
	return s, nil
}

func collectSamples(rows pgx.Rows) ([]Sample, error) {
	defer rows.Close()
	var out []Sample
	for rows.Next() {
		var s Sample
		err := rows.Scan(&s.ID, &s.AddressID, &s.Description, &s.IsInside, &s.FlowRate, &s.VolumeRequired,
			&s.StartTime, &s.StopTime, &s.Fields, &s.Fibers, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListSamples returns all samples ordered by id.
func (r *Repository) ListSamples(ctx context.Context) ([]Sample, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sampleColumns+` FROM samples ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectSamples(rows)
}

// ListByAddress returns an address's samples, optionally only those
// created on the given day.
func (r *Repository) ListByAddress(ctx context.Context, addressID int64, date *time.Time) ([]Sample, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if date != nil {
		rows, err = r.pool.Query(ctx, `
			SELECT `+sampleColumns+` FROM samples
			WHERE address_id = $1 AND created_at::date = $2::date
			ORDER BY id`, addressID, *date)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+sampleColumns+` FROM samples
			WHERE address_id = $1
			ORDER BY id`, addressID)
	}
	if err != nil {
		return nil, err
	}
	return collectSamples(rows)
}

// GetSample fetches one sample by id.
func (r *Repository) GetSample(ctx context.Context, id int64) (Sample, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sampleColumns+` FROM samples WHERE id = $1`, id)
	return scanSample(row)
}

// CreateSample inserts a new sample under an address.
func (r *Repository) CreateSample(ctx context.Context, addressID int64, description *string) (Sample, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO samples (address_id, description)
		VALUES ($1, $2)
		RETURNING `+sampleColumns, addressID, description)
	return scanSample(row)
}

// UpdateSample writes the full set of mutable fields.
func (r *Repository) UpdateSample(ctx context.Context, s Sample) (Sample, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE samples
		SET description = $2, is_inside = $3, flow_rate = $4, volume_required = $5,
		    start_time = $6, stop_time = $7, fields = $8, fibers = $9, updated_at = now()
		WHERE id = $1
		RETURNING `+sampleColumns,
		s.ID, s.Description, s.IsInside, s.FlowRate, s.VolumeRequired,
		s.StartTime, s.StopTime, s.Fields, s.Fibers)
	return scanSample(row)
}

// DeleteSample removes a sample.
func (r *Repository) DeleteSample(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM samples WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("sample not found")
	}
	return nil
}

// AddressProject resolves the project owning an address.
func (r *Repository) AddressProject(ctx context.Context, addressID int64) (int64, error) {
	var projectID int64
	err := r.pool.QueryRow(ctx, `SELECT project_id FROM addresses WHERE id = $1`, addressID).Scan(&projectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.NotFoundf("address not found")
		}
		return 0, err
	}
	return projectID, nil
}

var _ RepositoryPort = (*Repository)(nil)
