package samples

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-lims/meridian-lims/internal/authz"
	"github.com/meridian-lims/meridian-lims/internal/shared"
)

type memorySampleRepo struct {
	samples   map[int64]Sample
	addresses map[int64]int64
	nextID    int64
}

func newMemorySampleRepo() *memorySampleRepo {
	return &memorySampleRepo{
		samples:   make(map[int64]Sample),
		addresses: make(map[int64]int64),
	}
}

func (r *memorySampleRepo) ListSamples(ctx context.Context) ([]Sample, error) {
	var out []Sample
	for id := int64(1); id <= r.nextID; id++ {
		if s, ok := r.samples[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memorySampleRepo) ListByAddress(ctx context.Context, addressID int64, date *time.Time) ([]Sample, error) {
	var out []Sample
	for id := int64(1); id <= r.nextID; id++ {
		s, ok := r.samples[id]
		if !ok || s.AddressID != addressID {
			continue
		}
		if date != nil {
			y1, m1, d1 := s.CreatedAt.Date()
			y2, m2, d2 := date.Date()
			if y1 != y2 || m1 != m2 || d1 != d2 {
				continue
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *memorySampleRepo) GetSample(ctx context.Context, id int64) (Sample, error) {
	s, ok := r.samples[id]
	if !ok {
		return Sample{}, shared.NotFoundf("sample not found")
	}
	return s, nil
}

func (r *memorySampleRepo) CreateSample(ctx context.Context, addressID int64, description *string) (Sample, error) {
	r.nextID++
	s := Sample{ID: r.nextID, AddressID: addressID, Description: description, CreatedAt: time.Now()}
	r.samples[s.ID] = s
	return s, nil
}

func (r *memorySampleRepo) UpdateSample(ctx context.Context, s Sample) (Sample, error) {
	if _, ok := r.samples[s.ID]; !ok {
		return Sample{}, shared.NotFoundf("sample not found")
	}
	r.samples[s.ID] = s
	return s, nil
}

func (r *memorySampleRepo) DeleteSample(ctx context.Context, id int64) error {
	if _, ok := r.samples[id]; !ok {
		return shared.NotFoundf("sample not found")
	}
	delete(r.samples, id)
	return nil
}

func (r *memorySampleRepo) AddressProject(ctx context.Context, addressID int64) (int64, error) {
	projectID, ok := r.addresses[addressID]
	if !ok {
		return 0, shared.NotFoundf("address not found")
	}
	return projectID, nil
}

var _ RepositoryPort = (*memorySampleRepo)(nil)

var testRanks = authz.Ranks{Technician: 50, Supervisor: 80}

func rankedSubject(userID int64, rank int) authz.Subject {
	return authz.Subject{UserID: userID, Roles: []authz.SubjectRole{{ID: 1, Name: "r", Rank: rank}}}
}

func ptr[T any](v T) *T { return &v }

func TestCreateSampleRequiresTechnicianRank(t *testing.T) {
	repo := newMemorySampleRepo()
	repo.addresses[1] = 10
	svc := NewService(repo, testRanks)
	ctx := context.Background()

	_, err := svc.CreateSample(ctx, rankedSubject(1, 49), 1, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	s, err := svc.CreateSample(ctx, rankedSubject(1, 50), 1, ptr("pump 3, mezzanine"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.AddressID)
	require.NotNil(t, s.Description)
	assert.Equal(t, "pump 3, mezzanine", *s.Description)
}

func TestCreateSampleUnknownAddress(t *testing.T) {
	svc := NewService(newMemorySampleRepo(), testRanks)

	_, err := svc.CreateSample(context.Background(), rankedSubject(1, 50), 42, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestUpdateSampleMergesAndValidatesTimes(t *testing.T) {
	repo := newMemorySampleRepo()
	repo.addresses[1] = 10
	svc := NewService(repo, testRanks)
	ctx := context.Background()
	tech := rankedSubject(1, 50)

	s, err := svc.CreateSample(ctx, tech, 1, nil)
	require.NoError(t, err)

	start := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	updated, err := svc.UpdateSample(ctx, tech, s.ID, UpdateSampleInput{
		StartTime: &start,
		FlowRate:  ptr(12),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.StartTime)
	require.NotNil(t, updated.FlowRate)
	assert.Equal(t, 12, *updated.FlowRate)
	assert.Nil(t, updated.TotalRunTime())

	// Stop before the stored start is rejected.
	badStop := start.Add(-time.Hour)
	_, err = svc.UpdateSample(ctx, tech, s.ID, UpdateSampleInput{StopTime: &badStop})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	stop := start.Add(2 * time.Hour)
	updated, err = svc.UpdateSample(ctx, tech, s.ID, UpdateSampleInput{StopTime: &stop})
	require.NoError(t, err)
	require.NotNil(t, updated.TotalRunTime())
	assert.Equal(t, 2*time.Hour, *updated.TotalRunTime())
}

func TestUpdateSampleRejectsNegativeCounts(t *testing.T) {
	repo := newMemorySampleRepo()
	repo.addresses[1] = 10
	svc := NewService(repo, testRanks)
	ctx := context.Background()
	tech := rankedSubject(1, 50)

	s, err := svc.CreateSample(ctx, tech, 1, nil)
	require.NoError(t, err)

	_, err = svc.UpdateSample(ctx, tech, s.ID, UpdateSampleInput{Fibers: ptr(-1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestDeleteSampleRequiresSupervisor(t *testing.T) {
	repo := newMemorySampleRepo()
	repo.addresses[1] = 10
	svc := NewService(repo, testRanks)
	ctx := context.Background()

	s, err := svc.CreateSample(ctx, rankedSubject(1, 50), 1, nil)
	require.NoError(t, err)

	err = svc.DeleteSample(ctx, rankedSubject(1, 79), s.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	require.NoError(t, svc.DeleteSample(ctx, rankedSubject(2, 80), s.ID))
}

func TestListByAddressDateFilter(t *testing.T) {
	repo := newMemorySampleRepo()
	repo.addresses[1] = 10
	svc := NewService(repo, testRanks)
	ctx := context.Background()
	tech := rankedSubject(1, 50)

	s, err := svc.CreateSample(ctx, tech, 1, nil)
	require.NoError(t, err)

	today := time.Now()
	got, err := svc.ListByAddress(ctx, tech, 1, &today)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, s.ID, got[0].ID)

	yesterday := today.AddDate(0, 0, -1)
	got, err = svc.ListByAddress(ctx, tech, 1, &yesterday)
	require.NoError(t, err)
	assert.Empty(t, got)
}
