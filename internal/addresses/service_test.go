package addresses

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

type memoryAddressRepo struct {
	addresses map[int64]Address
	nextID    int64
}

func newMemoryAddressRepo() *memoryAddressRepo {
	return &memoryAddressRepo{addresses: make(map[int64]Address)}
}

func (r *memoryAddressRepo) ListByProject(ctx context.Context, projectID int64) ([]Address, error) {
	var out []Address
	for id := int64(1); id <= r.nextID; id++ {
		if a, ok := r.addresses[id]; ok && a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryAddressRepo) GetAddress(ctx context.Context, id int64) (Address, error) {
	a, ok := r.addresses[id]
	if !ok {
		return Address{}, shared.NotFoundf("address not found")
	}
	return a, nil
}

func (r *memoryAddressRepo) CreateAddress(ctx context.Context, projectID int64, name string, date time.Time) (Address, error) {
	for _, a := range r.addresses {
		if a.Name == name && a.Date.Equal(date) {
			return Address{}, shared.DuplicateNamef("address %q already exists for this date", name)
		}
	}
	r.nextID++
	a := Address{ID: r.nextID, ProjectID: projectID, Name: name, Date: date}
	r.addresses[a.ID] = a
	return a, nil
}

func (r *memoryAddressRepo) RenameAddress(ctx context.Context, id int64, name string) (Address, error) {
	a, ok := r.addresses[id]
	if !ok {
		return Address{}, shared.NotFoundf("address not found")
	}
	for otherID, other := range r.addresses {
		if otherID != id && other.Name == name && other.Date.Equal(a.Date) {
			return Address{}, shared.DuplicateNamef("address %q already exists for this date", name)
		}
	}
	a.Name = name
	r.addresses[id] = a
	return a, nil
}

func (r *memoryAddressRepo) DeleteAddress(ctx context.Context, id int64) error {
	if _, ok := r.addresses[id]; !ok {
		return shared.NotFoundf("address not found")
	}
	delete(r.addresses, id)
	return nil
}

var _ RepositoryPort = (*memoryAddressRepo)(nil)

type stubProjectAccess map[int64]map[int64]struct{}

func (s stubProjectAccess) IsTechnicianAssigned(ctx context.Context, projectID, userID int64) (bool, error) {
	_, ok := s[projectID][userID]
	return ok, nil
}

var testRanks = authz.Ranks{Technician: 50, Supervisor: 80}

func rankedSubject(userID int64, rank int) authz.Subject {
	if rank == 0 {
		return authz.Subject{UserID: userID}
	}
	return authz.Subject{UserID: userID, Roles: []authz.SubjectRole{{ID: 1, Name: "r", Rank: rank}}}
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCreateAddressDuplicatePerDay(t *testing.T) {
	repo := newMemoryAddressRepo()
	svc := NewService(repo, stubProjectAccess{}, testRanks)
	ctx := context.Background()
	tech := rankedSubject(1, 50)

	_, err := svc.CreateAddress(ctx, tech, CreateAddressInput{ProjectID: 1, Name: "12 Mill Rd", Date: day("2026-08-20")})
	require.NoError(t, err)

	_, err = svc.CreateAddress(ctx, tech, CreateAddressInput{ProjectID: 1, Name: "12 Mill Rd", Date: day("2026-08-20")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrDuplicateName))

	// Same site on another day is a fresh row.
	_, err = svc.CreateAddress(ctx, tech, CreateAddressInput{ProjectID: 1, Name: "12 Mill Rd", Date: day("2026-08-21")})
	require.NoError(t, err)
}

func TestAddressAccessViaAssignment(t *testing.T) {
	repo := newMemoryAddressRepo()
	access := stubProjectAccess{1: {5: {}}}
	svc := NewService(repo, access, testRanks)
	ctx := context.Background()

	// Assigned user below technician rank can still work the project.
	a, err := svc.CreateAddress(ctx, rankedSubject(5, 10), CreateAddressInput{ProjectID: 1, Name: "12 Mill Rd", Date: day("2026-08-20")})
	require.NoError(t, err)

	_, err = svc.GetAddress(ctx, rankedSubject(5, 10), a.ID)
	require.NoError(t, err)

	// Unassigned, low-ranked user is refused.
	_, err = svc.GetAddress(ctx, rankedSubject(6, 10), a.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}

func TestRenameAddressKeepsDate(t *testing.T) {
	repo := newMemoryAddressRepo()
	svc := NewService(repo, stubProjectAccess{}, testRanks)
	ctx := context.Background()
	tech := rankedSubject(1, 50)

	a, err := svc.CreateAddress(ctx, tech, CreateAddressInput{ProjectID: 1, Name: "12 Mill Rd", Date: day("2026-08-20")})
	require.NoError(t, err)

	renamed, err := svc.RenameAddress(ctx, tech, a.ID, "12 Mill Road")
	require.NoError(t, err)
	assert.Equal(t, "12 Mill Road", renamed.Name)
	assert.True(t, renamed.Date.Equal(a.Date))
}

func TestDeleteAddressRequiresSupervisor(t *testing.T) {
	repo := newMemoryAddressRepo()
	svc := NewService(repo, stubProjectAccess{}, testRanks)
	ctx := context.Background()

	a, err := svc.CreateAddress(ctx, rankedSubject(1, 50), CreateAddressInput{ProjectID: 1, Name: "12 Mill Rd", Date: day("2026-08-20")})
	require.NoError(t, err)

	err = svc.DeleteAddress(ctx, rankedSubject(1, 50), a.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	require.NoError(t, svc.DeleteAddress(ctx, rankedSubject(2, 80), a.ID))
}
