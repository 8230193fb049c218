package addresses

import (
	"context"
	"strings"

	"github.com/meridian-lims/meridian-lims/internal/authz"
	"github.com/meridian-lims/meridian-lims/internal/shared"
)

// ProjectAccess reports project assignment. Satisfied by the projects
// repository.
type ProjectAccess interface {
	IsTechnicianAssigned(ctx context.Context, projectID, userID int64) (bool, error)
}

// Service handles address business logic. View and edit need technician
// rank or assignment to the owning project; delete needs supervisor rank.
type Service struct {
	repo     RepositoryPort
	projects ProjectAccess
	rank     authz.Ranks
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, projects ProjectAccess, rank authz.Ranks) *Service {
	return &Service{repo: repo, projects: projects, rank: rank}
}

func (s *Service) access(ctx context.Context, subject authz.Subject, projectID int64, minRank int) error {
	if subject.HasMinRank(minRank) {
		return nil
	}
	assigned, err := s.projects.IsTechnicianAssigned(ctx, projectID, subject.UserID)
	if err != nil {
		return err
	}
	if !assigned {
		return shared.Forbiddenf("no access to this project")
	}
	return nil
}

// ListByProject returns the addresses of a project.
func (s *Service) ListByProject(ctx context.Context, subject authz.Subject, projectID int64) ([]Address, error) {
	if err := s.access(ctx, subject, projectID, s.rank.Technician); err != nil {
		return nil, err
	}
	return s.repo.ListByProject(ctx, projectID)
}

// GetAddress returns one address.
func (s *Service) GetAddress(ctx context.Context, subject authz.Subject, id int64) (Address, error) {
	address, err := s.repo.GetAddress(ctx, id)
	if err != nil {
		return Address{}, err
	}
	if err := s.access(ctx, subject, address.ProjectID, s.rank.Technician); err != nil {
		return Address{}, err
	}
	return address, nil
}

// CreateAddress records a site visit for a day.
func (s *Service) CreateAddress(ctx context.Context, subject authz.Subject, in CreateAddressInput) (Address, error) {
	if err := s.access(ctx, subject, in.ProjectID, s.rank.Technician); err != nil {
		return Address{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Address{}, shared.Validationf("address name required")
	}
	if in.Date.IsZero() {
		return Address{}, shared.Validationf("address date required")
	}
	return s.repo.CreateAddress(ctx, in.ProjectID, name, in.Date)
}

// RenameAddress changes the site name; the visit date is immutable.
func (s *Service) RenameAddress(ctx context.Context, subject authz.Subject, id int64, name string) (Address, error) {
	address, err := s.repo.GetAddress(ctx, id)
	if err != nil {
		return Address{}, err
	}
	if err := s.access(ctx, subject, address.ProjectID, s.rank.Technician); err != nil {
		return Address{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Address{}, shared.Validationf("address name required")
	}
	return s.repo.RenameAddress(ctx, id, name)
}

// DeleteAddress requires supervisor rank.
func (s *Service) DeleteAddress(ctx context.Context, subject authz.Subject, id int64) error {
	if err := authz.RequireMinRank(subject, s.rank.Supervisor); err != nil {
		return err
	}
	return s.repo.DeleteAddress(ctx, id)
}
