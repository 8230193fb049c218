package projects

import (
	"context"
	"strings"

	"github.com/meridian-lims/meridian-lims/internal/authz"
	"github.com/meridian-lims/meridian-lims/internal/shared"
)

// RankLookup resolves a user's highest role rank. Satisfied by the rbac
// repository.
type RankLookup interface {
	MaxRankForUser(ctx context.Context, userID int64) (int, error)
}

// Service handles project business logic. Access follows the field rule:
// a project is visible to its assigned technicians and to anyone at or
// above the supervisor threshold; edits need assignment or technician rank.
type Service struct {
	repo  RepositoryPort
	ranks RankLookup
	rank  authz.Ranks
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, ranks RankLookup, rank authz.Ranks) *Service {
	return &Service{repo: repo, ranks: ranks, rank: rank}
}

// access allows the subject when it clears minRank or is assigned to the
// project.
func (s *Service) access(ctx context.Context, subject authz.Subject, projectID int64, minRank int) error {
	if subject.HasMinRank(minRank) {
		return nil
	}
	assigned, err := s.repo.IsTechnicianAssigned(ctx, projectID, subject.UserID)
	if err != nil {
		return err
	}
	if !assigned {
		return shared.Forbiddenf("no access to this project")
	}
	return nil
}

// ListProjects returns every project for supervisors and up, otherwise
// only the subject's assigned projects.
func (s *Service) ListProjects(ctx context.Context, subject authz.Subject) ([]Project, error) {
	if subject.HasMinRank(s.rank.Supervisor) {
		return s.repo.ListProjects(ctx)
	}
	return s.repo.ListProjectsForTechnician(ctx, subject.UserID)
}

// GetProject returns a project with its address and technician ids.
func (s *Service) GetProject(ctx context.Context, subject authz.Subject, id int64) (ProjectDetail, error) {
	project, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return ProjectDetail{}, err
	}
	if err := s.access(ctx, subject, id, s.rank.Supervisor); err != nil {
		return ProjectDetail{}, err
	}
	addressIDs, err := s.repo.AddressIDs(ctx, id)
	if err != nil {
		return ProjectDetail{}, err
	}
	technicianIDs, err := s.repo.TechnicianIDs(ctx, id)
	if err != nil {
		return ProjectDetail{}, err
	}
	return ProjectDetail{Project: project, AddressIDs: addressIDs, TechnicianIDs: technicianIDs}, nil
}

// CreateProject requires technician rank.
func (s *Service) CreateProject(ctx context.Context, subject authz.Subject, name string) (Project, error) {
	if err := authz.RequireMinRank(subject, s.rank.Technician); err != nil {
		return Project{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Project{}, shared.Validationf("project name required")
	}
	return s.repo.CreateProject(ctx, name)
}

// UpdateProject renames a project. Assigned technicians may edit projects
// they work on regardless of rank.
func (s *Service) UpdateProject(ctx context.Context, subject authz.Subject, id int64, name string) (Project, error) {
	if _, err := s.repo.GetProject(ctx, id); err != nil {
		return Project{}, err
	}
	if err := s.access(ctx, subject, id, s.rank.Technician); err != nil {
		return Project{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Project{}, shared.Validationf("project name required")
	}
	return s.repo.UpdateProject(ctx, id, name)
}

// DeleteProject requires supervisor rank.
func (s *Service) DeleteProject(ctx context.Context, subject authz.Subject, id int64) error {
	if err := authz.RequireMinRank(subject, s.rank.Supervisor); err != nil {
		return err
	}
	return s.repo.DeleteProject(ctx, id)
}

// AssignTechnician puts a user on the project. The actor needs supervisor
// rank and the target must hold technician rank.
func (s *Service) AssignTechnician(ctx context.Context, subject authz.Subject, projectID, userID int64) error {
	if err := authz.RequireMinRank(subject, s.rank.Supervisor); err != nil {
		return err
	}
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return err
	}
	targetRank, err := s.ranks.MaxRankForUser(ctx, userID)
	if err != nil {
		return err
	}
	if targetRank < s.rank.Technician {
		return shared.Validationf("user must hold technician rank or higher")
	}
	return s.repo.AssignTechnician(ctx, projectID, userID)
}

// RemoveTechnician takes a user off the project.
func (s *Service) RemoveTechnician(ctx context.Context, subject authz.Subject, projectID, userID int64) error {
	if err := authz.RequireMinRank(subject, s.rank.Supervisor); err != nil {
		return err
	}
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return err
	}
	removed, err := s.repo.RemoveTechnician(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return shared.NotFoundf("technician is not assigned to this project")
	}
	return nil
}
