package samples

import (
	"context"
	"time"

	"github.com/meridian-lims/meridian-lims/internal/authz"
	"github.com/meridian-lims/meridian-lims/internal/shared"
)

// Service handles sample business logic. Technician rank covers view and
// edit; delete needs supervisor rank.
type Service struct {
	repo RepositoryPort
	rank authz.Ranks
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, rank authz.Ranks) *Service {
	return &Service{repo: repo, rank: rank}
}

// ListSamples returns all samples.
func (s *Service) ListSamples(ctx context.Context, subject authz.Subject) ([]Sample, error) {
	if err := authz.RequireMinRank(subject, s.rank.Technician); err != nil {
		return nil, err
	}
	return s.repo.ListSamples(ctx)
}

// ListByAddress returns an address's samples, optionally filtered to one
// collection day.
func (s *Service) ListByAddress(ctx context.Context, subject authz.Subject, addressID int64, date *time.Time) ([]Sample, error) {
	if err := authz.RequireMinRank(subject, s.rank.Technician); err != nil {
		return nil, err
	}
	if _, err := s.repo.AddressProject(ctx, addressID); err != nil {
		return nil, err
	}
	return s.repo.ListByAddress(ctx, addressID, date)
}

// GetSample returns one sample.
func (s *Service) GetSample(ctx context.Context, subject authz.Subject, id int64) (Sample, error) {
	if err := authz.RequireMinRank(subject, s.rank.Technician); err != nil {
		return Sample{}, err
	}
	return s.repo.GetSample(ctx, id)
}

// CreateSample starts a new sample under an address.
func (s *Service) CreateSample(ctx context.Context, subject authz.Subject, addressID int64, description *string) (Sample, error) {
	if err := authz.RequireMinRank(subject, s.rank.Technician); err != nil {
		return Sample{}, err
	}
	if _, err := s.repo.AddressProject(ctx, addressID); err != nil {
		return Sample{}, err
	}
	return s.repo.CreateSample(ctx, addressID, description)
}

// UpdateSample merges the partial update onto the stored row. The stop
// time may never precede the start time, across both old and new values.
func (s *Service) UpdateSample(ctx context.Context, subject authz.Subject, id int64, in UpdateSampleInput) (Sample, error) {
	if err := authz.RequireMinRank(subject, s.rank.Technician); err != nil {
		return Sample{}, err
	}
	sample, err := s.repo.GetSample(ctx, id)
	if err != nil {
		return Sample{}, err
	}

	if in.Description != nil {
		sample.Description = in.Description
	}
	if in.IsInside != nil {
		sample.IsInside = in.IsInside
	}
	if in.FlowRate != nil {
		if *in.FlowRate < 0 {
			return Sample{}, shared.Validationf("flow_rate must not be negative")
		}
		sample.FlowRate = in.FlowRate
	}
	if in.VolumeRequired != nil {
		if *in.VolumeRequired < 0 {
			return Sample{}, shared.Validationf("volume_required must not be negative")
		}
		sample.VolumeRequired = in.VolumeRequired
	}
	if in.StartTime != nil {
		sample.StartTime = in.StartTime
	}
	if in.StopTime != nil {
		sample.StopTime = in.StopTime
	}
	if in.Fields != nil {
		if *in.Fields < 0 {
			return Sample{}, shared.Validationf("fields must not be negative")
		}
		sample.Fields = in.Fields
	}
	if in.Fibers != nil {
		if *in.Fibers < 0 {
			return Sample{}, shared.Validationf("fibers must not be negative")
		}
		sample.Fibers = in.Fibers
	}

	if sample.StartTime != nil && sample.StopTime != nil && sample.StopTime.Before(*sample.StartTime) {
		return Sample{}, shared.Validationf("stop_time must be after start_time")
	}

	return s.repo.UpdateSample(ctx, sample)
}

// DeleteSample requires supervisor rank.
func (s *Service) DeleteSample(ctx context.Context, subject authz.Subject, id int64) error {
	if err := authz.RequireMinRank(subject, s.rank.Supervisor); err != nil {
		return err
	}
	return s.repo.DeleteSample(ctx, id)
}
