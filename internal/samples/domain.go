package samples

import "time"

// Sample is an air sample collected at an address. Run metrics are filled
// in as the pump runs and the filter is counted.
type Sample struct {
	ID             int64
	AddressID      int64
	Description    *string
	IsInside       *bool
	FlowRate       *int
	VolumeRequired *int
	StartTime      *time.Time
	StopTime       *time.Time
	Fields         *int
	Fibers         *int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TotalRunTime is the pump run duration, nil until both timestamps are set.
func (s Sample) TotalRunTime() *time.Duration {
	if s.StartTime == nil || s.StopTime == nil {
		return nil
	}
	d := s.StopTime.Sub(*s.StartTime)
	return &d
}

// UpdateSampleInput is a partial update; nil fields are left unchanged.
type UpdateSampleInput struct {
	Description    *string
	IsInside       *bool
	FlowRate       *int
	VolumeRequired *int
	StartTime      *time.Time
	StopTime       *time.Time
	Fields         *int
	Fibers         *int
}
