package projects

import "time"

// Project is a client engagement that groups collection addresses and the
// technicians assigned to work them.
type Project struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectDetail is a project with its related ids resolved.
type ProjectDetail struct {
	Project
	AddressIDs    []int64
	TechnicianIDs []int64
}
