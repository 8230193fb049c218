package authz

// Ranks carries the configured rank thresholds the domain services gate on.
// Thresholds are deployment configuration, not engine constants.
type Ranks struct {
	Technician int
	Supervisor int
}
