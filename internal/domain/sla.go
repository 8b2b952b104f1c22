package domain

import "time"

// SLARule maps a priority to its response and resolution deadlines for one
// organization. All five priorities must be defined; a missing row is a
// configuration error, never a silent default.
type SLARule struct {
	ID                   string
	OrganizationID       string
	Priority             TicketPriority
	FirstResponseMinutes int
	ResolutionMinutes    int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Resolution returns the resolution window as a duration.
func (r SLARule) Resolution() time.Duration {
	return time.Duration(r.ResolutionMinutes) * time.Minute
}

// FirstResponse returns the first-response window as a duration.
func (r SLARule) FirstResponse() time.Duration {
	return time.Duration(r.FirstResponseMinutes) * time.Minute
}
