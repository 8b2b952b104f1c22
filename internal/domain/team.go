package domain

import "time"

// Team represents a support tier inside an organization. EscalationTeamID
// points at the next tier in the escalation chain; nil marks the top tier.
type Team struct {
	ID               string
	OrganizationID   string
	Name             string
	Description      string
	EscalationTeamID *string
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
