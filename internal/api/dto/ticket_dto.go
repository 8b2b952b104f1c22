package dto

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	TeamID           *string               `json:"team_id"`
	Title            string                `json:"title"`
	Description      string                `json:"description"`
	Priority         domain.TicketPriority `json:"priority"`
	RequiresApproval bool                  `json:"requires_approval"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status  domain.TicketStatus `json:"status"`
	Comment string              `json:"comment"`
}

// UpdatePriorityRequest payload.
type UpdatePriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// ApprovalRequest payload.
type ApprovalRequest struct {
	Decision domain.ApprovalStatus `json:"decision"`
}

// TicketResponse is the full ticket representation.
type TicketResponse struct {
	ID                 string                `json:"id"`
	ExternalKey        string                `json:"external_key"`
	OrganizationID     string                `json:"organization_id"`
	RequesterID        string                `json:"requester_id"`
	AssigneeID         *string               `json:"assignee_id"`
	TeamID             *string               `json:"team_id"`
	Title              string                `json:"title"`
	Description        string                `json:"description"`
	Status             domain.TicketStatus   `json:"status"`
	Priority           domain.TicketPriority `json:"priority"`
	RequiresApproval   bool                  `json:"requires_approval"`
	ApprovalStatus     domain.ApprovalStatus `json:"approval_status"`
	DueAt              *time.Time            `json:"due_at"`
	FirstResponseDueAt *time.Time            `json:"first_response_due_at"`
	ResolvedAt         *time.Time            `json:"resolved_at"`
	ClosedAt           *time.Time            `json:"closed_at"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// TicketEventResponse is one audit trail entry.
type TicketEventResponse struct {
	ID          string         `json:"id"`
	TicketID    string         `json:"ticket_id"`
	ActorID     *string        `json:"actor_id"`
	EventType   string         `json:"event_type"`
	OldValue    map[string]any `json:"old_value,omitempty"`
	NewValue    map[string]any `json:"new_value,omitempty"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TransitionsResponse lists the legal next statuses for a ticket.
type TransitionsResponse struct {
	Status      domain.TicketStatus   `json:"status"`
	Transitions []domain.TicketStatus `json:"transitions"`
}
