package events

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventSLABreached           EventType = "sla_breached"
	EventTicketEscalated       EventType = "ticket_escalated"
	EventSurveySent            EventType = "survey_sent"
)

// Event represents a domain event emitted by services. A nil ActorID means
// the system (scheduler, escalation engine) initiated the change.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   *string     `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	OrganizationID string                `json:"organization_id"`
	TeamID         *string               `json:"team_id,omitempty"`
	Priority       domain.TicketPriority `json:"priority"`
	DueAt          *time.Time            `json:"due_at,omitempty"`
	Title          string                `json:"title"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
	DueAt       *time.Time            `json:"due_at,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeID *string `json:"assignee_id,omitempty"`
	TeamID     *string `json:"team_id,omitempty"`
}

// SLABreachedPayload payload.
type SLABreachedPayload struct {
	DueAt      time.Time `json:"due_at"`
	DetectedAt time.Time `json:"detected_at"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	FromTeamID *string `json:"from_team_id,omitempty"`
	ToTeamID   string  `json:"to_team_id"`
	Reason     string  `json:"reason"`
}

// SurveySentPayload payload.
type SurveySentPayload struct {
	SurveyID string `json:"survey_id"`
}
