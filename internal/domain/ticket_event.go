package domain

import "time"

// TicketEventType captures what changed in an audit entry.
type TicketEventType string

const (
	EventTypeCreated        TicketEventType = "CREATED"
	EventTypeStatusChange   TicketEventType = "STATUS_CHANGE"
	EventTypePriorityChange TicketEventType = "PRIORITY_CHANGE"
	EventTypeAssigneeChange TicketEventType = "ASSIGNEE_CHANGE"
	EventTypeTeamChange     TicketEventType = "TEAM_CHANGE"
	EventTypeApprovalChange TicketEventType = "APPROVAL_CHANGE"
	EventTypeEscalated      TicketEventType = "ESCALATED"
)

// TicketEvent is an immutable audit trail entry. A nil ActorID marks a
// system-initiated change (scheduler, escalation engine).
type TicketEvent struct {
	ID          string
	TicketID    string
	ActorID     *string
	EventType   TicketEventType
	OldValue    map[string]any
	NewValue    map[string]any
	Description string
	CreatedAt   time.Time
}
