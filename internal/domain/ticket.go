package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew             TicketStatus = "NEW"
	TicketStatusTriage          TicketStatus = "TRIAGE"
	TicketStatusInProgress      TicketStatus = "IN_PROGRESS"
	TicketStatusWaitingCustomer TicketStatus = "WAITING_CUSTOMER"
	TicketStatusWaitingApproval TicketStatus = "WAITING_APPROVAL"
	TicketStatusOnHold          TicketStatus = "ON_HOLD"
	TicketStatusResolved        TicketStatus = "RESOLVED"
	TicketStatusClosed          TicketStatus = "CLOSED"
	TicketStatusCanceled        TicketStatus = "CANCELED"
)

// TicketPriority enumerates SLA urgency. Lower ordinal means more urgent.
type TicketPriority string

const (
	TicketPriorityP1 TicketPriority = "P1"
	TicketPriorityP2 TicketPriority = "P2"
	TicketPriorityP3 TicketPriority = "P3"
	TicketPriorityP4 TicketPriority = "P4"
	TicketPriorityP5 TicketPriority = "P5"
)

// Priorities lists all priorities in ascending ordinal (most urgent first).
var Priorities = []TicketPriority{
	TicketPriorityP1,
	TicketPriorityP2,
	TicketPriorityP3,
	TicketPriorityP4,
	TicketPriorityP5,
}

// Valid reports whether the priority is a known value.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityP1, TicketPriorityP2, TicketPriorityP3, TicketPriorityP4, TicketPriorityP5:
		return true
	}
	return false
}

// ApprovalStatus tracks the approval workflow for tickets that need one.
type ApprovalStatus string

const (
	ApprovalStatusNone     ApprovalStatus = "NONE"
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID                 string
	ExternalKey        string
	OrganizationID     string
	RequesterID        string
	TeamID             *string
	AssigneeID         *string
	Title              string
	Description        string
	Status             TicketStatus
	Priority           TicketPriority
	RequiresApproval   bool
	ApprovalStatus     ApprovalStatus
	DueAt              *time.Time
	FirstResponseDueAt *time.Time
	ResolvedAt         *time.Time
	ClosedAt           *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Open reports whether the ticket is still subject to SLA breach evaluation.
func (t *Ticket) Open() bool {
	return t.Status != TicketStatusResolved && t.Status != TicketStatusClosed && t.ResolvedAt == nil
}
