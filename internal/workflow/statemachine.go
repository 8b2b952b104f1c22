// Package workflow defines the legal ticket status transitions, their guard
// conditions, and the side-effects each transition requires. It performs no
// I/O: validation only authorizes a mutation the caller applies atomically
// with the status write.
package workflow

import (
	"fmt"
	"sort"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util"
)

// GuardKind is the closed set of guard conditions a transition may carry.
// Guards outside this enum cannot be expressed, so an unknown guard is a
// compile-time error rather than a silent pass.
type GuardKind int

const (
	GuardNone GuardKind = iota
	GuardRequiresApproval
	GuardHasAssignee
	GuardApprovalApproved
	GuardApprovalRejected
)

// Action is a declarative side-effect the caller must apply together with
// the status write.
type Action int

const (
	ActionSetResolvedAt Action = iota
	ActionSetClosedAt
	ActionClearResolvedAt
	ActionClearClosedAt
)

// Context carries the ticket facts guards are evaluated against.
type Context struct {
	RequiresApproval bool
	HasAssignee      bool
	ApprovalStatus   domain.ApprovalStatus
}

type transition struct {
	to      domain.TicketStatus
	guard   GuardKind
	actions []Action
}

var transitions = map[domain.TicketStatus][]transition{
	domain.TicketStatusNew: {
		{to: domain.TicketStatusTriage},
		{to: domain.TicketStatusWaitingApproval, guard: GuardRequiresApproval},
		{to: domain.TicketStatusCanceled},
	},
	domain.TicketStatusTriage: {
		{to: domain.TicketStatusInProgress, guard: GuardHasAssignee},
		{to: domain.TicketStatusWaitingApproval, guard: GuardRequiresApproval},
		{to: domain.TicketStatusCanceled},
	},
	domain.TicketStatusInProgress: {
		{to: domain.TicketStatusWaitingCustomer},
		{to: domain.TicketStatusOnHold},
		{to: domain.TicketStatusCanceled},
		{to: domain.TicketStatusResolved, actions: []Action{ActionSetResolvedAt}},
	},
	domain.TicketStatusWaitingCustomer: {
		{to: domain.TicketStatusInProgress},
		{to: domain.TicketStatusClosed, actions: []Action{ActionSetClosedAt}},
	},
	domain.TicketStatusWaitingApproval: {
		{to: domain.TicketStatusInProgress, guard: GuardApprovalApproved},
		{to: domain.TicketStatusCanceled, guard: GuardApprovalRejected},
	},
	domain.TicketStatusOnHold: {
		{to: domain.TicketStatusInProgress},
		{to: domain.TicketStatusCanceled},
	},
	domain.TicketStatusResolved: {
		{to: domain.TicketStatusClosed, actions: []Action{ActionSetClosedAt}},
		{to: domain.TicketStatusInProgress, actions: []Action{ActionClearResolvedAt}},
	},
	domain.TicketStatusClosed: {
		{to: domain.TicketStatusInProgress, actions: []Action{ActionClearResolvedAt, ActionClearClosedAt}},
	},
}

// ValidateTransition checks that from→to exists in the table and its guard
// holds against ctx. Rejections carry the legal destinations from `from`.
func ValidateTransition(from, to domain.TicketStatus, ctx Context) error {
	edge, ok := findEdge(from, to)
	if !ok {
		return invalidTransition(from, to, "no such transition")
	}
	if !guardHolds(edge.guard, ctx) {
		return invalidTransition(from, to, guardDescription(edge.guard))
	}
	return nil
}

// ValidTransitions returns the full outgoing set for a status, ignoring
// guards, for UI enablement.
func ValidTransitions(from domain.TicketStatus) []domain.TicketStatus {
	edges := transitions[from]
	out := make([]domain.TicketStatus, 0, len(edges))
	for _, edge := range edges {
		out = append(out, edge.to)
	}
	return out
}

// TransitionActions returns the side-effects the caller must apply with the
// status write. Nil when the pair is not a legal transition.
func TransitionActions(from, to domain.TicketStatus) []Action {
	edge, ok := findEdge(from, to)
	if !ok {
		return nil
	}
	return edge.actions
}

func findEdge(from, to domain.TicketStatus) (transition, bool) {
	for _, edge := range transitions[from] {
		if edge.to == to {
			return edge, true
		}
	}
	return transition{}, false
}

func guardHolds(guard GuardKind, ctx Context) bool {
	switch guard {
	case GuardNone:
		return true
	case GuardRequiresApproval:
		return ctx.RequiresApproval
	case GuardHasAssignee:
		return ctx.HasAssignee
	case GuardApprovalApproved:
		return ctx.ApprovalStatus == domain.ApprovalStatusApproved
	case GuardApprovalRejected:
		return ctx.ApprovalStatus == domain.ApprovalStatusRejected
	}
	return false
}

func guardDescription(guard GuardKind) string {
	switch guard {
	case GuardRequiresApproval:
		return "ticket does not require approval"
	case GuardHasAssignee:
		return "ticket has no assignee"
	case GuardApprovalApproved:
		return "ticket is not approved"
	case GuardApprovalRejected:
		return "ticket approval is not rejected"
	}
	return "guard condition not met"
}

func invalidTransition(from, to domain.TicketStatus, reason string) error {
	valid := ValidTransitions(from)
	names := make([]string, 0, len(valid))
	for _, status := range valid {
		names = append(names, string(status))
	}
	sort.Strings(names)
	return apperrors.NewInvalidTransition(
		fmt.Sprintf("cannot move ticket from %s to %s: %s", from, to, reason),
		names,
	)
}
