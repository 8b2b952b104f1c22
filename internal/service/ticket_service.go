package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/scheduler"
	"github.com/spec-kit/ticket-lifecycle/internal/sla"
	"github.com/spec-kit/ticket-lifecycle/internal/workflow"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util"
)

// JobQueue is the slice of the scheduler that services use to defer work.
type JobQueue interface {
	Enqueue(payload scheduler.JobPayload, scheduledFor time.Time) string
}

// TicketService coordinates the ticket workflow: transitions are validated
// by the state machine, deadlines come from the SLA resolver, and deferred
// follow-ups (breach checks) land on the job queue.
type TicketService struct {
	tickets    repository.TicketRepository
	teams      repository.TeamRepository
	users      repository.UserRepository
	auditLog   repository.TicketEventRepository
	resolver   *sla.Resolver
	jobs       JobQueue
	dispatcher events.Dispatcher
	clock      scheduler.Clock
	slaCfg     config.SLAConfig
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	TeamRepo   repository.TeamRepository
	UserRepo   repository.UserRepository
	AuditRepo  repository.TicketEventRepository
	Resolver   *sla.Resolver
	Jobs       JobQueue
	Dispatcher events.Dispatcher
	Clock      scheduler.Clock
	SLAConfig  config.SLAConfig
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	TeamID           *string
	Title            string
	Description      string
	Priority         domain.TicketPriority
	RequiresApproval bool
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clock := deps.Clock
	if clock == nil {
		clock = scheduler.SystemClock()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		teams:      deps.TeamRepo,
		users:      deps.UserRepo,
		auditLog:   deps.AuditRepo,
		resolver:   deps.Resolver,
		jobs:       deps.Jobs,
		dispatcher: deps.Dispatcher,
		clock:      clock,
		slaCfg:     deps.SLAConfig,
	}
}

// CreateTicket opens a ticket in NEW, computes its SLA deadlines, and
// schedules the breach checks around the due time.
func (s *TicketService) CreateTicket(ctx context.Context, requester *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	if requester == nil {
		return nil, apperrors.NewUnauthorized("requester required")
	}
	if input.TeamID != nil {
		team, err := s.teams.GetByID(ctx, *input.TeamID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("team", map[string]any{"team_id": *input.TeamID})
			}
			return nil, apperrors.MapError(err)
		}
		if !team.IsActive {
			return nil, apperrors.NewConflict("team inactive", map[string]any{"team_id": team.ID})
		}
		if team.OrganizationID != requester.OrganizationID {
			return nil, apperrors.NewForbidden("team outside organization")
		}
	}

	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityP3
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	now := s.clock.Now()
	dueAt, err := s.resolver.DueAt(ctx, requester.OrganizationID, priority, now)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	firstResponseAt, err := s.resolver.FirstResponseAt(ctx, requester.OrganizationID, priority, now)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	approval := domain.ApprovalStatusNone
	if input.RequiresApproval {
		approval = domain.ApprovalStatusPending
	}

	ticket := &domain.Ticket{
		ExternalKey:        generateTicketKey(),
		OrganizationID:     requester.OrganizationID,
		RequesterID:        requester.ID,
		TeamID:             input.TeamID,
		Title:              strings.TrimSpace(input.Title),
		Description:        strings.TrimSpace(input.Description),
		Status:             domain.TicketStatusNew,
		Priority:           priority,
		RequiresApproval:   input.RequiresApproval,
		ApprovalStatus:     approval,
		DueAt:              &dueAt,
		FirstResponseDueAt: &firstResponseAt,
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if err := s.record(ctx, &domain.TicketEvent{
		TicketID:  ticket.ID,
		ActorID:   &requester.ID,
		EventType: domain.EventTypeCreated,
		NewValue: map[string]any{
			"status":   ticket.Status,
			"priority": ticket.Priority,
			"due_at":   dueAt,
		},
		Description: "ticket created",
	}); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.scheduleBreachChecks(ticket)
	s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		ActorID:  &requester.ID,
		Payload: events.TicketCreatedPayload{
			OrganizationID: ticket.OrganizationID,
			TeamID:         ticket.TeamID,
			Priority:       ticket.Priority,
			DueAt:          ticket.DueAt,
			Title:          ticket.Title,
		},
	})
	return ticket, nil
}

// UpdateStatus moves a ticket through the state machine. An accepted
// transition writes exactly one audit entry; rejected ones write none.
func (s *TicketService) UpdateStatus(ctx context.Context, actor *domain.User, ticketID string, newStatus domain.TicketStatus, comment string) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	guardCtx := workflow.Context{
		RequiresApproval: ticket.RequiresApproval,
		HasAssignee:      ticket.AssigneeID != nil,
		ApprovalStatus:   ticket.ApprovalStatus,
	}
	if err := workflow.ValidateTransition(ticket.Status, newStatus, guardCtx); err != nil {
		return nil, err
	}

	oldStatus := ticket.Status
	ticket.Status = newStatus
	s.applyActions(ticket, workflow.TransitionActions(oldStatus, newStatus))

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if err := s.record(ctx, &domain.TicketEvent{
		TicketID:  ticket.ID,
		ActorID:   actorID(actor),
		EventType: domain.EventTypeStatusChange,
		OldValue:  map[string]any{"status": oldStatus},
		NewValue:  map[string]any{"status": newStatus, "comment": comment},
	}); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		ActorID:  actorID(actor),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
			Comment:   comment,
		},
	})
	return ticket, nil
}

// UpdatePriority changes urgency and recomputes the SLA deadline from the
// original creation time. Fresh breach checks are scheduled for the new due
// time; stale ones no-op because the handler re-reads the ticket.
func (s *TicketService) UpdatePriority(ctx context.Context, actor *domain.User, ticketID string, newPriority domain.TicketPriority) (*domain.Ticket, error) {
	if !newPriority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": newPriority})
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Priority == newPriority {
		return ticket, nil
	}

	dueAt, err := s.resolver.DueAt(ctx, ticket.OrganizationID, newPriority, ticket.CreatedAt)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	firstResponseAt, err := s.resolver.FirstResponseAt(ctx, ticket.OrganizationID, newPriority, ticket.CreatedAt)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	oldPriority := ticket.Priority
	ticket.Priority = newPriority
	ticket.DueAt = &dueAt
	ticket.FirstResponseDueAt = &firstResponseAt

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if err := s.record(ctx, &domain.TicketEvent{
		TicketID:  ticket.ID,
		ActorID:   actorID(actor),
		EventType: domain.EventTypePriorityChange,
		OldValue:  map[string]any{"priority": oldPriority},
		NewValue:  map[string]any{"priority": newPriority, "due_at": dueAt},
	}); err != nil {
		return nil, apperrors.MapError(err)
	}
	if ticket.Open() {
		s.scheduleBreachChecks(ticket)
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketPriorityChanged,
		TicketID: ticket.ID,
		ActorID:  actorID(actor),
		Payload: events.TicketPriorityChangedPayload{
			OldPriority: oldPriority,
			NewPriority: newPriority,
			DueAt:       ticket.DueAt,
		},
	})
	return ticket, nil
}

// AssignTicket puts a ticket in an agent's hands.
func (s *TicketService) AssignTicket(ctx context.Context, actor *domain.User, ticketID, assigneeID string) (*domain.Ticket, error) {
	assignee, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": assigneeID})
		}
		return nil, apperrors.MapError(err)
	}
	if !assignee.Active() {
		return nil, apperrors.NewConflict("assignee suspended", map[string]any{"user_id": assigneeID})
	}
	if assignee.Role != domain.RoleAgent && assignee.Role != domain.RoleAdmin {
		return nil, apperrors.NewConflict("assignee is not support staff", map[string]any{"user_id": assigneeID})
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	oldAssignee := ticket.AssigneeID
	ticket.AssigneeID = &assignee.ID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if err := s.record(ctx, &domain.TicketEvent{
		TicketID:  ticket.ID,
		ActorID:   actorID(actor),
		EventType: domain.EventTypeAssigneeChange,
		OldValue:  map[string]any{"assignee_id": oldAssignee},
		NewValue:  map[string]any{"assignee_id": assignee.ID},
	}); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		ActorID:  actorID(actor),
		Payload: events.TicketAssignedPayload{
			AssigneeID: ticket.AssigneeID,
			TeamID:     ticket.TeamID,
		},
	})
	return ticket, nil
}

// SetApproval records the approval decision consumed by the
// WAITING_APPROVAL guards.
func (s *TicketService) SetApproval(ctx context.Context, actor *domain.User, ticketID string, decision domain.ApprovalStatus) (*domain.Ticket, error) {
	if decision != domain.ApprovalStatusApproved && decision != domain.ApprovalStatusRejected {
		return nil, apperrors.NewValidationError("decision must be APPROVED or REJECTED", nil)
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.RequiresApproval {
		return nil, apperrors.NewConflict("ticket does not require approval", nil)
	}

	old := ticket.ApprovalStatus
	ticket.ApprovalStatus = decision
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if err := s.record(ctx, &domain.TicketEvent{
		TicketID:  ticket.ID,
		ActorID:   actorID(actor),
		EventType: domain.EventTypeApprovalChange,
		OldValue:  map[string]any{"approval_status": old},
		NewValue:  map[string]any{"approval_status": decision},
	}); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// GetTicket fetches one ticket.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.getTicket(ctx, ticketID)
}

// ListTickets returns tickets matching the filter.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListEvents returns the audit trail for a ticket.
func (s *TicketService) ListEvents(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketEvent, error) {
	if _, err := s.getTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.auditLog.ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// ValidTransitionsFor lists the outgoing states for UI enablement.
func (s *TicketService) ValidTransitionsFor(ctx context.Context, ticketID string) ([]domain.TicketStatus, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return workflow.ValidTransitions(ticket.Status), nil
}

// scheduleBreachChecks enqueues the two CHECK_SLA_BREACH jobs: one a lead
// interval before the due time when that moment is still ahead, one at the
// due time itself.
func (s *TicketService) scheduleBreachChecks(ticket *domain.Ticket) {
	if s.jobs == nil || ticket.DueAt == nil {
		return
	}
	dueAt := *ticket.DueAt
	payload := scheduler.CheckSLABreachPayload{TicketID: ticket.ID}

	if early := dueAt.Add(-s.slaCfg.BreachLead()); early.After(s.clock.Now()) {
		s.jobs.Enqueue(payload, early)
	}
	s.jobs.Enqueue(payload, dueAt)
}

func (s *TicketService) applyActions(ticket *domain.Ticket, actions []workflow.Action) {
	now := s.clock.Now()
	for _, action := range actions {
		switch action {
		case workflow.ActionSetResolvedAt:
			ticket.ResolvedAt = &now
		case workflow.ActionSetClosedAt:
			ticket.ClosedAt = &now
		case workflow.ActionClearResolvedAt:
			ticket.ResolvedAt = nil
		case workflow.ActionClearClosedAt:
			ticket.ClosedAt = nil
		}
	}
}

func (s *TicketService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) record(ctx context.Context, entry *domain.TicketEvent) error {
	if s.auditLog == nil {
		return nil
	}
	return s.auditLog.Create(ctx, entry)
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func actorID(actor *domain.User) *string {
	if actor == nil {
		return nil
	}
	return &actor.ID
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
