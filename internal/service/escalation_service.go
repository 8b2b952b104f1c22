package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/scheduler"
	"github.com/spec-kit/ticket-lifecycle/pkg/util"
)

// ErrNoEscalationTarget marks a team at the top of its escalation chain, or
// a ticket with no team at all. Surfaced as an operational alert, never
// swallowed.
var ErrNoEscalationTarget = errors.New("no escalation target configured")

// EscalationService consumes breach signals, walks the team escalation
// chain, and reassigns ticket ownership. It owns the CHECK_SLA_BREACH and
// AUTO_ESCALATE job handlers.
type EscalationService struct {
	tickets    repository.TicketRepository
	teams      repository.TeamRepository
	auditLog   repository.TicketEventRepository
	jobs       JobQueue
	dispatcher events.Dispatcher
	clock      scheduler.Clock
	logger     *zap.Logger
}

// EscalationDependencies bundles collaborators.
type EscalationDependencies struct {
	TicketRepo repository.TicketRepository
	TeamRepo   repository.TeamRepository
	AuditRepo  repository.TicketEventRepository
	Jobs       JobQueue
	Dispatcher events.Dispatcher
	Clock      scheduler.Clock
	Logger     *zap.Logger
}

// NewEscalationService creates the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	clock := deps.Clock
	if clock == nil {
		clock = scheduler.SystemClock()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationService{
		tickets:    deps.TicketRepo,
		teams:      deps.TeamRepo,
		auditLog:   deps.AuditRepo,
		jobs:       deps.Jobs,
		dispatcher: deps.Dispatcher,
		clock:      clock,
		logger:     logger,
	}
}

// RegisterHandlers binds the scheduler job types this service executes.
func (s *EscalationService) RegisterHandlers(sched *scheduler.Scheduler) {
	sched.RegisterHandler(scheduler.JobTypeCheckSLABreach, s.HandleCheckSLABreach)
	sched.RegisterHandler(scheduler.JobTypeAutoEscalate, s.HandleAutoEscalate)
}

// HandleCheckSLABreach evaluates one ticket's deadline. Tickets already
// resolved or closed are left alone regardless of how stale the deadline is.
func (s *EscalationService) HandleCheckSLABreach(ctx context.Context, job scheduler.Job) scheduler.Outcome {
	payload, ok := job.Payload.(scheduler.CheckSLABreachPayload)
	if !ok {
		return scheduler.Dead(fmt.Errorf("unexpected payload %T", job.Payload))
	}

	ticket, err := s.tickets.GetByID(ctx, payload.TicketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Ticket gone: terminal, safe to drop.
			return scheduler.Dead(fmt.Errorf("ticket %s no longer exists", payload.TicketID))
		}
		return scheduler.Retry(err)
	}

	if !ticket.Open() {
		return scheduler.Completed()
	}
	if ticket.DueAt == nil {
		s.logger.Warn("ticket has no due time, skipping breach check", zap.String("ticket_id", ticket.ID))
		return scheduler.Completed()
	}

	now := s.clock.Now()
	if !now.After(*ticket.DueAt) {
		// Early lead-time check before the deadline: nothing to report yet.
		return scheduler.Completed()
	}

	s.logger.Warn("sla breach detected",
		zap.String("ticket_id", ticket.ID),
		zap.String("external_key", ticket.ExternalKey),
		zap.Time("due_at", *ticket.DueAt))

	s.jobs.Enqueue(scheduler.SendNotificationPayload{
		Kind:     string(NotificationSLABreach),
		TicketID: ticket.ID,
		Message:  fmt.Sprintf("Ticket %s breached its SLA deadline (%s)", ticket.ExternalKey, ticket.DueAt.UTC().Format("2006-01-02 15:04 MST")),
	}, now)
	s.jobs.Enqueue(scheduler.AutoEscalatePayload{
		TicketID: ticket.ID,
		Reason:   "sla_breach",
	}, now)

	s.publish(ctx, events.Event{
		Type:     events.EventSLABreached,
		TicketID: ticket.ID,
		Payload: events.SLABreachedPayload{
			DueAt:      *ticket.DueAt,
			DetectedAt: now,
		},
	})
	return scheduler.Completed()
}

// HandleAutoEscalate executes an AUTO_ESCALATE job.
func (s *EscalationService) HandleAutoEscalate(ctx context.Context, job scheduler.Job) scheduler.Outcome {
	payload, ok := job.Payload.(scheduler.AutoEscalatePayload)
	if !ok {
		return scheduler.Dead(fmt.Errorf("unexpected payload %T", job.Payload))
	}

	if err := s.AutoEscalate(ctx, payload.TicketID, payload.Reason); err != nil {
		if errors.Is(err, ErrNoEscalationTarget) {
			return scheduler.Dead(err)
		}
		var domainErr *util.DomainError
		if errors.As(err, &domainErr) && domainErr.Code == "NOT_FOUND" {
			return scheduler.Dead(err)
		}
		return scheduler.Retry(err)
	}
	return scheduler.Completed()
}

// AutoEscalate moves a ticket to the next team in its escalation chain and
// clears the assignee so the receiving team can self-assign.
func (s *EscalationService) AutoEscalate(ctx context.Context, ticketID, reason string) error {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return util.MapError(err)
	}
	if !ticket.Open() {
		s.logger.Info("ticket no longer open, skipping escalation", zap.String("ticket_id", ticket.ID))
		return nil
	}
	if ticket.TeamID == nil {
		s.logger.Error("escalation impossible: ticket has no team",
			zap.String("ticket_id", ticket.ID),
			zap.String("reason", reason))
		return fmt.Errorf("ticket %s: %w", ticket.ID, ErrNoEscalationTarget)
	}

	team, err := s.teams.GetByID(ctx, *ticket.TeamID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return util.NewNotFound("team", map[string]any{"team_id": *ticket.TeamID})
		}
		return util.MapError(err)
	}
	if team.EscalationTeamID == nil {
		s.logger.Error("escalation impossible: team is top of chain",
			zap.String("ticket_id", ticket.ID),
			zap.String("team_id", team.ID),
			zap.String("team_name", team.Name),
			zap.String("reason", reason))
		return fmt.Errorf("team %s (%s): %w", team.Name, team.ID, ErrNoEscalationTarget)
	}

	next, err := s.teams.GetByID(ctx, *team.EscalationTeamID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return util.NewNotFound("team", map[string]any{"team_id": *team.EscalationTeamID})
		}
		return util.MapError(err)
	}
	if !next.IsActive {
		s.logger.Error("escalation impossible: next team inactive",
			zap.String("ticket_id", ticket.ID),
			zap.String("team_id", next.ID))
		return fmt.Errorf("team %s inactive: %w", next.ID, ErrNoEscalationTarget)
	}

	oldTeam := ticket.TeamID
	oldAssignee := ticket.AssigneeID
	ticket.TeamID = &next.ID
	ticket.AssigneeID = nil
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return util.MapError(err)
	}

	if s.auditLog != nil {
		if err := s.auditLog.Create(ctx, &domain.TicketEvent{
			TicketID:  ticket.ID,
			EventType: domain.EventTypeEscalated,
			OldValue:  map[string]any{"team_id": oldTeam, "assignee_id": oldAssignee},
			NewValue:  map[string]any{"team_id": next.ID},
			Description: fmt.Sprintf("auto-escalated from %s to %s (%s)",
				team.Name, next.Name, reason),
		}); err != nil {
			return util.MapError(err)
		}
	}

	s.jobs.Enqueue(scheduler.SendNotificationPayload{
		Kind:     string(NotificationTicketEscalated),
		TicketID: ticket.ID,
		Message:  fmt.Sprintf("Ticket %s was escalated to team %s (%s)", ticket.ExternalKey, next.Name, reason),
	}, s.clock.Now())

	s.publish(ctx, events.Event{
		Type:     events.EventTicketEscalated,
		TicketID: ticket.ID,
		Payload: events.TicketEscalatedPayload{
			FromTeamID: oldTeam,
			ToTeamID:   next.ID,
			Reason:     reason,
		},
	})
	s.logger.Info("ticket escalated",
		zap.String("ticket_id", ticket.ID),
		zap.Stringp("from_team", oldTeam),
		zap.String("to_team", next.ID),
		zap.String("reason", reason))
	return nil
}

func (s *EscalationService) publish(ctx context.Context, event events.Event) {
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
