package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/notification"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/scheduler"
)

// NotificationKind selects the recipient resolution policy.
type NotificationKind string

const (
	NotificationTicketCreated   NotificationKind = "TICKET_CREATED"
	NotificationTicketAssigned  NotificationKind = "TICKET_ASSIGNED"
	NotificationSLABreach       NotificationKind = "SLA_BREACH"
	NotificationTicketEscalated NotificationKind = "TICKET_ESCALATED"
	NotificationCSATSurvey      NotificationKind = "CSAT_SURVEY"
)

// NotificationService resolves the recipient set for a notification kind and
// fans messages out through the outbound channel.
type NotificationService struct {
	tickets repository.TicketRepository
	users   repository.UserRepository
	channel notification.Channel
	logger  *zap.Logger
}

// NotificationDependencies bundles collaborators.
type NotificationDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Channel    notification.Channel
	Logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		tickets: deps.TicketRepo,
		users:   deps.UserRepo,
		channel: deps.Channel,
		logger:  logger,
	}
}

// RegisterHandlers binds the SEND_NOTIFICATION job type.
func (n *NotificationService) RegisterHandlers(sched *scheduler.Scheduler) {
	sched.RegisterHandler(scheduler.JobTypeSendNotification, n.HandleSendNotification)
}

// Subscribe wires the synchronous domain events that notify immediately.
func (n *NotificationService) Subscribe(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventTicketCreated, n.onTicketEvent(NotificationTicketCreated, "Your ticket was created"))
	dispatcher.Subscribe(events.EventTicketAssigned, n.onTicketEvent(NotificationTicketAssigned, "A ticket was assigned to you"))
}

func (n *NotificationService) onTicketEvent(kind NotificationKind, message string) events.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		if err := n.Notify(ctx, kind, event.TicketID, message, nil); err != nil {
			n.logger.Error("notification failed",
				zap.String("kind", string(kind)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
		}
		return nil
	}
}

// HandleSendNotification executes a SEND_NOTIFICATION job.
func (n *NotificationService) HandleSendNotification(ctx context.Context, job scheduler.Job) scheduler.Outcome {
	payload, ok := job.Payload.(scheduler.SendNotificationPayload)
	if !ok {
		return scheduler.Dead(fmt.Errorf("unexpected payload %T", job.Payload))
	}
	if err := n.Notify(ctx, NotificationKind(payload.Kind), payload.TicketID, payload.Message, payload.UserIDs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scheduler.Dead(fmt.Errorf("ticket %s no longer exists", payload.TicketID))
		}
		return scheduler.Retry(err)
	}
	return scheduler.Completed()
}

// Notify resolves recipients for the kind and sends one message each. A send
// failure for one recipient is logged and does not block the rest; only
// resolution failures (repository errors) propagate.
func (n *NotificationService) Notify(ctx context.Context, kind NotificationKind, ticketID, message string, explicitUserIDs []string) error {
	ticket, err := n.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}

	recipients, err := n.resolveRecipients(ctx, kind, ticket, explicitUserIDs)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		// A team without ADMIN/AGENT members, or an unassigned ticket: a
		// configuration gap worth surfacing in logs.
		n.logger.Warn("notification resolved zero recipients",
			zap.String("kind", string(kind)),
			zap.String("ticket_id", ticket.ID))
		return nil
	}

	subject := fmt.Sprintf("[%s] %s", ticket.ExternalKey, subjectFor(kind))
	for _, recipient := range recipients {
		if !recipient.Active() {
			continue
		}
		if err := n.channel.Send(ctx, recipient.Email, subject, message); err != nil {
			n.logger.Error("send failed",
				zap.String("kind", string(kind)),
				zap.String("ticket_id", ticket.ID),
				zap.String("recipient", recipient.ID),
				zap.Error(err))
			continue
		}
		n.logger.Debug("notification sent",
			zap.String("kind", string(kind)),
			zap.String("ticket_id", ticket.ID),
			zap.String("recipient", recipient.ID))
	}
	return nil
}

func (n *NotificationService) resolveRecipients(ctx context.Context, kind NotificationKind, ticket *domain.Ticket, explicitUserIDs []string) ([]domain.User, error) {
	// Explicit ids override any policy.
	if len(explicitUserIDs) > 0 {
		recipients := make([]domain.User, 0, len(explicitUserIDs))
		for _, id := range explicitUserIDs {
			user, err := n.users.GetByID(ctx, id)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					n.logger.Warn("explicit recipient not found", zap.String("user_id", id))
					continue
				}
				return nil, err
			}
			recipients = append(recipients, *user)
		}
		return recipients, nil
	}

	switch kind {
	case NotificationTicketCreated, NotificationTicketAssigned:
		if ticket.AssigneeID == nil {
			return nil, nil
		}
		user, err := n.users.GetByID(ctx, *ticket.AssigneeID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, err
		}
		return []domain.User{*user}, nil

	case NotificationSLABreach, NotificationTicketEscalated:
		if ticket.TeamID == nil {
			return nil, nil
		}
		return n.users.ListActiveByTeam(ctx, *ticket.TeamID, domain.RoleAdmin, domain.RoleAgent)
	}

	return nil, nil
}

func subjectFor(kind NotificationKind) string {
	switch kind {
	case NotificationTicketCreated:
		return "Ticket created"
	case NotificationTicketAssigned:
		return "Ticket assigned"
	case NotificationSLABreach:
		return "SLA breached"
	case NotificationTicketEscalated:
		return "Ticket escalated"
	case NotificationCSATSurvey:
		return "How did we do?"
	}
	return "Ticket update"
}
