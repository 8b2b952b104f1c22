package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/notification"
	"github.com/spec-kit/ticket-lifecycle/internal/persistence"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/scheduler"
	"github.com/spec-kit/ticket-lifecycle/pkg/util"
)

// SurveyService schedules CSAT surveys after resolution and records the
// single allowed response per survey.
type SurveyService struct {
	surveys    repository.SurveyRepository
	tickets    repository.TicketRepository
	users      repository.UserRepository
	claims     *persistence.SurveyClaims
	channel    notification.Channel
	jobs       JobQueue
	dispatcher events.Dispatcher
	clock      scheduler.Clock
	cfg        config.SurveyConfig
	logger     *zap.Logger
}

// SurveyDependencies bundles collaborators.
type SurveyDependencies struct {
	SurveyRepo repository.SurveyRepository
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Claims     *persistence.SurveyClaims
	Channel    notification.Channel
	Jobs       JobQueue
	Dispatcher events.Dispatcher
	Clock      scheduler.Clock
	Config     config.SurveyConfig
	Logger     *zap.Logger
}

// NewSurveyService creates the service.
func NewSurveyService(deps SurveyDependencies) *SurveyService {
	clock := deps.Clock
	if clock == nil {
		clock = scheduler.SystemClock()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SurveyService{
		surveys:    deps.SurveyRepo,
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		claims:     deps.Claims,
		channel:    deps.Channel,
		jobs:       deps.Jobs,
		dispatcher: deps.Dispatcher,
		clock:      clock,
		cfg:        deps.Config,
		logger:     logger,
	}
}

// RegisterHandlers binds the SEND_CSAT_SURVEY job type.
func (s *SurveyService) RegisterHandlers(sched *scheduler.Scheduler) {
	sched.RegisterHandler(scheduler.JobTypeSendCSATSurvey, s.HandleSendCSATSurvey)
}

// Subscribe schedules a survey whenever a ticket reaches RESOLVED.
func (s *SurveyService) Subscribe(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventTicketStatusChanged, func(ctx context.Context, event events.Event) error {
		payload, ok := event.Payload.(events.TicketStatusChangedPayload)
		if !ok || payload.NewStatus != domain.TicketStatusResolved {
			return nil
		}
		jobID := s.jobs.Enqueue(
			scheduler.SendCSATSurveyPayload{TicketID: event.TicketID},
			s.clock.Now().Add(s.cfg.Delay()),
		)
		s.logger.Info("survey scheduled",
			zap.String("ticket_id", event.TicketID),
			zap.String("job_id", jobID))
		return nil
	})
}

// HandleSendCSATSurvey sends the survey if the ticket is still resolved when
// the job fires. A ticket reopened during the delay window gets no survey.
func (s *SurveyService) HandleSendCSATSurvey(ctx context.Context, job scheduler.Job) scheduler.Outcome {
	payload, ok := job.Payload.(scheduler.SendCSATSurveyPayload)
	if !ok {
		return scheduler.Dead(fmt.Errorf("unexpected payload %T", job.Payload))
	}

	ticket, err := s.tickets.GetByID(ctx, payload.TicketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scheduler.Dead(fmt.Errorf("ticket %s no longer exists", payload.TicketID))
		}
		return scheduler.Retry(err)
	}
	if ticket.Status != domain.TicketStatusResolved && ticket.Status != domain.TicketStatusClosed {
		s.logger.Info("survey skipped, ticket no longer resolved",
			zap.String("ticket_id", ticket.ID),
			zap.String("status", string(ticket.Status)))
		return scheduler.Completed()
	}

	requester, err := s.users.GetByID(ctx, ticket.RequesterID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scheduler.Dead(fmt.Errorf("requester %s no longer exists", ticket.RequesterID))
		}
		return scheduler.Retry(err)
	}

	survey := &domain.Survey{
		TicketID: ticket.ID,
		Token:    uuid.NewString(),
	}
	if err := s.surveys.Create(ctx, survey); err != nil {
		return scheduler.Retry(err)
	}

	subject := fmt.Sprintf("[%s] %s", ticket.ExternalKey, subjectFor(NotificationCSATSurvey))
	body := fmt.Sprintf("Your ticket %q was resolved. Tell us how we did (survey token %s, score %d to %d).",
		ticket.Title, survey.Token, domain.SurveyScoreMin, domain.SurveyScoreMax)
	if err := s.channel.Send(ctx, requester.Email, subject, body); err != nil {
		return scheduler.Retry(err)
	}

	sentAt := s.clock.Now().UTC()
	if err := s.surveys.MarkSent(ctx, survey.ID, sentAt); err != nil {
		return scheduler.Retry(err)
	}

	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSurveySent,
		TicketID:  ticket.ID,
		Timestamp: sentAt,
		Payload:   events.SurveySentPayload{SurveyID: survey.ID},
	})

	s.logger.Info("survey sent",
		zap.String("ticket_id", ticket.ID),
		zap.String("survey_id", survey.ID))
	return scheduler.Completed()
}

// RespondToSurvey records the requester's score. Each survey accepts exactly
// one response; later attempts get a conflict.
func (s *SurveyService) RespondToSurvey(ctx context.Context, token string, score int) (*domain.Survey, error) {
	if !domain.ValidSurveyScore(score) {
		return nil, util.NewValidationError("score out of range", map[string]any{
			"min": domain.SurveyScoreMin,
			"max": domain.SurveyScoreMax,
		})
	}

	survey, err := s.surveys.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("survey", nil)
		}
		return nil, util.NewInternalError(err)
	}
	if survey.Answered() {
		return nil, util.NewConflict("survey already answered", nil)
	}

	claimed, err := s.claims.Claim(ctx, token)
	if err != nil {
		return nil, util.NewInternalError(err)
	}
	if !claimed {
		return nil, util.NewConflict("survey already answered", nil)
	}

	respondedAt := s.clock.Now().UTC()
	if err := s.surveys.RecordResponse(ctx, token, score, respondedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewConflict("survey already answered", nil)
		}
		return nil, util.NewInternalError(err)
	}

	survey.Score = &score
	survey.RespondedAt = &respondedAt

	s.logger.Info("survey response recorded",
		zap.String("survey_id", survey.ID),
		zap.Int("score", score))
	return survey, nil
}
