package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/persistence"
	"github.com/spec-kit/ticket-lifecycle/internal/scheduler"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util"
)

type surveyFixture struct {
	service    *SurveyService
	surveys    *memSurveyRepo
	tickets    *memTicketRepo
	users      *memUserRepo
	channel    *memChannel
	jobs       *memJobs
	dispatcher events.Dispatcher
	clock      *fakeClock
}

func newSurveyFixture(t *testing.T) *surveyFixture {
	t.Helper()

	clock := newFakeClock(testStart)
	surveys := newMemSurveyRepo()
	tickets := newMemTicketRepo(clock)
	users := newMemUserRepo()
	channel := &memChannel{}
	jobs := &memJobs{}
	dispatcher := events.NewInMemoryDispatcher()

	users.put(domain.User{
		ID:             "user-requester",
		OrganizationID: "org-1",
		Name:           "Rae Customer",
		Email:          "rae@example.com",
		Role:           domain.RoleEndUser,
		Status:         domain.UserStatusActive,
	})

	svc := NewSurveyService(SurveyDependencies{
		SurveyRepo: surveys,
		TicketRepo: tickets,
		UserRepo:   users,
		Claims:     persistence.NewSurveyClaims(nil),
		Channel:    channel,
		Jobs:       jobs,
		Dispatcher: dispatcher,
		Clock:      clock,
		Config:     config.SurveyConfig{DelayMinutes: 30},
	})
	svc.Subscribe(dispatcher)

	return &surveyFixture{
		service:    svc,
		surveys:    surveys,
		tickets:    tickets,
		users:      users,
		channel:    channel,
		jobs:       jobs,
		dispatcher: dispatcher,
		clock:      clock,
	}
}

func (f *surveyFixture) seedTicket(t *testing.T, status domain.TicketStatus) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		ExternalKey:    "TCK-SURVEY1",
		OrganizationID: "org-1",
		RequesterID:    "user-requester",
		Title:          "broken keyboard",
		Description:    "keys are sticky",
		Status:         status,
		Priority:       domain.TicketPriorityP3,
		ApprovalStatus: domain.ApprovalStatusNone,
	}
	if status == domain.TicketStatusResolved {
		resolvedAt := f.clock.Now()
		ticket.ResolvedAt = &resolvedAt
	}
	require.NoError(t, f.tickets.Create(context.Background(), ticket))
	return ticket
}

func surveyJob(ticketID string) scheduler.Job {
	return scheduler.Job{
		ID:      "job-survey",
		Payload: scheduler.SendCSATSurveyPayload{TicketID: ticketID},
	}
}

func TestResolutionSchedulesSurvey(t *testing.T) {
	f := newSurveyFixture(t)
	ticket := f.seedTicket(t, domain.TicketStatusResolved)

	err := f.dispatcher.Publish(context.Background(), events.Event{
		ID:       "evt-1",
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: domain.TicketStatusInProgress,
			NewStatus: domain.TicketStatusResolved,
		},
	})
	require.NoError(t, err)

	jobs := f.jobs.ofType(scheduler.JobTypeSendCSATSurvey)
	require.Len(t, jobs, 1)
	assert.Equal(t, testStart.Add(30*time.Minute), jobs[0].ScheduledFor)
}

func TestNonResolutionTransitionsScheduleNothing(t *testing.T) {
	f := newSurveyFixture(t)
	ticket := f.seedTicket(t, domain.TicketStatusInProgress)

	err := f.dispatcher.Publish(context.Background(), events.Event{
		ID:       "evt-1",
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: domain.TicketStatusInProgress,
			NewStatus: domain.TicketStatusOnHold,
		},
	})
	require.NoError(t, err)
	assert.Empty(t, f.jobs.all())
}

func TestSendSurveyToRequester(t *testing.T) {
	f := newSurveyFixture(t)
	ticket := f.seedTicket(t, domain.TicketStatusResolved)

	f.clock.Advance(30 * time.Minute)
	outcome := f.service.HandleSendCSATSurvey(context.Background(), surveyJob(ticket.ID))
	assert.Equal(t, scheduler.DispositionCompleted, outcome.Disposition)

	messages := f.channel.messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "rae@example.com", messages[0].To)
	assert.Contains(t, messages[0].Subject, ticket.ExternalKey)

	// The survey exists, carries a token, and is marked sent.
	require.Equal(t, 1, f.surveys.seq)
	for token, survey := range f.surveys.surveys {
		assert.NotEmpty(t, token)
		assert.NotNil(t, survey.SentAt)
		assert.Nil(t, survey.RespondedAt)
	}
}

func TestReopenedTicketGetsNoSurvey(t *testing.T) {
	f := newSurveyFixture(t)
	ticket := f.seedTicket(t, domain.TicketStatusInProgress)

	outcome := f.service.HandleSendCSATSurvey(context.Background(), surveyJob(ticket.ID))
	assert.Equal(t, scheduler.DispositionCompleted, outcome.Disposition)
	assert.Empty(t, f.channel.messages())
	assert.Equal(t, 0, f.surveys.seq)
}

func TestSendSurveyMissingTicketIsDead(t *testing.T) {
	f := newSurveyFixture(t)

	outcome := f.service.HandleSendCSATSurvey(context.Background(), surveyJob("ticket-missing"))
	assert.Equal(t, scheduler.DispositionDead, outcome.Disposition)
}

func TestSendSurveyChannelFailureRetries(t *testing.T) {
	f := newSurveyFixture(t)
	ticket := f.seedTicket(t, domain.TicketStatusResolved)
	f.channel.fail = true

	outcome := f.service.HandleSendCSATSurvey(context.Background(), surveyJob(ticket.ID))
	assert.Equal(t, scheduler.DispositionRetry, outcome.Disposition)
}

func (f *surveyFixture) sendSurvey(t *testing.T) string {
	t.Helper()
	ticket := f.seedTicket(t, domain.TicketStatusResolved)
	outcome := f.service.HandleSendCSATSurvey(context.Background(), surveyJob(ticket.ID))
	require.Equal(t, scheduler.DispositionCompleted, outcome.Disposition)
	for token := range f.surveys.surveys {
		return token
	}
	t.Fatal("no survey created")
	return ""
}

func TestRespondToSurvey(t *testing.T) {
	f := newSurveyFixture(t)
	token := f.sendSurvey(t)

	survey, err := f.service.RespondToSurvey(context.Background(), token, 4)
	require.NoError(t, err)
	require.NotNil(t, survey.Score)
	assert.Equal(t, 4, *survey.Score)
	assert.NotNil(t, survey.RespondedAt)
}

func TestSecondResponseIsRejected(t *testing.T) {
	f := newSurveyFixture(t)
	token := f.sendSurvey(t)

	_, err := f.service.RespondToSurvey(context.Background(), token, 5)
	require.NoError(t, err)

	_, err = f.service.RespondToSurvey(context.Background(), token, 1)
	require.Error(t, err)

	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "CONFLICT", domainErr.Code)
}

func TestResponseScoreRange(t *testing.T) {
	f := newSurveyFixture(t)
	token := f.sendSurvey(t)

	for _, score := range []int{0, 6, -1} {
		_, err := f.service.RespondToSurvey(context.Background(), token, score)
		assert.Error(t, err, "score %d must be rejected", score)
	}

	_, err := f.service.RespondToSurvey(context.Background(), token, 1)
	assert.NoError(t, err)
}

func TestRespondUnknownToken(t *testing.T) {
	f := newSurveyFixture(t)

	_, err := f.service.RespondToSurvey(context.Background(), "no-such-token", 3)
	require.Error(t, err)

	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
}
