package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/scheduler"
	"github.com/spec-kit/ticket-lifecycle/internal/sla"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testSLAConfig() config.SLAConfig {
	return config.SLAConfig{
		ResolutionMinutes: map[string]int{
			"P1": 240, "P2": 480, "P3": 2880, "P4": 7200, "P5": 14400,
		},
		FirstResponseMinutes: map[string]int{
			"P1": 15, "P2": 60, "P3": 240, "P4": 480, "P5": 1440,
		},
		BreachLeadMinutes: 60,
	}
}

type ticketFixture struct {
	service   *TicketService
	tickets   *memTicketRepo
	teams     *memTeamRepo
	users     *memUserRepo
	auditLog  *memEventRepo
	jobs      *memJobs
	clock     *fakeClock
	requester *domain.User
	agent     *domain.User
}

func newTicketFixture(t *testing.T) *ticketFixture {
	t.Helper()

	table, err := sla.TableFromConfig(testSLAConfig())
	require.NoError(t, err)
	resolver, err := sla.NewResolver(table, nil)
	require.NoError(t, err)

	clock := newFakeClock(testStart)
	tickets := newMemTicketRepo(clock)
	teams := newMemTeamRepo()
	users := newMemUserRepo()
	auditLog := &memEventRepo{}
	jobs := &memJobs{}

	teamID := "team-1"
	requester := domain.User{
		ID:             "user-requester",
		OrganizationID: "org-1",
		Name:           "Rae Customer",
		Email:          "rae@example.com",
		Role:           domain.RoleEndUser,
		Status:         domain.UserStatusActive,
	}
	agent := domain.User{
		ID:             "user-agent",
		OrganizationID: "org-1",
		Name:           "Ali Agent",
		Email:          "ali@example.com",
		Role:           domain.RoleAgent,
		TeamID:         &teamID,
		Status:         domain.UserStatusActive,
	}
	users.put(requester)
	users.put(agent)
	teams.put(domain.Team{
		ID:             teamID,
		OrganizationID: "org-1",
		Name:           "Tier 1",
		IsActive:       true,
	})

	svc := NewTicketService(TicketDependencies{
		TicketRepo: tickets,
		TeamRepo:   teams,
		UserRepo:   users,
		AuditRepo:  auditLog,
		Resolver:   resolver,
		Jobs:       jobs,
		Dispatcher: events.NewInMemoryDispatcher(),
		Clock:      clock,
		SLAConfig:  testSLAConfig(),
	})

	return &ticketFixture{
		service:   svc,
		tickets:   tickets,
		teams:     teams,
		users:     users,
		auditLog:  auditLog,
		jobs:      jobs,
		clock:     clock,
		requester: &requester,
		agent:     &agent,
	}
}

func (f *ticketFixture) createTicket(t *testing.T, priority domain.TicketPriority) *domain.Ticket {
	t.Helper()
	teamID := "team-1"
	ticket, err := f.service.CreateTicket(context.Background(), f.requester, TicketCreateInput{
		TeamID:      &teamID,
		Title:       "printer on fire",
		Description: "smoke coming out of tray 2",
		Priority:    priority,
	})
	require.NoError(t, err)
	return ticket
}

func TestCreateTicketComputesDeadlinesAndSchedulesChecks(t *testing.T) {
	f := newTicketFixture(t)

	ticket := f.createTicket(t, domain.TicketPriorityP3)

	assert.Equal(t, domain.TicketStatusNew, ticket.Status)
	assert.Equal(t, domain.TicketPriorityP3, ticket.Priority)
	assert.NotEmpty(t, ticket.ExternalKey)

	require.NotNil(t, ticket.DueAt)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), *ticket.DueAt)
	require.NotNil(t, ticket.FirstResponseDueAt)
	assert.Equal(t, testStart.Add(240*time.Minute), *ticket.FirstResponseDueAt)

	checks := f.jobs.ofType(scheduler.JobTypeCheckSLABreach)
	require.Len(t, checks, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 23, 0, 0, 0, time.UTC), checks[0].ScheduledFor)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), checks[1].ScheduledFor)

	created := f.auditLog.ofType(domain.EventTypeCreated)
	require.Len(t, created, 1)
	require.NotNil(t, created[0].ActorID)
	assert.Equal(t, f.requester.ID, *created[0].ActorID)
}

func TestCreateTicketDefaultsPriority(t *testing.T) {
	f := newTicketFixture(t)

	ticket, err := f.service.CreateTicket(context.Background(), f.requester, TicketCreateInput{
		Title:       "slow laptop",
		Description: "spinning cursor all day",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityP3, ticket.Priority)
}

func TestCreateTicketRejectsUnknownPriority(t *testing.T) {
	f := newTicketFixture(t)

	_, err := f.service.CreateTicket(context.Background(), f.requester, TicketCreateInput{
		Title:       "x",
		Description: "y",
		Priority:    domain.TicketPriority("P9"),
	})
	assert.Error(t, err)
}

func TestUpdateStatusHappyPath(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityP2)

	ticket, err := f.service.UpdateStatus(context.Background(), f.agent, ticket.ID, domain.TicketStatusTriage, "")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusTriage, ticket.Status)

	// Starting work needs an assignee.
	_, err = f.service.UpdateStatus(context.Background(), f.agent, ticket.ID, domain.TicketStatusInProgress, "")
	assert.Error(t, err)

	_, err = f.service.AssignTicket(context.Background(), f.agent, ticket.ID, f.agent.ID)
	require.NoError(t, err)

	ticket, err = f.service.UpdateStatus(context.Background(), f.agent, ticket.ID, domain.TicketStatusInProgress, "")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)

	ticket, err = f.service.UpdateStatus(context.Background(), f.agent, ticket.ID, domain.TicketStatusResolved, "replaced toner")
	require.NoError(t, err)
	require.NotNil(t, ticket.ResolvedAt)
	assert.Equal(t, f.clock.Now(), *ticket.ResolvedAt)

	changes := f.auditLog.ofType(domain.EventTypeStatusChange)
	assert.Len(t, changes, 3)
}

func TestRejectedTransitionWritesNoAudit(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityP2)

	_, err := f.service.UpdateStatus(context.Background(), f.agent, ticket.ID, domain.TicketStatusClosed, "")
	require.Error(t, err)

	assert.Empty(t, f.auditLog.ofType(domain.EventTypeStatusChange))

	stored, err := f.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNew, stored.Status)
}

func TestReopenClearsTimestamps(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityP2)

	_, err := f.service.AssignTicket(context.Background(), f.agent, ticket.ID, f.agent.ID)
	require.NoError(t, err)
	for _, status := range []domain.TicketStatus{
		domain.TicketStatusTriage,
		domain.TicketStatusInProgress,
		domain.TicketStatusResolved,
		domain.TicketStatusClosed,
	} {
		ticket, err = f.service.UpdateStatus(context.Background(), f.agent, ticket.ID, status, "")
		require.NoError(t, err)
	}
	require.NotNil(t, ticket.ResolvedAt)
	require.NotNil(t, ticket.ClosedAt)

	ticket, err = f.service.UpdateStatus(context.Background(), f.agent, ticket.ID, domain.TicketStatusInProgress, "customer called back")
	require.NoError(t, err)
	assert.Nil(t, ticket.ResolvedAt)
	assert.Nil(t, ticket.ClosedAt)
	assert.True(t, ticket.Open())
}

func TestApprovalFlow(t *testing.T) {
	f := newTicketFixture(t)
	teamID := "team-1"
	ticket, err := f.service.CreateTicket(context.Background(), f.requester, TicketCreateInput{
		TeamID:           &teamID,
		Title:            "new laptop",
		Description:      "for the new hire",
		Priority:         domain.TicketPriorityP4,
		RequiresApproval: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusPending, ticket.ApprovalStatus)

	ticket, err = f.service.UpdateStatus(context.Background(), f.agent, ticket.ID, domain.TicketStatusWaitingApproval, "")
	require.NoError(t, err)

	// Leaving WAITING_APPROVAL requires a decision.
	_, err = f.service.UpdateStatus(context.Background(), f.agent, ticket.ID, domain.TicketStatusInProgress, "")
	require.Error(t, err)

	_, err = f.service.SetApproval(context.Background(), f.agent, ticket.ID, domain.ApprovalStatusApproved)
	require.NoError(t, err)

	ticket, err = f.service.UpdateStatus(context.Background(), f.agent, ticket.ID, domain.TicketStatusInProgress, "")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
}

func TestUpdatePriorityRecomputesFromCreation(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityP3)
	f.jobs.reset()

	// Two hours pass before the bump; the new deadline still counts from
	// creation, not from the priority change.
	f.clock.Advance(2 * time.Hour)

	ticket, err := f.service.UpdatePriority(context.Background(), f.agent, ticket.ID, domain.TicketPriorityP1)
	require.NoError(t, err)
	require.NotNil(t, ticket.DueAt)
	assert.Equal(t, testStart.Add(240*time.Minute), *ticket.DueAt)

	checks := f.jobs.ofType(scheduler.JobTypeCheckSLABreach)
	require.Len(t, checks, 2)
	assert.Equal(t, testStart.Add(180*time.Minute), checks[0].ScheduledFor)
	assert.Equal(t, testStart.Add(240*time.Minute), checks[1].ScheduledFor)
}

func TestUpdatePriorityNoOpWhenUnchanged(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityP3)
	f.jobs.reset()

	_, err := f.service.UpdatePriority(context.Background(), f.agent, ticket.ID, domain.TicketPriorityP3)
	require.NoError(t, err)
	assert.Empty(t, f.jobs.all())
	assert.Empty(t, f.auditLog.ofType(domain.EventTypePriorityChange))
}

func TestPastLeadCheckIsSkipped(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityP3)
	f.jobs.reset()

	// Bumping to P1 five hours in puts the recomputed deadline (creation +
	// 240m) in the past; the lead-time slot is skipped and only the due-time
	// check lands, immediately due.
	f.clock.Advance(5 * time.Hour)
	ticket, err := f.service.UpdatePriority(context.Background(), f.agent, ticket.ID, domain.TicketPriorityP1)
	require.NoError(t, err)
	require.NotNil(t, ticket.DueAt)
	assert.Equal(t, testStart.Add(240*time.Minute), *ticket.DueAt)

	checks := f.jobs.ofType(scheduler.JobTypeCheckSLABreach)
	require.Len(t, checks, 1)
	assert.Equal(t, *ticket.DueAt, checks[0].ScheduledFor)
}

func TestAssignTicketValidation(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityP3)

	// End users cannot be assignees.
	_, err := f.service.AssignTicket(context.Background(), f.agent, ticket.ID, f.requester.ID)
	assert.Error(t, err)

	// Suspended agents cannot be assignees.
	suspended := *f.agent
	suspended.ID = "user-suspended"
	suspended.Status = domain.UserStatusSuspended
	f.users.put(suspended)
	_, err = f.service.AssignTicket(context.Background(), f.agent, ticket.ID, suspended.ID)
	assert.Error(t, err)

	_, err = f.service.AssignTicket(context.Background(), f.agent, ticket.ID, "user-missing")
	assert.Error(t, err)
}

func TestValidTransitionsFor(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.createTicket(t, domain.TicketPriorityP3)

	transitions, err := f.service.ValidTransitionsFor(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.TicketStatus{
		domain.TicketStatusTriage,
		domain.TicketStatusWaitingApproval,
		domain.TicketStatusCanceled,
	}, transitions)
}
