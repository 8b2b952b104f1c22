package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/scheduler"
)

type notificationFixture struct {
	service *NotificationService
	tickets *memTicketRepo
	users   *memUserRepo
	channel *memChannel
}

func newNotificationFixture(t *testing.T) *notificationFixture {
	t.Helper()

	tickets := newMemTicketRepo(nil)
	users := newMemUserRepo()
	channel := &memChannel{}

	teamID := "team-1"
	users.put(domain.User{
		ID:             "user-admin",
		OrganizationID: "org-1",
		Name:           "Ada Admin",
		Email:          "ada@example.com",
		Role:           domain.RoleAdmin,
		TeamID:         &teamID,
		Status:         domain.UserStatusActive,
	})
	users.put(domain.User{
		ID:             "user-agent",
		OrganizationID: "org-1",
		Name:           "Ali Agent",
		Email:          "ali@example.com",
		Role:           domain.RoleAgent,
		TeamID:         &teamID,
		Status:         domain.UserStatusActive,
	})
	users.put(domain.User{
		ID:             "user-suspended",
		OrganizationID: "org-1",
		Name:           "Sam Suspended",
		Email:          "sam@example.com",
		Role:           domain.RoleAgent,
		TeamID:         &teamID,
		Status:         domain.UserStatusSuspended,
	})
	users.put(domain.User{
		ID:             "user-requester",
		OrganizationID: "org-1",
		Name:           "Rae Customer",
		Email:          "rae@example.com",
		Role:           domain.RoleEndUser,
		Status:         domain.UserStatusActive,
	})

	svc := NewNotificationService(NotificationDependencies{
		TicketRepo: tickets,
		UserRepo:   users,
		Channel:    channel,
	})

	return &notificationFixture{
		service: svc,
		tickets: tickets,
		users:   users,
		channel: channel,
	}
}

func (f *notificationFixture) seedTicket(t *testing.T, mutate func(*domain.Ticket)) *domain.Ticket {
	t.Helper()
	teamID := "team-1"
	agentID := "user-agent"
	ticket := &domain.Ticket{
		ExternalKey:    "TCK-NOTIFY1",
		OrganizationID: "org-1",
		RequesterID:    "user-requester",
		TeamID:         &teamID,
		AssigneeID:     &agentID,
		Title:          "vpn flapping",
		Description:    "drops every few minutes",
		Status:         domain.TicketStatusInProgress,
		Priority:       domain.TicketPriorityP2,
		ApprovalStatus: domain.ApprovalStatusNone,
	}
	if mutate != nil {
		mutate(ticket)
	}
	require.NoError(t, f.tickets.Create(context.Background(), ticket))
	return ticket
}

func TestAssignedNotificationGoesToAssignee(t *testing.T) {
	f := newNotificationFixture(t)
	ticket := f.seedTicket(t, nil)

	err := f.service.Notify(context.Background(), NotificationTicketAssigned, ticket.ID, "you have work", nil)
	require.NoError(t, err)

	messages := f.channel.messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "ali@example.com", messages[0].To)
	assert.Contains(t, messages[0].Subject, "TCK-NOTIFY1")
}

func TestBreachNotificationGoesToTeamStaff(t *testing.T) {
	f := newNotificationFixture(t)
	ticket := f.seedTicket(t, nil)

	err := f.service.Notify(context.Background(), NotificationSLABreach, ticket.ID, "deadline missed", nil)
	require.NoError(t, err)

	assert.True(t, f.channel.sentTo("ada@example.com"))
	assert.True(t, f.channel.sentTo("ali@example.com"))
	assert.False(t, f.channel.sentTo("sam@example.com"), "suspended members are skipped")
	assert.False(t, f.channel.sentTo("rae@example.com"), "end users are not on the team escalation list")
}

func TestExplicitRecipientsOverridePolicy(t *testing.T) {
	f := newNotificationFixture(t)
	ticket := f.seedTicket(t, nil)

	err := f.service.Notify(context.Background(), NotificationSLABreach, ticket.ID, "heads up",
		[]string{"user-requester"})
	require.NoError(t, err)

	messages := f.channel.messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "rae@example.com", messages[0].To)
}

func TestUnassignedTicketYieldsNoRecipients(t *testing.T) {
	f := newNotificationFixture(t)
	ticket := f.seedTicket(t, func(ticket *domain.Ticket) {
		ticket.AssigneeID = nil
	})

	err := f.service.Notify(context.Background(), NotificationTicketAssigned, ticket.ID, "anyone there", nil)
	require.NoError(t, err)
	assert.Empty(t, f.channel.messages())
}

func TestSendFailureDoesNotBlockOtherRecipients(t *testing.T) {
	f := newNotificationFixture(t)
	ticket := f.seedTicket(t, nil)
	f.channel.fail = true

	err := f.service.Notify(context.Background(), NotificationSLABreach, ticket.ID, "deadline missed", nil)
	assert.NoError(t, err, "send failures are logged, not propagated")
}

func TestHandleSendNotification(t *testing.T) {
	f := newNotificationFixture(t)
	ticket := f.seedTicket(t, nil)

	outcome := f.service.HandleSendNotification(context.Background(), scheduler.Job{
		ID: "job-1",
		Payload: scheduler.SendNotificationPayload{
			Kind:     string(NotificationTicketAssigned),
			TicketID: ticket.ID,
			Message:  "assigned to you",
		},
	})
	assert.Equal(t, scheduler.DispositionCompleted, outcome.Disposition)
	assert.Len(t, f.channel.messages(), 1)

	outcome = f.service.HandleSendNotification(context.Background(), scheduler.Job{
		ID: "job-2",
		Payload: scheduler.SendNotificationPayload{
			Kind:     string(NotificationTicketAssigned),
			TicketID: "ticket-missing",
		},
	})
	assert.Equal(t, scheduler.DispositionDead, outcome.Disposition)
}

func TestSubscribeNotifiesOnDomainEvents(t *testing.T) {
	f := newNotificationFixture(t)
	ticket := f.seedTicket(t, nil)

	dispatcher := events.NewInMemoryDispatcher()
	f.service.Subscribe(dispatcher)

	err := dispatcher.Publish(context.Background(), events.Event{
		ID:       "evt-1",
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
	})
	require.NoError(t, err)

	messages := f.channel.messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "ali@example.com", messages[0].To)
}
