package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/scheduler"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type enqueuedJob struct {
	Payload      scheduler.JobPayload
	ScheduledFor time.Time
}

type memJobs struct {
	mu   sync.Mutex
	jobs []enqueuedJob
	next int
}

func (q *memJobs) Enqueue(payload scheduler.JobPayload, scheduledFor time.Time) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, enqueuedJob{Payload: payload, ScheduledFor: scheduledFor})
	q.next++
	return fmt.Sprintf("job-%d", q.next)
}

func (q *memJobs) all() []enqueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]enqueuedJob, len(q.jobs))
	copy(out, q.jobs)
	return out
}

func (q *memJobs) ofType(jobType scheduler.JobType) []enqueuedJob {
	out := []enqueuedJob{}
	for _, job := range q.all() {
		if job.Payload.JobType() == jobType {
			out = append(out, job)
		}
	}
	return out
}

func (q *memJobs) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = nil
}

type memTicketRepo struct {
	mu      sync.Mutex
	clock   scheduler.Clock
	tickets map[string]*domain.Ticket
	seq     int
}

func newMemTicketRepo(clock scheduler.Clock) *memTicketRepo {
	if clock == nil {
		clock = scheduler.SystemClock()
	}
	return &memTicketRepo{clock: clock, tickets: make(map[string]*domain.Ticket)}
}

func (r *memTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if ticket.ID == "" {
		ticket.ID = fmt.Sprintf("ticket-%d", r.seq)
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = r.clock.Now()
	}
	ticket.UpdatedAt = ticket.CreatedAt
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *memTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *memTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (r *memTicketRepo) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.ExternalKey == key {
			clone := *ticket
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Ticket{}
	for _, ticket := range r.tickets {
		if filter.OrganizationID != nil && ticket.OrganizationID != *filter.OrganizationID {
			continue
		}
		if filter.RequesterID != nil && ticket.RequesterID != *filter.RequesterID {
			continue
		}
		out = append(out, *ticket)
	}
	return out, nil
}

type memTeamRepo struct {
	mu    sync.Mutex
	teams map[string]*domain.Team
}

func newMemTeamRepo() *memTeamRepo {
	return &memTeamRepo{teams: make(map[string]*domain.Team)}
}

func (r *memTeamRepo) put(team domain.Team) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teams[team.ID] = &team
}

func (r *memTeamRepo) Create(ctx context.Context, team *domain.Team) error {
	r.put(*team)
	return nil
}

func (r *memTeamRepo) Update(ctx context.Context, team *domain.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teams[team.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *team
	r.teams[team.ID] = &clone
	return nil
}

func (r *memTeamRepo) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	team, ok := r.teams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *team
	return &clone, nil
}

func (r *memTeamRepo) ListByOrganization(ctx context.Context, organizationID string) ([]domain.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Team{}
	for _, team := range r.teams {
		if team.OrganizationID == organizationID {
			out = append(out, *team)
		}
	}
	return out, nil
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*domain.User)}
}

func (r *memUserRepo) put(user domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = &user
}

func (r *memUserRepo) Create(ctx context.Context, user *domain.User) error {
	r.put(*user)
	return nil
}

func (r *memUserRepo) Update(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memUserRepo) ListActiveByTeam(ctx context.Context, teamID string, roles ...domain.UserRole) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.User{}
	for _, user := range r.users {
		if user.TeamID == nil || *user.TeamID != teamID || user.Status != domain.UserStatusActive {
			continue
		}
		if len(roles) > 0 {
			match := false
			for _, role := range roles {
				if user.Role == role {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *user)
	}
	return out, nil
}

type memEventRepo struct {
	mu     sync.Mutex
	events []domain.TicketEvent
	seq    int
}

func (r *memEventRepo) Create(ctx context.Context, event *domain.TicketEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if event.ID == "" {
		event.ID = fmt.Sprintf("event-%d", r.seq)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	r.events = append(r.events, *event)
	return nil
}

func (r *memEventRepo) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.TicketEvent{}
	for _, event := range r.events {
		if event.TicketID == ticketID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (r *memEventRepo) ofType(eventType domain.TicketEventType) []domain.TicketEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.TicketEvent{}
	for _, event := range r.events {
		if event.EventType == eventType {
			out = append(out, event)
		}
	}
	return out
}

type memSurveyRepo struct {
	mu      sync.Mutex
	surveys map[string]*domain.Survey
	seq     int
}

func newMemSurveyRepo() *memSurveyRepo {
	return &memSurveyRepo{surveys: make(map[string]*domain.Survey)}
}

func (r *memSurveyRepo) Create(ctx context.Context, survey *domain.Survey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	survey.ID = fmt.Sprintf("survey-%d", r.seq)
	survey.CreatedAt = time.Now()
	clone := *survey
	r.surveys[survey.Token] = &clone
	return nil
}

func (r *memSurveyRepo) GetByToken(ctx context.Context, token string) (*domain.Survey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	survey, ok := r.surveys[token]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *survey
	return &clone, nil
}

func (r *memSurveyRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, survey := range r.surveys {
		if survey.ID == id {
			survey.SentAt = &sentAt
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *memSurveyRepo) RecordResponse(ctx context.Context, token string, score int, respondedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	survey, ok := r.surveys[token]
	if !ok || survey.RespondedAt != nil {
		return pgx.ErrNoRows
	}
	survey.Score = &score
	survey.RespondedAt = &respondedAt
	return nil
}

type sentMessage struct {
	To      string
	Subject string
	Body    string
}

type memChannel struct {
	mu   sync.Mutex
	sent []sentMessage
	fail bool
}

func (c *memChannel) Send(ctx context.Context, to, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return fmt.Errorf("channel unavailable")
	}
	c.sent = append(c.sent, sentMessage{To: to, Subject: subject, Body: body})
	return nil
}

func (c *memChannel) messages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *memChannel) sentTo(email string) bool {
	for _, msg := range c.messages() {
		if strings.EqualFold(msg.To, email) {
			return true
		}
	}
	return false
}
