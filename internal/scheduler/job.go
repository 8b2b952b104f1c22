package scheduler

import (
	"context"
	"time"
)

// JobType identifies which handler executes a job.
type JobType string

const (
	JobTypeCheckSLABreach   JobType = "CHECK_SLA_BREACH"
	JobTypeSendNotification JobType = "SEND_NOTIFICATION"
	JobTypeAutoEscalate     JobType = "AUTO_ESCALATE"
	JobTypeSendCSATSurvey   JobType = "SEND_CSAT_SURVEY"
)

// JobPayload is a tagged union: each job type carries its own statically
// typed payload struct.
type JobPayload interface {
	JobType() JobType
}

// CheckSLABreachPayload asks the escalation engine to evaluate one ticket's
// deadline.
type CheckSLABreachPayload struct {
	TicketID string
}

func (CheckSLABreachPayload) JobType() JobType { return JobTypeCheckSLABreach }

// SendNotificationPayload fans a message out to the recipients the
// notification kind resolves to. UserIDs, when set, overrides resolution.
type SendNotificationPayload struct {
	Kind     string
	TicketID string
	Message  string
	UserIDs  []string
}

func (SendNotificationPayload) JobType() JobType { return JobTypeSendNotification }

// AutoEscalatePayload moves a ticket up its team's escalation chain.
type AutoEscalatePayload struct {
	TicketID string
	Reason   string
}

func (AutoEscalatePayload) JobType() JobType { return JobTypeAutoEscalate }

// SendCSATSurveyPayload dispatches the post-resolution satisfaction survey.
type SendCSATSurveyPayload struct {
	TicketID string
}

func (SendCSATSurveyPayload) JobType() JobType { return JobTypeSendCSATSurvey }

// Job is one deferred action owned by the scheduler. Completed flips to true
// exactly once; nothing outside the scheduler mutates it.
type Job struct {
	ID           string
	Payload      JobPayload
	ScheduledFor time.Time
	Attempts     int
	Completed    bool
	LastError    string
	CreatedAt    time.Time
}

// Type returns the payload's job type.
func (j Job) Type() JobType {
	return j.Payload.JobType()
}

// DeadJob is a job that terminally failed, retained for inspection instead
// of being silently discarded.
type DeadJob struct {
	Job
	Reason string
	DiedAt time.Time
}

// Disposition classifies the result of one execution attempt.
type Disposition int

const (
	DispositionCompleted Disposition = iota
	DispositionRetry
	DispositionDead
)

// Outcome is the tagged result a handler returns per execution.
type Outcome struct {
	Disposition Disposition
	// RetryAfter overrides the scheduler's default backoff when positive.
	RetryAfter time.Duration
	Err        error
}

// Completed marks the job done.
func Completed() Outcome {
	return Outcome{Disposition: DispositionCompleted}
}

// Retry reschedules the job after the scheduler's backoff.
func Retry(err error) Outcome {
	return Outcome{Disposition: DispositionRetry, Err: err}
}

// RetryAfter reschedules the job after an explicit delay.
func RetryAfter(delay time.Duration, err error) Outcome {
	return Outcome{Disposition: DispositionRetry, RetryAfter: delay, Err: err}
}

// Dead moves the job to the dead-letter list.
func Dead(err error) Outcome {
	return Outcome{Disposition: DispositionDead, Err: err}
}

// Handler executes one job attempt.
type Handler func(ctx context.Context, job Job) Outcome

// Clock abstracts wall time so tests drive ticks deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real-time clock.
func SystemClock() Clock { return systemClock{} }
