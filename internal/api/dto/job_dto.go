package dto

import "time"

// DeadJobResponse is one terminally failed scheduler job.
type DeadJobResponse struct {
	ID           string    `json:"id"`
	JobType      string    `json:"job_type"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Attempts     int       `json:"attempts"`
	Reason       string    `json:"reason"`
	DiedAt       time.Time `json:"died_at"`
}
