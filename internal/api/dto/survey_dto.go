package dto

import "time"

// SurveyResponseRequest payload.
type SurveyResponseRequest struct {
	Score int `json:"score"`
}

// SurveyResponse representation.
type SurveyResponse struct {
	ID          string     `json:"id"`
	TicketID    string     `json:"ticket_id"`
	Score       *int       `json:"score"`
	SentAt      *time.Time `json:"sent_at"`
	RespondedAt *time.Time `json:"responded_at"`
}
