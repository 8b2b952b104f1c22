package domain

import "time"

// Survey score bounds.
const (
	SurveyScoreMin = 1
	SurveyScoreMax = 5
)

// Survey is a token-addressed CSAT survey sent after resolution. A survey
// accepts at most one response.
type Survey struct {
	ID          string
	TicketID    string
	Token       string
	SentAt      *time.Time
	RespondedAt *time.Time
	Score       *int
	CreatedAt   time.Time
}

// Answered reports whether a response was already recorded.
func (s *Survey) Answered() bool {
	return s.RespondedAt != nil
}

// ValidSurveyScore reports whether the score is inside the accepted range.
func ValidSurveyScore(score int) bool {
	return score >= SurveyScoreMin && score <= SurveyScoreMax
}
