package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// SurveyRepository persists CSAT surveys.
type SurveyRepository interface {
	Create(ctx context.Context, survey *domain.Survey) error
	GetByToken(ctx context.Context, token string) (*domain.Survey, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	// RecordResponse stores the score for an unanswered survey. It returns
	// pgx.ErrNoRows when the survey was already answered.
	RecordResponse(ctx context.Context, token string, score int, respondedAt time.Time) error
}

type surveyRepository struct {
	pool *pgxpool.Pool
}

// NewSurveyRepository builds repository.
func NewSurveyRepository(pool *pgxpool.Pool) SurveyRepository {
	return &surveyRepository{pool: pool}
}

func (r *surveyRepository) Create(ctx context.Context, survey *domain.Survey) error {
	const query = `
        INSERT INTO surveys (ticket_id, token)
        VALUES ($1,$2)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		survey.TicketID,
		survey.Token,
	).Scan(&survey.ID, &survey.CreatedAt)
}

func (r *surveyRepository) GetByToken(ctx context.Context, token string) (*domain.Survey, error) {
	const query = `
        SELECT id, ticket_id, token, sent_at, responded_at, score, created_at
        FROM surveys WHERE token=$1`
	var survey domain.Survey
	if err := r.pool.QueryRow(ctx, query, token).Scan(
		&survey.ID,
		&survey.TicketID,
		&survey.Token,
		&survey.SentAt,
		&survey.RespondedAt,
		&survey.Score,
		&survey.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &survey, nil
}

func (r *surveyRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	const query = `UPDATE surveys SET sent_at=$1 WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, sentAt, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *surveyRepository) RecordResponse(ctx context.Context, token string, score int, respondedAt time.Time) error {
	const query = `
        UPDATE surveys SET responded_at=$1, score=$2
        WHERE token=$3 AND responded_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, respondedAt, score, token)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
