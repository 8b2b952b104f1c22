package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// SLARuleRepository reads the per-organization deadline tables.
type SLARuleRepository interface {
	ListByOrganization(ctx context.Context, organizationID string) ([]domain.SLARule, error)
	Upsert(ctx context.Context, rule *domain.SLARule) error
}

type slaRuleRepository struct {
	pool *pgxpool.Pool
}

// NewSLARuleRepository builds repository.
func NewSLARuleRepository(pool *pgxpool.Pool) SLARuleRepository {
	return &slaRuleRepository{pool: pool}
}

func (r *slaRuleRepository) ListByOrganization(ctx context.Context, organizationID string) ([]domain.SLARule, error) {
	const query = `
        SELECT id, organization_id, priority, first_response_minutes, resolution_minutes, created_at, updated_at
        FROM sla_rules WHERE organization_id=$1`
	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLARule
	for rows.Next() {
		var rule domain.SLARule
		if err := rows.Scan(
			&rule.ID,
			&rule.OrganizationID,
			&rule.Priority,
			&rule.FirstResponseMinutes,
			&rule.ResolutionMinutes,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func (r *slaRuleRepository) Upsert(ctx context.Context, rule *domain.SLARule) error {
	const query = `
        INSERT INTO sla_rules (organization_id, priority, first_response_minutes, resolution_minutes)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (organization_id, priority)
        DO UPDATE SET first_response_minutes=EXCLUDED.first_response_minutes,
                      resolution_minutes=EXCLUDED.resolution_minutes, updated_at=NOW()
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		rule.OrganizationID,
		rule.Priority,
		rule.FirstResponseMinutes,
		rule.ResolutionMinutes,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}
