package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// TicketFilter captures list query parameters.
type TicketFilter struct {
	OrganizationID *string
	RequesterID    *string
	TeamID         *string
	AssigneeID     *string
	Statuses       []domain.TicketStatus
	Priorities     []domain.TicketPriority
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	Limit          int
	Offset         int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, external_key, organization_id, requester_user_id, team_id, assignee_user_id,
               title, description, status, priority, requires_approval, approval_status,
               due_at, first_response_due_at, resolved_at, closed_at, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_key, organization_id, requester_user_id, team_id, assignee_user_id,
            title, description, status, priority, requires_approval, approval_status, due_at, first_response_due_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.OrganizationID,
		ticket.RequesterID,
		ticket.TeamID,
		ticket.AssigneeID,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.RequiresApproval,
		ticket.ApprovalStatus,
		ticket.DueAt,
		ticket.FirstResponseDueAt,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET team_id=$1, assignee_user_id=$2, title=$3, description=$4,
            status=$5, priority=$6, requires_approval=$7, approval_status=$8,
            due_at=$9, first_response_due_at=$10, resolved_at=$11, closed_at=$12, updated_at=NOW()
        WHERE id=$13`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.TeamID,
		ticket.AssigneeID,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.RequiresApproval,
		ticket.ApprovalStatus,
		ticket.DueAt,
		ticket.FirstResponseDueAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE external_key=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, key)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.OrganizationID,
		&ticket.RequesterID,
		&ticket.TeamID,
		&ticket.AssigneeID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.RequiresApproval,
		&ticket.ApprovalStatus,
		&ticket.DueAt,
		&ticket.FirstResponseDueAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	conditions := make([]string, 0, 8)
	args := make([]any, 0, 8)
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.OrganizationID != nil {
		conditions = append(conditions, "organization_id="+arg(*filter.OrganizationID))
	}
	if filter.RequesterID != nil {
		conditions = append(conditions, "requester_user_id="+arg(*filter.RequesterID))
	}
	if filter.TeamID != nil {
		conditions = append(conditions, "team_id="+arg(*filter.TeamID))
	}
	if filter.AssigneeID != nil {
		conditions = append(conditions, "assignee_user_id="+arg(*filter.AssigneeID))
	}
	if len(filter.Statuses) > 0 {
		conditions = append(conditions, "status=ANY("+arg(filter.Statuses)+")")
	}
	if len(filter.Priorities) > 0 {
		conditions = append(conditions, "priority=ANY("+arg(filter.Priorities)+")")
	}
	if filter.CreatedFrom != nil {
		conditions = append(conditions, "created_at>="+arg(*filter.CreatedFrom))
	}
	if filter.CreatedTo != nil {
		conditions = append(conditions, "created_at<="+arg(*filter.CreatedTo))
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets`, ticketColumns)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.ExternalKey,
			&ticket.OrganizationID,
			&ticket.RequesterID,
			&ticket.TeamID,
			&ticket.AssigneeID,
			&ticket.Title,
			&ticket.Description,
			&ticket.Status,
			&ticket.Priority,
			&ticket.RequiresApproval,
			&ticket.ApprovalStatus,
			&ticket.DueAt,
			&ticket.FirstResponseDueAt,
			&ticket.ResolvedAt,
			&ticket.ClosedAt,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
