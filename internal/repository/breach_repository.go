package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// BreachRepository stores breach events. Events are unique on (ticket, kind, fired_on).
type BreachRepository interface {
	// Record inserts the event and reports false when the dedup tuple already exists.
	Record(ctx context.Context, event *domain.BreachEvent) (bool, error)
	ListPending(ctx context.Context, limit int) ([]domain.BreachEvent, error)
	MarkNotified(ctx context.Context, id string, at time.Time) error
	MarkSuppressed(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id string, reason string) error
	List(ctx context.Context, filter domain.BreachFilter) ([]domain.BreachEvent, error)
}

type breachRepository struct {
	pool *pgxpool.Pool
}

// NewBreachRepository builds repository.
func NewBreachRepository(pool *pgxpool.Pool) BreachRepository {
	return &breachRepository{pool: pool}
}

const breachColumns = `id, ticket_id, policy_id, priority, kind, due_at, fired_on, fired_at, notified, notified_at,
    suppressed, attempts, last_error`

func (r *breachRepository) Record(ctx context.Context, event *domain.BreachEvent) (bool, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO sla_breach_events (id, ticket_id, policy_id, priority, kind, due_at, fired_on, fired_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (ticket_id, kind, fired_on) DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query,
		event.ID,
		event.TicketID,
		event.PolicyID,
		event.Priority,
		event.Kind,
		event.DueAt,
		event.FiredOn,
		event.FiredAt,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// ListPending returns events that were neither delivered nor suppressed, oldest first.
func (r *breachRepository) ListPending(ctx context.Context, limit int) ([]domain.BreachEvent, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+breachColumns+` FROM sla_breach_events
        WHERE notified = FALSE AND suppressed = FALSE ORDER BY fired_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBreaches(rows)
}

func (r *breachRepository) MarkNotified(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, `UPDATE sla_breach_events SET notified=TRUE, notified_at=$2, attempts=attempts+1, last_error='' WHERE id=$1`, id, at)
}

func (r *breachRepository) MarkSuppressed(ctx context.Context, id string) error {
	return r.update(ctx, `UPDATE sla_breach_events SET suppressed=TRUE WHERE id=$1`, id)
}

func (r *breachRepository) RecordFailure(ctx context.Context, id string, reason string) error {
	return r.update(ctx, `UPDATE sla_breach_events SET attempts=attempts+1, last_error=$2 WHERE id=$1`, id, reason)
}

func (r *breachRepository) update(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("breach event %v: %w", args[0], pgx.ErrNoRows)
	}
	return nil
}

func (r *breachRepository) List(ctx context.Context, filter domain.BreachFilter) ([]domain.BreachEvent, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.TicketID != nil {
		add("ticket_id = $%d", *filter.TicketID)
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		add("kind = ANY($%d)", kinds)
	}
	if filter.From != nil {
		add("fired_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("fired_at < $%d", *filter.To)
	}
	if filter.Notified != nil {
		add("notified = $%d", *filter.Notified)
	}

	query := `SELECT ` + breachColumns + ` FROM sla_breach_events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY fired_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBreaches(rows)
}

func scanBreaches(rows pgx.Rows) ([]domain.BreachEvent, error) {
	var result []domain.BreachEvent
	for rows.Next() {
		var event domain.BreachEvent
		if err := rows.Scan(
			&event.ID,
			&event.TicketID,
			&event.PolicyID,
			&event.Priority,
			&event.Kind,
			&event.DueAt,
			&event.FiredOn,
			&event.FiredAt,
			&event.Notified,
			&event.NotifiedAt,
			&event.Suppressed,
			&event.Attempts,
			&event.LastError,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
