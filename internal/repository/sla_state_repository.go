package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// SLAStateRepository persists per-ticket SLA clocks.
type SLAStateRepository interface {
	GetState(ctx context.Context, ticketID string) (*domain.TicketSLAState, error)
	SaveState(ctx context.Context, state *domain.TicketSLAState) error
	ListTracked(ctx context.Context) ([]domain.TicketSLAState, error)
}

type slaStateRepository struct {
	pool *pgxpool.Pool
}

// NewSLAStateRepository builds repository.
func NewSLAStateRepository(pool *pgxpool.Pool) SLAStateRepository {
	return &slaStateRepository{pool: pool}
}

const stateColumns = `ticket_id, policy_id, priority, calendar_id, clock_state, first_response_minutes, resolution_minutes,
    ticket_created_at, first_response_due_at, resolution_due_at, first_responded_at, resolved_at, paused_at,
    accumulated_pause_minutes, reopen_count, no_sla, updated_at`

func (r *slaStateRepository) GetState(ctx context.Context, ticketID string) (*domain.TicketSLAState, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+stateColumns+` FROM ticket_sla_states WHERE ticket_id=$1`, ticketID)
	state, err := scanState(row)
	if err != nil {
		return nil, notFound(err, domain.ErrStateNotFound)
	}
	return state, nil
}

func (r *slaStateRepository) SaveState(ctx context.Context, state *domain.TicketSLAState) error {
	const query = `
        INSERT INTO ticket_sla_states (ticket_id, policy_id, priority, calendar_id, clock_state, first_response_minutes,
            resolution_minutes, ticket_created_at, first_response_due_at, resolution_due_at, first_responded_at,
            resolved_at, paused_at, accumulated_pause_minutes, reopen_count, no_sla, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW())
        ON CONFLICT (ticket_id) DO UPDATE SET policy_id=EXCLUDED.policy_id, priority=EXCLUDED.priority,
            calendar_id=EXCLUDED.calendar_id, clock_state=EXCLUDED.clock_state,
            first_response_minutes=EXCLUDED.first_response_minutes, resolution_minutes=EXCLUDED.resolution_minutes,
            first_response_due_at=EXCLUDED.first_response_due_at, resolution_due_at=EXCLUDED.resolution_due_at,
            first_responded_at=EXCLUDED.first_responded_at, resolved_at=EXCLUDED.resolved_at,
            paused_at=EXCLUDED.paused_at, accumulated_pause_minutes=EXCLUDED.accumulated_pause_minutes,
            reopen_count=EXCLUDED.reopen_count, no_sla=EXCLUDED.no_sla, updated_at=NOW()
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		state.TicketID,
		state.PolicyID,
		state.Priority,
		state.CalendarID,
		state.ClockState,
		state.FirstResponseMinutes,
		state.ResolutionMinutes,
		state.TicketCreatedAt,
		state.FirstResponseDueAt,
		state.ResolutionDueAt,
		state.FirstRespondedAt,
		state.ResolvedAt,
		state.PausedAt,
		state.AccumulatedPauseMinutes,
		state.ReopenCount,
		state.NoSLA,
	).Scan(&state.UpdatedAt)
}

// ListTracked returns states the breach monitor evaluates: not resolved, not paused, with an SLA.
func (r *slaStateRepository) ListTracked(ctx context.Context) ([]domain.TicketSLAState, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+stateColumns+` FROM ticket_sla_states
        WHERE resolved_at IS NULL AND paused_at IS NULL AND no_sla = FALSE ORDER BY resolution_due_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketSLAState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *state)
	}
	return result, rows.Err()
}

func scanState(row pgx.Row) (*domain.TicketSLAState, error) {
	var state domain.TicketSLAState
	if err := row.Scan(
		&state.TicketID,
		&state.PolicyID,
		&state.Priority,
		&state.CalendarID,
		&state.ClockState,
		&state.FirstResponseMinutes,
		&state.ResolutionMinutes,
		&state.TicketCreatedAt,
		&state.FirstResponseDueAt,
		&state.ResolutionDueAt,
		&state.FirstRespondedAt,
		&state.ResolvedAt,
		&state.PausedAt,
		&state.AccumulatedPauseMinutes,
		&state.ReopenCount,
		&state.NoSLA,
		&state.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &state, nil
}
