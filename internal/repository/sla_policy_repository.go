package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// PolicyRepository persists SLA policies and their per-priority targets.
type PolicyRepository interface {
	// ListPolicies returns policies in evaluation order: position, then creation time.
	ListPolicies(ctx context.Context) ([]domain.SLAPolicy, error)
	GetPolicy(ctx context.Context, id string) (*domain.SLAPolicy, error)
	SavePolicy(ctx context.Context, policy *domain.SLAPolicy) error
	SetPolicyActive(ctx context.Context, id string, active bool) error
}

type policyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyRepository builds repository.
func NewPolicyRepository(pool *pgxpool.Pool) PolicyRepository {
	return &policyRepository{pool: pool}
}

const policyColumns = `id, name, description, is_default, is_active, position, conditions, created_at, updated_at`

func (r *policyRepository) ListPolicies(ctx context.Context) ([]domain.SLAPolicy, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+policyColumns+` FROM sla_policies ORDER BY position ASC, created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	var policies []domain.SLAPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		policies = append(policies, *policy)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	targets, err := r.listTargets(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range policies {
		policies[i].Targets = targets[policies[i].ID]
	}
	return policies, nil
}

func (r *policyRepository) GetPolicy(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+policyColumns+` FROM sla_policies WHERE id=$1`, id)
	policy, err := scanPolicy(row)
	if err != nil {
		return nil, notFound(err, domain.ErrPolicyNotFound)
	}
	targets, err := r.listTargets(ctx, id)
	if err != nil {
		return nil, err
	}
	policy.Targets = targets[id]
	return policy, nil
}

// SavePolicy upserts the policy row and replaces its targets in one transaction.
func (r *policyRepository) SavePolicy(ctx context.Context, policy *domain.SLAPolicy) error {
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const upsert = `
            INSERT INTO sla_policies (id, name, description, is_default, is_active, position, conditions)
            VALUES ($1,$2,$3,$4,$5,$6,$7)
            ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, description=EXCLUDED.description,
                is_default=EXCLUDED.is_default, is_active=EXCLUDED.is_active, position=EXCLUDED.position,
                conditions=EXCLUDED.conditions, updated_at=NOW()
            RETURNING created_at, updated_at`
		if err := tx.QueryRow(ctx, upsert,
			policy.ID,
			policy.Name,
			policy.Description,
			policy.IsDefault,
			policy.IsActive,
			policy.Position,
			policy.Conditions,
		).Scan(&policy.CreatedAt, &policy.UpdatedAt); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM sla_targets WHERE policy_id=$1`, policy.ID); err != nil {
			return err
		}
		const insertTarget = `
            INSERT INTO sla_targets (policy_id, priority, first_response_minutes, resolution_minutes, calendar_ref, escalation_enabled)
            VALUES ($1,$2,$3,$4,$5,$6)`
		for _, target := range policy.Targets {
			if _, err := tx.Exec(ctx, insertTarget,
				policy.ID,
				target.Priority,
				target.FirstResponseMinutes,
				target.ResolutionMinutes,
				target.CalendarRef,
				target.EscalationEnabled,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *policyRepository) SetPolicyActive(ctx context.Context, id string, active bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE sla_policies SET is_active=$1, updated_at=NOW() WHERE id=$2`, active, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrPolicyNotFound
	}
	return nil
}

func (r *policyRepository) listTargets(ctx context.Context, policyID string) (map[string]map[domain.TicketPriority]domain.SLATarget, error) {
	query := `SELECT policy_id, priority, first_response_minutes, resolution_minutes, calendar_ref, escalation_enabled FROM sla_targets`
	args := []any{}
	if policyID != "" {
		query += ` WHERE policy_id=$1`
		args = append(args, policyID)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]map[domain.TicketPriority]domain.SLATarget)
	for rows.Next() {
		var owner string
		var target domain.SLATarget
		if err := rows.Scan(
			&owner,
			&target.Priority,
			&target.FirstResponseMinutes,
			&target.ResolutionMinutes,
			&target.CalendarRef,
			&target.EscalationEnabled,
		); err != nil {
			return nil, err
		}
		if result[owner] == nil {
			result[owner] = make(map[domain.TicketPriority]domain.SLATarget)
		}
		result[owner][target.Priority] = target
	}
	return result, rows.Err()
}

func scanPolicy(row pgx.Row) (*domain.SLAPolicy, error) {
	var policy domain.SLAPolicy
	if err := row.Scan(
		&policy.ID,
		&policy.Name,
		&policy.Description,
		&policy.IsDefault,
		&policy.IsActive,
		&policy.Position,
		&policy.Conditions,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &policy, nil
}
