package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// CalendarRepository persists SLA calendars.
type CalendarRepository interface {
	ListCalendars(ctx context.Context) ([]domain.Calendar, error)
	GetCalendar(ctx context.Context, id string) (*domain.Calendar, error)
	SaveCalendar(ctx context.Context, cal *domain.Calendar) error
}

type calendarRepository struct {
	pool *pgxpool.Pool
}

// NewCalendarRepository builds repository.
func NewCalendarRepository(pool *pgxpool.Pool) CalendarRepository {
	return &calendarRepository{pool: pool}
}

const calendarColumns = `id, name, kind, timezone, windows, holidays, created_at, updated_at`

func (r *calendarRepository) ListCalendars(ctx context.Context) ([]domain.Calendar, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+calendarColumns+` FROM sla_calendars ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Calendar
	for rows.Next() {
		cal, err := scanCalendar(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cal)
	}
	return result, rows.Err()
}

func (r *calendarRepository) GetCalendar(ctx context.Context, id string) (*domain.Calendar, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+calendarColumns+` FROM sla_calendars WHERE id=$1`, id)
	cal, err := scanCalendar(row)
	if err != nil {
		return nil, notFound(err, domain.ErrCalendarNotFound)
	}
	return cal, nil
}

// SaveCalendar inserts or replaces a calendar. Validation happens in the service layer.
func (r *calendarRepository) SaveCalendar(ctx context.Context, cal *domain.Calendar) error {
	if cal.ID == "" {
		cal.ID = uuid.NewString()
	}
	if cal.Windows == nil {
		cal.Windows = []domain.BusinessWindow{}
	}
	if cal.Holidays == nil {
		cal.Holidays = []domain.Holiday{}
	}
	const query = `
        INSERT INTO sla_calendars (id, name, kind, timezone, windows, holidays)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, kind=EXCLUDED.kind, timezone=EXCLUDED.timezone,
            windows=EXCLUDED.windows, holidays=EXCLUDED.holidays, updated_at=NOW()
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		cal.ID,
		cal.Name,
		cal.Kind,
		cal.Timezone,
		cal.Windows,
		cal.Holidays,
	).Scan(&cal.CreatedAt, &cal.UpdatedAt)
}

func scanCalendar(row pgx.Row) (*domain.Calendar, error) {
	var cal domain.Calendar
	if err := row.Scan(
		&cal.ID,
		&cal.Name,
		&cal.Kind,
		&cal.Timezone,
		&cal.Windows,
		&cal.Holidays,
		&cal.CreatedAt,
		&cal.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &cal, nil
}
