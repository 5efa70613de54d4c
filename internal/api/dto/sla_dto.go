package dto

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// MilestoneResponse is one live deadline.
type MilestoneResponse struct {
	DueAt            time.Time  `json:"due_at"`
	Status           string     `json:"status"`
	RemainingMinutes int        `json:"remaining_minutes"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// SLAStateResponse exposes a ticket's clock and deadlines.
type SLAStateResponse struct {
	TicketID                string                `json:"ticket_id"`
	PolicyID                string                `json:"policy_id"`
	CalendarID              string                `json:"calendar_id"`
	Priority                domain.TicketPriority `json:"priority"`
	ClockState              domain.ClockState     `json:"clock_state"`
	NoSLA                   bool                  `json:"no_sla"`
	FirstResponse           MilestoneResponse     `json:"first_response"`
	Resolution              MilestoneResponse     `json:"resolution"`
	PausedAt                *time.Time            `json:"paused_at"`
	AccumulatedPauseMinutes int                   `json:"accumulated_pause_minutes"`
	ReopenCount             int                   `json:"reopen_count"`
	UpdatedAt               time.Time             `json:"updated_at"`
}

// ResolvePolicyRequest previews which policy a ticket would get.
type ResolvePolicyRequest struct {
	DepartmentID string                `json:"department_id"`
	TeamID       *string               `json:"team_id"`
	Priority     domain.TicketPriority `json:"priority"`
	Tags         []string              `json:"tags"`
	CreatedAt    *time.Time            `json:"created_at"`
}

// ResolvePolicyResponse reports the matched policy and the deadlines it would set.
type ResolvePolicyResponse struct {
	PolicyID           string         `json:"policy_id"`
	PolicyName         string         `json:"policy_name"`
	FellBack           bool           `json:"fell_back_to_default_target"`
	Target             TargetResponse `json:"target"`
	FirstResponseDueAt time.Time      `json:"first_response_due_at"`
	ResolutionDueAt    time.Time      `json:"resolution_due_at"`
}

// BreachResponse is one recorded breach event.
type BreachResponse struct {
	ID         string                `json:"id"`
	TicketID   string                `json:"ticket_id"`
	PolicyID   string                `json:"policy_id"`
	Priority   domain.TicketPriority `json:"priority"`
	Kind       domain.BreachKind     `json:"kind"`
	DueAt      time.Time             `json:"due_at"`
	FiredOn    string                `json:"fired_on"`
	FiredAt    time.Time             `json:"fired_at"`
	Notified   bool                  `json:"notified"`
	NotifiedAt *time.Time            `json:"notified_at"`
	Suppressed bool                  `json:"suppressed"`
	Attempts   int                   `json:"attempts"`
	LastError  string                `json:"last_error,omitempty"`
}

// SweepResponse summarizes a manual sweep.
type SweepResponse struct {
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Evaluated  int       `json:"evaluated"`
	Backfilled int       `json:"backfilled"`
	Recorded   int       `json:"recorded"`
	Notified   int       `json:"notified"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Retried    int       `json:"retried"`
}
