package domain

import "time"

// ClockState is the SLA clock state of a ticket.
type ClockState string

const (
	ClockRunning   ClockState = "RUNNING"
	ClockPaused    ClockState = "PAUSED"
	ClockResponded ClockState = "RESPONDED"
	ClockResolved  ClockState = "RESOLVED"
)

// TicketSLAState is the SLA bookkeeping attached to a ticket.
type TicketSLAState struct {
	TicketID                string
	PolicyID                string
	Priority                TicketPriority
	CalendarID              string
	ClockState              ClockState
	FirstResponseMinutes    int
	ResolutionMinutes       int
	TicketCreatedAt         time.Time
	FirstResponseDueAt      time.Time
	ResolutionDueAt         time.Time
	FirstRespondedAt        *time.Time
	ResolvedAt              *time.Time
	PausedAt                *time.Time
	AccumulatedPauseMinutes int
	ReopenCount             int
	NoSLA                   bool
	UpdatedAt               time.Time
}

// IsFrozen reports whether the state is closed for reporting.
func (s *TicketSLAState) IsFrozen() bool {
	return s.ResolvedAt != nil
}

// IsPaused reports whether the clock is held.
func (s *TicketSLAState) IsPaused() bool {
	return s.PausedAt != nil
}

// Tracks reports whether the breach monitor should evaluate the state.
func (s *TicketSLAState) Tracks() bool {
	return !s.NoSLA && !s.IsFrozen() && !s.IsPaused()
}
