package service

import (
	"context"
	"math"
	"time"

	"github.com/spec-kit/sla-engine/internal/calendar"
	"github.com/spec-kit/sla-engine/internal/domain"
)

// MilestoneStatus classifies one deadline for badges and the breach monitor.
type MilestoneStatus string

const (
	MilestoneOnTrack     MilestoneStatus = "ON_TRACK"
	MilestoneApproaching MilestoneStatus = "APPROACHING"
	MilestoneBreached    MilestoneStatus = "BREACHED"
	MilestoneMet         MilestoneStatus = "MET"
	MilestonePaused      MilestoneStatus = "PAUSED"
	MilestoneNone        MilestoneStatus = "NO_SLA"
)

// Milestone is the live view of one deadline.
type Milestone struct {
	DueAt  time.Time       `json:"due_at"`
	Status MilestoneStatus `json:"status"`
	// RemainingMinutes counts business minutes until due; negative once overdue.
	RemainingMinutes int `json:"remaining_minutes"`
}

// SLAView is the state of a ticket plus its live deadline classification.
type SLAView struct {
	State         domain.TicketSLAState
	FirstResponse Milestone
	Resolution    Milestone
}

// View evaluates a ticket's deadlines at now.
func (c *SLAClock) View(ctx context.Context, ticketID string, now time.Time) (*SLAView, error) {
	state, err := c.states.GetState(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	view := &SLAView{
		State:         *state,
		FirstResponse: Milestone{DueAt: state.FirstResponseDueAt},
		Resolution:    Milestone{DueAt: state.ResolutionDueAt},
	}

	schedule, ok := c.catalog.Schedule(state.CalendarID)
	switch {
	case state.NoSLA || !ok:
		view.FirstResponse.Status = MilestoneNone
		view.Resolution.Status = MilestoneNone
		return view, nil
	case state.IsPaused():
		// Remaining time is frozen at the pause instant.
		now = *state.PausedAt
	}

	view.FirstResponse = c.milestone(schedule, state.FirstResponseDueAt, state.FirstResponseMinutes, state.FirstRespondedAt, now)
	view.Resolution = c.milestone(schedule, state.ResolutionDueAt, state.ResolutionMinutes, state.ResolvedAt, now)
	if state.IsPaused() {
		for _, m := range []*Milestone{&view.FirstResponse, &view.Resolution} {
			if m.Status != MilestoneMet {
				m.Status = MilestonePaused
			}
		}
	}
	return view, nil
}

func (c *SLAClock) milestone(schedule *calendar.Schedule, due time.Time, targetMinutes int, doneAt *time.Time, now time.Time) Milestone {
	m := Milestone{DueAt: due}
	if doneAt != nil {
		m.Status = MilestoneMet
		if doneAt.After(due) {
			m.Status = MilestoneBreached
		}
		m.RemainingMinutes = remainingMinutes(schedule, due, *doneAt)
		return m
	}
	m.RemainingMinutes = remainingMinutes(schedule, due, now)
	m.Status = classify(due, m.RemainingMinutes, targetMinutes, c.warningRatio, now)
	return m
}

// remainingMinutes is the signed business-minute distance from now to due.
func remainingMinutes(schedule *calendar.Schedule, due, now time.Time) int {
	if due.After(now) {
		return schedule.ElapsedBusinessMinutes(now, due)
	}
	return -schedule.ElapsedBusinessMinutes(due, now)
}

// classify applies the warning window: approaching once the remaining business minutes
// drop to ratio × target, breached strictly after the due instant.
func classify(due time.Time, remaining, targetMinutes int, ratio float64, now time.Time) MilestoneStatus {
	if now.After(due) {
		return MilestoneBreached
	}
	window := int(math.Floor(ratio * float64(targetMinutes)))
	if remaining <= window {
		return MilestoneApproaching
	}
	return MilestoneOnTrack
}
