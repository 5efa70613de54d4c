package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/calendar"
	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/repository"
)

const clockStripes = 64

// SLAClock owns the per-ticket SLA state machine. Transitions on the same ticket
// are serialized through striped locks; different tickets proceed in parallel.
type SLAClock struct {
	catalog *PolicyCatalog
	states  repository.SLAStateRepository
	logger  *zap.Logger
	metrics *observability.Metrics

	mode         config.PriorityChangeMode
	strict       bool
	warningRatio float64

	locks [clockStripes]sync.Mutex
}

// ClockDependencies bundles collaborators for the clock.
type ClockDependencies struct {
	Catalog   *PolicyCatalog
	StateRepo repository.SLAStateRepository
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	// PriorityChangeMode picks the anchor for recomputed due dates.
	PriorityChangeMode config.PriorityChangeMode
	// Strict panics on invariant violations instead of degrading the ticket to no SLA.
	Strict       bool
	WarningRatio float64
}

// NewSLAClock constructs the clock.
func NewSLAClock(deps ClockDependencies) *SLAClock {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mode := deps.PriorityChangeMode
	if mode == "" {
		mode = config.PriorityChangeFromCreation
	}
	return &SLAClock{
		catalog:      deps.Catalog,
		states:       deps.StateRepo,
		logger:       logger.Named("sla_clock"),
		metrics:      deps.Metrics,
		mode:         mode,
		strict:       deps.Strict,
		warningRatio: deps.WarningRatio,
	}
}

func (c *SLAClock) lock(ticketID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ticketID))
	m := &c.locks[h.Sum32()%clockStripes]
	m.Lock()
	return m.Unlock
}

// GetSLAState returns the stored state of a ticket.
func (c *SLAClock) GetSLAState(ctx context.Context, ticketID string) (*domain.TicketSLAState, error) {
	return c.states.GetState(ctx, ticketID)
}

// OnCreate attaches a fresh SLA state to a ticket. Calling it again for a ticket that
// already has a state returns the stored state unchanged.
func (c *SLAClock) OnCreate(ctx context.Context, ticket domain.Ticket) (*domain.TicketSLAState, error) {
	defer c.lock(ticket.ID)()

	existing, err := c.states.GetState(ctx, ticket.ID)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, domain.ErrStateNotFound):
		return nil, err
	}

	state := &domain.TicketSLAState{
		TicketID:        ticket.ID,
		Priority:        ticket.Priority,
		ClockState:      domain.ClockRunning,
		TicketCreatedAt: ticket.CreatedAt,
	}
	resolution, err := c.catalog.ResolveTarget(ticket)
	if err == nil {
		err = c.bind(state, resolution, ticket.CreatedAt, 0)
	}
	if err != nil {
		c.degrade(state, err)
	}
	if err := c.states.SaveState(ctx, state); err != nil {
		return nil, err
	}
	c.metrics.RecordTransition("create")
	c.logger.Debug("sla state created",
		zap.String("ticket_id", ticket.ID),
		zap.String("policy_id", state.PolicyID),
		zap.Time("first_response_due_at", state.FirstResponseDueAt),
		zap.Time("resolution_due_at", state.ResolutionDueAt))
	return state, nil
}

// OnFirstResponse stops the first-response clock. The resolution deadline is untouched.
func (c *SLAClock) OnFirstResponse(ctx context.Context, ticketID string, at time.Time) (*domain.TicketSLAState, error) {
	return c.transition(ctx, ticketID, "first_response", func(state *domain.TicketSLAState) (bool, error) {
		if state.IsFrozen() || state.FirstRespondedAt != nil {
			return false, nil
		}
		state.FirstRespondedAt = &at
		if !state.IsPaused() {
			state.ClockState = domain.ClockResponded
		}
		return true, nil
	})
}

// OnPause holds the clock. While paused the breach monitor skips the ticket.
func (c *SLAClock) OnPause(ctx context.Context, ticketID string, at time.Time) (*domain.TicketSLAState, error) {
	return c.transition(ctx, ticketID, "pause", func(state *domain.TicketSLAState) (bool, error) {
		if state.IsFrozen() || state.IsPaused() {
			return false, nil
		}
		state.PausedAt = &at
		state.ClockState = domain.ClockPaused
		return true, nil
	})
}

// OnResume restarts a held clock, pushing outstanding due dates forward by the pause
// measured in business minutes of the ticket's calendar.
func (c *SLAClock) OnResume(ctx context.Context, ticketID string, at time.Time) (*domain.TicketSLAState, error) {
	return c.transition(ctx, ticketID, "resume", func(state *domain.TicketSLAState) (bool, error) {
		if state.IsFrozen() || !state.IsPaused() {
			return false, nil
		}
		if state.NoSLA {
			c.dropPause(state, at)
			return true, nil
		}
		return true, c.closePause(state, at)
	})
}

// OnResolve freezes the state. A running pause is closed first.
func (c *SLAClock) OnResolve(ctx context.Context, ticketID string, at time.Time) (*domain.TicketSLAState, error) {
	return c.transition(ctx, ticketID, "resolve", func(state *domain.TicketSLAState) (bool, error) {
		if state.IsFrozen() {
			return false, nil
		}
		switch {
		case state.IsPaused() && state.NoSLA:
			c.dropPause(state, at)
		case state.IsPaused():
			if err := c.closePause(state, at); err != nil {
				return false, err
			}
		}
		state.ResolvedAt = &at
		state.ClockState = domain.ClockResolved
		return true, nil
	})
}

// OnReopen unfreezes a resolved ticket. Time consumed before resolution is kept:
// each open deadline restarts from at with only its remaining business minutes.
func (c *SLAClock) OnReopen(ctx context.Context, ticketID string, at time.Time) (*domain.TicketSLAState, error) {
	return c.transition(ctx, ticketID, "reopen", func(state *domain.TicketSLAState) (bool, error) {
		if !state.IsFrozen() {
			return false, nil
		}
		if state.NoSLA {
			state.ResolvedAt = nil
			state.ReopenCount++
			state.ClockState = runningState(state)
			return true, nil
		}
		schedule, err := c.schedule(state)
		if err != nil {
			return false, err
		}
		resolvedAt := *state.ResolvedAt

		if state.FirstRespondedAt == nil {
			if state.FirstResponseDueAt, err = restart(schedule, resolvedAt, state.FirstResponseDueAt, at); err != nil {
				return false, err
			}
		}
		if state.ResolutionDueAt, err = restart(schedule, resolvedAt, state.ResolutionDueAt, at); err != nil {
			return false, err
		}

		state.ResolvedAt = nil
		state.ReopenCount++
		state.ClockState = runningState(state)
		return true, nil
	})
}

// OnPriorityOrPolicyChange re-resolves the policy and recomputes open due dates. The anchor
// depends on the configured mode: ticket creation (default) or the change instant.
func (c *SLAClock) OnPriorityOrPolicyChange(ctx context.Context, ticket domain.Ticket, at time.Time) (*domain.TicketSLAState, error) {
	defer c.lock(ticket.ID)()

	state, err := c.states.GetState(ctx, ticket.ID)
	if errors.Is(err, domain.ErrStateNotFound) {
		c.logger.Warn("priority change for ticket without sla state; creating", zap.String("ticket_id", ticket.ID))
		state = &domain.TicketSLAState{
			TicketID:        ticket.ID,
			ClockState:      domain.ClockRunning,
			TicketCreatedAt: ticket.CreatedAt,
		}
	} else if err != nil {
		return nil, err
	}
	if state.IsFrozen() {
		c.logger.Info("ignoring priority change on resolved ticket", zap.String("ticket_id", ticket.ID))
		return state, nil
	}

	state.Priority = ticket.Priority
	state.NoSLA = false
	resolution, err := c.catalog.ResolveTarget(ticket)
	if err == nil {
		anchor, extra := state.TicketCreatedAt, state.AccumulatedPauseMinutes
		if c.mode == config.PriorityChangeFromChange {
			anchor, extra = at, 0
		}
		err = c.bind(state, resolution, anchor, extra)
		if err == nil && c.mode == config.PriorityChangeFromChange && state.IsPaused() {
			// New due dates start at the change; only the rest of the pause may shift them.
			state.AccumulatedPauseMinutes += resolution.Schedule.ElapsedBusinessMinutes(*state.PausedAt, at)
			state.PausedAt = &at
		}
	}
	if err != nil {
		c.degrade(state, err)
	}
	if err := c.states.SaveState(ctx, state); err != nil {
		return nil, err
	}
	c.metrics.RecordTransition("priority_change")
	c.logger.Info("sla recomputed",
		zap.String("ticket_id", ticket.ID),
		zap.String("policy_id", state.PolicyID),
		zap.String("priority", string(state.Priority)),
		zap.String("mode", string(c.mode)))
	return state, nil
}

// transition runs fn under the ticket lock and persists the state when fn reports a change.
func (c *SLAClock) transition(ctx context.Context, ticketID, name string, fn func(*domain.TicketSLAState) (bool, error)) (*domain.TicketSLAState, error) {
	defer c.lock(ticketID)()

	state, err := c.states.GetState(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	changed, err := fn(state)
	if err != nil {
		c.degrade(state, err)
		changed = true
	}
	if !changed {
		c.logger.Debug("sla transition ignored", zap.String("ticket_id", ticketID), zap.String("transition", name),
			zap.String("clock_state", string(state.ClockState)))
		return state, nil
	}
	if err := c.states.SaveState(ctx, state); err != nil {
		return nil, err
	}
	c.metrics.RecordTransition(name)
	return state, nil
}

// bind snapshots the target on the state and computes both due dates from anchor.
func (c *SLAClock) bind(state *domain.TicketSLAState, resolution Resolution, anchor time.Time, extraMinutes int) error {
	if resolution.Schedule == nil {
		return fmt.Errorf("%w: calendar %s not loaded", domain.ErrInvariant, resolution.Target.CalendarRef)
	}
	target := resolution.Target
	state.PolicyID = resolution.Policy.ID
	state.CalendarID = target.CalendarRef
	state.FirstResponseMinutes = target.FirstResponseMinutes
	state.ResolutionMinutes = target.ResolutionMinutes

	if state.FirstRespondedAt == nil {
		due, err := resolution.Schedule.AddBusinessMinutes(anchor, target.FirstResponseMinutes+extraMinutes)
		if err != nil {
			return err
		}
		state.FirstResponseDueAt = due
	}
	due, err := resolution.Schedule.AddBusinessMinutes(anchor, target.ResolutionMinutes+extraMinutes)
	if err != nil {
		return err
	}
	state.ResolutionDueAt = due
	if state.FirstResponseDueAt.IsZero() {
		state.FirstResponseDueAt = state.TicketCreatedAt
	}
	return nil
}

// closePause ends a running pause and shifts open due dates by its business length.
func (c *SLAClock) closePause(state *domain.TicketSLAState, at time.Time) error {
	schedule, err := c.schedule(state)
	if err != nil {
		return err
	}
	paused := schedule.ElapsedBusinessMinutes(*state.PausedAt, at)
	if state.FirstRespondedAt == nil {
		if state.FirstResponseDueAt, err = schedule.AddBusinessMinutes(state.FirstResponseDueAt, paused); err != nil {
			return err
		}
	}
	if state.ResolutionDueAt, err = schedule.AddBusinessMinutes(state.ResolutionDueAt, paused); err != nil {
		return err
	}
	state.AccumulatedPauseMinutes += paused
	state.PausedAt = nil
	state.ClockState = runningState(state)
	return nil
}

// dropPause ends a pause on a ticket without an SLA. There are no due dates to shift; the
// pause is still counted when its calendar is known so a later rebind sees it.
func (c *SLAClock) dropPause(state *domain.TicketSLAState, at time.Time) {
	if schedule, ok := c.catalog.Schedule(state.CalendarID); ok {
		state.AccumulatedPauseMinutes += schedule.ElapsedBusinessMinutes(*state.PausedAt, at)
	}
	state.PausedAt = nil
	state.ClockState = runningState(state)
}

func (c *SLAClock) schedule(state *domain.TicketSLAState) (*calendar.Schedule, error) {
	schedule, ok := c.catalog.Schedule(state.CalendarID)
	if !ok {
		return nil, fmt.Errorf("%w: calendar %s not loaded", domain.ErrInvariant, state.CalendarID)
	}
	return schedule, nil
}

// degrade handles a failed due-date computation. Outside production it panics so the
// bug surfaces in tests; in production the ticket continues without an SLA.
func (c *SLAClock) degrade(state *domain.TicketSLAState, err error) {
	if c.strict {
		panic(fmt.Sprintf("sla clock: ticket %s: %v", state.TicketID, err))
	}
	c.logger.Error("sla computation failed; ticket continues without sla",
		zap.String("ticket_id", state.TicketID), zap.Error(err))
	c.metrics.RecordInvariantViolation()
	state.NoSLA = true
	if state.FirstResponseDueAt.IsZero() {
		state.FirstResponseDueAt = state.TicketCreatedAt
	}
	if state.ResolutionDueAt.IsZero() {
		state.ResolutionDueAt = state.TicketCreatedAt
	}
}

// restart moves a deadline that was pending at resolvedAt so the same business
// minutes remain after at. Deadlines already missed at resolution fire at at.
func restart(schedule *calendar.Schedule, resolvedAt, due, at time.Time) (time.Time, error) {
	if !due.After(resolvedAt) {
		return at, nil
	}
	remaining := schedule.ElapsedBusinessMinutes(resolvedAt, due)
	if remaining <= 0 {
		return at, nil
	}
	return schedule.AddBusinessMinutes(at, remaining)
}

func runningState(state *domain.TicketSLAState) domain.ClockState {
	if state.FirstRespondedAt != nil {
		return domain.ClockResponded
	}
	return domain.ClockRunning
}
