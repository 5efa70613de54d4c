package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// BreachMonitor compares open SLA deadlines with the current time and records at most one
// breach event per ticket, kind and day.
type BreachMonitor struct {
	tickets    repository.TicketRepository
	states     repository.SLAStateRepository
	breaches   repository.BreachRepository
	deduper    repository.BreachDeduper
	clock      *SLAClock
	catalog    *PolicyCatalog
	dispatcher *EscalationDispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics

	warningRatio float64
	poolSize     int
	dedupLoc     *time.Location
	backfill     bool

	running atomic.Bool
}

// MonitorDependencies bundles collaborators for the monitor.
type MonitorDependencies struct {
	TicketRepo   repository.TicketRepository
	StateRepo    repository.SLAStateRepository
	BreachRepo   repository.BreachRepository
	Deduper      repository.BreachDeduper
	Clock        *SLAClock
	Catalog      *PolicyCatalog
	Dispatcher   *EscalationDispatcher
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	WarningRatio float64
	PoolSize     int
	// DedupLocation is the timezone whose calendar day bounds the dedup window.
	DedupLocation *time.Location
	// BackfillMissing creates clock state for open tickets that have none.
	BackfillMissing bool
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Evaluated  int           `json:"evaluated"`
	Backfilled int           `json:"backfilled"`
	Recorded   int           `json:"recorded"`
	Notified   int           `json:"notified"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Retried    int           `json:"retried"`
}

// NewBreachMonitor constructs the monitor.
func NewBreachMonitor(deps MonitorDependencies) *BreachMonitor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pool := deps.PoolSize
	if pool <= 0 {
		pool = 1
	}
	loc := deps.DedupLocation
	if loc == nil {
		loc = time.UTC
	}
	deduper := deps.Deduper
	if deduper == nil {
		deduper = repository.NewNoopBreachDeduper()
	}
	return &BreachMonitor{
		tickets:      deps.TicketRepo,
		states:       deps.StateRepo,
		breaches:     deps.BreachRepo,
		deduper:      deduper,
		clock:        deps.Clock,
		catalog:      deps.Catalog,
		dispatcher:   deps.Dispatcher,
		logger:       logger.Named("breach_monitor"),
		metrics:      deps.Metrics,
		warningRatio: deps.WarningRatio,
		poolSize:     pool,
		dedupLoc:     loc,
		backfill:     deps.BackfillMissing,
	}
}

type sweepCounters struct {
	evaluated, recorded, notified, failed, skipped atomic.Int64
}

// Sweep evaluates every tracked ticket at now. Only one sweep runs at a time; an
// overlapping call returns domain.ErrSweepInProgress without doing any work.
func (m *BreachMonitor) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	if !m.running.CompareAndSwap(false, true) {
		m.metrics.RecordSweep("skipped", 0, 0)
		return nil, domain.ErrSweepInProgress
	}
	defer m.running.Store(false)

	result := &SweepResult{StartedAt: now}
	start := time.Now()
	err := m.sweep(ctx, now, result)
	result.Duration = time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.logger.Error("sweep failed", zap.Error(err))
	}
	m.metrics.RecordSweep(outcome, result.Evaluated, result.Duration)
	m.logger.Info("sweep finished",
		zap.Int("evaluated", result.Evaluated),
		zap.Int("recorded", result.Recorded),
		zap.Int("notified", result.Notified),
		zap.Int("failed", result.Failed),
		zap.Int("retried", result.Retried),
		zap.Duration("duration", result.Duration))
	return result, err
}

func (m *BreachMonitor) sweep(ctx context.Context, now time.Time, result *SweepResult) error {
	if m.dispatcher != nil {
		delivered, failed, err := m.dispatcher.RetryPending(ctx)
		if err != nil {
			m.logger.Warn("retry pending escalations", zap.Error(err))
		}
		result.Retried = delivered
		result.Failed += failed
	}

	if m.backfill {
		backfilled, err := m.backfillMissing(ctx, now)
		if err != nil {
			m.logger.Warn("backfill sla state", zap.Error(err))
		}
		result.Backfilled = backfilled
	}

	states, err := m.states.ListTracked(ctx)
	if err != nil {
		return err
	}

	var counters sweepCounters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.poolSize)
	for _, state := range states {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			m.evaluate(gctx, state, now, &counters)
			return nil
		})
	}
	err = g.Wait()

	result.Evaluated = int(counters.evaluated.Load())
	result.Recorded = int(counters.recorded.Load())
	result.Notified = int(counters.notified.Load())
	result.Failed += int(counters.failed.Load())
	result.Skipped = int(counters.skipped.Load())
	return err
}

// evaluate classifies one ticket's open deadlines. Errors stay local to the ticket.
func (m *BreachMonitor) evaluate(ctx context.Context, state domain.TicketSLAState, now time.Time, counters *sweepCounters) {
	if !state.Tracks() {
		return
	}
	schedule, ok := m.catalog.Schedule(state.CalendarID)
	if !ok {
		counters.skipped.Add(1)
		m.logger.Warn("calendar missing for tracked ticket", zap.String("ticket_id", state.TicketID),
			zap.String("calendar_id", state.CalendarID))
		return
	}
	counters.evaluated.Add(1)

	type milestone struct {
		due         time.Time
		target      int
		approaching domain.BreachKind
		breached    domain.BreachKind
	}
	var milestones []milestone
	if state.FirstRespondedAt == nil {
		milestones = append(milestones, milestone{state.FirstResponseDueAt, state.FirstResponseMinutes,
			domain.BreachApproachingResponse, domain.BreachBreachedResponse})
	}
	milestones = append(milestones, milestone{state.ResolutionDueAt, state.ResolutionMinutes,
		domain.BreachApproachingResolution, domain.BreachBreachedResolution})

	for _, ms := range milestones {
		var kind domain.BreachKind
		switch classify(ms.due, remainingMinutes(schedule, ms.due, now), ms.target, m.warningRatio, now) {
		case MilestoneApproaching:
			kind = ms.approaching
		case MilestoneBreached:
			kind = ms.breached
		default:
			continue
		}

		event := domain.BreachEvent{
			TicketID: state.TicketID,
			PolicyID: state.PolicyID,
			Priority: state.Priority,
			Kind:     kind,
			DueAt:    ms.due,
			FiredOn:  now.In(m.dedupLoc).Format(time.DateOnly),
			FiredAt:  now,
		}
		if !m.record(ctx, &event) {
			continue
		}
		counters.recorded.Add(1)

		if m.dispatcher == nil {
			continue
		}
		sent, err := m.dispatcher.Dispatch(ctx, event)
		if err != nil {
			counters.failed.Add(1)
			var deliveryErr *domain.NotificationDeliveryError
			if !errors.As(err, &deliveryErr) {
				m.logger.Error("dispatch escalation", zap.String("ticket_id", event.TicketID), zap.Error(err))
			}
			continue
		}
		if sent {
			counters.notified.Add(1)
		}
	}
}

// record claims the dedup key and persists the event. It reports false when the event was
// already fired today or when dedup could not be checked; skipping beats a double notification.
func (m *BreachMonitor) record(ctx context.Context, event *domain.BreachEvent) bool {
	key := event.DedupKey()
	claimed, err := m.deduper.Claim(ctx, key)
	if err != nil {
		m.logger.Warn("dedup lookup failed; skipping breach", zap.String("key", key), zap.Error(err))
		return false
	}
	if !claimed {
		return false
	}

	inserted, err := m.breaches.Record(ctx, event)
	if err != nil {
		m.logger.Error("record breach event", zap.String("key", key), zap.Error(err))
		if relErr := m.deduper.Release(ctx, key); relErr != nil {
			m.logger.Warn("release dedup claim", zap.String("key", key), zap.Error(relErr))
		}
		return false
	}
	if !inserted {
		return false
	}
	m.metrics.RecordBreach(string(event.Kind))
	m.logger.Info("breach event recorded",
		zap.String("ticket_id", event.TicketID),
		zap.String("kind", string(event.Kind)),
		zap.Time("due_at", event.DueAt))
	return true
}

// backfillMissing creates clock state for open tickets the clock has never seen,
// e.g. tickets imported before the engine was deployed.
func (m *BreachMonitor) backfillMissing(ctx context.Context, now time.Time) (int, error) {
	if m.clock == nil {
		return 0, nil
	}
	tickets, err := m.tickets.ListOpen(ctx)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, ticket := range tickets {
		_, err := m.states.GetState(ctx, ticket.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrStateNotFound) {
			return created, err
		}
		if _, err := m.clock.OnCreate(ctx, ticket); err != nil {
			m.logger.Warn("backfill ticket", zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		if ticket.Status.IsHeld() {
			if _, err := m.clock.OnPause(ctx, ticket.ID, now); err != nil {
				m.logger.Warn("backfill pause", zap.String("ticket_id", ticket.ID), zap.Error(err))
			}
		}
		created++
	}
	if created > 0 {
		m.logger.Info("backfilled sla state", zap.Int("tickets", created))
	}
	return created, nil
}

// ListBreaches returns recorded breach events for reporting.
func (m *BreachMonitor) ListBreaches(ctx context.Context, filter domain.BreachFilter) ([]domain.BreachEvent, error) {
	return m.breaches.List(ctx, filter)
}

// Running reports whether a sweep is in progress.
func (m *BreachMonitor) Running() bool {
	return m.running.Load()
}
