package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/notify"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// Monday 4 March 2024, 09:00 UTC.
var monday = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 3, day, hour, minute, 0, 0, time.UTC)
}

func officeCalendar() domain.Calendar {
	cal := domain.Calendar{ID: "office", Name: "Office", Kind: domain.CalendarKindBusinessHours, Timezone: "UTC"}
	for _, day := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday} {
		cal.Windows = append(cal.Windows, domain.BusinessWindow{Weekday: day, OpenMinute: 9 * 60, CloseMinute: 17 * 60})
	}
	return cal
}

func targets(calendarID string, escalate bool, minutes map[domain.TicketPriority][2]int) map[domain.TicketPriority]domain.SLATarget {
	out := make(map[domain.TicketPriority]domain.SLATarget, len(minutes))
	for p, m := range minutes {
		out[p] = domain.SLATarget{Priority: p, FirstResponseMinutes: m[0], ResolutionMinutes: m[1], CalendarRef: calendarID, EscalationEnabled: escalate}
	}
	return out
}

func standardPolicy() domain.SLAPolicy {
	return domain.SLAPolicy{
		ID: "standard", Name: "Standard", IsDefault: true, IsActive: true, Position: 10,
		Targets: targets("office", true, map[domain.TicketPriority][2]int{
			domain.TicketPriorityLow:    {480, 2400},
			domain.TicketPriorityMedium: {240, 960},
			domain.TicketPriorityHigh:   {120, 480},
			domain.TicketPriorityUrgent: {60, 240},
		}),
	}
}

func vipPolicy() domain.SLAPolicy {
	return domain.SLAPolicy{
		ID: "vip", Name: "VIP", IsActive: true, Position: 1,
		Conditions: domain.PolicyConditions{Tags: []string{"vip"}},
		Targets: targets("always", true, map[domain.TicketPriority][2]int{
			domain.TicketPriorityLow:    {120, 960},
			domain.TicketPriorityMedium: {60, 480},
			domain.TicketPriorityHigh:   {30, 240},
			domain.TicketPriorityUrgent: {15, 120},
		}),
	}
}

func quietPolicy() domain.SLAPolicy {
	return domain.SLAPolicy{
		ID: "quiet", Name: "Internal", IsActive: true, Position: 2,
		Conditions: domain.PolicyConditions{DepartmentIDs: []string{"internal"}},
		Targets: targets("office", false, map[domain.TicketPriority][2]int{
			domain.TicketPriorityLow:    {480, 2400},
			domain.TicketPriorityMedium: {240, 960},
			domain.TicketPriorityHigh:   {120, 480},
			domain.TicketPriorityUrgent: {60, 240},
		}),
	}
}

type harness struct {
	store    *repository.MemoryStore
	catalog  *PolicyCatalog
	clock    *SLAClock
	notifier *fakeNotifier
}

type harnessOption func(*ClockDependencies)

func withMode(mode config.PriorityChangeMode) harnessOption {
	return func(d *ClockDependencies) { d.PriorityChangeMode = mode }
}

func lenient() harnessOption {
	return func(d *ClockDependencies) { d.Strict = false }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()

	office := officeCalendar()
	require.NoError(t, store.Calendars().SaveCalendar(ctx, &office))
	always := domain.Calendar{ID: "always", Name: "Always", Kind: domain.CalendarKindContinuous}
	require.NoError(t, store.Calendars().SaveCalendar(ctx, &always))
	for _, p := range []domain.SLAPolicy{standardPolicy(), vipPolicy(), quietPolicy()} {
		p := p
		require.NoError(t, store.Policies().SavePolicy(ctx, &p))
	}

	catalog, err := NewPolicyCatalog(ctx, CatalogDependencies{
		PolicyRepo:   store.Policies(),
		CalendarRepo: store.Calendars(),
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)

	deps := ClockDependencies{
		Catalog:      catalog,
		StateRepo:    store.States(),
		Logger:       zap.NewNop(),
		Strict:       true,
		WarningRatio: 0.15,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return &harness{store: store, catalog: catalog, clock: NewSLAClock(deps), notifier: &fakeNotifier{}}
}

func (h *harness) dispatcher(managers ...string) *EscalationDispatcher {
	return NewEscalationDispatcher(DispatcherDependencies{
		BreachRepo: h.store.Breaches(),
		TicketRepo: h.store.Tickets(),
		StaffRepo:  h.store.Staff(),
		Catalog:    h.catalog,
		Notifier:   h.notifier,
		ManagerIDs: managers,
		Timeout:    time.Second,
	})
}

func (h *harness) monitor(deduper repository.BreachDeduper) *BreachMonitor {
	return NewBreachMonitor(MonitorDependencies{
		TicketRepo:      h.store.Tickets(),
		StateRepo:       h.store.States(),
		BreachRepo:      h.store.Breaches(),
		Deduper:         deduper,
		Clock:           h.clock,
		Catalog:         h.catalog,
		Dispatcher:      h.dispatcher("mgr-1"),
		WarningRatio:    0.15,
		PoolSize:        4,
		BackfillMissing: true,
	})
}

func (h *harness) create(t *testing.T, ticket domain.Ticket) *domain.TicketSLAState {
	t.Helper()
	ctx := context.Background()
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusOpen
	}
	require.NoError(t, h.store.Tickets().Upsert(ctx, &ticket))
	state, err := h.clock.OnCreate(ctx, ticket)
	require.NoError(t, err)
	return state
}

func ticket(id string, priority domain.TicketPriority, created time.Time) domain.Ticket {
	return domain.Ticket{ID: id, Priority: priority, Status: domain.TicketStatusOpen, DepartmentID: "support", CreatedAt: created}
}

type notification struct {
	kind       domain.BreachKind
	ticketID   string
	recipients []string
	ctx        notify.Context
}

type fakeNotifier struct {
	mu    sync.Mutex
	err   error
	sent  []notification
	block chan struct{}
	entry chan struct{}
}

func (f *fakeNotifier) Notify(ctx context.Context, kind domain.BreachKind, ticketID string, recipients []string, nctx notify.Context) error {
	if f.entry != nil {
		f.entry <- struct{}{}
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, notification{kind: kind, ticketID: ticketID, recipients: recipients, ctx: nctx})
	return nil
}

func (f *fakeNotifier) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
