package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// MemoryStore keeps every SLA table in process. It backs tests and runs
// without POSTGRES_DSN.
type MemoryStore struct {
	mu        sync.RWMutex
	tickets   map[string]domain.Ticket
	calendars map[string]domain.Calendar
	policies  map[string]domain.SLAPolicy
	states    map[string]domain.TicketSLAState
	breaches  []domain.BreachEvent
	staff     map[string]domain.StaffMember
	seq       int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:   make(map[string]domain.Ticket),
		calendars: make(map[string]domain.Calendar),
		policies:  make(map[string]domain.SLAPolicy),
		states:    make(map[string]domain.TicketSLAState),
		staff:     make(map[string]domain.StaffMember),
	}
}

// Tickets exposes the ticket mirror.
func (m *MemoryStore) Tickets() TicketRepository { return memoryTickets{m} }

// Calendars exposes calendar storage.
func (m *MemoryStore) Calendars() CalendarRepository { return memoryCalendars{m} }

// Policies exposes policy storage.
func (m *MemoryStore) Policies() PolicyRepository { return memoryPolicies{m} }

// States exposes SLA state storage.
func (m *MemoryStore) States() SLAStateRepository { return memoryStates{m} }

// Breaches exposes breach storage.
func (m *MemoryStore) Breaches() BreachRepository { return memoryBreaches{m} }

// Staff exposes escalation contacts.
func (m *MemoryStore) Staff() StaffRepository { return memoryStaff{m} }

func (m *MemoryStore) now() time.Time {
	m.seq++
	return time.Now().UTC().Add(time.Duration(m.seq) * time.Microsecond)
}

type memoryTickets struct{ m *MemoryStore }

func (r memoryTickets) Upsert(_ context.Context, ticket *domain.Ticket) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	ticket.UpdatedAt = r.m.now()
	stored := *ticket
	stored.Tags = slices.Clone(ticket.Tags)
	r.m.tickets[ticket.ID] = stored
	return nil
}

func (r memoryTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	ticket, ok := r.m.tickets[id]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	ticket.Tags = slices.Clone(ticket.Tags)
	return &ticket, nil
}

func (r memoryTickets) ListOpen(_ context.Context) ([]domain.Ticket, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var result []domain.Ticket
	for _, ticket := range r.m.tickets {
		if ticket.Status.IsTerminal() {
			continue
		}
		ticket.Tags = slices.Clone(ticket.Tags)
		result = append(result, ticket)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

type memoryCalendars struct{ m *MemoryStore }

func (r memoryCalendars) ListCalendars(_ context.Context) ([]domain.Calendar, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	result := make([]domain.Calendar, 0, len(r.m.calendars))
	for _, cal := range r.m.calendars {
		result = append(result, cloneCalendar(cal))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r memoryCalendars) GetCalendar(_ context.Context, id string) (*domain.Calendar, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	cal, ok := r.m.calendars[id]
	if !ok {
		return nil, domain.ErrCalendarNotFound
	}
	cal = cloneCalendar(cal)
	return &cal, nil
}

func (r memoryCalendars) SaveCalendar(_ context.Context, cal *domain.Calendar) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if cal.ID == "" {
		cal.ID = uuid.NewString()
	}
	now := r.m.now()
	if existing, ok := r.m.calendars[cal.ID]; ok {
		cal.CreatedAt = existing.CreatedAt
	} else {
		cal.CreatedAt = now
	}
	cal.UpdatedAt = now
	r.m.calendars[cal.ID] = cloneCalendar(*cal)
	return nil
}

func cloneCalendar(cal domain.Calendar) domain.Calendar {
	cal.Windows = slices.Clone(cal.Windows)
	cal.Holidays = slices.Clone(cal.Holidays)
	return cal
}

type memoryPolicies struct{ m *MemoryStore }

func (r memoryPolicies) ListPolicies(_ context.Context) ([]domain.SLAPolicy, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	result := make([]domain.SLAPolicy, 0, len(r.m.policies))
	for _, policy := range r.m.policies {
		result = append(result, clonePolicy(policy))
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return result, nil
}

func (r memoryPolicies) GetPolicy(_ context.Context, id string) (*domain.SLAPolicy, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	policy, ok := r.m.policies[id]
	if !ok {
		return nil, domain.ErrPolicyNotFound
	}
	policy = clonePolicy(policy)
	return &policy, nil
}

func (r memoryPolicies) SavePolicy(_ context.Context, policy *domain.SLAPolicy) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	now := r.m.now()
	if existing, ok := r.m.policies[policy.ID]; ok {
		policy.CreatedAt = existing.CreatedAt
	} else {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now
	r.m.policies[policy.ID] = clonePolicy(*policy)
	return nil
}

func (r memoryPolicies) SetPolicyActive(_ context.Context, id string, active bool) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	policy, ok := r.m.policies[id]
	if !ok {
		return domain.ErrPolicyNotFound
	}
	policy.IsActive = active
	policy.UpdatedAt = r.m.now()
	r.m.policies[id] = policy
	return nil
}

func clonePolicy(policy domain.SLAPolicy) domain.SLAPolicy {
	targets := make(map[domain.TicketPriority]domain.SLATarget, len(policy.Targets))
	for k, v := range policy.Targets {
		targets[k] = v
	}
	policy.Targets = targets
	policy.Conditions = domain.PolicyConditions{
		Priorities:    slices.Clone(policy.Conditions.Priorities),
		DepartmentIDs: slices.Clone(policy.Conditions.DepartmentIDs),
		TeamIDs:       slices.Clone(policy.Conditions.TeamIDs),
		Tags:          slices.Clone(policy.Conditions.Tags),
	}
	return policy
}

type memoryStates struct{ m *MemoryStore }

func (r memoryStates) GetState(_ context.Context, ticketID string) (*domain.TicketSLAState, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	state, ok := r.m.states[ticketID]
	if !ok {
		return nil, domain.ErrStateNotFound
	}
	return &state, nil
}

func (r memoryStates) SaveState(_ context.Context, state *domain.TicketSLAState) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	state.UpdatedAt = r.m.now()
	r.m.states[state.TicketID] = *state
	return nil
}

func (r memoryStates) ListTracked(_ context.Context) ([]domain.TicketSLAState, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var result []domain.TicketSLAState
	for _, state := range r.m.states {
		if state.Tracks() {
			result = append(result, state)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ResolutionDueAt.Equal(result[j].ResolutionDueAt) {
			return result[i].TicketID < result[j].TicketID
		}
		return result[i].ResolutionDueAt.Before(result[j].ResolutionDueAt)
	})
	return result, nil
}

type memoryBreaches struct{ m *MemoryStore }

func (r memoryBreaches) Record(_ context.Context, event *domain.BreachEvent) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	key := event.DedupKey()
	for _, existing := range r.m.breaches {
		if existing.DedupKey() == key {
			return false, nil
		}
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	r.m.breaches = append(r.m.breaches, *event)
	return true, nil
}

func (r memoryBreaches) ListPending(_ context.Context, limit int) ([]domain.BreachEvent, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var result []domain.BreachEvent
	for _, event := range r.m.breaches {
		if event.Notified || event.Suppressed {
			continue
		}
		result = append(result, event)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (r memoryBreaches) MarkNotified(_ context.Context, id string, at time.Time) error {
	return r.mutate(id, func(e *domain.BreachEvent) {
		e.Notified = true
		e.NotifiedAt = &at
		e.Attempts++
		e.LastError = ""
	})
}

func (r memoryBreaches) MarkSuppressed(_ context.Context, id string) error {
	return r.mutate(id, func(e *domain.BreachEvent) { e.Suppressed = true })
}

func (r memoryBreaches) RecordFailure(_ context.Context, id string, reason string) error {
	return r.mutate(id, func(e *domain.BreachEvent) {
		e.Attempts++
		e.LastError = reason
	})
}

func (r memoryBreaches) mutate(id string, fn func(*domain.BreachEvent)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i := range r.m.breaches {
		if r.m.breaches[i].ID == id {
			fn(&r.m.breaches[i])
			return nil
		}
	}
	return fmt.Errorf("breach event %s not found", id)
}

func (r memoryBreaches) List(_ context.Context, filter domain.BreachFilter) ([]domain.BreachEvent, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var result []domain.BreachEvent
	for i := len(r.m.breaches) - 1; i >= 0; i-- {
		event := r.m.breaches[i]
		if filter.TicketID != nil && event.TicketID != *filter.TicketID {
			continue
		}
		if len(filter.Kinds) > 0 && !slices.Contains(filter.Kinds, event.Kind) {
			continue
		}
		if filter.From != nil && event.FiredAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !event.FiredAt.Before(*filter.To) {
			continue
		}
		if filter.Notified != nil && event.Notified != *filter.Notified {
			continue
		}
		result = append(result, event)
	}
	if filter.Offset >= len(result) {
		return nil, nil
	}
	result = result[filter.Offset:]
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type memoryStaff struct{ m *MemoryStore }

func (r memoryStaff) Upsert(_ context.Context, staff *domain.StaffMember) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	now := r.m.now()
	if existing, ok := r.m.staff[staff.ID]; ok {
		staff.CreatedAt = existing.CreatedAt
	} else {
		staff.CreatedAt = now
	}
	staff.UpdatedAt = now
	r.m.staff[staff.ID] = *staff
	return nil
}

func (r memoryStaff) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	staff, ok := r.m.staff[id]
	if !ok {
		return nil, domain.ErrStaffNotFound
	}
	return &staff, nil
}

func (r memoryStaff) List(_ context.Context, filter StaffFilter) ([]domain.StaffMember, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var result []domain.StaffMember
	for _, staff := range r.m.staff {
		if filter.Role != nil && staff.Role != *filter.Role {
			continue
		}
		if filter.TeamID != nil && (staff.TeamID == nil || *staff.TeamID != *filter.TeamID) {
			continue
		}
		if filter.DepartmentID != nil && (staff.DepartmentID == nil || *staff.DepartmentID != *filter.DepartmentID) {
			continue
		}
		if filter.Active != nil && staff.Active != *filter.Active {
			continue
		}
		result = append(result, staff)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r memoryStaff) ListEscalationContacts(_ context.Context, departmentID string, teamID *string) ([]domain.StaffMember, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	ticket := domain.Ticket{DepartmentID: departmentID, TeamID: teamID}
	var result []domain.StaffMember
	for _, staff := range r.m.staff {
		if staff.EscalatesFor(ticket) {
			result = append(result, staff)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
