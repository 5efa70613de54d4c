package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/calendar"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// PolicyCatalog resolves the SLA policy that governs a ticket. It caches the
// ordered policy list and compiled calendars in memory and rebuilds both on Reload.
type PolicyCatalog struct {
	policies  repository.PolicyRepository
	calendars repository.CalendarRepository
	registry  *calendar.Registry
	logger    *zap.Logger

	mu       sync.RWMutex
	snapshot catalogSnapshot
}

// CatalogDependencies bundles collaborators for the catalog.
type CatalogDependencies struct {
	PolicyRepo   repository.PolicyRepository
	CalendarRepo repository.CalendarRepository
	Registry     *calendar.Registry
	Logger       *zap.Logger
}

type catalogSnapshot struct {
	ordered       []domain.SLAPolicy
	byID          map[string]int
	defaultPolicy domain.SLAPolicy
}

// Resolution is the outcome of resolving a ticket: policy, target and calendar.
type Resolution struct {
	Policy   domain.SLAPolicy
	Target   domain.SLATarget
	Schedule *calendar.Schedule
	// FellBack is set when the policy's own target was unusable and the default's was taken.
	FellBack bool
}

// NewPolicyCatalog loads the catalog. It fails with *domain.NoApplicablePolicyError when the
// store has no usable default policy; callers must refuse to start SLA evaluation then.
func NewPolicyCatalog(ctx context.Context, deps CatalogDependencies) (*PolicyCatalog, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := deps.Registry
	if registry == nil {
		registry = calendar.NewRegistry(deps.CalendarRepo, logger)
	}
	c := &PolicyCatalog{
		policies:  deps.PolicyRepo,
		calendars: deps.CalendarRepo,
		registry:  registry,
		logger:    logger.Named("policy_catalog"),
	}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload rebuilds calendars and policies from storage. On failure the previous snapshot is kept.
func (c *PolicyCatalog) Reload(ctx context.Context) error {
	if err := c.registry.Reload(ctx); err != nil {
		return fmt.Errorf("reload calendars: %w", err)
	}
	policies, err := c.policies.ListPolicies(ctx)
	if err != nil {
		return fmt.Errorf("reload policies: %w", err)
	}
	snapshot, err := c.buildSnapshot(policies)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.snapshot = snapshot
	c.mu.Unlock()
	c.logger.Info("policy catalog loaded",
		zap.Int("policies", len(snapshot.ordered)),
		zap.String("default_policy", snapshot.defaultPolicy.ID))
	return nil
}

func (c *PolicyCatalog) buildSnapshot(policies []domain.SLAPolicy) (catalogSnapshot, error) {
	snapshot := catalogSnapshot{ordered: policies, byID: make(map[string]int, len(policies))}
	defaults := 0
	for i, policy := range policies {
		snapshot.byID[policy.ID] = i
		if policy.IsDefault {
			defaults++
			snapshot.defaultPolicy = policy
			continue
		}
		if err := c.checkTargets(policy); err != nil {
			c.logger.Warn("policy has unusable targets; default targets will be used",
				zap.String("policy_id", policy.ID), zap.Error(err))
		}
	}

	switch {
	case defaults == 0:
		return catalogSnapshot{}, &domain.NoApplicablePolicyError{Reason: "no default policy configured"}
	case defaults > 1:
		return catalogSnapshot{}, &domain.NoApplicablePolicyError{Reason: fmt.Sprintf("%d default policies configured", defaults)}
	case !snapshot.defaultPolicy.IsActive:
		return catalogSnapshot{}, &domain.NoApplicablePolicyError{Reason: "default policy " + snapshot.defaultPolicy.ID + " is inactive"}
	}
	if err := c.checkTargets(snapshot.defaultPolicy); err != nil {
		return catalogSnapshot{}, &domain.NoApplicablePolicyError{Reason: err.Error()}
	}
	return snapshot, nil
}

// checkTargets verifies that every priority has a positive target on a known calendar.
func (c *PolicyCatalog) checkTargets(policy domain.SLAPolicy) error {
	var problems []string
	for _, priority := range domain.AllPriorities {
		target, ok := policy.Target(priority)
		if !ok {
			problems = append(problems, fmt.Sprintf("missing %s target", priority))
			continue
		}
		if reason := c.targetProblem(target); reason != "" {
			problems = append(problems, fmt.Sprintf("%s: %s", priority, reason))
		}
	}
	if len(problems) > 0 {
		return &domain.InvalidPolicyError{PolicyID: policy.ID, Reason: strings.Join(problems, "; ")}
	}
	return nil
}

func (c *PolicyCatalog) targetProblem(target domain.SLATarget) string {
	switch {
	case target.FirstResponseMinutes <= 0:
		return "first response minutes must be positive"
	case target.ResolutionMinutes <= 0:
		return "resolution minutes must be positive"
	}
	if _, ok := c.registry.Get(target.CalendarRef); !ok {
		return "unknown calendar " + target.CalendarRef
	}
	return ""
}

func (c *PolicyCatalog) current() catalogSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Resolve returns the first active non-default policy whose conditions match the
// ticket, or the default policy. It never fails once the catalog is loaded.
func (c *PolicyCatalog) Resolve(ticket domain.Ticket) domain.SLAPolicy {
	snapshot := c.current()
	for _, policy := range snapshot.ordered {
		if policy.IsDefault || !policy.IsActive {
			continue
		}
		if policy.Conditions.Matches(ticket) {
			return policy
		}
	}
	return snapshot.defaultPolicy
}

// ResolveTarget resolves the policy for a ticket together with the target for its priority.
func (c *PolicyCatalog) ResolveTarget(ticket domain.Ticket) (Resolution, error) {
	return c.TargetFor(c.Resolve(ticket).ID, ticket.Priority)
}

// TargetFor returns the target and schedule a policy applies to a priority. A missing or
// malformed target falls back to the default policy's target for the same priority.
func (c *PolicyCatalog) TargetFor(policyID string, priority domain.TicketPriority) (Resolution, error) {
	snapshot := c.current()
	policy := snapshot.defaultPolicy
	if idx, ok := snapshot.byID[policyID]; ok {
		policy = snapshot.ordered[idx]
	} else {
		c.logger.Warn("policy no longer in catalog; using default", zap.String("policy_id", policyID))
	}

	if target, ok := policy.Target(priority); ok && c.targetProblem(target) == "" {
		schedule, _ := c.registry.Get(target.CalendarRef)
		return Resolution{Policy: policy, Target: target, Schedule: schedule}, nil
	}

	fallback, ok := snapshot.defaultPolicy.Target(priority)
	if !ok || c.targetProblem(fallback) != "" {
		return Resolution{}, fmt.Errorf("%w: default policy has no usable %s target", domain.ErrInvariant, priority)
	}
	if !policy.IsDefault {
		c.logger.Warn("falling back to default policy target",
			zap.String("policy_id", policy.ID),
			zap.String("priority", string(priority)))
	}
	schedule, _ := c.registry.Get(fallback.CalendarRef)
	return Resolution{Policy: policy, Target: fallback, Schedule: schedule, FellBack: true}, nil
}

// Schedule returns a compiled calendar by id.
func (c *PolicyCatalog) Schedule(calendarID string) (*calendar.Schedule, bool) {
	return c.registry.Get(calendarID)
}

// Policies returns the catalog in evaluation order.
func (c *PolicyCatalog) Policies() []domain.SLAPolicy {
	snapshot := c.current()
	return append([]domain.SLAPolicy(nil), snapshot.ordered...)
}

// Policy looks up a cached policy.
func (c *PolicyCatalog) Policy(id string) (domain.SLAPolicy, bool) {
	snapshot := c.current()
	idx, ok := snapshot.byID[id]
	if !ok {
		return domain.SLAPolicy{}, false
	}
	return snapshot.ordered[idx], true
}

// DefaultPolicy returns the fallback policy.
func (c *PolicyCatalog) DefaultPolicy() domain.SLAPolicy {
	return c.current().defaultPolicy
}

// SetActive toggles a policy. Tickets already bound to it keep their due dates;
// only later resolutions see the change. Deactivating the default is rejected.
func (c *PolicyCatalog) SetActive(ctx context.Context, id string, active bool) error {
	policy, ok := c.Policy(id)
	if !ok {
		return domain.ErrPolicyNotFound
	}
	if policy.IsDefault && !active {
		return &domain.InvalidPolicyError{PolicyID: id, Reason: "the default policy must stay active"}
	}
	if err := c.policies.SetPolicyActive(ctx, id, active); err != nil {
		return err
	}
	c.logger.Info("policy active flag changed", zap.String("policy_id", id), zap.Bool("active", active))
	return c.Reload(ctx)
}

// SavePolicy validates and stores a policy, then reloads the catalog.
func (c *PolicyCatalog) SavePolicy(ctx context.Context, policy *domain.SLAPolicy) error {
	if strings.TrimSpace(policy.Name) == "" {
		return &domain.InvalidPolicyError{PolicyID: policy.ID, Reason: "name is required"}
	}
	for _, priority := range policy.Conditions.Priorities {
		if !priority.IsValid() {
			return &domain.InvalidPolicyError{PolicyID: policy.ID, Reason: "unknown priority " + string(priority)}
		}
	}
	for key, target := range policy.Targets {
		target.Priority = key
		policy.Targets[key] = target
	}
	if err := c.checkTargets(*policy); err != nil {
		return err
	}
	if policy.IsDefault && !policy.IsActive {
		return &domain.InvalidPolicyError{PolicyID: policy.ID, Reason: "the default policy must stay active"}
	}

	current := c.DefaultPolicy()
	switch {
	case policy.IsDefault && current.ID != "" && current.ID != policy.ID:
		return &domain.InvalidPolicyError{PolicyID: policy.ID, Reason: "policy " + current.ID + " is already the default"}
	case !policy.IsDefault && current.ID == policy.ID && policy.ID != "":
		return &domain.InvalidPolicyError{PolicyID: policy.ID, Reason: "the catalog needs a default policy"}
	}

	if err := c.policies.SavePolicy(ctx, policy); err != nil {
		return err
	}
	return c.Reload(ctx)
}

// SaveCalendar validates and stores a calendar, then reloads the catalog. Invalid
// calendars are rejected here so evaluation never sees them.
func (c *PolicyCatalog) SaveCalendar(ctx context.Context, cal *domain.Calendar) error {
	if strings.TrimSpace(cal.Name) == "" {
		return &domain.InvalidCalendarError{CalendarID: cal.ID, Reason: "name is required"}
	}
	if err := calendar.Validate(*cal); err != nil {
		return err
	}
	if err := c.calendars.SaveCalendar(ctx, cal); err != nil {
		return err
	}
	return c.Reload(ctx)
}

// Calendar returns a stored calendar.
func (c *PolicyCatalog) Calendar(ctx context.Context, id string) (*domain.Calendar, error) {
	return c.calendars.GetCalendar(ctx, id)
}

// Calendars lists stored calendars.
func (c *PolicyCatalog) Calendars(ctx context.Context) ([]domain.Calendar, error) {
	return c.calendars.ListCalendars(ctx)
}

// IsConfigError reports whether err rejects a catalog edit rather than a storage failure.
func IsConfigError(err error) bool {
	var (
		invalidCal    *domain.InvalidCalendarError
		invalidPolicy *domain.InvalidPolicyError
		noPolicy      *domain.NoApplicablePolicyError
	)
	return errors.As(err, &invalidCal) || errors.As(err, &invalidPolicy) || errors.As(err, &noPolicy)
}
