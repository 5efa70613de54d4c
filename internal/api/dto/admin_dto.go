package dto

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// CalendarRequest creates or replaces a calendar.
type CalendarRequest struct {
	Name     string                  `json:"name"`
	Kind     domain.CalendarKind     `json:"kind"`
	Timezone string                  `json:"timezone"`
	Windows  []domain.BusinessWindow `json:"windows"`
	Holidays []domain.Holiday        `json:"holidays"`
}

// CalendarResponse describes a stored calendar.
type CalendarResponse struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	Kind      domain.CalendarKind     `json:"kind"`
	Timezone  string                  `json:"timezone"`
	Windows   []domain.BusinessWindow `json:"windows"`
	Holidays  []domain.Holiday        `json:"holidays"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// TargetRequest accepts shorthand durations such as "30m", "4h" or "2d".
type TargetRequest struct {
	FirstResponse string `json:"first_response"`
	Resolution    string `json:"resolution"`
	Calendar      string `json:"calendar"`
	Escalation    bool   `json:"escalation"`
}

// PolicyRequest creates or replaces a policy. Targets are keyed by priority.
type PolicyRequest struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	IsDefault   bool                     `json:"is_default"`
	IsActive    *bool                    `json:"is_active"`
	Position    int                      `json:"position"`
	Conditions  domain.PolicyConditions  `json:"conditions"`
	Targets     map[string]TargetRequest `json:"targets"`
}

// SetActiveRequest toggles a policy.
type SetActiveRequest struct {
	Active *bool `json:"active"`
}

// TargetResponse renders a target with both raw minutes and shorthand.
type TargetResponse struct {
	Priority             domain.TicketPriority `json:"priority"`
	FirstResponseMinutes int                   `json:"first_response_minutes"`
	FirstResponse        string                `json:"first_response"`
	ResolutionMinutes    int                   `json:"resolution_minutes"`
	Resolution           string                `json:"resolution"`
	Calendar             string                `json:"calendar"`
	Escalation           bool                  `json:"escalation"`
}

// PolicyResponse describes a stored policy.
type PolicyResponse struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	IsDefault   bool                    `json:"is_default"`
	IsActive    bool                    `json:"is_active"`
	Position    int                     `json:"position"`
	Conditions  domain.PolicyConditions `json:"conditions"`
	Targets     []TargetResponse        `json:"targets"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}
