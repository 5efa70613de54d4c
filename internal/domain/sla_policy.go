package domain

import (
	"slices"
	"time"
)

// SLATarget holds the deadlines a policy promises for one priority.
type SLATarget struct {
	Priority             TicketPriority `json:"priority"`
	FirstResponseMinutes int            `json:"first_response_minutes"`
	ResolutionMinutes    int            `json:"resolution_minutes"`
	CalendarRef          string         `json:"calendar_ref"`
	EscalationEnabled    bool           `json:"escalation_enabled"`
}

// PolicyConditions is the activation predicate of a policy. Fields are ANDed,
// values inside a field are ORed, and an empty field matches everything.
type PolicyConditions struct {
	Priorities    []TicketPriority `json:"priorities,omitempty" yaml:"priorities,omitempty"`
	DepartmentIDs []string         `json:"department_ids,omitempty" yaml:"department_ids,omitempty"`
	TeamIDs       []string         `json:"team_ids,omitempty" yaml:"team_ids,omitempty"`
	Tags          []string         `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Matches evaluates the predicate against a ticket.
func (c PolicyConditions) Matches(ticket Ticket) bool {
	if len(c.Priorities) > 0 && !slices.Contains(c.Priorities, ticket.Priority) {
		return false
	}
	if len(c.DepartmentIDs) > 0 && !slices.Contains(c.DepartmentIDs, ticket.DepartmentID) {
		return false
	}
	if len(c.TeamIDs) > 0 && (ticket.TeamID == nil || !slices.Contains(c.TeamIDs, *ticket.TeamID)) {
		return false
	}
	if len(c.Tags) > 0 {
		found := false
		for _, tag := range ticket.Tags {
			if slices.Contains(c.Tags, tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SLAPolicy groups per-priority targets behind an activation predicate.
type SLAPolicy struct {
	ID          string
	Name        string
	Description string
	IsDefault   bool
	IsActive    bool
	Position    int
	Conditions  PolicyConditions
	Targets     map[TicketPriority]SLATarget
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Target returns the target for a priority.
func (p SLAPolicy) Target(priority TicketPriority) (SLATarget, bool) {
	target, ok := p.Targets[priority]
	return target, ok
}
