package domain

import "time"

// StaffRole enumerates roles the escalation path cares about.
type StaffRole string

const (
	StaffRoleAgent    StaffRole = "AGENT"
	StaffRoleTeamLead StaffRole = "TEAM_LEAD"
	StaffRoleManager  StaffRole = "MANAGER"
)

// IsValid reports whether the role is known.
func (r StaffRole) IsValid() bool {
	switch r {
	case StaffRoleAgent, StaffRoleTeamLead, StaffRoleManager:
		return true
	}
	return false
}

// StaffMember is an escalation contact mirrored from the ticket store. Team leads hear
// about breaches on their team's tickets; managers about their department's.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	Role         StaffRole
	DepartmentID *string
	TeamID       *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EscalatesFor reports whether the member should hear about a breach on ticket.
func (s StaffMember) EscalatesFor(ticket Ticket) bool {
	if !s.Active {
		return false
	}
	switch s.Role {
	case StaffRoleTeamLead:
		return s.TeamID != nil && ticket.TeamID != nil && *s.TeamID == *ticket.TeamID
	case StaffRoleManager:
		return s.DepartmentID != nil && ticket.DepartmentID != "" && *s.DepartmentID == ticket.DepartmentID
	}
	return false
}
