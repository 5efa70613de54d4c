package dto

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// StaffRequest upserts an escalation contact.
type StaffRequest struct {
	Name         string           `json:"name"`
	Email        string           `json:"email"`
	Role         domain.StaffRole `json:"role"`
	DepartmentID *string          `json:"department_id"`
	TeamID       *string          `json:"team_id"`
	Active       *bool            `json:"active"`
}

// StaffResponse is returned to clients.
type StaffResponse struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Email        string           `json:"email,omitempty"`
	Role         domain.StaffRole `json:"role"`
	DepartmentID *string          `json:"department_id,omitempty"`
	TeamID       *string          `json:"team_id,omitempty"`
	Active       bool             `json:"active"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}
