package dto

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// TicketPayload is the ticket snapshot sent by the ticket store.
type TicketPayload struct {
	ID           string                `json:"id"`
	ExternalKey  string                `json:"external_key"`
	DepartmentID string                `json:"department_id"`
	TeamID       *string               `json:"team_id"`
	AssigneeID   *string               `json:"assignee_id"`
	Status       domain.TicketStatus   `json:"status"`
	Priority     domain.TicketPriority `json:"priority"`
	Tags         []string              `json:"tags"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// TicketEventRequest is one lifecycle event. At defaults to the receive time.
type TicketEventRequest struct {
	Type        string                `json:"type"`
	Ticket      TicketPayload         `json:"ticket"`
	At          *time.Time            `json:"at"`
	OldStatus   domain.TicketStatus   `json:"old_status"`
	NewStatus   domain.TicketStatus   `json:"new_status"`
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
	ResponderID string                `json:"responder_id"`
}

// TicketEventResponse acknowledges an ingested event.
type TicketEventResponse struct {
	EventID  string `json:"event_id"`
	Type     string `json:"type"`
	TicketID string `json:"ticket_id"`
}
