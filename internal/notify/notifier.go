// Package notify delivers SLA escalations to agents and managers.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// Context is the structured payload handed to every notifier.
type Context struct {
	EventID     string                `json:"event_id"`
	TicketID    string                `json:"ticket_id"`
	ExternalKey string                `json:"external_key,omitempty"`
	PolicyID    string                `json:"policy_id"`
	Priority    domain.TicketPriority `json:"priority"`
	Kind        domain.BreachKind     `json:"kind"`
	DueAt       time.Time             `json:"due_at"`
	FiredAt     time.Time             `json:"fired_at"`
	AssigneeID  *string               `json:"assignee_id,omitempty"`
}

// Notifier sends one escalation to the given recipients.
type Notifier interface {
	Notify(ctx context.Context, kind domain.BreachKind, ticketID string, recipientIDs []string, nctx Context) error
}

// Multi fans a notification out to every notifier. All are attempted; failures are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, kind domain.BreachKind, ticketID string, recipientIDs []string, nctx Context) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, kind, ticketID, recipientIDs, nctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type message struct {
	Kind         domain.BreachKind `json:"kind"`
	TicketID     string            `json:"ticket_id"`
	RecipientIDs []string          `json:"recipient_ids"`
	Context      Context           `json:"context"`
}
