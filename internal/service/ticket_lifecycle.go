package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// TicketLifecycle turns ticket store events into SLA clock transitions and keeps the
// ticket mirror that the breach monitor reads open tickets from.
type TicketLifecycle struct {
	tickets repository.TicketRepository
	clock   *SLAClock
	logger  *zap.Logger
}

// NewTicketLifecycle constructs the handler set.
func NewTicketLifecycle(tickets repository.TicketRepository, clock *SLAClock, logger *zap.Logger) *TicketLifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketLifecycle{tickets: tickets, clock: clock, logger: logger.Named("ticket_lifecycle")}
}

// RegisterHandlers subscribes to ticket events.
func (l *TicketLifecycle) RegisterHandlers(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventTicketCreated, l.handleTicketCreated)
	dispatcher.Subscribe(events.EventTicketPriorityChanged, l.handleTicketPriorityChanged)
	dispatcher.Subscribe(events.EventTicketStatusChanged, l.handleTicketStatusChanged)
	dispatcher.Subscribe(events.EventTicketFirstResponse, l.handleTicketFirstResponse)
}

func (l *TicketLifecycle) handleTicketCreated(ctx context.Context, event events.Event) error {
	ticket := event.Ticket
	if err := l.tickets.Upsert(ctx, &ticket); err != nil {
		return err
	}
	if _, err := l.clock.OnCreate(ctx, ticket); err != nil {
		return err
	}
	// Tickets may be born in a held or terminal status.
	return l.applyStatus(ctx, ticket.ID, domain.TicketStatusOpen, ticket.Status, event.Timestamp)
}

func (l *TicketLifecycle) handleTicketPriorityChanged(ctx context.Context, event events.Event) error {
	ticket := event.Ticket
	if payload, ok := event.Payload.(events.TicketPriorityChangedPayload); ok && payload.NewPriority != "" {
		ticket.Priority = payload.NewPriority
	}
	if err := l.tickets.Upsert(ctx, &ticket); err != nil {
		return err
	}
	_, err := l.clock.OnPriorityOrPolicyChange(ctx, ticket, event.Timestamp)
	return err
}

func (l *TicketLifecycle) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return fmt.Errorf("status change for ticket %s without status payload", event.TicketID)
	}
	ticket := event.Ticket
	ticket.Status = payload.NewStatus
	if err := l.tickets.Upsert(ctx, &ticket); err != nil {
		return err
	}
	if err := l.ensureState(ctx, ticket); err != nil {
		return err
	}
	return l.applyStatus(ctx, ticket.ID, payload.OldStatus, payload.NewStatus, event.Timestamp)
}

func (l *TicketLifecycle) handleTicketFirstResponse(ctx context.Context, event events.Event) error {
	if event.Ticket.ID != "" {
		if err := l.ensureState(ctx, event.Ticket); err != nil {
			return err
		}
	}
	_, err := l.clock.OnFirstResponse(ctx, event.TicketID, event.Timestamp)
	return err
}

// ensureState creates clock state for tickets first seen through a later event.
// OnCreate is a no-op for tickets that already have one.
func (l *TicketLifecycle) ensureState(ctx context.Context, ticket domain.Ticket) error {
	_, err := l.clock.OnCreate(ctx, ticket)
	return err
}

// applyStatus maps a status transition onto the clock: held statuses pause, terminal
// statuses resolve, and leaving either resumes or reopens.
func (l *TicketLifecycle) applyStatus(ctx context.Context, ticketID string, from, to domain.TicketStatus, at time.Time) error {
	if from == to {
		return nil
	}
	var err error
	switch {
	case to.IsTerminal():
		_, err = l.clock.OnResolve(ctx, ticketID, at)
	case from.IsTerminal():
		if _, err = l.clock.OnReopen(ctx, ticketID, at); err == nil && to.IsHeld() {
			_, err = l.clock.OnPause(ctx, ticketID, at)
		}
	case to.IsHeld() && !from.IsHeld():
		_, err = l.clock.OnPause(ctx, ticketID, at)
	case from.IsHeld() && !to.IsHeld():
		_, err = l.clock.OnResume(ctx, ticketID, at)
	default:
		l.logger.Debug("status change does not affect sla clock", zap.String("ticket_id", ticketID),
			zap.String("from", string(from)), zap.String("to", string(to)))
	}
	return err
}
