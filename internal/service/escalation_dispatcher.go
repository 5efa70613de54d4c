package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/notify"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/repository"
)

const pendingBatchSize = 500

// EscalationDispatcher delivers breach events to the notifier. An event is marked
// notified only after a successful delivery, so failed events are picked up again by
// RetryPending on the next sweep.
type EscalationDispatcher struct {
	breaches   repository.BreachRepository
	tickets    repository.TicketRepository
	staff      repository.StaffRepository
	catalog    *PolicyCatalog
	notifier   notify.Notifier
	managerIDs []string
	timeout    time.Duration
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// DispatcherDependencies bundles collaborators for the dispatcher.
type DispatcherDependencies struct {
	BreachRepo repository.BreachRepository
	TicketRepo repository.TicketRepository
	// StaffRepo is optional; when set, team leads and department managers join ManagerIDs.
	StaffRepo  repository.StaffRepository
	Catalog    *PolicyCatalog
	Notifier   notify.Notifier
	ManagerIDs []string
	Timeout    time.Duration
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewEscalationDispatcher constructs the dispatcher.
func NewEscalationDispatcher(deps DispatcherDependencies) *EscalationDispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EscalationDispatcher{
		breaches:   deps.BreachRepo,
		tickets:    deps.TicketRepo,
		staff:      deps.StaffRepo,
		catalog:    deps.Catalog,
		notifier:   deps.Notifier,
		managerIDs: deps.ManagerIDs,
		timeout:    timeout,
		logger:     logger.Named("escalation"),
		metrics:    deps.Metrics,
	}
}

// Dispatch delivers one event and reports whether a notification went out. Events whose
// target has escalation disabled are marked suppressed and never retried. Delivery
// failures return *domain.NotificationDeliveryError.
func (d *EscalationDispatcher) Dispatch(ctx context.Context, event domain.BreachEvent) (bool, error) {
	resolution, err := d.catalog.TargetFor(event.PolicyID, event.Priority)
	if err != nil {
		return false, err
	}
	if !resolution.Target.EscalationEnabled {
		d.metrics.RecordNotification("suppressed")
		d.logger.Debug("escalation disabled for target",
			zap.String("ticket_id", event.TicketID),
			zap.String("policy_id", event.PolicyID),
			zap.String("kind", string(event.Kind)))
		return false, d.breaches.MarkSuppressed(ctx, event.ID)
	}

	ticket, err := d.tickets.GetByID(ctx, event.TicketID)
	if err != nil && !errors.Is(err, domain.ErrTicketNotFound) {
		return false, err
	}
	nctx := notify.Context{
		EventID:  event.ID,
		TicketID: event.TicketID,
		PolicyID: event.PolicyID,
		Priority: event.Priority,
		Kind:     event.Kind,
		DueAt:    event.DueAt,
		FiredAt:  event.FiredAt,
	}
	if ticket != nil {
		nctx.ExternalKey = ticket.ExternalKey
		nctx.AssigneeID = ticket.AssigneeID
	}
	recipients := d.recipients(event.Kind, nctx.AssigneeID, d.escalationContacts(ctx, ticket))

	deliverCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.notifier.Notify(deliverCtx, event.Kind, event.TicketID, recipients, nctx); err != nil {
		d.metrics.RecordNotification("failed")
		deliveryErr := &domain.NotificationDeliveryError{TicketID: event.TicketID, Kind: event.Kind, Err: err}
		if recErr := d.breaches.RecordFailure(ctx, event.ID, err.Error()); recErr != nil {
			d.logger.Error("record delivery failure", zap.String("event_id", event.ID), zap.Error(recErr))
		}
		d.logger.Warn("escalation delivery failed; will retry next sweep",
			zap.String("ticket_id", event.TicketID),
			zap.String("kind", string(event.Kind)),
			zap.Int("attempt", event.Attempts+1),
			zap.Error(err))
		return false, deliveryErr
	}

	d.metrics.RecordNotification("delivered")
	return true, d.breaches.MarkNotified(ctx, event.ID, time.Now().UTC())
}

// RetryPending redelivers events left unnotified by earlier sweeps. Failures are isolated
// per event; only listing errors are returned.
func (d *EscalationDispatcher) RetryPending(ctx context.Context) (delivered, failed int, err error) {
	pending, err := d.breaches.ListPending(ctx, pendingBatchSize)
	if err != nil {
		return 0, 0, err
	}
	for _, event := range pending {
		if ctx.Err() != nil {
			return delivered, failed, ctx.Err()
		}
		sent, err := d.Dispatch(ctx, event)
		if err != nil {
			failed++
			var deliveryErr *domain.NotificationDeliveryError
			if !errors.As(err, &deliveryErr) {
				d.logger.Error("retry escalation", zap.String("event_id", event.ID), zap.Error(err))
			}
			continue
		}
		if sent {
			delivered++
		}
	}
	return delivered, failed, nil
}

// recipients picks who hears about a breach: the assignee for warnings (managers when
// nobody is assigned), the assignee and every manager once a deadline is missed.
func (d *EscalationDispatcher) recipients(kind domain.BreachKind, assigneeID *string, contacts []string) []string {
	var out []string
	if assigneeID != nil && *assigneeID != "" {
		out = append(out, *assigneeID)
	}
	if kind.IsBreached() || len(out) == 0 {
		for _, id := range slices.Concat(d.managerIDs, contacts) {
			if !slices.Contains(out, id) {
				out = append(out, id)
			}
		}
	}
	return out
}

// escalationContacts looks up the team leads and department managers of ticket. A lookup
// failure only narrows the audience to the configured managers.
func (d *EscalationDispatcher) escalationContacts(ctx context.Context, ticket *domain.Ticket) []string {
	if d.staff == nil || ticket == nil {
		return nil
	}
	contacts, err := d.staff.ListEscalationContacts(ctx, ticket.DepartmentID, ticket.TeamID)
	if err != nil {
		d.logger.Warn("escalation contact lookup failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return nil
	}
	ids := make([]string, 0, len(contacts))
	for _, contact := range contacts {
		ids = append(ids, contact.ID)
	}
	return ids
}
