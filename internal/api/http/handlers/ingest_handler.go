package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// IngestHandler receives ticket lifecycle events from the ticket store.
type IngestHandler struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewIngestHandler constructs handler.
func NewIngestHandler(dispatcher events.Dispatcher, logger *zap.Logger) *IngestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestHandler{dispatcher: dispatcher, logger: logger.Named("ingest"), now: time.Now}
}

// TicketEvent POST /ingest/tickets/events.
func (h *IngestHandler) TicketEvent(c *fiber.Ctx) error {
	var req dto.TicketEventRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	event, err := h.toEvent(req)
	if err != nil {
		return err
	}

	if err := h.dispatcher.Publish(c.UserContext(), event); err != nil {
		h.logger.Warn("ticket event rejected",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
		return mapServiceError(err)
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": dto.TicketEventResponse{
		EventID:  event.ID,
		Type:     string(event.Type),
		TicketID: event.TicketID,
	}})
}

func (h *IngestHandler) toEvent(req dto.TicketEventRequest) (events.Event, error) {
	eventType := events.EventType(req.Type)
	if !eventType.IsValid() {
		return events.Event{}, apperrors.NewValidationError("unknown event type", map[string]any{"type": req.Type})
	}
	if req.Ticket.ID == "" {
		return events.Event{}, apperrors.NewValidationError("ticket.id required", nil)
	}
	at := h.now().UTC()
	if req.At != nil {
		at = *req.At
	}
	ticket := domain.Ticket{
		ID:           req.Ticket.ID,
		ExternalKey:  req.Ticket.ExternalKey,
		DepartmentID: req.Ticket.DepartmentID,
		TeamID:       req.Ticket.TeamID,
		AssigneeID:   req.Ticket.AssigneeID,
		Status:       req.Ticket.Status,
		Priority:     req.Ticket.Priority,
		Tags:         req.Ticket.Tags,
		CreatedAt:    req.Ticket.CreatedAt,
		UpdatedAt:    req.Ticket.UpdatedAt,
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = at
	}
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusOpen
	}
	if !ticket.Status.IsValid() {
		return events.Event{}, apperrors.NewValidationError("unknown ticket status", map[string]any{"status": ticket.Status})
	}
	if !ticket.Priority.IsValid() {
		return events.Event{}, apperrors.NewValidationError("unknown ticket priority", map[string]any{"priority": ticket.Priority})
	}

	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticket.ID,
		Ticket:    ticket,
		Timestamp: at,
	}
	switch eventType {
	case events.EventTicketStatusChanged:
		if !req.OldStatus.IsValid() || !req.NewStatus.IsValid() {
			return events.Event{}, apperrors.NewValidationError("old_status and new_status required", nil)
		}
		event.Payload = events.TicketStatusChangedPayload{OldStatus: req.OldStatus, NewStatus: req.NewStatus}
	case events.EventTicketPriorityChanged:
		newPriority := req.NewPriority
		if newPriority == "" {
			newPriority = ticket.Priority
		}
		if !newPriority.IsValid() {
			return events.Event{}, apperrors.NewValidationError("unknown new_priority", map[string]any{"new_priority": req.NewPriority})
		}
		event.Payload = events.TicketPriorityChangedPayload{OldPriority: req.OldPriority, NewPriority: newPriority}
	case events.EventTicketFirstResponse:
		event.Payload = events.TicketFirstResponsePayload{ResponderID: req.ResponderID}
	}
	return event, nil
}
