package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/service"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// SLAHandler exposes ticket SLA views, policy previews and breach reporting.
type SLAHandler struct {
	clock   *service.SLAClock
	catalog *service.PolicyCatalog
	monitor *service.BreachMonitor
	now     func() time.Time
}

// NewSLAHandler constructs handler.
func NewSLAHandler(clock *service.SLAClock, catalog *service.PolicyCatalog, monitor *service.BreachMonitor) *SLAHandler {
	return &SLAHandler{clock: clock, catalog: catalog, monitor: monitor, now: time.Now}
}

// GetTicketSLA GET /sla/tickets/:id.
func (h *SLAHandler) GetTicketSLA(c *fiber.Ctx) error {
	view, err := h.clock.View(c.UserContext(), c.Params("id"), h.now())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"data": slaStateResponse(view)})
}

// ResolvePolicy POST /sla/policies/resolve.
func (h *SLAHandler) ResolvePolicy(c *fiber.Ctx) error {
	var req dto.ResolvePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if !req.Priority.IsValid() {
		return apperrors.NewValidationError("valid priority required", map[string]any{"priority": req.Priority})
	}
	created := h.now()
	if req.CreatedAt != nil {
		created = *req.CreatedAt
	}
	ticket := domain.Ticket{
		DepartmentID: req.DepartmentID,
		TeamID:       req.TeamID,
		Priority:     req.Priority,
		Tags:         req.Tags,
		CreatedAt:    created,
	}

	resolution, err := h.catalog.ResolveTarget(ticket)
	if err != nil {
		return mapServiceError(err)
	}
	firstDue, err := resolution.Schedule.AddBusinessMinutes(created, resolution.Target.FirstResponseMinutes)
	if err != nil {
		return mapServiceError(err)
	}
	resolutionDue, err := resolution.Schedule.AddBusinessMinutes(created, resolution.Target.ResolutionMinutes)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"data": dto.ResolvePolicyResponse{
		PolicyID:           resolution.Policy.ID,
		PolicyName:         resolution.Policy.Name,
		FellBack:           resolution.FellBack,
		Target:             targetResponse(resolution.Target),
		FirstResponseDueAt: firstDue,
		ResolutionDueAt:    resolutionDue,
	}})
}

// ListBreaches GET /sla/breaches.
func (h *SLAHandler) ListBreaches(c *fiber.Ctx) error {
	filter, err := parseBreachQuery(c)
	if err != nil {
		return err
	}
	events, err := h.monitor.ListBreaches(c.UserContext(), filter)
	if err != nil {
		return mapServiceError(err)
	}
	items := make([]dto.BreachResponse, 0, len(events))
	for i := range events {
		items = append(items, breachResponse(&events[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Sweep POST /sla/sweep.
func (h *SLAHandler) Sweep(c *fiber.Ctx) error {
	result, err := h.monitor.Sweep(c.UserContext(), h.now())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"data": dto.SweepResponse{
		StartedAt:  result.StartedAt,
		DurationMS: result.Duration.Milliseconds(),
		Evaluated:  result.Evaluated,
		Backfilled: result.Backfilled,
		Recorded:   result.Recorded,
		Notified:   result.Notified,
		Failed:     result.Failed,
		Skipped:    result.Skipped,
		Retried:    result.Retried,
	}})
}

func parseBreachQuery(c *fiber.Ctx) (domain.BreachFilter, error) {
	filter := domain.BreachFilter{}
	if ticketID := c.Query("ticket_id"); ticketID != "" {
		filter.TicketID = &ticketID
	}
	if kinds := c.Query("kind"); kinds != "" {
		for _, part := range strings.Split(kinds, ",") {
			kind := domain.BreachKind(strings.ToUpper(strings.TrimSpace(part)))
			if !kind.IsValid() {
				return filter, apperrors.NewValidationError("unknown breach kind", map[string]any{"kind": part})
			}
			filter.Kinds = append(filter.Kinds, kind)
		}
	}
	var err error
	if filter.From, err = parseTime(c.Query("from")); err != nil {
		return filter, apperrors.NewValidationError("from must be an RFC3339 timestamp", map[string]any{"from": c.Query("from")})
	}
	if filter.To, err = parseTime(c.Query("to")); err != nil {
		return filter, apperrors.NewValidationError("to must be an RFC3339 timestamp", map[string]any{"to": c.Query("to")})
	}
	if notified := c.Query("notified"); notified != "" {
		value, err := strconv.ParseBool(notified)
		if err != nil {
			return filter, apperrors.NewValidationError("notified must be a boolean", nil)
		}
		filter.Notified = &value
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func parseTime(val string) (*time.Time, error) {
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func slaStateResponse(view *service.SLAView) dto.SLAStateResponse {
	state := view.State
	return dto.SLAStateResponse{
		TicketID:                state.TicketID,
		PolicyID:                state.PolicyID,
		CalendarID:              state.CalendarID,
		Priority:                state.Priority,
		ClockState:              state.ClockState,
		NoSLA:                   state.NoSLA,
		FirstResponse:           milestoneResponse(view.FirstResponse, state.FirstRespondedAt),
		Resolution:              milestoneResponse(view.Resolution, state.ResolvedAt),
		PausedAt:                state.PausedAt,
		AccumulatedPauseMinutes: state.AccumulatedPauseMinutes,
		ReopenCount:             state.ReopenCount,
		UpdatedAt:               state.UpdatedAt,
	}
}

func milestoneResponse(m service.Milestone, completedAt *time.Time) dto.MilestoneResponse {
	return dto.MilestoneResponse{
		DueAt:            m.DueAt,
		Status:           string(m.Status),
		RemainingMinutes: m.RemainingMinutes,
		CompletedAt:      completedAt,
	}
}

func breachResponse(event *domain.BreachEvent) dto.BreachResponse {
	return dto.BreachResponse{
		ID:         event.ID,
		TicketID:   event.TicketID,
		PolicyID:   event.PolicyID,
		Priority:   event.Priority,
		Kind:       event.Kind,
		DueAt:      event.DueAt,
		FiredOn:    event.FiredOn,
		FiredAt:    event.FiredAt,
		Notified:   event.Notified,
		NotifiedAt: event.NotifiedAt,
		Suppressed: event.Suppressed,
		Attempts:   event.Attempts,
		LastError:  event.LastError,
	}
}
