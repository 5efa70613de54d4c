package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/service"
	"github.com/spec-kit/sla-engine/pkg/util/durationutil"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// AdminHandler manages calendars and policies.
type AdminHandler struct {
	catalog *service.PolicyCatalog
}

// NewAdminHandler constructs handler.
func NewAdminHandler(catalog *service.PolicyCatalog) *AdminHandler {
	return &AdminHandler{catalog: catalog}
}

// ListCalendars GET /admin/calendars.
func (h *AdminHandler) ListCalendars(c *fiber.Ctx) error {
	calendars, err := h.catalog.Calendars(c.UserContext())
	if err != nil {
		return mapServiceError(err)
	}
	items := make([]dto.CalendarResponse, 0, len(calendars))
	for i := range calendars {
		items = append(items, calendarResponse(&calendars[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateCalendar POST /admin/calendars.
func (h *AdminHandler) CreateCalendar(c *fiber.Ctx) error {
	var req dto.CalendarRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	cal := calendarFromRequest("", req)
	if err := h.catalog.SaveCalendar(c.UserContext(), &cal); err != nil {
		return mapServiceError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": calendarResponse(&cal)})
}

// UpdateCalendar PUT /admin/calendars/:id.
func (h *AdminHandler) UpdateCalendar(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.catalog.Calendar(c.UserContext(), id); err != nil {
		return mapServiceError(err)
	}
	var req dto.CalendarRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	cal := calendarFromRequest(id, req)
	if err := h.catalog.SaveCalendar(c.UserContext(), &cal); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"data": calendarResponse(&cal)})
}

// ListPolicies GET /admin/policies.
func (h *AdminHandler) ListPolicies(c *fiber.Ctx) error {
	policies := h.catalog.Policies()
	items := make([]dto.PolicyResponse, 0, len(policies))
	for i := range policies {
		items = append(items, policyResponse(&policies[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreatePolicy POST /admin/policies.
func (h *AdminHandler) CreatePolicy(c *fiber.Ctx) error {
	var req dto.PolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	policy, err := policyFromRequest("", req)
	if err != nil {
		return err
	}
	if err := h.catalog.SavePolicy(c.UserContext(), &policy); err != nil {
		return mapServiceError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": policyResponse(&policy)})
}

// UpdatePolicy PUT /admin/policies/:id.
func (h *AdminHandler) UpdatePolicy(c *fiber.Ctx) error {
	id := c.Params("id")
	existing, ok := h.catalog.Policy(id)
	if !ok {
		return mapServiceError(domain.ErrPolicyNotFound)
	}
	var req dto.PolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.IsActive == nil {
		req.IsActive = &existing.IsActive
	}
	policy, err := policyFromRequest(id, req)
	if err != nil {
		return err
	}
	if err := h.catalog.SavePolicy(c.UserContext(), &policy); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"data": policyResponse(&policy)})
}

// SetPolicyActive PATCH /admin/policies/:id/active.
func (h *AdminHandler) SetPolicyActive(c *fiber.Ctx) error {
	var req dto.SetActiveRequest
	if err := c.BodyParser(&req); err != nil || req.Active == nil {
		return apperrors.NewValidationError("active flag required", nil)
	}
	id := c.Params("id")
	if err := h.catalog.SetActive(c.UserContext(), id, *req.Active); err != nil {
		return mapServiceError(err)
	}
	policy, _ := h.catalog.Policy(id)
	return c.JSON(fiber.Map{"data": policyResponse(&policy)})
}

func calendarFromRequest(id string, req dto.CalendarRequest) domain.Calendar {
	return domain.Calendar{
		ID:       id,
		Name:     strings.TrimSpace(req.Name),
		Kind:     domain.CalendarKind(strings.ToUpper(string(req.Kind))),
		Timezone: req.Timezone,
		Windows:  req.Windows,
		Holidays: req.Holidays,
	}
}

func policyFromRequest(id string, req dto.PolicyRequest) (domain.SLAPolicy, error) {
	policy := domain.SLAPolicy{
		ID:          id,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		IsDefault:   req.IsDefault,
		IsActive:    req.IsActive == nil || *req.IsActive,
		Position:    req.Position,
		Conditions:  req.Conditions,
		Targets:     make(map[domain.TicketPriority]domain.SLATarget, len(req.Targets)),
	}
	for key, tr := range req.Targets {
		priority := domain.TicketPriority(strings.ToUpper(key))
		if !priority.IsValid() {
			return policy, apperrors.NewValidationError("unknown priority in targets", map[string]any{"priority": key})
		}
		response, err := durationutil.ParseMinutes(tr.FirstResponse)
		if err != nil {
			return policy, apperrors.NewValidationError("invalid first_response", map[string]any{"priority": key, "reason": err.Error()})
		}
		resolution, err := durationutil.ParseMinutes(tr.Resolution)
		if err != nil {
			return policy, apperrors.NewValidationError("invalid resolution", map[string]any{"priority": key, "reason": err.Error()})
		}
		policy.Targets[priority] = domain.SLATarget{
			Priority:             priority,
			FirstResponseMinutes: response,
			ResolutionMinutes:    resolution,
			CalendarRef:          tr.Calendar,
			EscalationEnabled:    tr.Escalation,
		}
	}
	return policy, nil
}

func calendarResponse(cal *domain.Calendar) dto.CalendarResponse {
	return dto.CalendarResponse{
		ID:        cal.ID,
		Name:      cal.Name,
		Kind:      cal.Kind,
		Timezone:  cal.Timezone,
		Windows:   cal.Windows,
		Holidays:  cal.Holidays,
		CreatedAt: cal.CreatedAt,
		UpdatedAt: cal.UpdatedAt,
	}
}

func policyResponse(policy *domain.SLAPolicy) dto.PolicyResponse {
	targets := make([]dto.TargetResponse, 0, len(policy.Targets))
	for _, priority := range domain.AllPriorities {
		if target, ok := policy.Targets[priority]; ok {
			targets = append(targets, targetResponse(target))
		}
	}
	return dto.PolicyResponse{
		ID:          policy.ID,
		Name:        policy.Name,
		Description: policy.Description,
		IsDefault:   policy.IsDefault,
		IsActive:    policy.IsActive,
		Position:    policy.Position,
		Conditions:  policy.Conditions,
		Targets:     targets,
		CreatedAt:   policy.CreatedAt,
		UpdatedAt:   policy.UpdatedAt,
	}
}

func targetResponse(target domain.SLATarget) dto.TargetResponse {
	return dto.TargetResponse{
		Priority:             target.Priority,
		FirstResponseMinutes: target.FirstResponseMinutes,
		FirstResponse:        durationutil.FormatMinutes(target.FirstResponseMinutes),
		ResolutionMinutes:    target.ResolutionMinutes,
		Resolution:           durationutil.FormatMinutes(target.ResolutionMinutes),
		Calendar:             target.CalendarRef,
		Escalation:           target.EscalationEnabled,
	}
}
