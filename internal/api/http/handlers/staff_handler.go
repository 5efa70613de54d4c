package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// StaffHandler manages the escalation contacts breach notifications fan out to.
type StaffHandler struct {
	staff repository.StaffRepository
}

// NewStaffHandler constructs handler.
func NewStaffHandler(staff repository.StaffRepository) *StaffHandler {
	return &StaffHandler{staff: staff}
}

// List handles GET /admin/staff.
func (h *StaffHandler) List(c *fiber.Ctx) error {
	filter := repository.StaffFilter{
		Limit: parseInt(c.Query("page_size"), 50),
	}
	if page := parseInt(c.Query("page"), 1); page > 1 {
		filter.Offset = (page - 1) * filter.Limit
	}
	if role := c.Query("role"); role != "" {
		r := domain.StaffRole(strings.ToUpper(role))
		if !r.IsValid() {
			return apperrors.NewValidationError("unknown role", map[string]any{"role": role})
		}
		filter.Role = &r
	}
	if team := c.Query("team_id"); team != "" {
		filter.TeamID = &team
	}
	if dept := c.Query("department_id"); dept != "" {
		filter.DepartmentID = &dept
	}
	if active := c.Query("active"); active != "" {
		val, err := strconv.ParseBool(active)
		if err != nil {
			return apperrors.NewValidationError("active must be a boolean", nil)
		}
		filter.Active = &val
	}

	members, err := h.staff.List(c.UserContext(), filter)
	if err != nil {
		return mapServiceError(err)
	}
	items := make([]dto.StaffResponse, 0, len(members))
	for i := range members {
		items = append(items, staffResponse(&members[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Upsert handles PUT /admin/staff/:id.
func (h *StaffHandler) Upsert(c *fiber.Ctx) error {
	var req dto.StaffRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	member := domain.StaffMember{
		ID:           c.Params("id"),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.TrimSpace(req.Email),
		Role:         domain.StaffRole(strings.ToUpper(string(req.Role))),
		DepartmentID: req.DepartmentID,
		TeamID:       req.TeamID,
		Active:       req.Active == nil || *req.Active,
	}
	if member.Name == "" {
		return apperrors.NewValidationError("name required", nil)
	}
	if !member.Role.IsValid() {
		return apperrors.NewValidationError("unknown role", map[string]any{"role": req.Role})
	}
	if member.Role == domain.StaffRoleTeamLead && member.TeamID == nil {
		return apperrors.NewValidationError("team_id required for team leads", nil)
	}
	if member.Role == domain.StaffRoleManager && member.DepartmentID == nil {
		return apperrors.NewValidationError("department_id required for managers", nil)
	}

	if err := h.staff.Upsert(c.UserContext(), &member); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"data": staffResponse(&member)})
}

func staffResponse(member *domain.StaffMember) dto.StaffResponse {
	return dto.StaffResponse{
		ID:           member.ID,
		Name:         member.Name,
		Email:        member.Email,
		Role:         member.Role,
		DepartmentID: member.DepartmentID,
		TeamID:       member.TeamID,
		Active:       member.Active,
		CreatedAt:    member.CreatedAt,
		UpdatedAt:    member.UpdatedAt,
	}
}
