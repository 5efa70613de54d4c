package handlers

import (
	"errors"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/service"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// mapServiceError translates engine errors into API errors. Unknown errors pass through
// and render as internal errors.
func mapServiceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrStateNotFound):
		return apperrors.NewNotFound("sla state", nil)
	case errors.Is(err, domain.ErrTicketNotFound):
		return apperrors.NewNotFound("ticket", nil)
	case errors.Is(err, domain.ErrPolicyNotFound):
		return apperrors.NewNotFound("sla policy", nil)
	case errors.Is(err, domain.ErrCalendarNotFound):
		return apperrors.NewNotFound("calendar", nil)
	case errors.Is(err, domain.ErrStaffNotFound):
		return apperrors.NewNotFound("staff member", nil)
	case errors.Is(err, domain.ErrSweepInProgress):
		return apperrors.NewConflict(err.Error(), nil)
	case service.IsConfigError(err):
		return apperrors.NewUnprocessable("INVALID_CONFIGURATION", err.Error(), err)
	}
	return err
}
