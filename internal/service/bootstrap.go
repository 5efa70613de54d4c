package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/calendar"
	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// SeedCatalog writes the seed calendars and policies when the policy store is empty.
// It reports whether anything was written. Existing catalogs are never touched.
func SeedCatalog(ctx context.Context, seed *config.Seed, calendars repository.CalendarRepository, policies repository.PolicyRepository, logger *zap.Logger) (bool, error) {
	existing, err := policies.ListPolicies(ctx)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 || seed == nil {
		return false, nil
	}

	cals, err := seed.DomainCalendars()
	if err != nil {
		return false, err
	}
	for i := range cals {
		if err := calendar.Validate(cals[i]); err != nil {
			return false, fmt.Errorf("seed: %w", err)
		}
		if err := calendars.SaveCalendar(ctx, &cals[i]); err != nil {
			return false, fmt.Errorf("seed calendar %s: %w", cals[i].ID, err)
		}
	}

	pols, err := seed.DomainPolicies()
	if err != nil {
		return false, err
	}
	for i := range pols {
		if err := policies.SavePolicy(ctx, &pols[i]); err != nil {
			return false, fmt.Errorf("seed policy %s: %w", pols[i].ID, err)
		}
	}
	logger.Info("sla catalog seeded", zap.Int("calendars", len(cals)), zap.Int("policies", len(pols)))
	return true, nil
}
