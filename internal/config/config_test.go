package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-engine/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SLA_MANAGER_IDS", "mgr-1, mgr-2,,")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "@every 1m", cfg.SLA.SweepSchedule)
	assert.InDelta(t, 0.15, cfg.SLA.WarningRatio, 1e-9)
	assert.Equal(t, PriorityChangeFromCreation, cfg.SLA.PriorityChangeMode)
	assert.Equal(t, []string{"mgr-1", "mgr-2"}, cfg.SLA.ManagerIDs)
	assert.Equal(t, 48*time.Hour, cfg.SLA.DedupTTL())
	assert.Equal(t, 10*time.Second, cfg.Notification.Timeout())
	assert.False(t, cfg.App.IsProduction())
}

func TestLoadRejectsBadSLASettings(t *testing.T) {
	cases := map[string]string{
		"SLA_WARNING_RATIO":        "1.5",
		"SLA_PRIORITY_CHANGE_MODE": "sometimes",
		"SLA_DEDUP_TIMEZONE":       "Nowhere/Town",
		"SLA_WORKER_POOL_SIZE":     "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestSeedCatalogFromRepository(t *testing.T) {
	seed, err := LoadSeed(filepath.Join("..", "..", "seeds", "sla_catalog.yaml"))
	require.NoError(t, err)

	calendars, err := seed.DomainCalendars()
	require.NoError(t, err)
	require.Len(t, calendars, 2)
	assert.Equal(t, domain.CalendarKindContinuous, calendars[0].Kind)
	assert.Len(t, calendars[1].Windows, 5)
	assert.Equal(t, domain.BusinessWindow{Weekday: time.Monday, OpenMinute: 540, CloseMinute: 1020}, calendars[1].Windows[0])

	policies, err := seed.DomainPolicies()
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, "vip", policies[0].ID)
	assert.Equal(t, 1, policies[0].Position)
	assert.True(t, policies[1].IsDefault)
	assert.True(t, policies[1].IsActive)

	medium := policies[1].Targets[domain.TicketPriorityMedium]
	assert.Equal(t, 480, medium.FirstResponseMinutes)
	assert.Equal(t, 3*1440, medium.ResolutionMinutes)
	assert.Equal(t, "office-utc", medium.CalendarRef)
}

func TestSeedRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
calendars:
  - id: broken
    kind: business_hours
    windows:
      - days: [funday]
        open: "09:00"
        close: "17:00"
policies:
  - id: p
    targets:
      low: { first_response: soon, resolution: 1d, calendar: broken }
`), 0o600))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	_, err = seed.DomainCalendars()
	assert.ErrorContains(t, err, "funday")
	_, err = seed.DomainPolicies()
	assert.ErrorContains(t, err, "first_response")
}

func TestParseClock(t *testing.T) {
	m, err := parseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, 1440, m)

	for _, bad := range []string{"9", "25:00", "10:61", "24:30", "ab:cd"} {
		_, err := parseClock(bad)
		assert.Error(t, err, bad)
	}
}
