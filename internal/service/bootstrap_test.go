package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
)

func TestSeedCatalogOnEmptyStore(t *testing.T) {
	ctx := context.Background()
	seed, err := config.LoadSeed(filepath.Join("..", "..", "seeds", "sla_catalog.yaml"))
	require.NoError(t, err)
	store := repository.NewMemoryStore()

	applied, err := SeedCatalog(ctx, seed, store.Calendars(), store.Policies(), zap.NewNop())
	require.NoError(t, err)
	assert.True(t, applied)

	catalog, err := NewPolicyCatalog(ctx, CatalogDependencies{
		PolicyRepo:   store.Policies(),
		CalendarRepo: store.Calendars(),
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)
	assert.Equal(t, "standard", catalog.DefaultPolicy().ID)

	tk := ticket("t-1", domain.TicketPriorityUrgent, monday)
	tk.Tags = []string{"vip"}
	assert.Equal(t, "vip", catalog.Resolve(tk).ID)
}

func TestSeedCatalogLeavesExistingCatalog(t *testing.T) {
	h := newHarness(t)
	seed, err := config.LoadSeed(filepath.Join("..", "..", "seeds", "sla_catalog.yaml"))
	require.NoError(t, err)

	applied, err := SeedCatalog(context.Background(), seed, h.store.Calendars(), h.store.Policies(), zap.NewNop())
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, h.catalog.Reload(context.Background()))
	_, ok := h.catalog.Schedule("office-utc")
	assert.False(t, ok)
}
