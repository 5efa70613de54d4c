package calendar

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// Source lists the calendars a registry compiles.
type Source interface {
	ListCalendars(ctx context.Context) ([]domain.Calendar, error)
}

// Registry caches compiled schedules keyed by calendar id. It is read-mostly
// and rebuilt wholesale by Reload after admin edits.
type Registry struct {
	source Source
	logger *zap.Logger

	mu        sync.RWMutex
	schedules map[string]*Schedule
}

// NewRegistry builds an empty registry; call Reload to populate it.
func NewRegistry(source Source, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{source: source, logger: logger, schedules: make(map[string]*Schedule)}
}

// Reload recompiles every calendar from the source. Invalid stored calendars
// are skipped and logged; the previous cache is kept if listing fails.
func (r *Registry) Reload(ctx context.Context) error {
	calendars, err := r.source.ListCalendars(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]*Schedule, len(calendars))
	for _, cal := range calendars {
		s, err := Compile(cal)
		if err != nil {
			r.logger.Warn("skipping invalid calendar", zap.String("calendar_id", cal.ID), zap.Error(err))
			continue
		}
		next[cal.ID] = s
	}

	r.mu.Lock()
	r.schedules = next
	r.mu.Unlock()
	r.logger.Info("calendars loaded", zap.Int("count", len(next)))
	return nil
}

// Get returns the compiled schedule for a calendar id.
func (r *Registry) Get(id string) (*Schedule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schedules[id]
	return s, ok
}

// Len reports how many schedules are cached.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.schedules)
}
