package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/service"
)

// Sweeper runs one breach evaluation pass.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (*service.SweepResult, error)
}

// SweepWorker triggers the breach monitor on a cron schedule.
type SweepWorker struct {
	sweeper Sweeper
	logger  *zap.Logger
	now     func() time.Time

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewSweepWorker validates the schedule and registers the sweep job. Nothing runs until Start.
func NewSweepWorker(schedule string, sweeper Sweeper, logger *zap.Logger) (*SweepWorker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := observability.NewCronLogger(logger)
	ctx, cancel := context.WithCancel(context.Background())
	w := &SweepWorker{
		sweeper: sweeper,
		logger:  logger.Named("sweep_worker"),
		now:     time.Now,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
	if _, err := w.cron.AddFunc(schedule, w.RunOnce); err != nil {
		cancel()
		return nil, err
	}
	return w, nil
}

// RunOnce performs a single sweep. An overlapping sweep started elsewhere is not an error.
func (w *SweepWorker) RunOnce() {
	_, err := w.sweeper.Sweep(w.ctx, w.now().UTC())
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrSweepInProgress):
		w.logger.Debug("sweep already running; tick skipped")
	case errors.Is(err, context.Canceled):
	default:
		w.logger.Error("scheduled sweep failed", zap.Error(err))
	}
}

// Start begins scheduling in the background.
func (w *SweepWorker) Start() {
	w.logger.Info("sweep worker started")
	w.cron.Start()
}

// Stop cancels the running sweep and waits for it to return or for ctx to expire.
func (w *SweepWorker) Stop(ctx context.Context) {
	w.once.Do(func() {
		w.cancel()
		done := w.cron.Stop()
		select {
		case <-done.Done():
			w.logger.Info("sweep worker stopped")
		case <-ctx.Done():
			w.logger.Warn("sweep worker stop timed out", zap.Error(ctx.Err()))
		}
	})
}
