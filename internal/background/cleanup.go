package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper drops stale in-memory state. It returns the number of entries removed.
type Sweeper interface {
	Sweep(now time.Time) int
}

// SweepManager runs a Sweeper on a fixed interval until stopped
type SweepManager struct {
	name     string
	sweeper  Sweeper
	now      func() time.Time
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewSweepManager creates a new sweep manager. now supplies the sweep time so
// callers with an injected clock stay consistent.
func NewSweepManager(
	name string,
	sweeper Sweeper,
	now func() time.Time,
	logger *slog.Logger,
	interval time.Duration,
) *SweepManager {
	return &SweepManager{
		name:     name,
		sweeper:  sweeper,
		now:      now,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep. It blocks until Stop is called or ctx is done.
func (sm *SweepManager) Start(ctx context.Context) {
	defer close(sm.doneCh)

	ticker := time.NewTicker(sm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sm.runSweep()
		case <-sm.stopCh:
			sm.logger.Info("sweep manager stopped", slog.String("sweeper", sm.name))
			return
		case <-ctx.Done():
			sm.logger.Info("sweep manager context cancelled", slog.String("sweeper", sm.name))
			return
		}
	}
}

func (sm *SweepManager) runSweep() {
	removed := sm.sweeper.Sweep(sm.now())
	if removed > 0 {
		sm.logger.Debug("sweep completed",
			slog.String("sweeper", sm.name),
			slog.Int("removed", removed),
		)
	}
}

// Stop signals the manager to stop and waits for the loop to exit. Safe to call more than once.
func (sm *SweepManager) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopCh)
	})
	<-sm.doneCh
}
