package background_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BradenHooton/sentinel/internal/background"
	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) Sweep(now time.Time) int {
	s.calls.Add(1)
	return 1
}

func TestSweepManager_RunsUntilStopped(t *testing.T) {
	sweeper := &countingSweeper{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sm := background.NewSweepManager("test", sweeper, time.Now, logger, 5*time.Millisecond)

	go sm.Start(context.Background())

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	sm.Stop()
	stoppedAt := sweeper.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stoppedAt, sweeper.calls.Load(), "no sweeps after Stop returns")

	sm.Stop()
}

func TestSweepManager_StopsOnContextCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sm := background.NewSweepManager("test", &countingSweeper{}, time.Now, logger, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sm.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
