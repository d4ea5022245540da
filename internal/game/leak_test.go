package game

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"bridge-and-breach/server/internal/config"
	"bridge-and-breach/server/internal/store"
)

type recordingAnnouncer struct {
	mu      sync.Mutex
	started []LeakStatus
	cleared []LeakStatus
}

func (r *recordingAnnouncer) LeakStarted(status LeakStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, status)
}

func (r *recordingAnnouncer) LeakCleared(status LeakStatus, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, status)
}

func newTestScheduler(t *testing.T, taps int) (*LeakScheduler, *recordingAnnouncer, store.Store) {
	t.Helper()
	st := store.NewMemory()
	cfg := config.Default().Game
	cfg.LeakRequiredTaps = taps
	logger := zaptest.NewLogger(t)
	rank := NewRankEngine(st, logger, cfg)
	announcer := &recordingAnnouncer{}
	return NewLeakScheduler(st, logger, cfg, rank, announcer), announcer, st
}

func TestTryStartAllowsOnlyOneActiveLeak(t *testing.T) {
	sched, announcer, _ := newTestScheduler(t, 5)
	ctx := context.Background()

	require.NoError(t, sched.TryStart(ctx))
	require.NoError(t, sched.TryStart(ctx))
	require.NoError(t, sched.TryStart(ctx))

	status, err := sched.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.Equal(t, int64(0), status.Progress)
	assert.Len(t, announcer.started, 1)
}

func TestConcurrentTryStartRaceStartsOneLeak(t *testing.T) {
	sched, announcer, _ := newTestScheduler(t, 5)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sched.TryStart(ctx); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, announcer.started, 1)
}

func TestRepairProgressCountsEveryTap(t *testing.T) {
	sched, _, _ := newTestScheduler(t, 5)
	ctx := context.Background()
	require.NoError(t, sched.TryStart(ctx))

	for i := 1; i <= 4; i++ {
		status, err := sched.Repair(ctx, "vex")
		require.NoError(t, err)
		assert.True(t, status.Active)
		assert.Equal(t, int64(i), status.Progress)
	}

	status, err := sched.Repair(ctx, "vex")
	require.NoError(t, err)
	assert.False(t, status.Active)
	assert.Equal(t, int64(5), status.Progress)
}

func TestConcurrentRepairsClearExactlyOnce(t *testing.T) {
	const taps = 20
	sched, announcer, _ := newTestScheduler(t, taps)
	ctx := context.Background()
	require.NoError(t, sched.TryStart(ctx))

	var wg sync.WaitGroup
	for i := 0; i < taps; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			if _, err := sched.Repair(ctx, "officer"); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, announcer.cleared, 1, "the leak must clear exactly once")

	status, err := sched.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Active)
}

func TestRepairWithoutActiveLeak(t *testing.T) {
	sched, _, _ := newTestScheduler(t, 5)

	_, err := sched.Repair(context.Background(), "vex")
	assert.ErrorIs(t, err, ErrNoActiveLeak)
}

func TestRepairAwardsXP(t *testing.T) {
	sched, _, st := newTestScheduler(t, 2)
	ctx := context.Background()
	require.NoError(t, sched.TryStart(ctx))

	_, err := sched.Repair(ctx, "vex")
	require.NoError(t, err)
	_, err = sched.Repair(ctx, "vex")
	require.NoError(t, err)

	profile, err := LoadProfile(ctx, st, "vex")
	require.NoError(t, err)
	// Two tap awards plus the clear bonus.
	cfg := config.Default().Game
	assert.Equal(t, int64(2*cfg.RepairTapXP+cfg.LeakClearXP), profile.XP)
}

func TestNextIntervalStaysWithinJitterBand(t *testing.T) {
	sched, _, _ := newTestScheduler(t, 5)
	cfg := config.Default().Game

	for i := 0; i < 100; i++ {
		interval := sched.nextInterval()
		low := float64(cfg.LeakMeanInterval) * (1 - cfg.LeakJitter)
		high := float64(cfg.LeakMeanInterval) * (1 + cfg.LeakJitter)
		assert.GreaterOrEqual(t, float64(interval), low)
		assert.LessOrEqual(t, float64(interval), high)
	}
}
