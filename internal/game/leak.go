package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"go.uber.org/zap"

	"bridge-and-breach/server/internal/config"
	"bridge-and-breach/server/internal/store"
)

const (
	leakActiveKey = "leak:active"
	leakEventKey  = "leak:event"
	// leakChannel carries lifecycle events for out-of-process watchers.
	leakChannel = "events:leak"
)

// LeakStatus is the broadcastable view of the radiation leak event.
type LeakStatus struct {
	Active       bool  `json:"active"`
	Progress     int64 `json:"progress"`
	RequiredTaps int64 `json:"requiredTaps"`
	StartedAt    int64 `json:"startedAt,omitempty"`
}

// LeakAnnouncer receives leak lifecycle notifications for broadcasting.
type LeakAnnouncer interface {
	LeakStarted(status LeakStatus)
	LeakCleared(status LeakStatus, resolvedBy string)
}

// LeakScheduler starts a radiation leak on a jittered cadence and arbitrates
// its cooperative repair. The only coordination with command-triggered
// mutations is through the store's atomic primitives: the SetNX guard makes
// "at most one active leak" hold across any interleaving, and the HIncr
// counter makes concurrent repairs count exactly once each.
type LeakScheduler struct {
	store     store.Store
	logger    *zap.Logger
	cfg       config.GameConfig
	rank      *RankEngine
	announcer LeakAnnouncer
	rng       *rand.Rand
	now       func() time.Time
}

// NewLeakScheduler wires the scheduler. The announcer may be nil in tests.
func NewLeakScheduler(st store.Store, logger *zap.Logger, cfg config.GameConfig, rank *RankEngine, announcer LeakAnnouncer) *LeakScheduler {
	return &LeakScheduler{
		store:     st,
		logger:    logger,
		cfg:       cfg,
		rank:      rank,
		announcer: announcer,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
}

// SetAnnouncer attaches the broadcast sink. Called once during wiring, before
// Run starts.
func (s *LeakScheduler) SetAnnouncer(a LeakAnnouncer) {
	s.announcer = a
}

// nextInterval draws the next tick delay: the configured mean plus or minus
// a uniform jitter band.
func (s *LeakScheduler) nextInterval() time.Duration {
	mean := float64(s.cfg.LeakMeanInterval)
	jitter := (s.rng.Float64()*2 - 1) * s.cfg.LeakJitter * mean
	return time.Duration(mean + jitter)
}

// Run drives the scheduler until the context is cancelled.
func (s *LeakScheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(s.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if err := s.TryStart(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("leak tick failed", zap.Error(err))
			}
			timer.Reset(s.nextInterval())
		}
	}
}

// TryStart begins a new leak unless one is already active. The SetNX guard
// is the atomicity boundary; when it loses, this tick is skipped.
func (s *LeakScheduler) TryStart(ctx context.Context) error {
	won, err := s.store.SetNX(ctx, leakActiveKey, "1", 0)
	if err != nil {
		return fmt.Errorf("start leak: %w", err)
	}
	if !won {
		return nil
	}

	startedAt := s.now().UnixMilli()
	err = s.store.HSet(ctx, leakEventKey, map[string]string{
		"progress":      "0",
		"required_taps": strconv.Itoa(s.cfg.LeakRequiredTaps),
		"started_at":    strconv.FormatInt(startedAt, 10),
	})
	if err != nil {
		return fmt.Errorf("start leak: %w", err)
	}

	status := LeakStatus{
		Active:       true,
		RequiredTaps: int64(s.cfg.LeakRequiredTaps),
		StartedAt:    startedAt,
	}
	s.logger.Info("radiation leak started", zap.Int("requiredTaps", s.cfg.LeakRequiredTaps))
	s.publish(ctx, status)
	if s.announcer != nil {
		s.announcer.LeakStarted(status)
	}
	return nil
}

// publish mirrors the lifecycle event onto the store channel so processes
// other than the game server can watch leaks.
func (s *LeakScheduler) publish(ctx context.Context, status LeakStatus) {
	payload, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := s.store.Publish(ctx, leakChannel, string(payload)); err != nil {
		s.logger.Warn("leak event publish failed", zap.Error(err))
	}
}

// Status reports the current leak state with progress capped at the tap
// requirement.
func (s *LeakScheduler) Status(ctx context.Context) (LeakStatus, error) {
	if _, err := s.store.Get(ctx, leakActiveKey); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LeakStatus{}, nil
		}
		return LeakStatus{}, fmt.Errorf("leak status: %w", err)
	}

	event, err := s.store.HGetAll(ctx, leakEventKey)
	if err != nil {
		return LeakStatus{}, fmt.Errorf("leak status: %w", err)
	}

	status := LeakStatus{Active: true}
	status.Progress, _ = strconv.ParseInt(event["progress"], 10, 64)
	status.RequiredTaps, _ = strconv.ParseInt(event["required_taps"], 10, 64)
	status.StartedAt, _ = strconv.ParseInt(event["started_at"], 10, 64)
	if status.RequiredTaps > 0 && status.Progress > status.RequiredTaps {
		status.Progress = status.RequiredTaps
	}
	return status, nil
}

// Repair records one officer's repair tap. The store increment is the only
// counter, so concurrent taps never over- or under-count. The tap that lands
// exactly on the requirement clears the event and is the only one that does.
func (s *LeakScheduler) Repair(ctx context.Context, officerID string) (LeakStatus, error) {
	if _, err := s.store.Get(ctx, leakActiveKey); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LeakStatus{}, ErrNoActiveLeak
		}
		return LeakStatus{}, fmt.Errorf("repair leak: %w", err)
	}

	required := int64(s.cfg.LeakRequiredTaps)
	progress, err := s.store.HIncr(ctx, leakEventKey, "progress", 1)
	if err != nil {
		return LeakStatus{}, fmt.Errorf("repair leak: %w", err)
	}

	if progress > required {
		// Raced past the threshold; the clearing tap already handled it.
		return LeakStatus{Active: false, Progress: required, RequiredTaps: required}, nil
	}

	if _, err := s.rank.AwardXP(ctx, officerID, s.cfg.RepairTapXP); err != nil {
		return LeakStatus{}, err
	}

	if progress < required {
		status := LeakStatus{Active: true, Progress: progress, RequiredTaps: required}
		return status, nil
	}

	// progress == required: this tap resolves the leak.
	if _, err := s.store.Delete(ctx, leakActiveKey, leakEventKey); err != nil {
		return LeakStatus{}, fmt.Errorf("clear leak: %w", err)
	}
	if _, err := s.rank.AwardXP(ctx, officerID, s.cfg.LeakClearXP); err != nil {
		return LeakStatus{}, err
	}

	status := LeakStatus{Active: false, Progress: required, RequiredTaps: required}
	s.logger.Info("radiation leak cleared", zap.String("resolvedBy", officerID))
	s.publish(ctx, status)
	if s.announcer != nil {
		s.announcer.LeakCleared(status, officerID)
	}
	return status, nil
}
