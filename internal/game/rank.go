package game

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"bridge-and-breach/server/internal/config"
	"bridge-and-breach/server/internal/store"
)

const leaderboardKey = "leaderboard"

// Promotion describes a rank change to broadcast.
type Promotion struct {
	OfficerID string `json:"officerId"`
	Name      string `json:"name"`
	NewRank   Rank   `json:"-"`
	NewTitle  string `json:"newRank"`
}

// RankEngine accrues XP and decides promotions. All state lives in the store
// so progress survives reconnects and process restarts.
type RankEngine struct {
	store  store.Store
	logger *zap.Logger
	cfg    config.GameConfig
}

// NewRankEngine wires a rank engine over the shared store.
func NewRankEngine(st store.Store, logger *zap.Logger, cfg config.GameConfig) *RankEngine {
	return &RankEngine{store: st, logger: logger, cfg: cfg}
}

// AwardXP adds XP to an officer and mirrors the total onto the leaderboard.
// Returns the new cumulative XP.
func (e *RankEngine) AwardXP(ctx context.Context, officerID string, amount int) (int64, error) {
	if amount <= 0 {
		total, err := e.store.HIncr(ctx, officerKey(officerID), "xp", 0)
		if err != nil {
			return 0, fmt.Errorf("award xp: %w", err)
		}
		return total, nil
	}

	// Make sure the officer record exists so the leaderboard never shows a
	// bare identifier without a name.
	if _, err := LoadProfile(ctx, e.store, officerID); err != nil {
		return 0, err
	}

	total, err := e.store.HIncr(ctx, officerKey(officerID), "xp", int64(amount))
	if err != nil {
		return 0, fmt.Errorf("award xp: %w", err)
	}
	if err := e.store.ZAdd(ctx, leaderboardKey, officerID, float64(total)); err != nil {
		return 0, fmt.Errorf("award xp: %w", err)
	}

	e.logger.Debug("xp awarded",
		zap.String("officer", officerID),
		zap.Int("amount", amount),
		zap.Int64("total", total))
	return total, nil
}

// threshold returns the cumulative XP needed to hold the given rank.
func (e *RankEngine) threshold(r Rank) int64 {
	switch r {
	case RankEnsign:
		return int64(e.cfg.EnsignXP)
	case RankLieutenant:
		return int64(e.cfg.LieutenantXP)
	case RankCommander:
		return int64(e.cfg.CommanderXP)
	case RankAdmiral:
		return int64(e.cfg.AdmiralXP)
	default:
		return 0
	}
}

// CheckPromotion promotes the officer by at most one rank when their
// cumulative XP has crossed the next threshold. Returns nil when no
// promotion applies.
func (e *RankEngine) CheckPromotion(ctx context.Context, officerID string) (*Promotion, error) {
	profile, err := LoadProfile(ctx, e.store, officerID)
	if err != nil {
		return nil, err
	}
	if profile.Rank >= MaxRank {
		return nil, nil
	}
	next := profile.Rank + 1
	if profile.XP < e.threshold(next) {
		return nil, nil
	}
	return e.promote(ctx, profile, next)
}

// PromoteOverride advances the officer exactly one rank regardless of XP.
// This is the jailbreak-detection path; callers invoke it at most once per
// command cycle so a detection can never double-promote.
func (e *RankEngine) PromoteOverride(ctx context.Context, officerID string) (*Promotion, error) {
	profile, err := LoadProfile(ctx, e.store, officerID)
	if err != nil {
		return nil, err
	}
	if profile.Rank >= MaxRank {
		return nil, nil
	}
	return e.promote(ctx, profile, profile.Rank+1)
}

func (e *RankEngine) promote(ctx context.Context, profile Profile, next Rank) (*Promotion, error) {
	next = clampRank(next)
	err := e.store.HSet(ctx, officerKey(profile.OfficerID), map[string]string{
		"rank":       next.String(),
		"rank_level": strconv.Itoa(int(next)),
	})
	if err != nil {
		return nil, fmt.Errorf("promote %s: %w", profile.OfficerID, err)
	}

	// Advancing the mission stage keeps the interpreter's scenario moving.
	if _, err := e.store.HIncr(ctx, officerKey(profile.OfficerID), "mission_stage", 1); err != nil {
		return nil, fmt.Errorf("promote %s: %w", profile.OfficerID, err)
	}

	// The promotion bonus does not re-enter CheckPromotion, so one award can
	// never cascade through several ranks at once.
	if _, err := e.AwardXP(ctx, profile.OfficerID, e.cfg.PromotionBonusXP); err != nil {
		return nil, err
	}

	e.logger.Info("officer promoted",
		zap.String("officer", profile.OfficerID),
		zap.String("rank", next.String()))

	return &Promotion{
		OfficerID: profile.OfficerID,
		Name:      profile.Name,
		NewRank:   next,
		NewTitle:  next.String(),
	}, nil
}

// Leaderboard returns the top n officers by cumulative XP.
func (e *RankEngine) Leaderboard(ctx context.Context, n int64) ([]LeaderboardEntry, error) {
	members, err := e.store.ZRevRange(ctx, leaderboardKey, 0, n-1)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	entries := make([]LeaderboardEntry, 0, len(members))
	for _, m := range members {
		profile, err := LoadProfile(ctx, e.store, m.Member)
		if err != nil {
			return nil, err
		}
		entries = append(entries, LeaderboardEntry{
			OfficerID: m.Member,
			Name:      profile.Name,
			Rank:      profile.Rank.String(),
			XP:        int64(m.Score),
		})
	}
	return entries, nil
}

// LeaderboardEntry is one row of the public leaderboard.
type LeaderboardEntry struct {
	OfficerID string `json:"officerId"`
	Name      string `json:"name"`
	Rank      string `json:"rank"`
	XP        int64  `json:"xp"`
}
