package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"bridge-and-breach/server/internal/config"
	"bridge-and-breach/server/internal/store"
)

func newTestRankEngine(t *testing.T) (*RankEngine, store.Store) {
	t.Helper()
	st := store.NewMemory()
	return NewRankEngine(st, zaptest.NewLogger(t), config.Default().Game), st
}

func TestAwardXPAccumulatesAndRanksLeaderboard(t *testing.T) {
	engine, _ := newTestRankEngine(t)
	ctx := context.Background()

	total, err := engine.AwardXP(ctx, "vex", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)

	total, err = engine.AwardXP(ctx, "vex", 15)
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)

	_, err = engine.AwardXP(ctx, "marn", 40)
	require.NoError(t, err)

	entries, err := engine.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "marn", entries[0].OfficerID)
	assert.Equal(t, int64(40), entries[0].XP)
	assert.Equal(t, "Cadet marn", entries[0].Name)
}

func TestCheckPromotionRequiresThreshold(t *testing.T) {
	engine, st := newTestRankEngine(t)
	ctx := context.Background()

	_, err := engine.AwardXP(ctx, "vex", 99)
	require.NoError(t, err)

	promo, err := engine.CheckPromotion(ctx, "vex")
	require.NoError(t, err)
	assert.Nil(t, promo)

	_, err = engine.AwardXP(ctx, "vex", 1)
	require.NoError(t, err)

	promo, err = engine.CheckPromotion(ctx, "vex")
	require.NoError(t, err)
	require.NotNil(t, promo)
	assert.Equal(t, RankEnsign, promo.NewRank)

	profile, err := LoadProfile(ctx, st, "vex")
	require.NoError(t, err)
	assert.Equal(t, RankEnsign, profile.Rank)
	// Promotion bonus landed on top of the accrued XP.
	assert.Equal(t, int64(100+1000), profile.XP)
	assert.Equal(t, 2, profile.MissionStage)
}

func TestCheckPromotionAdvancesAtMostOneRank(t *testing.T) {
	engine, st := newTestRankEngine(t)
	ctx := context.Background()

	// Enough XP for Lieutenant outright, but a single check only moves one
	// step.
	_, err := engine.AwardXP(ctx, "vex", 500)
	require.NoError(t, err)

	promo, err := engine.CheckPromotion(ctx, "vex")
	require.NoError(t, err)
	require.NotNil(t, promo)
	assert.Equal(t, RankEnsign, promo.NewRank)

	profile, err := LoadProfile(ctx, st, "vex")
	require.NoError(t, err)
	assert.Equal(t, RankEnsign, profile.Rank)
}

func TestPromoteOverrideIgnoresXP(t *testing.T) {
	engine, st := newTestRankEngine(t)
	ctx := context.Background()

	promo, err := engine.PromoteOverride(ctx, "vex")
	require.NoError(t, err)
	require.NotNil(t, promo)
	assert.Equal(t, RankEnsign, promo.NewRank)

	profile, err := LoadProfile(ctx, st, "vex")
	require.NoError(t, err)
	assert.Equal(t, RankEnsign, profile.Rank)
}

func TestPromoteOverrideStopsAtAdmiral(t *testing.T) {
	engine, st := newTestRankEngine(t)
	ctx := context.Background()

	profile := Profile{OfficerID: "vex", Name: "Cadet vex", Rank: RankAdmiral, MissionStage: 6}
	require.NoError(t, saveProfile(ctx, st, profile))

	promo, err := engine.PromoteOverride(ctx, "vex")
	require.NoError(t, err)
	assert.Nil(t, promo)
}
