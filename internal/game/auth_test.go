package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"bridge-and-breach/server/internal/config"
	"bridge-and-breach/server/internal/store"
)

func newTestCoordinator(t *testing.T) (*AuthCoordinator, store.Store) {
	t.Helper()
	st := store.NewMemory()
	return NewAuthCoordinator(st, zaptest.NewLogger(t), config.Default().Game), st
}

func TestGateLocationCheckedBeforeRank(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	cadet := Profile{OfficerID: "a", Rank: RankCadet}

	// eject_warp_core is both location-restricted and dual-auth; from the
	// Bridge the location gate must fire first and nothing else happens.
	_, err := coord.Gate(context.Background(), cadet, LocationBridge, ActionEjectWarpCore)
	assert.ErrorIs(t, err, ErrLocationDenied)
}

func TestGateRejectsInsufficientRank(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	cadet := Profile{OfficerID: "a", Rank: RankCadet}

	_, err := coord.Gate(context.Background(), cadet, LocationBridge, ActionFireWeapons)
	assert.ErrorIs(t, err, ErrInsufficientRank)
}

func TestGateOpensDualAuthSession(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	cadet := Profile{OfficerID: "a", Rank: RankCadet}

	decision, err := coord.Gate(context.Background(), cadet, LocationBridge, ActionSelfDestruct)
	require.NoError(t, err)
	assert.False(t, decision.Execute)
	require.NotNil(t, decision.Pending)
	assert.Equal(t, "OMEGA-1", decision.Pending.ID)
	assert.Equal(t, "a", decision.Pending.InitiatorID)
	assert.Equal(t, ActionSelfDestruct, decision.Pending.Action)
}

func TestConfirmBySecondOfficerExecutesExactlyOnce(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	ctx := context.Background()
	initiator := Profile{OfficerID: "a", Rank: RankCadet}
	confirmer := Profile{OfficerID: "b", Name: "Commander Marn", Rank: RankCommander}

	decision, err := coord.Gate(ctx, initiator, LocationBridge, ActionSelfDestruct)
	require.NoError(t, err)

	session, err := coord.Confirm(ctx, confirmer, decision.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionSelfDestruct, session.Action)
	assert.Equal(t, "a", session.InitiatorID)

	// A second confirmation of the consumed session is rejected.
	third := Profile{OfficerID: "c", Rank: RankAdmiral}
	_, err = coord.Confirm(ctx, third, decision.Pending.ID)
	assert.ErrorIs(t, err, ErrAuthSessionExpired)
}

func TestConfirmRejectsInitiator(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	ctx := context.Background()
	initiator := Profile{OfficerID: "a", Rank: RankCommander}

	decision, err := coord.Gate(ctx, initiator, LocationBridge, ActionSelfDestruct)
	require.NoError(t, err)

	_, err = coord.Confirm(ctx, initiator, decision.Pending.ID)
	assert.ErrorIs(t, err, ErrAuthSessionSelfConfirm)

	// The session survives a rejected self-confirm; a distinct officer may
	// still complete it.
	other := Profile{OfficerID: "b", Rank: RankCommander}
	_, err = coord.Confirm(ctx, other, decision.Pending.ID)
	assert.NoError(t, err)
}

func TestConfirmAfterExpiryRejected(t *testing.T) {
	st := store.NewMemory()
	coord := NewAuthCoordinator(st, zaptest.NewLogger(t), config.Default().Game)

	var mu sync.Mutex
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	coord.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	ctx := context.Background()
	decision, err := coord.Gate(ctx, Profile{OfficerID: "a"}, LocationBridge, ActionSelfDestruct)
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(6 * time.Minute)
	mu.Unlock()

	confirmer := Profile{OfficerID: "b", Rank: RankCommander}
	_, err = coord.Confirm(ctx, confirmer, decision.Pending.ID)
	assert.ErrorIs(t, err, ErrAuthSessionExpired)
}

func TestConfirmUnknownSessionRejected(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	confirmer := Profile{OfficerID: "b", Rank: RankCommander}

	_, err := coord.Confirm(context.Background(), confirmer, "OMEGA-99")
	assert.ErrorIs(t, err, ErrAuthSessionExpired)
}

func TestAuthSessionIDsIncrement(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	ctx := context.Background()

	first, err := coord.Gate(ctx, Profile{OfficerID: "a"}, LocationBridge, ActionSelfDestruct)
	require.NoError(t, err)
	second, err := coord.Gate(ctx, Profile{OfficerID: "b"}, LocationBridge, ActionSelfDestruct)
	require.NoError(t, err)

	assert.Equal(t, "OMEGA-1", first.Pending.ID)
	assert.Equal(t, "OMEGA-2", second.Pending.ID)
}
