package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridge-and-breach/server/internal/store"
)

func TestSeedShipWritesDefaultsOnce(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, SeedShip(ctx, st))

	ship, err := LoadShip(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 100, ship.Shields.Level)
	assert.Equal(t, StatusOnline, ship.Shields.Status)
	assert.Equal(t, 25, ship.Impulse.Level)
	assert.Equal(t, StatusStandby, ship.WarpCore.Status)

	// Mutate, reseed, confirm the mutation survives.
	require.NoError(t, ApplyShipUpdates(ctx, st, map[string]SystemUpdate{"shields": LevelUpdate(40)}))
	require.NoError(t, SeedShip(ctx, st))

	ship, err = LoadShip(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 40, ship.Shields.Level)
}

func TestApplyShipUpdatesClampsLevels(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, SeedShip(ctx, st))

	require.NoError(t, ApplyShipUpdates(ctx, st, map[string]SystemUpdate{
		"shields": LevelUpdate(250),
		"impulse": LevelUpdate(-10),
	}))

	ship, err := LoadShip(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 100, ship.Shields.Level)
	assert.Equal(t, 0, ship.Impulse.Level)
}

func TestOfflineSystemsNeverReady(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, SeedShip(ctx, st))

	offline := StatusOffline
	critical := StatusCritical
	require.NoError(t, ApplyShipUpdates(ctx, st, map[string]SystemUpdate{
		"warpCore": {Status: &offline},
		"sensors":  {Status: &critical},
	}))

	ship, err := LoadShip(ctx, st)
	require.NoError(t, err)
	assert.False(t, ship.WarpCore.Ready)
	assert.False(t, ship.Sensors.Ready)
	assert.True(t, ship.Shields.Ready)
}

func TestApplyShipUpdatesDropsUnknownSystems(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, SeedShip(ctx, st))

	require.NoError(t, ApplyShipUpdates(ctx, st, map[string]SystemUpdate{
		"holodeck": LevelUpdate(100),
	}))

	raw, err := st.HGetAll(ctx, "ship:systems")
	require.NoError(t, err)
	assert.NotContains(t, raw, "holodeck")
}

func TestLevelUpdateDerivesStatus(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, SeedShip(ctx, st))

	require.NoError(t, ApplyShipUpdates(ctx, st, map[string]SystemUpdate{
		"weapons": LevelUpdate(80),
		"shields": LevelUpdate(0),
	}))

	ship, err := LoadShip(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, ship.Weapons.Status)
	assert.Equal(t, StatusStandby, ship.Shields.Status)
}
