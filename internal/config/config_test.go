package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "none", cfg.LLM.Provider)
	assert.Equal(t, 10, cfg.Game.CommandXP)
	assert.Equal(t, 20, cfg.Game.LeakRequiredTaps)
	assert.Equal(t, 10*time.Minute, cfg.Game.LeakMeanInterval)
	assert.Equal(t, 5*time.Minute, cfg.Game.AuthSessionTTL)
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9090"
game:
  jailbreak_hash: "ZETA-REDACTED-7"
  leak_required_taps: 8
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "ZETA-REDACTED-7", cfg.Game.JailbreakHash)
	assert.Equal(t, 8, cfg.Game.LeakRequiredTaps)
	// Untouched values keep their defaults.
	assert.Equal(t, 10, cfg.Game.CommandXP)
}

func TestEnvironmentWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":9090\"\n"), 0o600))

	t.Setenv("LISTEN_ADDR", ":7070")
	t.Setenv("GAME_LEAK_REQUIRED_TAPS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, 3, cfg.Game.LeakRequiredTaps)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("GAME_LEAK_JITTER", "1.5")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "quantum")
	_, err := Load("")
	assert.Error(t, err)
}
