// Package config centralizes every tunable the server reads. Values come from
// an optional YAML file overlaid by environment variables, so deployments can
// ship a base file and override per-environment without rebuilding.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the server process.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" yaml:"listen_addr"`
	// Environment selects failure policy: "development" falls back to the
	// in-memory store when Redis is unreachable, "production" refuses to start.
	Environment string `env:"ENVIRONMENT" yaml:"environment"`

	Redis RedisConfig `envPrefix:"REDIS_" yaml:"redis"`
	LLM   LLMConfig   `envPrefix:"LLM_" yaml:"llm"`
	Game  GameConfig  `envPrefix:"GAME_" yaml:"game"`
}

// RedisConfig configures the production state store.
type RedisConfig struct {
	Addr     string `env:"ADDR" yaml:"addr"`
	Password string `env:"PASSWORD" yaml:"password"`
	DB       int    `env:"DB" yaml:"db"`
	// UseMemory skips Redis entirely and runs on the in-memory store.
	UseMemory bool `env:"USE_MEMORY" yaml:"use_memory"`
}

// LLMConfig configures the completion backend.
type LLMConfig struct {
	// Provider is one of "openai" (any OpenAI-compatible endpoint, including
	// vLLM and Ollama), "gemini", or "none" to run on the keyword fallback.
	Provider string        `env:"PROVIDER" yaml:"provider"`
	Model    string        `env:"MODEL" yaml:"model"`
	BaseURL  string        `env:"BASE_URL" yaml:"base_url"`
	APIKey   string        `env:"API_KEY" yaml:"api_key"`
	Timeout  time.Duration `env:"TIMEOUT" yaml:"timeout"`
}

// GameConfig holds the gameplay tunables that the design deliberately leaves
// to configuration rather than hard-coding.
type GameConfig struct {
	// JailbreakHash is the covert token the interpreter model is instructed
	// never to reveal. Empty disables detection.
	JailbreakHash string `env:"JAILBREAK_HASH" yaml:"jailbreak_hash"`

	CommandXP        int `env:"COMMAND_XP" yaml:"command_xp"`
	AuthXP           int `env:"AUTH_XP" yaml:"auth_xp"`
	RepairTapXP      int `env:"REPAIR_TAP_XP" yaml:"repair_tap_xp"`
	LeakClearXP      int `env:"LEAK_CLEAR_XP" yaml:"leak_clear_xp"`
	PromotionBonusXP int `env:"PROMOTION_BONUS_XP" yaml:"promotion_bonus_xp"`

	// Cumulative XP needed to reach each rank by progression alone.
	EnsignXP     int `env:"ENSIGN_XP" yaml:"ensign_xp"`
	LieutenantXP int `env:"LIEUTENANT_XP" yaml:"lieutenant_xp"`
	CommanderXP  int `env:"COMMANDER_XP" yaml:"commander_xp"`
	AdmiralXP    int `env:"ADMIRAL_XP" yaml:"admiral_xp"`

	AuthSessionTTL time.Duration `env:"AUTH_SESSION_TTL" yaml:"auth_session_ttl"`

	LeakMeanInterval time.Duration `env:"LEAK_MEAN_INTERVAL" yaml:"leak_mean_interval"`
	// LeakJitter is the fraction of the mean interval used as a +/- band.
	LeakJitter       float64 `env:"LEAK_JITTER" yaml:"leak_jitter"`
	LeakRequiredTaps int     `env:"LEAK_REQUIRED_TAPS" yaml:"leak_required_taps"`

	CacheTTL time.Duration `env:"CACHE_TTL" yaml:"cache_ttl"`
}

// Default returns the documented baseline configuration.
func Default() Config {
	return Config{
		ListenAddr:  ":8080",
		Environment: "development",
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		LLM: LLMConfig{
			Provider: "none",
			Timeout:  30 * time.Second,
		},
		Game: GameConfig{
			CommandXP:        10,
			AuthXP:           50,
			RepairTapXP:      5,
			LeakClearXP:      50,
			PromotionBonusXP: 1000,
			EnsignXP:         100,
			LieutenantXP:     300,
			CommanderXP:      700,
			AdmiralXP:        1500,
			AuthSessionTTL:   5 * time.Minute,
			LeakMeanInterval: 10 * time.Minute,
			LeakJitter:       0.3,
			LeakRequiredTaps: 20,
			CacheTTL:         5 * time.Minute,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file when path is
// non-empty, then environment variables. Environment always wins.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Game.LeakRequiredTaps <= 0 {
		return fmt.Errorf("config: leak required taps must be positive, got %d", c.Game.LeakRequiredTaps)
	}
	if c.Game.LeakJitter < 0 || c.Game.LeakJitter >= 1 {
		return fmt.Errorf("config: leak jitter must be in [0,1), got %g", c.Game.LeakJitter)
	}
	if c.Game.AuthSessionTTL <= 0 {
		return fmt.Errorf("config: auth session ttl must be positive, got %s", c.Game.AuthSessionTTL)
	}
	switch c.LLM.Provider {
	case "openai", "gemini", "none":
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	return nil
}
