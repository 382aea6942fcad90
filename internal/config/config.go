package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for scribe.
type Config struct {
	General  GeneralConfig  `yaml:"general"`
	Store    StoreConfig    `yaml:"store"`
	Discord  DiscordConfig  `yaml:"discord"`
	Backfill BackfillConfig `yaml:"backfill"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `yaml:"logLevel"`
}

type StoreConfig struct {
	// URL is the Postgres connection string (DATABASE_URL).
	URL string `yaml:"url"`
	// MaxConns bounds the connection pool.
	MaxConns     int `yaml:"maxConns"`
	MaxIdleConns int `yaml:"maxIdleConns"`
}

type DiscordConfig struct {
	// Token is the bot credential (DISCORD_TOKEN).
	Token string `yaml:"token"`
	// GuildID optionally restricts ingestion to one guild.
	GuildID string `yaml:"guildId,omitempty"`
}

type BackfillConfig struct {
	// WindowDays is the cutoff window for the unattended guild sweep.
	WindowDays int `yaml:"windowDays"`
}

type ArchiveConfig struct {
	// CategoryID is the archive grouping channels are moved into.
	CategoryID string `yaml:"categoryId"`
	// InactivityDays is the threshold before a channel is archived.
	InactivityDays int `yaml:"inactivityDays"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Store: StoreConfig{
			MaxConns:     5,
			MaxIdleConns: 2,
		},
		Backfill: BackfillConfig{
			WindowDays: 30,
		},
		Archive: ArchiveConfig{
			InactivityDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    9180,
		},
	}
}

// Load reads the optional YAML config file, then lets environment variables
// override the deploy-sensitive values. A .env file next to the process is
// honored first. A missing config file is not an error; the env-only setup
// matches how the service has historically been deployed.
func Load(path string) (*Config, error) {
	// Best effort: absent .env files are fine.
	_ = godotenv.Load()

	cfg := Defaults()

	if path != "" {
		if strings.HasPrefix(path, "~/") {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("cannot resolve home directory: %w", err)
			}
			path = filepath.Join(home, path[2:])
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.URL = v
	}
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		cfg.Discord.Token = v
	}
	if v := os.Getenv("DISCORD_GUILD_ID"); v != "" {
		cfg.Discord.GuildID = v
	}
	if v := os.Getenv("ARCHIVE_CATEGORY_ID"); v != "" {
		cfg.Archive.CategoryID = v
	}
	if n, ok := envInt("BACKFILL_WINDOW_DAYS"); ok {
		cfg.Backfill.WindowDays = n
	}
	if n, ok := envInt("INACTIVITY_DAYS"); ok {
		cfg.Archive.InactivityDays = n
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.General.LogLevel = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks that the config has usable values. Credentials are checked
// by the commands that need them, not here, so read-only commands keep
// working without a token.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Store.MaxConns < 1 || cfg.Store.MaxConns > 100 {
		errs = append(errs, "store.maxConns must be between 1 and 100")
	}
	if cfg.Store.MaxIdleConns < 0 || cfg.Store.MaxIdleConns > cfg.Store.MaxConns {
		errs = append(errs, "store.maxIdleConns must be between 0 and store.maxConns")
	}
	if cfg.Backfill.WindowDays < 1 {
		errs = append(errs, "backfill.windowDays must be at least 1")
	}
	if cfg.Archive.InactivityDays < 1 {
		errs = append(errs, "archive.inactivityDays must be at least 1")
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		errs = append(errs, "metrics.port must be between 0 and 65535")
	}

	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
