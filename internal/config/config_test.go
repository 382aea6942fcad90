package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.Backfill.WindowDays != 30 {
		t.Errorf("expected default windowDays 30, got %d", cfg.Backfill.WindowDays)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	data := []byte(`
store:
  url: postgres://scribe@localhost/scribe
archive:
  categoryId: "688116533553266759"
  inactivityDays: 45
backfill:
  windowDays: 14
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.URL != "postgres://scribe@localhost/scribe" {
		t.Errorf("store.url not read: %q", cfg.Store.URL)
	}
	if cfg.Archive.CategoryID != "688116533553266759" {
		t.Errorf("archive.categoryId not read: %q", cfg.Archive.CategoryID)
	}
	if cfg.Archive.InactivityDays != 45 || cfg.Backfill.WindowDays != 14 {
		t.Errorf("numeric overrides not read: %+v", cfg)
	}
	// Untouched sections keep defaults.
	if cfg.Store.MaxConns != 5 {
		t.Errorf("expected default maxConns 5, got %d", cfg.Store.MaxConns)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	if err := os.WriteFile(path, []byte("backfill:\n  windowDays: 14\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BACKFILL_WINDOW_DAYS", "7")
	t.Setenv("DATABASE_URL", "postgres://env@localhost/env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backfill.WindowDays != 7 {
		t.Errorf("env should override file, got %d", cfg.Backfill.WindowDays)
	}
	if cfg.Store.URL != "postgres://env@localhost/env" {
		t.Errorf("DATABASE_URL not applied: %q", cfg.Store.URL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero window", func(c *Config) { c.Backfill.WindowDays = 0 }},
		{"zero inactivity", func(c *Config) { c.Archive.InactivityDays = 0 }},
		{"idle above max", func(c *Config) { c.Store.MaxIdleConns = c.Store.MaxConns + 1 }},
		{"bad log level", func(c *Config) { c.General.LogLevel = "shout" }},
		{"bad metrics port", func(c *Config) { c.Metrics.Port = 70000 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}
