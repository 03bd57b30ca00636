package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return path
}

func TestLoadFromExplicitPath(t *testing.T) {
	path := writeConfig(t, `{
		"uid": "otto",
		"server_mode": true,
		"io_drivers": ["telegram", "web"],
		"io_accessories": {"telegram": ["leds"]},
		"io_queue": {"enabled": true, "interval_seconds": 5},
		"channels": {"telegram": {"token": "tok", "activator_name": "otto"}},
		"database": {"path": "/tmp/voxhub.db"}
	}`)
	t.Setenv("VOXHUB_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.UID != "otto" {
		t.Fatalf("uid = %q, want otto", cfg.UID)
	}
	if !cfg.ServerMode {
		t.Fatal("expected server mode")
	}
	if !reflect.DeepEqual(cfg.DriversToLoad(), []string{"telegram", "web"}) {
		t.Fatalf("drivers = %v", cfg.DriversToLoad())
	}
	if !reflect.DeepEqual(cfg.AccessoriesToLoadForDriver("telegram"), []string{"leds"}) {
		t.Fatalf("accessories = %v", cfg.AccessoriesToLoadForDriver("telegram"))
	}
	if cfg.AccessoriesToLoadForDriver("web") != nil {
		t.Fatal("expected no accessories for web")
	}
	if cfg.IOQueue.IntervalSeconds != 5 {
		t.Fatalf("interval = %d, want 5", cfg.IOQueue.IntervalSeconds)
	}
}

func TestLoadDefaultsUID(t *testing.T) {
	path := writeConfig(t, `{}`)
	t.Setenv("VOXHUB_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.UID != defaultUID {
		t.Fatalf("uid = %q, want %q", cfg.UID, defaultUID)
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	t.Setenv("VOXHUB_CONFIG", filepath.Join(t.TempDir(), "nope.json"))

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"uid": "otto",
		"database": {"path": "/tmp/file.db"},
		"channels": {"telegram": {"token": "from-file"}}
	}`)
	t.Setenv("VOXHUB_CONFIG", path)
	t.Setenv("VOXHUB_UID", "other")
	t.Setenv("VOXHUB_SERVER_MODE", "true")
	t.Setenv("VOXHUB_DB_PATH", "/tmp/env.db")
	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")
	t.Setenv("TELEGRAM_ALLOW_FROM", "1, 2 ,3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.UID != "other" {
		t.Fatalf("uid = %q, want other", cfg.UID)
	}
	if !cfg.ServerMode {
		t.Fatal("expected server mode from env")
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Fatalf("db path = %q", cfg.Database.Path)
	}
	if cfg.Channels.Telegram.Token != "from-env" {
		t.Fatalf("token = %q", cfg.Channels.Telegram.Token)
	}
	if !reflect.DeepEqual(cfg.Channels.Telegram.AllowFrom, []string{"1", "2", "3"}) {
		t.Fatalf("allow_from = %v", cfg.Channels.Telegram.AllowFrom)
	}
}

func TestEnvDriverListOverrides(t *testing.T) {
	cfg := &Config{IODrivers: []string{"telegram"}, IOListeners: []string{"ioevent"}}
	t.Setenv("VOXHUB_IO_DRIVERS", "console, web")
	t.Setenv("VOXHUB_IO_LISTENERS", "")

	if !reflect.DeepEqual(cfg.DriversToLoad(), []string{"console", "web"}) {
		t.Fatalf("drivers = %v", cfg.DriversToLoad())
	}
	if !reflect.DeepEqual(cfg.ListenersToLoad(), []string{"ioevent"}) {
		t.Fatalf("listeners = %v", cfg.ListenersToLoad())
	}
}

func TestParseBool(t *testing.T) {
	for _, value := range []string{"1", "true", "YES", " on "} {
		if !parseBool(value) {
			t.Fatalf("parseBool(%q) = false, want true", value)
		}
	}
	for _, value := range []string{"0", "false", "off", "banana", ""} {
		if parseBool(value) {
			t.Fatalf("parseBool(%q) = true, want false", value)
		}
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV(" a, ,b , c,")
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("parseCSV = %v", got)
	}
}
