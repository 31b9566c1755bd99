package config

import (
	"runtime"
	"testing"
)

func setConfigHome(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("config dir override relies on XDG_CONFIG_HOME")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	setConfigHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Hotkey != DefaultHotkey {
		t.Errorf("hotkey = %q, want %q", cfg.Hotkey, DefaultHotkey)
	}
	if cfg.Language != "auto" {
		t.Errorf("language = %q, want auto", cfg.Language)
	}
	if !cfg.AutoInsert {
		t.Error("auto insert should default to true")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	setConfigHome(t)

	cfg := &Config{
		Hotkey:     "cmd+shift+d",
		Language:   "ja",
		AutoInsert: false,
		ModelName:  "large-v3",
	}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Hotkey != "cmd+shift+d" {
		t.Errorf("hotkey = %q", loaded.Hotkey)
	}
	if loaded.ModelName != "large-v3" {
		t.Errorf("model = %q", loaded.ModelName)
	}
	if loaded.Language != "ja" {
		t.Errorf("language = %q", loaded.Language)
	}
}
