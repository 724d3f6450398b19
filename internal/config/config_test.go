package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want 0.0.0.0", cfg.Host)
	}
	if cfg.DatabasePath == "" {
		t.Error("DatabasePath must not be empty")
	}
}

func TestLoadPortFlag(t *testing.T) {
	cfg, err := Load([]string{"-port", "9090"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
}

func TestLoadShortPortFlagWins(t *testing.T) {
	cfg, err := Load([]string{"-port", "9090", "-p", "7070"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 7070 {
		t.Errorf("Port = %d, want shorthand 7070", cfg.Port)
	}
}

func TestLoadDBPathFlag(t *testing.T) {
	cfg, err := Load([]string{"-db", "/tmp/custom.sqlite3"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabasePath != "/tmp/custom.sqlite3" {
		t.Errorf("DatabasePath = %q, want /tmp/custom.sqlite3", cfg.DatabasePath)
	}
}
