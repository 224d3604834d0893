package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "driveboard.ini")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
[driveboard]
port = /dev/ttyACM3
baudrate = 115200

[backend]
http_port = 8080
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Driveboard.Port != "/dev/ttyACM3" {
		t.Fatalf("Port = %q, want /dev/ttyACM3", cfg.Driveboard.Port)
	}
	if cfg.Driveboard.Baudrate != 115200 {
		t.Fatalf("Baudrate = %d, want 115200", cfg.Driveboard.Baudrate)
	}
	if cfg.Backend.HTTPPort != 8080 {
		t.Fatalf("HTTPPort = %d, want 8080", cfg.Backend.HTTPPort)
	}
	// Unset keys keep the default.
	if cfg.Driveboard.GreetingTimeoutMs != 2000 {
		t.Fatalf("GreetingTimeoutMs = %d, want default 2000", cfg.Driveboard.GreetingTimeoutMs)
	}
	if cfg.Original.WorkDir != "." {
		t.Fatalf("WorkDir = %q, want default .", cfg.Original.WorkDir)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.ini")); err == nil {
		t.Fatal("want an error loading a missing file")
	}
}

func TestDefaultIsComplete(t *testing.T) {
	cfg := Default()
	if cfg.Driveboard.Port == "" || cfg.Backend.ListenAddress == "" || cfg.Original.DefaultJob == "" {
		t.Fatalf("Default() left a field empty: %+v", cfg)
	}
}
