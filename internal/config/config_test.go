package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tickwork/pkg/logx"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickwork.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
log:
  level: DEBUG
  console: true
scheduler:
  resolution: 250ms
  shutdown_timeout: 10s
history:
  size: 50
  path: /tmp/tickwork-history.db
jobs:
  - name: backup
    cron: "0 0 3 * * *"
    command: "/usr/local/bin/backup.sh"
    timeout: 5m
  - name: heartbeat
    every: 30s
    command: "curl -fsS https://example.invalid/ping"
  - name: warmup
    after: 10s
    command: "echo warm"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "DEBUG" || !cfg.Log.Console {
		t.Fatalf("Log = %+v", cfg.Log)
	}
	if cfg.Scheduler.Resolution.Std() != 250*time.Millisecond {
		t.Fatalf("Resolution = %v", cfg.Scheduler.Resolution)
	}
	if len(cfg.Jobs) != 3 {
		t.Fatalf("len(Jobs) = %d", len(cfg.Jobs))
	}
	if cfg.Jobs[0].Timeout.Std() != 5*time.Minute {
		t.Fatalf("Timeout = %v", cfg.Jobs[0].Timeout)
	}
	if cfg.Jobs[1].Every.Std() != 30*time.Second {
		t.Fatalf("Every = %v", cfg.Jobs[1].Every)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "jobs: []\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "INFO" {
		t.Fatalf("default level = %q", cfg.Log.Level)
	}
	if cfg.Scheduler.Resolution.Std() != 500*time.Millisecond {
		t.Fatalf("default resolution = %v", cfg.Scheduler.Resolution)
	}
	if cfg.Scheduler.ShutdownTimeout.Std() != 30*time.Second {
		t.Fatalf("default shutdown timeout = %v", cfg.Scheduler.ShutdownTimeout)
	}
	if cfg.History.Size != 200 {
		t.Fatalf("default history size = %d", cfg.History.Size)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "shcheduler:\n  resolution: 1s\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for misspelled section")
	}
}

func TestLoadRejectsBadJobs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{name: "missing name", body: "jobs:\n  - every: 5s\n    command: x\n"},
		{name: "missing command", body: "jobs:\n  - name: a\n    every: 5s\n"},
		{name: "no trigger", body: "jobs:\n  - name: a\n    command: x\n"},
		{name: "two triggers", body: "jobs:\n  - name: a\n    every: 5s\n    cron: \"* * * * * *\"\n    command: x\n"},
		{name: "duplicate names", body: "jobs:\n  - name: a\n    every: 5s\n    command: x\n  - name: a\n    every: 6s\n    command: y\n"},
		{name: "bad duration", body: "jobs:\n  - name: a\n    every: banana\n    command: x\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, tt.body)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error for %s", tt.name)
			}
		})
	}
}

func TestWatchAppliesValidReload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "tickwork.yaml")
	if err := os.WriteFile(path, []byte("jobs: []\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan *Config, 4)
	if err := Watch(ctx, path, logx.Nop(), func(cfg *Config) { applied <- cfg }); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// Editors save via rename-over; the watcher must survive that.
	tmp := filepath.Join(dir, "tickwork.yaml.tmp")
	body := "jobs:\n  - name: a\n    every: 5s\n    command: x\n"
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		t.Fatalf("write tmp: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}

	select {
	case cfg := <-applied:
		if len(cfg.Jobs) != 1 || cfg.Jobs[0].Name != "a" {
			t.Fatalf("applied config = %+v, want job a", cfg.Jobs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload was not applied")
	}
}

func TestWatchRejectsInvalidReload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "tickwork.yaml")
	if err := os.WriteFile(path, []byte("jobs: []\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan *Config, 4)
	if err := Watch(ctx, path, logx.Nop(), func(cfg *Config) { applied <- cfg }); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// A save with a missing name must be skipped, not applied.
	if err := os.WriteFile(path, []byte("jobs:\n  - every: 5s\n    command: x\n"), 0o644); err != nil {
		t.Fatalf("write invalid: %v", err)
	}
	select {
	case cfg := <-applied:
		t.Fatalf("invalid config was applied: %+v", cfg)
	case <-time.After(700 * time.Millisecond):
	}

	// The watcher recovers once the file is valid again.
	if err := os.WriteFile(path, []byte("jobs:\n  - name: b\n    every: 5s\n    command: y\n"), 0o644); err != nil {
		t.Fatalf("write valid: %v", err)
	}
	select {
	case cfg := <-applied:
		if len(cfg.Jobs) != 1 || cfg.Jobs[0].Name != "b" {
			t.Fatalf("applied config = %+v, want job b", cfg.Jobs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("valid follow-up was not applied")
	}
}

func TestFingerprintChanges(t *testing.T) {
	t.Parallel()
	a := JobConfig{Name: "x", Every: Duration(5 * time.Second), Command: "echo hi"}
	b := a
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("identical definitions should share a fingerprint")
	}
	b.Command = "echo bye"
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatal("changed command should change the fingerprint")
	}
}
