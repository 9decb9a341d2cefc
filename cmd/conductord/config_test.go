package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conductor.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("default backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Store.MongoDatabase != "conductor" {
		t.Errorf("default mongo database = %q, want conductor", cfg.Store.MongoDatabase)
	}
	if cfg.Feed.Listen != ":8787" || cfg.Feed.BasePath != "/feed" {
		t.Errorf("feed defaults = %q %q", cfg.Feed.Listen, cfg.Feed.BasePath)
	}
	if !cfg.AutoOptimize() {
		t.Error("auto-optimize should default to enabled")
	}

	sc, err := cfg.SchedulerConfig()
	if err != nil {
		t.Fatalf("SchedulerConfig: %v", err)
	}
	if sc.RetryInitialDelay != 15*time.Second {
		t.Errorf("RetryInitialDelay = %v, want library default", sc.RetryInitialDelay)
	}
}

func TestLoadConfig_ParsesDurationsAndCron(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
scheduler:
  retry_initial_delay: 5s
  idle_delay: 1m
  auto_optimize: false
cron:
  - name: nightly-sync
    schedule: "0 2 * * *"
    job_type: sync
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	sc, err := cfg.SchedulerConfig()
	if err != nil {
		t.Fatalf("SchedulerConfig: %v", err)
	}
	if sc.RetryInitialDelay != 5*time.Second {
		t.Errorf("RetryInitialDelay = %v, want 5s", sc.RetryInitialDelay)
	}
	if sc.IdleDelay != time.Minute {
		t.Errorf("IdleDelay = %v, want 1m", sc.IdleDelay)
	}
	if cfg.AutoOptimize() {
		t.Error("auto_optimize: false not honored")
	}
	if len(cfg.Cron) != 1 || cfg.Cron[0].Name != "nightly-sync" {
		t.Fatalf("cron entries = %+v", cfg.Cron)
	}
}

func TestLoadConfig_Rejections(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "shceduler:\n  idle_delay: 1m\n", "field shceduler not found"},
		{"bad backend", "store:\n  backend: etcd\n", "unknown store backend"},
		{"sqlite without path", "store:\n  backend: sqlite\n", "sqlite_path required"},
		{"mongo without uri", "store:\n  backend: mongo\n", "mongo_uri required"},
		{"bad duration", "scheduler:\n  idle_delay: soon\n", "invalid duration"},
		{"unknown cron job type", "cron:\n  - name: x\n    schedule: \"* * * * *\"\n    job_type: launder\n", "unknown job type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
