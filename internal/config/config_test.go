package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "treemirror.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: http://localhost:9999
  token: test-token
db:
  path: /tmp/test-mirror.db
sync:
  batch_size: 25
  interval: 5m
roots:
  main: root-1
  archive: root-2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.API.BaseURL != "http://localhost:9999" || cfg.API.Token != "test-token" {
		t.Errorf("api section wrong: %+v", cfg.API)
	}
	if cfg.DB.Path != "/tmp/test-mirror.db" {
		t.Errorf("db.path = %s", cfg.DB.Path)
	}
	if cfg.Sync.BatchSize != 25 {
		t.Errorf("sync.batch_size = %d, want 25", cfg.Sync.BatchSize)
	}
	if cfg.Sync.Interval != 5*time.Minute {
		t.Errorf("sync.interval = %v, want 5m", cfg.Sync.Interval)
	}

	// Unset keys keep their defaults.
	if cfg.Sync.MaxDepth != 10 || cfg.Sync.Concurrency != 2 {
		t.Errorf("defaults not applied: depth=%d concurrency=%d", cfg.Sync.MaxDepth, cfg.Sync.Concurrency)
	}
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() ignored a missing explicit config file")
	}
}

func TestLoad_NoFileAtAllIsFine(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed without a config file: %v", err)
	}
	if cfg.DB.Path != ".treemirror/mirror.db" {
		t.Errorf("default db.path = %s", cfg.DB.Path)
	}
}

func TestRequireAPI(t *testing.T) {
	var cfg Config
	if err := cfg.RequireAPI(); err == nil {
		t.Error("RequireAPI() passed without a token")
	}

	cfg.API.Token = "tok"
	if err := cfg.RequireAPI(); err != nil {
		t.Errorf("RequireAPI() failed with a token: %v", err)
	}
}

func TestResolveRoot(t *testing.T) {
	cfg := Config{Roots: map[string]string{"main": "root-1"}}

	id, err := cfg.ResolveRoot("main")
	if err != nil || id != "root-1" {
		t.Errorf("ResolveRoot(main) = %s, %v", id, err)
	}

	// Unregistered names pass through as raw remote ids.
	id, err = cfg.ResolveRoot("1AbCdEf")
	if err != nil || id != "1AbCdEf" {
		t.Errorf("ResolveRoot(raw) = %s, %v", id, err)
	}

	if _, err := cfg.ResolveRoot(""); err == nil {
		t.Error("ResolveRoot() accepted an empty root")
	}
}

func TestRootIDs_SortedByName(t *testing.T) {
	cfg := Config{Roots: map[string]string{
		"zeta":  "root-z",
		"alpha": "root-a",
		"mid":   "root-m",
	}}

	got := cfg.RootIDs()
	want := []string{"root-a", "root-m", "root-z"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RootIDs() = %v, want %v", got, want)
	}
}
