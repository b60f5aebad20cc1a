package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	return path
}

// isolate points the search paths at an empty directory.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Chdir(dir)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	want := Default()
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_File(t *testing.T) {
	isolate(t)
	path := writeFile(t, `
database:
  path: /tmp/tl.db
  busy_timeout: 2s
log:
  level: debug
  format: text
search:
  default_limit: 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.File != path {
		t.Errorf("File = %q, want %q", cfg.File, path)
	}
	if cfg.Database.Path != "/tmp/tl.db" || cfg.Database.BusyTimeout != 2*time.Second {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Search.DefaultLimit != 5 || cfg.Search.SuggestionLimit != 10 {
		t.Errorf("Search = %+v", cfg.Search)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver = %q, want default", cfg.Database.Driver)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)
	path := writeFile(t, "log:\n  level: warn\n")
	t.Setenv("TL_LOG_LEVEL", "error")
	t.Setenv("TL_DASHBOARD_PORT", "9191")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want error", cfg.Log.Level)
	}
	if cfg.Dashboard.Port != 9191 {
		t.Errorf("Dashboard.Port = %d, want 9191", cfg.Dashboard.Port)
	}
}

func TestLoad_SearchPath(t *testing.T) {
	isolate(t)
	if err := os.MkdirAll(".tasklattice", 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(".tasklattice", "config.yaml"), []byte("dashboard:\n  port: 7000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Dashboard.Port != 7000 {
		t.Errorf("Dashboard.Port = %d, want 7000", cfg.Dashboard.Port)
	}
}

func TestLoad_Errors(t *testing.T) {
	isolate(t)
	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{name: "missing explicit file", path: filepath.Join(t.TempDir(), "nope.yaml"), wantErr: "not found"},
		{name: "bad yaml", path: writeFile(t, "database: [\n"), wantErr: "failed to read config"},
		{name: "bad driver", path: writeFile(t, "database:\n  driver: postgres\n"), wantErr: "database.driver"},
		{name: "bad level", path: writeFile(t, "log:\n  level: loud\n"), wantErr: "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "libsql", mutate: func(c *Config) { c.Database.Driver = "libsql" }},
		{name: "empty path", mutate: func(c *Config) { c.Database.Path = " " }, wantErr: true},
		{name: "port out of range", mutate: func(c *Config) { c.Dashboard.Port = 70000 }, wantErr: true},
		{name: "negative limit", mutate: func(c *Config) { c.Search.DefaultLimit = -1 }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	if got := cfg.Database.StoreOptions(); got.Driver != "sqlite" || got.BusyTimeout != 5*time.Second || got.MaxOpenConns != 25 {
		t.Errorf("StoreOptions() = %+v", got)
	}
	if got := cfg.Log.Options(); got.Level != "info" || got.Format != "json" || got.MaxBackups != 3 {
		t.Errorf("Options() = %+v", got)
	}
}
