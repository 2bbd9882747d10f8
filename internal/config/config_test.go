package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("failed to load missing config: %v", err)
	}

	if cfg.Path != path {
		t.Errorf("expected path %s, got %s", path, cfg.Path)
	}
	if want := filepath.Join(dir, "caddie.db"); cfg.StorePath != want {
		t.Errorf("expected store beside the config file at %s, got %s", want, cfg.StorePath)
	}
	if cfg.DataDir() != dir {
		t.Errorf("expected data dir %s, got %s", dir, cfg.DataDir())
	}
	if cfg.RemoteURL != "" || cfg.AuthToken != "" || cfg.RelayURL != "" || cfg.CatalogDir != "" {
		t.Errorf("expected empty endpoints by default, got %+v", cfg)
	}
	if cfg.DrainInterval != 0 || cfg.RetrySweepInterval != 0 {
		t.Errorf("expected zero intervals (daemon defaults apply), got %+v", cfg)
	}
	if cfg.DashboardPort != 8080 {
		t.Errorf("expected dashboard port 8080, got %d", cfg.DashboardPort)
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
store:
  path: /elsewhere/caddie.db
remote:
  url: libsql://trips.example.io
  auth_token: tok123
daemon:
  drain_interval: 45s
  log_file: /var/log/caddie/syncd.log
recap:
  model: claude-test-model
`)

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.StorePath != "/elsewhere/caddie.db" {
		t.Errorf("unexpected store path %s", cfg.StorePath)
	}
	if cfg.RemoteURL != "libsql://trips.example.io" || cfg.AuthToken != "tok123" {
		t.Errorf("unexpected remote settings: %s / %s", cfg.RemoteURL, cfg.AuthToken)
	}
	if cfg.DrainInterval != 45*time.Second {
		t.Errorf("expected 45s drain interval, got %v", cfg.DrainInterval)
	}
	if cfg.DaemonLogFile != "/var/log/caddie/syncd.log" {
		t.Errorf("unexpected daemon log file %s", cfg.DaemonLogFile)
	}
	if cfg.RecapModel != "claude-test-model" {
		t.Errorf("unexpected recap model %s", cfg.RecapModel)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
remote:
  url: libsql://file.example.io
`)
	t.Setenv("CADDIE_REMOTE_URL", "libsql://env.example.io")
	t.Setenv("CADDIE_DAEMON_DRAIN_INTERVAL", "90s")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.RemoteURL != "libsql://env.example.io" {
		t.Errorf("expected the environment to win, got %s", cfg.RemoteURL)
	}
	if cfg.DrainInterval != 90*time.Second {
		t.Errorf("expected 90s drain interval from the environment, got %v", cfg.DrainInterval)
	}
}

func TestLoad_FlagOverridesEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("CADDIE_REMOTE_URL", "libsql://env.example.io")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("db", "", "")
	fs.String("remote-url", "", "")
	if err := fs.Set("remote-url", "libsql://flag.example.io"); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, fs)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.RemoteURL != "libsql://flag.example.io" {
		t.Errorf("expected the flag to win, got %s", cfg.RemoteURL)
	}

	// An untouched flag does not mask the default.
	if want := filepath.Join(dir, "caddie.db"); cfg.StorePath != want {
		t.Errorf("expected default store path %s, got %s", want, cfg.StorePath)
	}
}

func TestLoad_RejectsMalformedFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "store: [unclosed\n")
	if _, err := Load(path, nil); err == nil {
		t.Error("expected an error for malformed YAML")
	}
}

func TestWriteDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("failed to write default config: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config back: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "# caddie configuration") {
		t.Errorf("expected a leading comment banner, got:\n%s", text)
	}
	for _, want := range []string{"auth_token:", "drain_interval: 30s", "# Filled in by"} {
		if !strings.Contains(text, want) {
			t.Errorf("default config missing %q:\n%s", want, text)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600 permissions, got %o", perm)
	}

	// The template must load cleanly and mirror the daemon defaults.
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("failed to load written default: %v", err)
	}
	if want := filepath.Join(dir, "nested", "caddie.db"); cfg.StorePath != want {
		t.Errorf("expected store path %s, got %s", want, cfg.StorePath)
	}
	if cfg.DrainInterval != 30*time.Second || cfg.CatalogDebounce != 500*time.Millisecond {
		t.Errorf("unexpected daemon intervals: %+v", cfg)
	}

	if err := WriteDefault(path); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected an already-exists error, got %v", err)
	}
}

func TestSaveAuthToken_PreservesComments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatal(err)
	}

	if err := SaveAuthToken(path, "ts-secret-1"); err != nil {
		t.Fatalf("failed to save token: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.AuthToken != "ts-secret-1" {
		t.Errorf("expected saved token, got %q", cfg.AuthToken)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{"# caddie configuration", "# Filled in by", "drain_interval: 30s"} {
		if !strings.Contains(text, want) {
			t.Errorf("rewrite lost %q:\n%s", want, text)
		}
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestSaveAuthToken_CreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := SaveAuthToken(path, "ts-secret-2"); err != nil {
		t.Fatalf("failed to save token: %v", err)
	}
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.AuthToken != "ts-secret-2" {
		t.Errorf("expected saved token, got %q", cfg.AuthToken)
	}
}

func TestSaveAuthToken_KeepsUnknownKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `# my notes
store:
  path: /x/caddie.db
beer_fund: 250
`)

	if err := SaveAuthToken(path, "ts-secret-3"); err != nil {
		t.Fatalf("failed to save token: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{"# my notes", "beer_fund: 250", "path: /x/caddie.db"} {
		if !strings.Contains(text, want) {
			t.Errorf("rewrite lost %q:\n%s", want, text)
		}
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.AuthToken != "ts-secret-3" || cfg.StorePath != "/x/caddie.db" {
		t.Errorf("unexpected config after save: %+v", cfg)
	}
}
