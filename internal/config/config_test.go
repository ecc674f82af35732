package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Platform.BaseURL == "" {
		t.Error("default platform.base_url is empty")
	}
	if cfg.Ingest.Workers != 4 {
		t.Errorf("ingest.workers = %d, want 4", cfg.Ingest.Workers)
	}
	if cfg.Wait.Interval != 5*time.Second {
		t.Errorf("wait.interval = %v, want 5s", cfg.Wait.Interval)
	}
	if cfg.Serve.Addr != ":8477" {
		t.Errorf("serve.addr = %q, want :8477", cfg.Serve.Addr)
	}
	if want := []string{"transactions", "identity"}; !reflect.DeepEqual(cfg.Score.Groups, want) {
		t.Errorf("score.groups = %v, want %v", cfg.Score.Groups, want)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.yaml")
	content := `platform:
  base_url: http://platform.example:9000
  api_key: file-key
wait:
  interval: 2s
score:
  groups:
    - transactions
    - identity
    - devices
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Platform.BaseURL != "http://platform.example:9000" {
		t.Errorf("base_url = %q", cfg.Platform.BaseURL)
	}
	if cfg.Platform.APIKey != "file-key" {
		t.Errorf("api_key = %q", cfg.Platform.APIKey)
	}
	if cfg.Wait.Interval != 2*time.Second {
		t.Errorf("wait.interval = %v, want 2s", cfg.Wait.Interval)
	}
	if len(cfg.Score.Groups) != 3 || cfg.Score.Groups[2] != "devices" {
		t.Errorf("score.groups = %v", cfg.Score.Groups)
	}
	// Untouched sections keep their defaults.
	if cfg.Ingest.Workers != 4 {
		t.Errorf("ingest.workers = %d, want default 4", cfg.Ingest.Workers)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LOOM_PLATFORM_BASE_URL", "http://env.example:8000")
	t.Setenv("LOOM_WAIT_MAX_WAIT", "90m")
	t.Setenv("LOOM_INGEST_WORKERS", "8")
	t.Setenv("LOOM_SCORE_GROUPS", "transactions,devices")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Platform.BaseURL != "http://env.example:8000" {
		t.Errorf("base_url = %q", cfg.Platform.BaseURL)
	}
	if cfg.Wait.MaxWait != 90*time.Minute {
		t.Errorf("wait.max_wait = %v, want 90m", cfg.Wait.MaxWait)
	}
	if cfg.Ingest.Workers != 8 {
		t.Errorf("ingest.workers = %d, want 8", cfg.Ingest.Workers)
	}
	if want := []string{"transactions", "devices"}; !reflect.DeepEqual(cfg.Score.Groups, want) {
		t.Errorf("score.groups = %v, want %v", cfg.Score.Groups, want)
	}
}

func TestEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.yaml")
	if err := os.WriteFile(path, []byte("platform:\n  base_url: http://file.example\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOOM_PLATFORM_BASE_URL", "http://env.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Platform.BaseURL != "http://env.example" {
		t.Errorf("base_url = %q, want the env value", cfg.Platform.BaseURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load of missing file succeeded")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("LOOM_INGEST_WORKERS", "0")
	if _, err := Load(""); err == nil {
		t.Error("Load with zero workers succeeded")
	}
}

func TestResolve(t *testing.T) {
	if got := Resolve("explicit.yaml"); got != "explicit.yaml" {
		t.Errorf("Resolve(explicit) = %q", got)
	}

	t.Setenv("LOOM_CONFIG", "/etc/loom/env.yaml")
	if got := Resolve(""); got != "/etc/loom/env.yaml" {
		t.Errorf("Resolve with LOOM_CONFIG = %q", got)
	}
	t.Setenv("LOOM_CONFIG", "")

	dir := t.TempDir()
	t.Chdir(dir)
	if got := Resolve(""); got != "" {
		t.Errorf("Resolve in empty dir = %q, want empty", got)
	}
	if err := os.WriteFile(filepath.Join(dir, "loom.yaml"), []byte("{}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "loom.yaml" {
		t.Errorf("Resolve with local file = %q, want loom.yaml", got)
	}
}

func TestShowAllRedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Platform.APIKey = "super-secret"
	cfg.Serve.Token = ""

	byKey := make(map[string]KeyInfo)
	for _, ki := range cfg.ShowAll() {
		byKey[ki.Key] = ki
	}

	if got := byKey["platform.api_key"]; got.Value != "(set)" || !got.Secret {
		t.Errorf("platform.api_key shown as %+v", got)
	}
	if got := byKey["serve.token"]; got.Value != "" {
		t.Errorf("empty serve.token shown as %q", got.Value)
	}
	if got := byKey["wait.interval"]; got.Value != "5s" {
		t.Errorf("wait.interval shown as %q", got.Value)
	}
	if got := byKey["score.groups"]; got.Value != "transactions,identity" {
		t.Errorf("score.groups shown as %q", got.Value)
	}
}
