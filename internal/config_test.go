package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/raido/internal/storage"
	pkgconfig "github.com/starford/raido/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.Drafts.Debounce != 3*time.Second {
		t.Errorf("debounce = %v, want 3s", cfg.Drafts.Debounce)
	}
}

func TestDraftsConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*DraftsConfig)
		wantErr bool
	}{
		{"memory needs no path", func(c *DraftsConfig) { c.Backend = storage.BackendMemory; c.Path = "" }, false},
		{"fs needs path", func(c *DraftsConfig) { c.Backend = storage.BackendFS; c.Path = "" }, true},
		{"redis needs url", func(c *DraftsConfig) { c.Backend = storage.BackendRedis }, true},
		{"redis with url", func(c *DraftsConfig) { c.Backend = storage.BackendRedis; c.RedisURL = "redis://localhost:6379/0" }, false},
		{"unknown backend", func(c *DraftsConfig) { c.Backend = "etcd" }, true},
		{"zero debounce", func(c *DraftsConfig) { c.Debounce = 0 }, true},
		{"too many retries", func(c *DraftsConfig) { c.MaxRetries = 11 }, true},
		{"negative ttl", func(c *DraftsConfig) { c.TTL = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig().Drafts
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("RAIDO_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  log_level: debug
  http:
    port: 9090
catalog:
  path: ./fixtures
drafts:
  backend: memory
  debounce: 500ms
  max_retries: 2
cache:
  ttl: 0s
auth:
  mode: token
  token: ${RAIDO_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Drafts.Backend != storage.BackendMemory || cfg.Drafts.Debounce != 500*time.Millisecond {
		t.Errorf("drafts = %+v", cfg.Drafts)
	}
	if cfg.Cache.TTL != 0 {
		t.Errorf("cache ttl = %v, want disabled", cfg.Cache.TTL)
	}
	if !cfg.Catalog.Watch {
		t.Error("watch default should survive a partial section")
	}
	if cfg.Auth.Token != "s3cret" {
		t.Errorf("token = %q", cfg.Auth.Token)
	}
}
