package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/notesapp/pkg/config"
)

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.SQLite.TokenSecret = "0123456789abcdef"
	return cfg
}

func TestDefaultConfigNeedsSecret(t *testing.T) {
	cfg := NewDefaultConfig()
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "sqlite") {
		t.Fatalf("expected sqlite error, got %v", err)
	}
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}
}

func TestBackendConfig_EmptyKindDefaultsSQLite(t *testing.T) {
	cfg := BackendConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty kind should default: %v", err)
	}
	if cfg.Kind != BackendSQLite {
		t.Errorf("kind = %q, want %q", cfg.Kind, BackendSQLite)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"unknown backend", func(c *Config) { c.Backend.Kind = "mongo" }, true},
		{"negative timeout", func(c *Config) { c.Backend.Timeout = -time.Second }, true},
		{"bad port", func(c *Config) { c.App.HTTP.Port = 70000 }, true},
		{"short secret", func(c *Config) { c.SQLite.TokenSecret = "short" }, true},
		{"supabase without url", func(c *Config) { c.Backend.Kind = BackendSupabase }, true},
		{"supabase ok, sqlite section ignored", func(c *Config) {
			c.Backend.Kind = BackendSupabase
			c.Supabase = SupabaseConfig{URL: "https://example.supabase.co", AnonKey: "anon"}
			c.SQLite = SQLiteConfig{}
		}, false},
		{"negative idle ttl", func(c *Config) { c.Session.IdleTTL = -time.Minute }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestMCPConfigValidate(t *testing.T) {
	if err := (&MCPConfig{}).Validate(); err == nil {
		t.Error("empty mcp config should fail")
	}
	if err := (&MCPConfig{Email: "bot@example.com", Password: "secret1"}).Validate(); err != nil {
		t.Errorf("valid mcp config: %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("NOTES_TOKEN_SECRET", "from-the-environment")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  log_level: debug
  http:
    port: 9090
backend:
  kind: sqlite
  timeout: 3s
sqlite:
  path: /tmp/notes.db
  token_secret: ${NOTES_TOKEN_SECRET}
session:
  idle_ttl: 30m
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.Backend.Timeout != 3*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.SQLite.TokenSecret != "from-the-environment" {
		t.Errorf("secret = %q", cfg.SQLite.TokenSecret)
	}
	if cfg.Session.IdleTTL != 30*time.Minute || cfg.Session.CookieName != "notes_session" {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("log level = %v", cfg.App.LogLevel)
	}
}
