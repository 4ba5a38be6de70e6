package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Backend kinds.
const (
	BackendSQLite   = "sqlite"
	BackendSupabase = "supabase"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Backend  BackendConfig     `yaml:"backend"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Supabase SupabaseConfig    `yaml:"supabase"`
	Session  SessionConfig     `yaml:"session"`
	MCP      MCPConfig         `yaml:"mcp"`
}

// Validate validates the configuration. Only the section of the selected
// backend is checked.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Backend.Validate(); err != nil {
		return err
	}
	switch c.Backend.Kind {
	case BackendSQLite:
		if err := c.SQLite.Validate(); err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
	case BackendSupabase:
		if err := c.Supabase.Validate(); err != nil {
			return fmt.Errorf("supabase: %w", err)
		}
	}
	return c.Session.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	LogFile  string     `yaml:"log_file"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// BackendConfig selects the remote store implementation.
//
// Kind is one of:
//   - "sqlite" (default): embedded store in a local database file.
//   - "supabase": hosted backend reached over REST.
//
// Timeout bounds every remote call; zero disables the bound.
type BackendConfig struct {
	Kind    string        `yaml:"kind"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the backend configuration.
func (c *BackendConfig) Validate() error {
	if c.Kind == "" {
		c.Kind = BackendSQLite
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Kind, validation.Required, validation.In(BackendSQLite, BackendSupabase)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// SQLiteConfig holds the embedded store configuration.
type SQLiteConfig struct {
	Path        string        `yaml:"path"`
	TokenSecret string        `yaml:"token_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.TokenSecret, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.TokenTTL, validation.Min(time.Duration(0))),
	)
}

// SupabaseConfig holds the hosted backend endpoint and public key.
type SupabaseConfig struct {
	URL     string `yaml:"url"`
	AnonKey string `yaml:"anon_key"`
}

// Validate validates the Supabase configuration.
func (c *SupabaseConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, is.URL),
		validation.Field(&c.AnonKey, validation.Required),
	)
}

// SessionConfig controls browser sessions of the HTTP API.
type SessionConfig struct {
	CookieName   string        `yaml:"cookie_name"`
	IdleTTL      time.Duration `yaml:"idle_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.IdleTTL, validation.Min(time.Duration(0))),
	)
}

// MCPConfig holds the account the MCP server signs in with.
type MCPConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Validate validates the MCP configuration. It is checked only when the
// MCP server starts.
func (c *MCPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Email, validation.Required, is.EmailFormat),
		validation.Field(&c.Password, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Backend: BackendConfig{
			Kind:    BackendSQLite,
			Timeout: 10 * time.Second,
		},
		SQLite: SQLiteConfig{
			Path:     "./notes.db",
			TokenTTL: 24 * time.Hour,
		},
		Session: SessionConfig{
			CookieName: "notes_session",
			IdleTTL:    time.Hour,
		},
	}
}
