package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/robfig/cron/v3"

	"github.com/starford/orgcal/internal/apperr"
	"github.com/starford/orgcal/internal/event"
	"github.com/starford/orgcal/internal/remote"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Auth     AuthConfig        `yaml:"auth"`
	Remote   RemoteConfig      `yaml:"remote"`
	Document DocumentConfig    `yaml:"document"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Sync     SyncConfig        `yaml:"sync"`
	Export   ExportConfig      `yaml:"export"`
}

// Validate validates the configuration. Every failure is an
// *apperr.ConfigurationError naming the offending section. An empty remote
// section passes here; commands that sync reject it when they start.
func (c *Config) Validate() error {
	if err := c.Local(); err != nil {
		return err
	}
	if c.Remote.BaseURL == "" {
		return nil
	}
	return apperr.NewConfigurationError("remote", c.Remote.Validate())
}

// Local validates everything except the remote section. Commands that
// never reach the remote service (mcp, expand) only need this.
func (c *Config) Local() error {
	if err := c.App.Validate(); err != nil {
		return apperr.NewConfigurationError("app", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return apperr.NewConfigurationError("auth", err)
	}
	if err := c.Document.Validate(); err != nil {
		return apperr.NewConfigurationError("document", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return apperr.NewConfigurationError("sqlite", err)
	}
	return apperr.NewConfigurationError("sync", c.Sync.Validate())
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.When(c.Enabled, validation.Required, validation.Min(1), validation.Max(65535))),
	)
}

// AuthConfig holds API authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// RemoteConfig describes the schedule service endpoint.
type RemoteConfig struct {
	BaseURL           string           `yaml:"base_url"`
	ServicePath       string           `yaml:"service_path"`
	Timeout           time.Duration    `yaml:"timeout"`
	RequestsPerSecond float64          `yaml:"requests_per_second"`
	BatchSize         int              `yaml:"batch_size"`
	Locale            string           `yaml:"locale"`
	Auth              RemoteAuthConfig `yaml:"auth"`
}

// RemoteAuthConfig holds credentials for the schedule service.
type RemoteAuthConfig struct {
	Mode         string   `yaml:"mode"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	TokenURL     string   `yaml:"token_url"`
	Scopes       []string `yaml:"scopes"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	if c.Auth.Mode == "" {
		c.Auth.Mode = remote.AuthPassword
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
		validation.Field(&c.BatchSize, validation.Min(0)),
	); err != nil {
		return err
	}
	a := &c.Auth
	return validation.ValidateStruct(a,
		validation.Field(&a.Mode, validation.In(remote.AuthPassword, remote.AuthOAuth2)),
		validation.Field(&a.Username, validation.When(a.Mode == remote.AuthPassword, validation.Required)),
		validation.Field(&a.ClientID, validation.When(a.Mode == remote.AuthOAuth2, validation.Required)),
		validation.Field(&a.ClientSecret, validation.When(a.Mode == remote.AuthOAuth2, validation.Required)),
		validation.Field(&a.TokenURL, validation.When(a.Mode == remote.AuthOAuth2, validation.Required)),
	)
}

// Client returns the remote client configuration.
func (c *RemoteConfig) Client() remote.Config {
	return remote.Config{
		BaseURL:           c.BaseURL,
		ServicePath:       c.ServicePath,
		Timeout:           c.Timeout,
		RequestsPerSecond: c.RequestsPerSecond,
		BatchSize:         c.BatchSize,
		Locale:            c.Locale,
		Auth: remote.Auth{
			Mode:         c.Auth.Mode,
			Username:     c.Auth.Username,
			Password:     c.Auth.Password,
			ClientID:     c.Auth.ClientID,
			ClientSecret: c.Auth.ClientSecret,
			TokenURL:     c.Auth.TokenURL,
			Scopes:       c.Auth.Scopes,
		},
	}
}

// DocumentConfig locates the Org document and its archive.
type DocumentConfig struct {
	Path        string `yaml:"path"`
	ArchivePath string `yaml:"archive_path"`
}

// Validate validates the document configuration.
func (c *DocumentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SyncConfig controls the sync window and schedule.
type SyncConfig struct {
	HorizonDays int    `yaml:"horizon_days"`
	Timezone    string `yaml:"timezone"`
	Schedule    string `yaml:"schedule"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	if c.HorizonDays == 0 {
		c.HorizonDays = event.DefaultHorizonDays
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.HorizonDays, validation.Min(1)),
		validation.Field(&c.Timezone, validation.By(func(any) error {
			_, err := c.Location()
			return err
		})),
		validation.Field(&c.Schedule, validation.When(c.Schedule != "", validation.By(func(any) error {
			_, err := cron.ParseStandard(c.Schedule)
			return err
		}))),
	)
}

// Location loads Timezone; empty means the host's local zone.
func (c *SyncConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.New("unknown time zone")
	}
	return loc, nil
}

// ExportConfig controls optional exports run after each sync.
type ExportConfig struct {
	ICSPath string `yaml:"ics_path"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Enabled: true,
				Port:    8080,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Remote: RemoteConfig{
			ServicePath: "/cbpapi/schedule/api",
			Timeout:     30 * time.Second,
			BatchSize:   100,
			Locale:      "en",
			Auth: RemoteAuthConfig{
				Mode: remote.AuthPassword,
			},
		},
		Document: DocumentConfig{
			Path: "./schedule.org",
		},
		SQLite: SQLiteConfig{
			Path: "./orgcal.db",
		},
		Sync: SyncConfig{
			HorizonDays: event.DefaultHorizonDays,
			Schedule:    "*/15 * * * *",
		},
	}
}
