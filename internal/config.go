package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/webring/internal/api"
	"github.com/starford/webring/internal/collection"
	"github.com/starford/webring/internal/registry"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Registry RegistryConfig    `yaml:"registry"`
	Ledger   LedgerConfig      `yaml:"ledger"`
	Index    IndexConfig       `yaml:"index"`
	Photos   PhotosConfig      `yaml:"photos"`
	Admin    AdminConfig       `yaml:"admin"`
	Lock     LockConfig        `yaml:"lock"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	if err := c.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if err := c.Admin.Validate(); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if err := c.Lock.Validate(); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	if c.Registry.Path == c.Ledger.Path {
		return fmt.Errorf("registry and ledger must be different files: %s", c.Registry.Path)
	}
	return nil
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

// RegistryConfig locates the registry document and its managed region.
type RegistryConfig struct {
	Path        string `yaml:"path"`
	BeginMarker string `yaml:"begin_marker"`
	EndMarker   string `yaml:"end_marker"`
}

// Validate validates the registry configuration.
func (c *RegistryConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.BeginMarker, validation.Required),
		validation.Field(&c.EndMarker, validation.Required),
	); err != nil {
		return err
	}
	if c.BeginMarker == c.EndMarker {
		return fmt.Errorf("begin_marker and end_marker must differ")
	}
	return nil
}

// LedgerConfig locates the submission ledger.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the ledger configuration.
func (c *LedgerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// IndexConfig holds the SQLite search index location. An empty path
// disables the index and search scans the registry instead.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// PhotosConfig holds the profile photo directory. An empty path disables
// photo upload and serving.
type PhotosConfig struct {
	Path string `yaml:"path"`
}

// AdminConfig holds the moderator secret and the header that carries it.
type AdminConfig struct {
	Secret string `yaml:"secret"`
	Header string `yaml:"header"`
}

// Validate validates the admin configuration.
func (c *AdminConfig) Validate() error {
	if c.Header == "" {
		c.Header = api.DefaultAdminHeader
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Secret, validation.Required.Error("is required; an empty secret would admit anyone")),
	)
}

// LockConfig bounds how long a write waits for a document lock. Dir, when
// set, holds the advisory lock files instead of the documents' directories.
type LockConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Dir     string        `yaml:"dir"`
}

// Validate validates the lock configuration.
func (c *LockConfig) Validate() error {
	if c.Timeout == 0 {
		c.Timeout = collection.DefaultLockTimeout
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Min(10*time.Millisecond), validation.Max(time.Minute)),
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
		Registry: RegistryConfig{
			Path:        "./data/members.ts",
			BeginMarker: registry.DefaultBeginMarker,
			EndMarker:   registry.DefaultEndMarker,
		},
		Ledger: LedgerConfig{
			Path: "./data/submissions.json",
		},
		Index: IndexConfig{
			Path: "./data/webring.db",
		},
		Photos: PhotosConfig{
			Path: "./data/photos",
		},
		Admin: AdminConfig{
			Header: api.DefaultAdminHeader,
		},
		Lock: LockConfig{
			Timeout: collection.DefaultLockTimeout,
		},
	}
}
