package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/sumi/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Storage providers.
const (
	ProviderLocal  = "local"
	ProviderMemory = "memory"
)

// Preferences are the user settings other components read.
type Preferences interface {
	VerboseErrors() bool
}

// Config represents the application configuration.
type Config struct {
	App   ApplicationConfig `yaml:"app"`
	Store StoreConfig       `yaml:"store"`
	Auth  AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// VerboseErrors reports whether users see full error chains.
func (c *Config) VerboseErrors() bool {
	return c.App.VerboseErrors
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel      slog.Level `yaml:"log_level"`
	HTTP          HTTPConfig `yaml:"http"`
	VerboseErrors bool       `yaml:"verbose_errors"`
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

// StoreConfig locates the store file.
//
// Root is the directory backing the local provider. Path is the store file
// inside the provider, backslash-delimited and rooted at `\`.
type StoreConfig struct {
	Provider string `yaml:"provider"`
	Root     string `yaml:"root"`
	Path     string `yaml:"path"`
	Watch    bool   `yaml:"watch"`
	Autosave bool   `yaml:"autosave"`

	// UpgradeLegacy rewrites legacy-cipher stores right after unlock.
	UpgradeLegacy bool `yaml:"upgrade_legacy"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if c.Provider == "" {
		c.Provider = ProviderLocal
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(ProviderLocal, ProviderMemory)),
		validation.Field(&c.Root, validation.When(c.Provider == ProviderLocal, validation.Required)),
		validation.Field(&c.Path, validation.Required),
	); err != nil {
		return err
	}
	clean, err := storage.CleanFile(c.Path)
	if err != nil {
		return fmt.Errorf("store: path: %w", err)
	}
	c.Path = clean
	return nil
}

// AuthConfig holds authentication configuration.
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Provider: ProviderLocal,
			Root:     "./data",
			Path:     `\cabinet.sumi`,
			Watch:    true,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
