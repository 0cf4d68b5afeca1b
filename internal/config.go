package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notesync/internal/backup"
	"github.com/starford/notesync/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Storage StorageConfig     `yaml:"storage"`
	Remote  RemoteConfig      `yaml:"remote"`
	Backup  BackupConfig      `yaml:"backup"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Remote.Validate(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	if err := c.Backup.Validate(); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	Version  string     `yaml:"version"`
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

// StorageConfig selects the local key-value backend.
// Watch enables the index watcher; it only applies to the fs backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Watch   bool   `yaml:"watch"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required,
			validation.In(storage.BackendFS, storage.BackendBadger, storage.BackendMemory)),
		validation.Field(&c.Path, validation.When(c.Backend != storage.BackendMemory, validation.Required)),
	)
}

// RemoteConfig locates the SQLite database holding the backups table.
type RemoteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// BackupConfig configures the backup engine, its scheduler and the payload cipher.
type BackupConfig struct {
	AutoEnabled  bool          `yaml:"auto_enabled"`
	Schedule     string        `yaml:"schedule"`
	Retention    int           `yaml:"retention"`
	Passphrase   string        `yaml:"passphrase"`
	Salt         string        `yaml:"salt"`
	Iterations   int           `yaml:"iterations"`
	UserID       string        `yaml:"user_id"`
	ProbeAddress string        `yaml:"probe_address"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// Validate validates the backup configuration.
func (c *BackupConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Schedule, validation.Required, validation.By(validCronSpec)),
		validation.Field(&c.Retention, validation.Required, validation.Min(1)),
		validation.Field(&c.Passphrase, validation.Required),
		validation.Field(&c.Salt, validation.Required),
		validation.Field(&c.Iterations, validation.Required, validation.Min(1000)),
		validation.Field(&c.ProbeTimeout, validation.When(c.ProbeAddress != "", validation.Required)),
	)
}

func validCronSpec(v interface{}) error {
	spec, _ := v.(string)
	if _, err := backup.ParseSchedule(spec); err != nil {
		return errors.New("must be a valid cron expression")
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
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
// The backup passphrase has no default.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			Version: "dev",
		},
		Storage: StorageConfig{
			Backend: storage.BackendFS,
			Path:    "./data",
			Watch:   true,
		},
		Remote: RemoteConfig{
			Path: "./backups.db",
		},
		Backup: BackupConfig{
			Schedule:     backup.DefaultSchedule,
			Retention:    backup.DefaultRetention,
			Salt:         "notesync",
			Iterations:   100000,
			ProbeTimeout: 3 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
