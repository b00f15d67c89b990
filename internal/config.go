package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that accepts YAML strings like "5m" as
// well as raw nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	Pool      PoolConfig        `yaml:"pool"`
	Stream    StreamConfig      `yaml:"stream"`
	Board     BoardConfig       `yaml:"board"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return err
	}
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	if err := c.Stream.Validate(); err != nil {
		return err
	}
	if err := c.Board.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// WorkspaceConfig holds the path to the project registry file.
type WorkspaceConfig struct {
	Registry string `yaml:"registry"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Registry, validation.Required),
	)
}

// PoolConfig bounds the per-project connection pool.
type PoolConfig struct {
	MaxConnections int      `yaml:"max_connections"`
	IdleTimeout    Duration `yaml:"idle_timeout"`
}

// Validate validates the pool configuration.
func (c *PoolConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.MaxConnections, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
	if c.IdleTimeout.Std() < time.Second {
		return fmt.Errorf("pool: idle_timeout must be at least 1s")
	}
	return nil
}

// StreamConfig controls the change-notification poller.
type StreamConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
}

// Validate validates the stream configuration.
func (c *StreamConfig) Validate() error {
	if c.PollInterval.Std() < 100*time.Millisecond {
		return fmt.Errorf("stream: poll_interval must be at least 100ms")
	}
	return nil
}

// BoardConfig describes the workflow: legal statuses per entity and the
// priority scale (0 is highest).
type BoardConfig struct {
	TaskStatuses   []string `yaml:"task_statuses"`
	EpicStatuses   []string `yaml:"epic_statuses"`
	PriorityLevels int      `yaml:"priority_levels"`
	PriorityLabels []string `yaml:"priority_labels"`
}

// Validate validates the board configuration.
func (c *BoardConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.TaskStatuses, validation.Required, validation.Length(1, 0)),
		validation.Field(&c.EpicStatuses, validation.Required, validation.Length(1, 0)),
		validation.Field(&c.PriorityLevels, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
	if len(c.PriorityLabels) > 0 && len(c.PriorityLabels) != c.PriorityLevels {
		return fmt.Errorf("board: %d priority labels for %d levels", len(c.PriorityLabels), c.PriorityLevels)
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
	// Normalise empty mode to "disabled" for backward compatibility.
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
		Workspace: WorkspaceConfig{
			Registry: "./projects.yaml",
		},
		Pool: PoolConfig{
			MaxConnections: 10,
			IdleTimeout:    Duration(5 * time.Minute),
		},
		Stream: StreamConfig{
			PollInterval: Duration(2 * time.Second),
		},
		Board: BoardConfig{
			TaskStatuses:   []string{"todo", "in_progress", "completed", "wont_fix", "archived"},
			EpicStatuses:   []string{"todo", "in_progress", "completed", "archived"},
			PriorityLevels: 6,
			PriorityLabels: []string{"Critical", "High", "Medium", "Low", "Backlog", "Someday"},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
