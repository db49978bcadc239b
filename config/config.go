// Package config loads logger settings from a file and the environment with
// viper, and applies them to an alog.Builder.
package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/trickstertwo/alog"
	"github.com/trickstertwo/alog/subscriber/console"
)

// EnvPrefix prefixes every environment override, e.g. ALOG_LOGGER_LEVEL.
const EnvPrefix = "ALOG"

// Config represents the complete logger configuration
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Output     OutputConfig     `mapstructure:"output"`
	Mailbox    MailboxConfig    `mapstructure:"mailbox"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
}

// LoggerConfig controls the registered logger
type LoggerConfig struct {
	// Name is the well-known name the logger is registered under
	Name string `mapstructure:"name"`
	// Level is the minimum severity recorded; "off" disables output
	Level string `mapstructure:"level"`
	// PoolSize is the number of logger actors sharing the name
	PoolSize int `mapstructure:"pool_size"`
	// FlushInterval is how often flushable subscribers are flushed (0 = never)
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// OutputConfig controls the formatting subscriber
type OutputConfig struct {
	// Target is where lines are written
	// Options: "stdout", "stderr", "discard"
	Target string `mapstructure:"target"`
	// Format is the line layout
	// Options: "compact", "pretty"
	Format string `mapstructure:"format"`
	// Color enables ANSI colors
	Color bool `mapstructure:"color"`
	// ShowTarget includes the record target in each line
	ShowTarget bool `mapstructure:"show_target"`
}

// MailboxConfig bounds logger actor mailboxes
type MailboxConfig struct {
	// Capacity is the maximum number of queued records (0 = unbounded)
	Capacity int `mapstructure:"capacity"`
	// Policy decides which record is discarded when full
	// Options: "drop_newest", "drop_oldest"
	Policy string `mapstructure:"policy"`
}

// SupervisorConfig controls restarts
type SupervisorConfig struct {
	// Restart is the restart policy
	// Options: "never", "on_failure"
	Restart     string        `mapstructure:"restart"`
	MinBackoff  time.Duration `mapstructure:"min_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
	MaxRestarts int           `mapstructure:"max_restarts"`
	RapidWindow time.Duration `mapstructure:"rapid_window"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Logger: LoggerConfig{
			Name:     alog.DefaultName,
			Level:    "info",
			PoolSize: 1,
		},
		Output: OutputConfig{
			Target:     "stdout",
			Format:     "compact",
			ShowTarget: true,
		},
		Mailbox: MailboxConfig{
			Policy: "drop_newest",
		},
		Supervisor: SupervisorConfig{
			Restart:     "on_failure",
			MinBackoff:  50 * time.Millisecond,
			MaxBackoff:  5 * time.Second,
			MaxRestarts: 5,
			RapidWindow: 30 * time.Second,
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("logger.name", defaults.Logger.Name)
	v.SetDefault("logger.level", defaults.Logger.Level)
	v.SetDefault("logger.pool_size", defaults.Logger.PoolSize)
	v.SetDefault("logger.flush_interval", defaults.Logger.FlushInterval)

	v.SetDefault("output.target", defaults.Output.Target)
	v.SetDefault("output.format", defaults.Output.Format)
	v.SetDefault("output.color", defaults.Output.Color)
	v.SetDefault("output.show_target", defaults.Output.ShowTarget)

	v.SetDefault("mailbox.capacity", defaults.Mailbox.Capacity)
	v.SetDefault("mailbox.policy", defaults.Mailbox.Policy)

	v.SetDefault("supervisor.restart", defaults.Supervisor.Restart)
	v.SetDefault("supervisor.min_backoff", defaults.Supervisor.MinBackoff)
	v.SetDefault("supervisor.max_backoff", defaults.Supervisor.MaxBackoff)
	v.SetDefault("supervisor.max_restarts", defaults.Supervisor.MaxRestarts)
	v.SetDefault("supervisor.rapid_window", defaults.Supervisor.RapidWindow)
}

// New returns a viper instance with defaults and ALOG_ environment
// overrides registered. A non-empty path is read as the config file.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	return v, nil
}

// Load reads the configuration from path (optional) and the environment,
// and validates it
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper unmarshals and validates the configuration held by v
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// LevelFilter returns the parsed logger level. Call Validate first.
func (c *Config) LevelFilter() alog.LevelFilter {
	f, err := alog.ParseLevelFilter(c.Logger.Level)
	if err != nil {
		return alog.FilterInfo
	}
	return f
}

// Writer returns the byte sink named by Output.Target.
func (c *OutputConfig) Writer() io.Writer {
	switch c.Target {
	case "stderr":
		return os.Stderr
	case "discard":
		return io.Discard
	default:
		return os.Stdout
	}
}

// Subscriber builds the formatting subscriber described by the config.
func (c *Config) Subscriber() console.Subscriber {
	s := console.NewWithWriter(c.LevelFilter(), c.Output.Writer()).
		WithColor(c.Output.Color).
		WithTarget(c.Output.ShowTarget)
	if c.Output.Format == "pretty" {
		s = s.Pretty()
	}
	return s
}

// MailboxOptions converts the mailbox section.
func (c *Config) MailboxOptions() alog.MailboxOptions {
	m := alog.MailboxOptions{Capacity: c.Mailbox.Capacity}
	if c.Mailbox.Policy == "drop_oldest" {
		m.Policy = alog.DropOldest
	}
	return m
}

// SupervisorConfig converts the supervisor section.
func (c *Config) SupervisorConfig() alog.SupervisorConfig {
	sc := alog.SupervisorConfig{
		MinBackoff:  c.Supervisor.MinBackoff,
		MaxBackoff:  c.Supervisor.MaxBackoff,
		MaxRestarts: c.Supervisor.MaxRestarts,
		RapidWindow: c.Supervisor.RapidWindow,
	}
	if c.Supervisor.Restart == "never" {
		sc.Restart = alog.RestartNever
	}
	return sc
}

// Apply configures b with the name, pool, supervisor, mailbox and formatting
// subscriber described by c.
func (c *Config) Apply(b *alog.Builder) *alog.Builder {
	return b.WithName(c.Logger.Name).
		WithSubscriber(c.Subscriber()).
		WithPoolSize(c.Logger.PoolSize).
		WithSupervisor(c.SupervisorConfig()).
		WithMailbox(c.MailboxOptions()).
		WithFlushInterval(c.Logger.FlushInterval)
}
