package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/trickstertwo/alog"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "logger.pool_size")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// maxPoolSize bounds logger.pool_size
const maxPoolSize = 256

func ValidTargets() []string { return []string{"stdout", "stderr", "discard"} }

func ValidFormats() []string { return []string{"compact", "pretty"} }

func ValidPolicies() []string { return []string{"drop_newest", "drop_oldest"} }

func ValidRestarts() []string { return []string{"never", "on_failure"} }

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateLogger()...)
	errs = append(errs, c.validateOutput()...)
	errs = append(errs, c.validateMailbox()...)
	errs = append(errs, c.validateSupervisor()...)
	return errs
}

func (c *Config) validateLogger() []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(c.Logger.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "logger.name",
			Value:   c.Logger.Name,
			Message: "must not be empty",
		})
	}
	if _, err := alog.ParseLevelFilter(c.Logger.Level); err != nil {
		errs = append(errs, ValidationError{
			Field:   "logger.level",
			Value:   c.Logger.Level,
			Message: "must be one of: trace, debug, info, warn, error, off",
		})
	}
	if c.Logger.PoolSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "logger.pool_size",
			Value:   c.Logger.PoolSize,
			Message: "must be at least 1",
		})
	}
	if c.Logger.PoolSize > maxPoolSize {
		errs = append(errs, ValidationError{
			Field:   "logger.pool_size",
			Value:   c.Logger.PoolSize,
			Message: fmt.Sprintf("exceeds maximum of %d", maxPoolSize),
		})
	}
	if c.Logger.FlushInterval < 0 {
		errs = append(errs, ValidationError{
			Field:   "logger.flush_interval",
			Value:   c.Logger.FlushInterval,
			Message: "must be non-negative",
		})
	}

	return errs
}

func (c *Config) validateOutput() []ValidationError {
	var errs []ValidationError

	if !slices.Contains(ValidTargets(), c.Output.Target) {
		errs = append(errs, ValidationError{
			Field:   "output.target",
			Value:   c.Output.Target,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidTargets(), ", ")),
		})
	}
	if !slices.Contains(ValidFormats(), c.Output.Format) {
		errs = append(errs, ValidationError{
			Field:   "output.format",
			Value:   c.Output.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidFormats(), ", ")),
		})
	}

	return errs
}

func (c *Config) validateMailbox() []ValidationError {
	var errs []ValidationError

	if c.Mailbox.Capacity < 0 {
		errs = append(errs, ValidationError{
			Field:   "mailbox.capacity",
			Value:   c.Mailbox.Capacity,
			Message: "must be non-negative (0 = unbounded)",
		})
	}
	if !slices.Contains(ValidPolicies(), c.Mailbox.Policy) {
		errs = append(errs, ValidationError{
			Field:   "mailbox.policy",
			Value:   c.Mailbox.Policy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidPolicies(), ", ")),
		})
	}

	return errs
}

func (c *Config) validateSupervisor() []ValidationError {
	var errs []ValidationError
	s := c.Supervisor

	if !slices.Contains(ValidRestarts(), s.Restart) {
		errs = append(errs, ValidationError{
			Field:   "supervisor.restart",
			Value:   s.Restart,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidRestarts(), ", ")),
		})
	}
	if s.MinBackoff <= 0 {
		errs = append(errs, ValidationError{
			Field:   "supervisor.min_backoff",
			Value:   s.MinBackoff,
			Message: "must be positive",
		})
	}
	if s.MaxBackoff < s.MinBackoff {
		errs = append(errs, ValidationError{
			Field:   "supervisor.max_backoff",
			Value:   s.MaxBackoff,
			Message: "must not be less than supervisor.min_backoff",
		})
	}
	if s.MaxRestarts < 1 {
		errs = append(errs, ValidationError{
			Field:   "supervisor.max_restarts",
			Value:   s.MaxRestarts,
			Message: "must be at least 1",
		})
	}
	if s.RapidWindow <= 0 {
		errs = append(errs, ValidationError{
			Field:   "supervisor.rapid_window",
			Value:   s.RapidWindow,
			Message: "must be positive",
		})
	}

	return errs
}
