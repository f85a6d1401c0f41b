package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "verify.step_timeout")
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

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateRepo()...)
	errs = append(errs, c.validateAgent()...)
	errs = append(errs, c.validatePreflight()...)
	errs = append(errs, c.validateVerify()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validatePaths()...)
	return errs
}

func (c *Config) validateRepo() []ValidationError {
	b := c.Repo.DefaultBranch
	if b == "" {
		return nil
	}
	if strings.ContainsAny(b, " ~^:?*[\\") || strings.HasPrefix(b, "-") || strings.Contains(b, "..") {
		return []ValidationError{{
			Field:   "repo.default_branch",
			Value:   b,
			Message: "is not a valid branch name",
		}}
	}
	return nil
}

func (c *Config) validateAgent() []ValidationError {
	var errs []ValidationError

	if len(c.Agent.Command) == 0 || strings.TrimSpace(c.Agent.Command[0]) == "" {
		errs = append(errs, ValidationError{
			Field:   "agent.command",
			Value:   c.Agent.Command,
			Message: "must name an executable",
		})
	}
	if c.Agent.Timeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "agent.timeout",
			Value:   c.Agent.Timeout,
			Message: "must be non-negative (0 disables the timeout)",
		})
	}
	if len(c.Agent.DescriptorDirs) == 0 {
		errs = append(errs, ValidationError{
			Field:   "agent.descriptor_dirs",
			Value:   c.Agent.DescriptorDirs,
			Message: "must list at least one directory",
		})
	}
	for i, ext := range c.Agent.DescriptorExtensions {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("agent.descriptor_extensions[%d]", i),
				Value:   ext,
				Message: "must start with '.'",
			})
		}
	}
	return errs
}

func (c *Config) validatePreflight() []ValidationError {
	var errs []ValidationError
	for i, pattern := range c.Preflight.IgnorePaths {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("preflight.ignore_paths[%d]", i),
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob: %v", err),
			})
		}
	}
	return errs
}

func (c *Config) validateVerify() []ValidationError {
	var errs []ValidationError

	if c.Verify.StepTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "verify.step_timeout",
			Value:   c.Verify.StepTimeout,
			Message: "must be non-negative",
		})
	}
	if c.Verify.OutputLimit < 0 {
		errs = append(errs, ValidationError{
			Field:   "verify.output_limit",
			Value:   c.Verify.OutputLimit,
			Message: "must be non-negative",
		})
	}

	seen := make(map[string]bool)
	for i, sub := range c.Verify.Subsystems {
		field := fmt.Sprintf("verify.subsystems[%d]", i)
		if sub.Name == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Value: sub.Name, Message: "is required"})
		} else if seen[sub.Name] {
			errs = append(errs, ValidationError{Field: field + ".name", Value: sub.Name, Message: "is duplicated"})
		}
		seen[sub.Name] = true

		for j, step := range sub.Steps {
			sf := fmt.Sprintf("%s.steps[%d]", field, j)
			if step.Name == "" {
				errs = append(errs, ValidationError{Field: sf + ".name", Value: step.Name, Message: "is required"})
			}
			if len(step.Command) == 0 {
				errs = append(errs, ValidationError{Field: sf + ".command", Value: step.Command, Message: "must not be empty"})
			}
			if step.Timeout < 0 {
				errs = append(errs, ValidationError{Field: sf + ".timeout", Value: step.Timeout, Message: "must be non-negative"})
			}
			if step.ExpectOutput != "" {
				if _, err := regexp2.Compile(step.ExpectOutput, regexp2.RE2); err != nil {
					errs = append(errs, ValidationError{
						Field:   sf + ".expect_output",
						Value:   step.ExpectOutput,
						Message: fmt.Sprintf("invalid pattern: %v", err),
					})
				}
			}
		}
	}
	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB <= 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	} else if c.Logging.MaxSizeMB > maxLogSizeMB {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}
	return errs
}

func (c *Config) validatePaths() []ValidationError {
	var errs []ValidationError
	for field, path := range map[string]string{
		"paths.worktree_dir": c.Paths.WorktreeDir,
		"paths.log_dir":      c.Paths.LogDir,
	} {
		if strings.ContainsRune(path, '\x00') {
			errs = append(errs, ValidationError{
				Field:   field,
				Value:   path,
				Message: "path contains invalid null character",
			})
		}
	}
	slices.SortFunc(errs, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })
	return errs
}

// EffectiveTimeout returns the timeout for step, falling back to StepTimeout.
func (v *VerifyConfig) EffectiveTimeout(step VerifyStep) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	return v.StepTimeout
}
