// Package errors provides the error taxonomy for agentline. It defines the
// sentinel errors callers match with Is, domain error types that carry git and
// command context, semantic errors for common conditions, and classification
// helpers used by the CLI to decide how a failure is reported.
//
// # Error Types
//
// Domain-specific errors:
//   - GitError: a git invocation failed (worktrees, branches, commits, merges)
//   - CommandError: an external command could not be spawned or failed
//   - ConfigError: an agent descriptor or configuration file is malformed
//   - MergeConflictError: a merge stopped on conflicting paths
//   - VerificationError: one or more verification steps failed
//
// Semantic errors:
//   - NotFoundError: resource not found (records every location tried)
//   - AlreadyExistsError: resource already exists
//   - ValidationError: invalid input or state
//   - TimeoutError: operation exceeded its deadline
//
// # Usage
//
//	err := errors.NewGitError("worktree add failed", errors.ErrWorktreeCreation).
//		WithBranch(branch).
//		WithWorktree(path).
//		WithGitOutput(out)
//
//	if errors.Is(err, errors.ErrWorktreeCreation) { ... }
//
// Expected outcomes (an agent exiting non-zero, a verification failure during
// merge, a merge conflict) are reported as result values by the coordinators.
// Only the CLI layer turns them into process exit codes.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is   = errors.Is
	As   = errors.As
	New  = errors.New
	Join = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Repository and worktree sentinel errors
var (
	// ErrNotGitRepository indicates that the directory is not a git repository.
	ErrNotGitRepository = New("not a git repository")
	// ErrDirtyWorkingDirectory indicates uncommitted changes in the caller's working copy.
	ErrDirtyWorkingDirectory = New("working directory has uncommitted changes")
	// ErrWorktreeCreation indicates that an isolated worktree could not be created.
	ErrWorktreeCreation = New("worktree creation failed")
	// ErrBranchNotFound indicates that a branch could not be found.
	ErrBranchNotFound = New("branch not found")
	// ErrBranchExists indicates that a branch already exists.
	ErrBranchExists = New("branch already exists")
	// ErrMergeConflict indicates that a merge stopped on conflicting paths.
	ErrMergeConflict = New("merge conflict")
)

// Agent sentinel errors
var (
	// ErrAgentNotFound indicates that no descriptor exists for the agent.
	ErrAgentNotFound = New("agent not found")
	// ErrAgentConfigInvalid indicates that an agent descriptor is malformed.
	ErrAgentConfigInvalid = New("agent config invalid")
)

// Command sentinel errors
var (
	// ErrSpawnFailed indicates that an external command could not be started.
	ErrSpawnFailed = New("command could not be started")
	// ErrCommandFailed indicates that a required command exited unsuccessfully.
	ErrCommandFailed = New("command failed")
	// ErrVerificationFailed indicates that a verification pipeline did not pass.
	ErrVerificationFailed = New("verification failed")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// AgentlineError is the base interface for all agentline errors.
type AgentlineError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the operation may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the message is safe to show to operators.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity {
	return e.severity
}

func (e *baseError) IsRetryable() bool {
	return e.retryable
}

func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

func formatPrefix(kind string, parts []string) string {
	if len(parts) == 0 {
		return kind
	}
	return fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// GitError represents errors related to git operations.
//
// Example:
//
//	err := errors.NewGitError("failed to create worktree", errors.ErrWorktreeCreation)
//	err = err.WithBranch("agent/tester/20250101-120000-fix-abc123").WithWorktree("/tmp/wt")
type GitError struct {
	baseError
	Branch     string
	Worktree   string
	Repository string
	GitOutput  string // Captured git command output
}

// NewGitError creates a new GitError.
func NewGitError(message string, cause error) *GitError {
	return &GitError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithBranch adds a branch name to the error context.
func (e *GitError) WithBranch(branch string) *GitError {
	e.Branch = branch
	return e
}

// WithWorktree adds a worktree path to the error context.
func (e *GitError) WithWorktree(path string) *GitError {
	e.Worktree = path
	return e
}

// WithRepository adds a repository path to the error context.
func (e *GitError) WithRepository(path string) *GitError {
	e.Repository = path
	return e
}

// WithGitOutput attaches captured git output.
func (e *GitError) WithGitOutput(output string) *GitError {
	e.GitOutput = strings.TrimSpace(output)
	return e
}

// WithSeverity sets the error severity.
func (e *GitError) WithSeverity(s Severity) *GitError {
	e.severity = s
	return e
}

func (e *GitError) Error() string {
	var parts []string
	if e.Branch != "" {
		parts = append(parts, fmt.Sprintf("branch=%s", e.Branch))
	}
	if e.Worktree != "" {
		parts = append(parts, fmt.Sprintf("worktree=%s", e.Worktree))
	}
	if e.Repository != "" {
		parts = append(parts, fmt.Sprintf("repo=%s", e.Repository))
	}

	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if e.GitOutput != "" {
		msg = fmt.Sprintf("%s\ngit output: %s", msg, e.GitOutput)
	}
	return fmt.Sprintf("%s: %s", formatPrefix("git error", parts), msg)
}

// Is matches any *GitError and anything the cause matches.
func (e *GitError) Is(target error) bool {
	if _, ok := target.(*GitError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// CommandError represents a failure to run an external command.
type CommandError struct {
	baseError
	Command  []string
	Dir      string
	ExitCode int
	Stderr   string
}

// NewCommandError creates a new CommandError. ExitCode defaults to -1 (not run).
func NewCommandError(message string, cause error) *CommandError {
	return &CommandError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
		ExitCode: -1,
	}
}

// WithCommand records the argument vector.
func (e *CommandError) WithCommand(argv []string) *CommandError {
	e.Command = append([]string(nil), argv...)
	return e
}

// WithDir records the working directory.
func (e *CommandError) WithDir(dir string) *CommandError {
	e.Dir = dir
	return e
}

// WithExitCode records the process exit code.
func (e *CommandError) WithExitCode(code int) *CommandError {
	e.ExitCode = code
	return e
}

// WithStderr attaches captured stderr.
func (e *CommandError) WithStderr(stderr string) *CommandError {
	e.Stderr = strings.TrimSpace(stderr)
	return e
}

func (e *CommandError) Error() string {
	var parts []string
	if len(e.Command) > 0 {
		parts = append(parts, fmt.Sprintf("cmd=%s", strings.Join(e.Command, " ")))
	}
	if e.Dir != "" {
		parts = append(parts, fmt.Sprintf("dir=%s", e.Dir))
	}
	if e.ExitCode >= 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}

	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s\nstderr: %s", msg, e.Stderr)
	}
	return fmt.Sprintf("%s: %s", formatPrefix("command error", parts), msg)
}

// Is matches any *CommandError, ErrCommandFailed, and anything the cause matches.
func (e *CommandError) Is(target error) bool {
	if _, ok := target.(*CommandError); ok {
		return true
	}
	if target == ErrCommandFailed {
		return true
	}
	return e.baseError.Is(target)
}

// ConfigError represents a malformed agent descriptor or configuration file.
type ConfigError struct {
	baseError
	Path  string
	Field string
}

// NewConfigError creates a new ConfigError for the file at path.
func NewConfigError(path, message string) *ConfigError {
	return &ConfigError{
		baseError: baseError{
			message:    message,
			severity:   SeverityError,
			userFacing: true,
		},
		Path: path,
	}
}

// WithField records the offending field.
func (e *ConfigError) WithField(field string) *ConfigError {
	e.Field = field
	return e
}

// WithCause sets the underlying error.
func (e *ConfigError) WithCause(cause error) *ConfigError {
	e.cause = cause
	return e
}

func (e *ConfigError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("file=%s", e.Path))
	}
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	prefix := formatPrefix("config error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is matches any *ConfigError and ErrAgentConfigInvalid.
func (e *ConfigError) Is(target error) bool {
	if _, ok := target.(*ConfigError); ok {
		return true
	}
	if target == ErrAgentConfigInvalid {
		return true
	}
	return e.baseError.Is(target)
}

// MergeConflictError lists the paths left unmerged by a failed merge.
type MergeConflictError struct {
	baseError
	Branch string
	Files  []string
}

// NewMergeConflictError creates a new MergeConflictError.
func NewMergeConflictError(branch string, files []string) *MergeConflictError {
	return &MergeConflictError{
		baseError: baseError{
			message:    "merge stopped on conflicting files",
			cause:      ErrMergeConflict,
			severity:   SeverityWarning,
			userFacing: true,
		},
		Branch: branch,
		Files:  append([]string(nil), files...),
	}
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict [branch=%s]: %d conflicting file(s): %s",
		e.Branch, len(e.Files), strings.Join(e.Files, ", "))
}

// Is matches any *MergeConflictError and ErrMergeConflict.
func (e *MergeConflictError) Is(target error) bool {
	if _, ok := target.(*MergeConflictError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// VerificationError names the steps that failed.
type VerificationError struct {
	baseError
	Branch      string
	FailedSteps []string
}

// NewVerificationError creates a new VerificationError.
func NewVerificationError(branch string, failed []string) *VerificationError {
	return &VerificationError{
		baseError: baseError{
			message:    "verification did not pass",
			cause:      ErrVerificationFailed,
			severity:   SeverityWarning,
			userFacing: true,
		},
		Branch:      branch,
		FailedSteps: append([]string(nil), failed...),
	}
}

func (e *VerificationError) Error() string {
	prefix := "verification error"
	if e.Branch != "" {
		prefix = fmt.Sprintf("verification error [branch=%s]", e.Branch)
	}
	if len(e.FailedSteps) == 0 {
		return fmt.Sprintf("%s: %s", prefix, e.message)
	}
	return fmt.Sprintf("%s: failed steps: %s", prefix, strings.Join(e.FailedSteps, ", "))
}

// Is matches any *VerificationError and ErrVerificationFailed.
func (e *VerificationError) Is(target error) bool {
	if _, ok := target.(*VerificationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError indicates a resource that could not be found. Tried lists
// every location that was searched.
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
	Tried        []string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause sets the underlying error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// WithTried records the searched locations.
func (e *NotFoundError) WithTried(paths []string) *NotFoundError {
	e.Tried = append([]string(nil), paths...)
	return e
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
	if len(e.Tried) > 0 {
		msg = fmt.Sprintf("%s (tried: %s)", msg, strings.Join(e.Tried, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Is matches any *NotFoundError and anything the cause matches.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// AlreadyExistsError indicates a resource that already exists.
type AlreadyExistsError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(resourceType, resourceID string) *AlreadyExistsError {
	return &AlreadyExistsError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' already exists", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause sets the underlying error.
func (e *AlreadyExistsError) WithCause(cause error) *AlreadyExistsError {
	e.cause = cause
	return e
}

func (e *AlreadyExistsError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' already exists: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' already exists", e.ResourceType, e.ResourceID)
}

// Is matches any *AlreadyExistsError and anything the cause matches.
func (e *AlreadyExistsError) Is(target error) bool {
	if _, ok := target.(*AlreadyExistsError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError indicates invalid input or state.
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField sets the invalid field.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue sets the invalid value.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause sets the underlying error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	prefix := formatPrefix("validation error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is matches any *ValidationError and ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError indicates an operation exceeded its deadline.
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause sets the underlying error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is matches any *TimeoutError and ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ae AgentlineError
	if As(err, &ae) {
		return ae.IsRetryable()
	}
	return Is(err, ErrTimeout)
}

// IsUserFacing reports whether err's message is safe to show to operators.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var ae AgentlineError
	if As(err, &ae) {
		return ae.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity of err, defaulting to SeverityError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var ae AgentlineError
	if As(err, &ae) {
		return ae.Severity()
	}
	return SeverityError
}

// Wrap annotates err with message. Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf annotates err with a formatted message. Returns nil if err is nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
