// Package errors provides structured error handling for kpxc.
// It defines sentinel errors, exit codes, and helpers for adding
// context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes returned by the kpxc binary.
const (
	ExitSuccess  = 0 // Successful execution
	ExitGeneral  = 1 // General/unknown error
	ExitInput    = 2 // Invalid input or missing configuration
	ExitAuth     = 3 // Database locked or passphrase rejected
	ExitNotFound = 4 // Database, key file, or entry not found
	ExitTool     = 5 // keepassxc-cli missing or reported a failure
)

// KpxcError is the structured error type for kpxc.
type KpxcError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *KpxcError) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *KpxcError) Unwrap() error {
	return e.Cause
}

// Is matches any KpxcError carrying the same code.
func (e *KpxcError) Is(target error) bool {
	var t *KpxcError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &KpxcError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &KpxcError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrNotFound = &KpxcError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	// Session errors.
	ErrLocked = &KpxcError{
		Code:       "DATABASE_LOCKED",
		Message:    "database is locked",
		Suggestion: "unlock the database with its passphrase and retry",
		ExitCode:   ExitAuth,
	}

	ErrAuthentication = &KpxcError{
		Code:     "AUTHENTICATION_FAILED",
		Message:  "passphrase or key file rejected by keepassxc-cli",
		ExitCode: ExitAuth,
	}

	ErrNotInitialized = &KpxcError{
		Code:       "NOT_INITIALIZED",
		Message:    "no database configured",
		Suggestion: "set database.path in the config file or pass --database",
		ExitCode:   ExitInput,
	}

	// File errors.
	ErrDatabaseNotFound = &KpxcError{
		Code:       "DATABASE_NOT_FOUND",
		Message:    "database file not found",
		Suggestion: "verify the database path in your configuration",
		ExitCode:   ExitNotFound,
	}

	ErrKeyFileNotFound = &KpxcError{
		Code:       "KEY_FILE_NOT_FOUND",
		Message:    "key file not found",
		Suggestion: "verify the key file path in your configuration",
		ExitCode:   ExitNotFound,
	}

	// Tool errors.
	ErrToolNotFound = &KpxcError{
		Code:       "TOOL_NOT_FOUND",
		Message:    "cannot execute keepassxc-cli",
		Suggestion: "make sure keepassxc-cli is installed and on your PATH",
		ExitCode:   ExitTool,
	}

	ErrToolExecution = &KpxcError{
		Code:     "TOOL_EXECUTION_FAILED",
		Message:  "keepassxc-cli reported an error",
		ExitCode: ExitTool,
	}

	// Config errors.
	ErrConfigInvalid = &KpxcError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration is invalid",
		ExitCode: ExitInput,
	}

	ErrUnknownConfigKey = &KpxcError{
		Code:     "UNKNOWN_CONFIG_KEY",
		Message:  "unknown config key",
		ExitCode: ExitInput,
	}
)

// New creates a new KpxcError with the given code and message.
func New(code, message string) *KpxcError {
	return &KpxcError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var ke *KpxcError
	if errors.As(err, &ke) {
		return &KpxcError{
			Code:       ke.Code,
			Message:    fmt.Sprintf("%s: %s", msg, ke.Message),
			Details:    ke.Details,
			Suggestion: ke.Suggestion,
			Cause:      ke.Cause,
			ExitCode:   ke.ExitCode,
		}
	}

	return &KpxcError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithDetails returns a copy of err carrying the given details.
// Existing details are kept unless overwritten by the same key.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var ke *KpxcError
	if errors.As(err, &ke) {
		merged := make(map[string]string, len(ke.Details)+len(details))
		for k, v := range ke.Details {
			merged[k] = v
		}
		for k, v := range details {
			merged[k] = v
		}
		return &KpxcError{
			Code:       ke.Code,
			Message:    ke.Message,
			Details:    merged,
			Suggestion: ke.Suggestion,
			Cause:      ke.Cause,
			ExitCode:   ke.ExitCode,
		}
	}

	return &KpxcError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var ke *KpxcError
	if errors.As(err, &ke) {
		return &KpxcError{
			Code:       ke.Code,
			Message:    ke.Message,
			Details:    ke.Details,
			Suggestion: suggestion,
			Cause:      ke.Cause,
			ExitCode:   ke.ExitCode,
		}
	}

	return &KpxcError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var ke *KpxcError
	if errors.As(err, &ke) {
		return ke.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var ke *KpxcError
	if errors.As(err, &ke) {
		return ke.Code
	}
	return "GENERAL_ERROR"
}

// Detail returns a single detail value, or "" if err carries none under key.
func Detail(err error, key string) string {
	var ke *KpxcError
	if errors.As(err, &ke) && ke.Details != nil {
		return ke.Details[key]
	}
	return ""
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
