package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/facebookarchive/commoner/internal/module"
	"github.com/facebookarchive/commoner/internal/schema"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Build failure (resolution, processing, publishing, failed scenarios)
	ExitCommandError = 2 // Command error (bad arguments, unreadable config, locked output directory)
)

// Error codes reported for failures that carry no module.BuildError code.
const (
	ErrCodeBuildFailed   = "BUILD_FAILED"
	ErrCodeInvalidSchema = "INVALID_SCHEMA"
	ErrCodeInvalidConfig = "INVALID_CONFIG"
	ErrCodeUsage         = "USAGE"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	reported bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Reported reports whether err was already written through an
// OutputFormatter, so the caller must not print it again.
func Reported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.reported
}

// ErrorCode names the category of err for error envelopes.
func ErrorCode(err error) string {
	var buildErr *module.BuildError
	if errors.As(err, &buildErr) {
		return string(buildErr.Code)
	}
	var schemaErr *schema.LoadError
	if errors.As(err, &schemaErr) {
		return ErrCodeInvalidSchema
	}
	return ErrCodeBuildFailed
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "MODULE_NOT_FOUND", "OUTPUT_LOCKED", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.GetErrWriter(), "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.GetErrWriter(), "Details: %v\n", details)
	}
	return nil
}

// Fail reports err through Error and returns it as an ExitError with code.
func (f *OutputFormatter) Fail(code int, message string, err error) error {
	var details any
	var buildErr *module.BuildError
	if errors.As(err, &buildErr) && len(buildErr.Details) > 0 {
		details = buildErr.Details
	}
	return f.report(code, ErrorCode(err), message, err, details)
}

// Usage reports an invocation problem and returns it as a command error.
func (f *OutputFormatter) Usage(message string) error {
	return f.report(ExitCommandError, ErrCodeUsage, message, nil, nil)
}

func (f *OutputFormatter) report(exit int, code, message string, err error, details any) error {
	text := message
	if err != nil {
		text = fmt.Sprintf("%s: %v", message, err)
	}
	exitErr := &ExitError{Code: exit, Message: message, Err: err, reported: true}
	if outErr := f.Error(code, text, details); outErr != nil {
		exitErr.reported = false
		return errors.Join(exitErr, outErr)
	}
	return exitErr
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
