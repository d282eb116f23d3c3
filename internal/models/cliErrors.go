package models

import (
	"errors"
	"fmt"
)

// Exit codes shared by every netglobe subcommand.
const (
	ExitOK       = 0
	ExitRuntime  = 1 // generic runtime failure
	ExitUsage    = 2 // invalid flags / bad CLI usage
	ExitConfig   = 3 // invalid config / validation failure
	ExitIO       = 4 // filesystem/IO issues
	ExitAuth     = 5 // admin auth failures
	ExitExternal = 6 // capture tool or geolocation service failure
)

// Stable error codes, used for matching and logging.
const (
	CodeConfigInvalid     = "CFG_INVALID"
	CodeCaptureFatal      = "CAPTURE_FATAL"
	CodeDBOpen            = "DB_OPEN"
	CodeCacheOpen         = "CACHE_OPEN"
	CodeLookupInput       = "LOOKUP_INPUT"
	CodeAdminUnreachable  = "ADMIN_UNREACHABLE"
	CodeAdminPassword     = "ADMIN_PWD"
	CodeIgnoreListInvalid = "IGNORE_INVALID"
	CodeSinkOpen          = "SINK_OPEN"
)

// CLIError is a user-facing error with optional hint + wrapped cause.
// Message/Hint are printed to the terminal; Cause goes to the log.
type CLIError struct {
	Code     string
	Message  string
	Hint     string
	ExitCode int

	Cause error
}

func (e *CLIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *CLIError) WithHint(h string) *CLIError {
	if e == nil {
		return nil
	}
	e.Hint = h
	return e
}

func (e *CLIError) WithCause(err error) *CLIError {
	if e == nil {
		return nil
	}
	e.Cause = err
	return e
}

func NewCLIError(code string, exitCode int, msg string) *CLIError {
	if exitCode == 0 {
		exitCode = ExitRuntime
	}
	return &CLIError{
		Code:     code,
		Message:  msg,
		ExitCode: exitCode,
	}
}

// Wrap creates a CLIError while preserving an underlying cause.
func Wrap(code string, exitCode int, msg string, cause error) *CLIError {
	return NewCLIError(code, exitCode, msg).WithCause(cause)
}

// IsCode checks whether err (or any wrapped error) is a CLIError with the given code.
func IsCode(err error, code string) bool {
	var ce *CLIError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// FormatForUser builds the terminal output string for err and the exit code to use.
func FormatForUser(err error) (text string, exitCode int) {
	if err == nil {
		return "", ExitOK
	}

	var ce *CLIError
	if !errors.As(err, &ce) {
		return err.Error(), ExitRuntime
	}

	exit := ce.ExitCode
	if exit == 0 {
		exit = ExitRuntime
	}
	text = ce.Error()
	if ce.Hint != "" {
		text = fmt.Sprintf("%s\nhint: %s", text, ce.Hint)
	}
	return text, exit
}
