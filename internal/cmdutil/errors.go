package cmdutil

import (
	"errors"
	"fmt"
)

// NextStepper is implemented by errors that know how the user can recover.
// Main prints the steps under the error message.
type NextStepper interface {
	NextSteps() []string
}

// ExitError carries a specific process exit status. Commands return it
// instead of calling os.Exit so deferred cleanup (host lock, log file) runs.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// FlagError indicates bad flags or arguments. Main prints the message
// followed by the command's usage string.
type FlagError struct {
	err error
}

func (e *FlagError) Error() string { return e.err.Error() }
func (e *FlagError) Unwrap() error { return e.err }

// FlagErrorf creates a FlagError with a formatted message.
func FlagErrorf(format string, args ...any) error {
	return &FlagError{err: fmt.Errorf(format, args...)}
}

// FlagErrorWrap wraps an existing error as a FlagError.
func FlagErrorWrap(err error) error {
	return &FlagError{err: err}
}

// SilentError signals that the error has already been displayed to the user.
// Main will exit non-zero but not print anything additional.
var SilentError = errors.New("SilentError")
