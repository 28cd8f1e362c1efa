package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Process exit statuses. 1 means the requested work failed: invalid
// config content, a server error, a replay lookup that found nothing.
// 2 means the invocation itself was unusable: a missing file or an
// unreadable database.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// ExitError pins the exit status a failed command should produce.
// Commands return it through cobra; main translates with ExitCode.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// failf builds an ExitError from a format string. %w wrapping works.
func failf(code int, format string, args ...any) error {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

// ExitCode translates a command error into the process exit status.
// Errors that never picked a code, cobra's own included, count as
// runtime failures.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope every JSON-mode command prints: exactly
// one document per invocation, Data on success, Error on failure.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failure inside the envelope.
type CLIError struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// printer renders command results honoring the global --format flag.
// Text mode leans on each payload's Stringer.
type printer struct {
	json    bool
	verbose bool
	out     io.Writer
}

func newPrinter(opts *RootOptions, cmd *cobra.Command) printer {
	return printer{
		json:    opts.Format == "json",
		verbose: opts.Verbose,
		out:     cmd.OutOrStdout(),
	}
}

// ok emits a success payload.
func (p printer) ok(data any) error {
	if p.json {
		return json.NewEncoder(p.out).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(p.out, data)
	return err
}

// fail reports a failure in the chosen format and returns the
// ExitError the command should propagate.
func (p printer) fail(code int, message string, details any) error {
	if p.json {
		_ = json.NewEncoder(p.out).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Message: message, Details: details},
		})
	} else {
		fmt.Fprintf(p.out, "Error: %s\n", message)
		if p.verbose && details != nil {
			fmt.Fprintf(p.out, "  %v\n", details)
		}
	}
	return failf(code, "%s", message)
}
