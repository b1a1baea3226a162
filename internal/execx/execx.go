package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Runner abstracts command execution so packages can be unit-tested without
// touching the real tunnel (wg, systemctl, ping).
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// CommandError is returned when a command exits non-zero or cannot start.
// ExitCode is -1 when the process never produced an exit status.
type CommandError struct {
	Name     string
	Args     []string
	ExitCode int
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	cmd := strings.TrimSpace(e.Name + " " + strings.Join(e.Args, " "))
	if e.Output != "" {
		return fmt.Sprintf("%s: %v: %s", cmd, e.Err, e.Output)
	}
	return fmt.Sprintf("%s: %v", cmd, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExitCode extracts the exit status from an error returned by a Runner.
// It returns 0 for a nil error and -1 when no status is available.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	return -1
}

// OSRunner executes commands on the host via os/exec.
type OSRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

func NewOSRunner(stdout, stderr io.Writer) *OSRunner {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &OSRunner{Stdout: stdout, Stderr: stderr}
}

func (r *OSRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.Stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return newCommandError(ctx, name, args, strings.TrimSpace(stderr.String()), err)
	}
	if stderr.Len() > 0 && r.Stderr != nil {
		_, _ = io.Copy(r.Stderr, &stderr)
	}
	return nil
}

func (r *OSRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return "", newCommandError(ctx, name, args, strings.TrimSpace(buf.String()), err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func newCommandError(ctx context.Context, name string, args []string, output string, err error) *CommandError {
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	// A killed process reports -1; surface the deadline instead of "signal: killed".
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
		code = -1
	}
	return &CommandError{Name: name, Args: args, ExitCode: code, Output: output, Err: err}
}
