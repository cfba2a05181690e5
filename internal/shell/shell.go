package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/oshokin/lambda-packager/internal/logger"
)

// Command describes one external process invocation.
type Command struct {
	// Name is the program to run, resolved through PATH when it has no separator.
	Name string
	// Args are passed to the program verbatim.
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env is the complete process environment; nil inherits the packager's.
	Env []string
}

// String renders the command line the way it is echoed to the log.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Name))

	for _, arg := range c.Args {
		parts = append(parts, quote(arg))
	}

	return strings.Join(parts, " ")
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ErrEmptyCommand is returned when a command has no program name.
var ErrEmptyCommand = errors.New("empty command")

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	// Stdout receives the child's standard output.
	Stdout io.Writer
	// Stderr receives the child's standard error.
	Stderr io.Writer
}

// NewExecRunner creates a runner that streams child output to the packager's own streams.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run echoes cmd, runs it and waits for it to finish.
// The child is killed when ctx is canceled.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	if cmd.Name == "" {
		return ErrEmptyCommand
	}

	logger.InfoKV(ctx, "Running command", "command", cmd.String(), "dir", cmd.Dir)

	//nolint:gosec // Commands come from the packager configuration, not from untrusted input.
	child := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	child.Dir = cmd.Dir
	child.Env = cmd.Env
	child.Stdout = r.Stdout
	child.Stderr = r.Stderr

	if err := child.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s: exit status %d: %w", cmd, exitErr.ExitCode(), err)
		}

		return fmt.Errorf("%s: %w", cmd, err)
	}

	return nil
}

// FromArgv builds a Command from a configured argument vector.
func FromArgv(argv []string) (Command, error) {
	if len(argv) == 0 || argv[0] == "" {
		return Command{}, ErrEmptyCommand
	}

	return Command{
		Name: argv[0],
		Args: append([]string(nil), argv[1:]...),
	}, nil
}

// quote wraps arguments containing whitespace or quotes so the echoed line reads unambiguously.
func quote(s string) string {
	if s == "" {
		return "''"
	}

	if !strings.ContainsAny(s, " \t\n'\"\\$") {
		return s
	}

	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
