// Package runner starts external programs and reports how they exited.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Command is one external program invocation. Stdout and stderr are both
// sent to Output.
type Command struct {
	Name   string
	Args   []string
	Dir    string
	Output io.Writer
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner runs a command to completion. The exit code is returned as-is;
// err is only set when the process could not be run at all.
type Runner interface {
	Run(ctx context.Context, cmd Command) (exitCode int, err error)
}

type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Check reports whether name resolves to an executable.
func (r *ExecRunner) Check(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s not found: %w", name, err)
	}
	return nil
}

func (r *ExecRunner) Run(ctx context.Context, c Command) (int, error) {
	if c.Name == "" {
		return 0, errors.New("command name is required")
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if c.Output != nil {
		cmd.Stdout = c.Output
		cmd.Stderr = c.Output
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}

	err := cmd.Wait()
	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return exitCode, fmt.Errorf("failed waiting for %s: %w", c.Name, err)
	}

	return exitCode, nil
}
