// Package execution runs shell commands on the model's behalf with a
// command allowlist, timeouts and output caps.
package execution

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// Result holds one command's outcome.
type Result struct {
	Code     int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Runner defines the interface for running commands.
// This allows mocking the host runner for testing.
type Runner interface {
	RunCmd(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error)
}

// HostRunner executes commands directly on the host with the repository
// root as the working directory.
type HostRunner struct{}

// NewHostRunner creates a new HostRunner.
func NewHostRunner() *HostRunner {
	return &HostRunner{}
}

func (r *HostRunner) RunCmd(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = repoDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Code = 0
	case errors.As(err, &exitErr):
		res.Code = exitErr.ExitCode()
	default:
		res.Code = -1
	}
	return res, err
}
