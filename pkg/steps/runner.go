package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rigup/rigup/pkg/telemetry"
)

// Command is a single subprocess invocation.
type Command struct {
	Name string
	Args []string
	// Env entries are appended to the current process environment.
	Env []string
	Dir string
}

// Result captures the outcome of a finished subprocess.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success reports whether the command exited zero.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Runner executes subprocesses. Steps depend on this interface so tests can
// substitute a fake without touching the host.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands on the local host via os/exec.
type ExecRunner struct {
	log *telemetry.Logger
}

// NewExecRunner creates a local runner. log may be nil.
func NewExecRunner(log *telemetry.Logger) *ExecRunner {
	return &ExecRunner{log: log}
}

// Run executes the command and waits for it. A non-zero exit is not an
// error: callers inspect Result.ExitCode. An error is returned only when the
// command could not be started or the context was cancelled.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	started := time.Now()

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if r.log != nil {
		r.log.Debugf("exec: %s %s", cmd.Name, strings.Join(cmd.Args, " "))
	}

	err := c.Run()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if ctx.Err() != nil {
			return result, fmt.Errorf("command %s cancelled: %w", cmd.Name, ctx.Err())
		}
		return result, fmt.Errorf("failed to run %s: %w", cmd.Name, err)
	}

	return result, nil
}
