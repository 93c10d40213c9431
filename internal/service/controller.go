// ABOUTME: Controller interface and command result type for the managed service
// ABOUTME: ExecRunner executes external commands with a bounded timeout

package service

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Errors returned by Controller operations
var (
	ErrCommandFailed = errors.New("command failed")
	ErrTimeout       = errors.New("command timed out")
)

// timedOutMessage is reported as stderr when a command exceeds its timeout.
const timedOutMessage = "command timed out"

const waitDelay = 2 * time.Second

// Result captures the outcome of a single external command.
type Result struct {
	Success  bool          `json:"success"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Summary returns a one-line description suitable for log output.
func (r Result) Summary() string {
	msg := strings.TrimSpace(r.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(r.Stdout)
	}
	if msg == "" {
		return fmt.Sprintf("exit %d", r.ExitCode)
	}
	return fmt.Sprintf("exit %d: %s", r.ExitCode, msg)
}

// Controller starts, stops, and checks the managed service.
type Controller interface {
	Start(ctx context.Context) (Result, error)
	Stop(ctx context.Context) (Result, error)
	IsActive(ctx context.Context) (bool, Result, error)
}

// CommandRunner executes an external command and reports what happened.
// Implementations never return a Go error; failures are described by Result.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) Result
}

// ExecRunner runs commands with os/exec, killing them after Timeout.
type ExecRunner struct {
	Timeout time.Duration
}

// Run executes name with args and captures its output.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) Result {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // name comes from operator config

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children that inherit the output pipes must not hold Run open past the kill.
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.Stderr = timedOutMessage
		res.ExitCode = -1
		return res
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			if res.Stderr == "" {
				res.Stderr = err.Error()
			}
		}
		return res
	}

	res.Success = true
	return res
}

// resultError converts an unsuccessful Result into an error for callers that
// only need pass/fail.
func resultError(action string, res Result) error {
	if res.Success {
		return nil
	}
	if res.ExitCode == -1 && res.Stderr == timedOutMessage {
		return fmt.Errorf("%s: %w", action, ErrTimeout)
	}
	return fmt.Errorf("%s: %w (%s)", action, ErrCommandFailed, res.Summary())
}
