// ABOUTME: systemd-backed Controller that shells out to systemctl
// ABOUTME: Logs every command outcome and reports it to an optional observer

package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Observer receives the outcome of every command the controller runs.
type Observer interface {
	ObserveCommand(action string, res Result)
}

// SystemdConfig contains configuration for a SystemdController.
type SystemdConfig struct {
	Unit          string
	SystemctlPath string
	Timeout       time.Duration
	Runner        CommandRunner // defaults to ExecRunner with Timeout
	Observer      Observer
	Logger        *slog.Logger
}

// SystemdController drives a single systemd unit.
type SystemdController struct {
	unit      string
	systemctl string
	runner    CommandRunner
	observer  Observer
	logger    *slog.Logger
}

// NewSystemdController creates a controller for cfg.Unit.
func NewSystemdController(cfg SystemdConfig) *SystemdController {
	systemctl := cfg.SystemctlPath
	if systemctl == "" {
		systemctl = "systemctl"
	}
	runner := cfg.Runner
	if runner == nil {
		runner = &ExecRunner{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SystemdController{
		unit:      cfg.Unit,
		systemctl: systemctl,
		runner:    runner,
		observer:  cfg.Observer,
		logger:    logger.With("component", "service", "unit", cfg.Unit),
	}
}

// Unit returns the systemd unit name being controlled.
func (c *SystemdController) Unit() string {
	return c.unit
}

// Start runs `systemctl start <unit>`.
func (c *SystemdController) Start(ctx context.Context) (Result, error) {
	res := c.run(ctx, "start")
	return res, resultError("start "+c.unit, res)
}

// Stop runs `systemctl stop <unit>`.
func (c *SystemdController) Stop(ctx context.Context) (Result, error) {
	res := c.run(ctx, "stop")
	return res, resultError("stop "+c.unit, res)
}

// IsActive runs `systemctl is-active <unit>`. An inactive unit is not an
// error; only a timeout or a command that could not be executed is.
func (c *SystemdController) IsActive(ctx context.Context) (bool, Result, error) {
	res := c.run(ctx, "is-active")
	if res.ExitCode == -1 {
		return false, res, resultError("is-active "+c.unit, res)
	}
	return res.Success && strings.TrimSpace(res.Stdout) == "active", res, nil
}

func (c *SystemdController) run(ctx context.Context, action string) Result {
	res := c.runner.Run(ctx, c.systemctl, action, c.unit)

	if res.Success {
		c.logger.Debug("systemctl ok", "action", action, "duration", res.Duration)
	} else {
		c.logger.Warn("systemctl failed",
			"action", action,
			"exit_code", res.ExitCode,
			"stderr", strings.TrimSpace(res.Stderr),
			"duration", res.Duration,
		)
	}

	if c.observer != nil {
		c.observer.ObserveCommand(action, res)
	}
	return res
}
