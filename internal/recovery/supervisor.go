// ABOUTME: Recovery supervisor that restarts the server and disables failing mods
// ABOUTME: Bounded stop/start/verify loop with a single-flight guard per supervisor

package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/warden/internal/plugins"
	"github.com/2389/warden/internal/service"
)

// Errors returned by Recover
var (
	ErrRecoveryInProgress = errors.New("recovery already in progress")
	ErrInternal           = errors.New("internal recovery error")
)

// Defaults used when Config leaves a tunable unset.
const (
	DefaultMaxAttempts     = 3
	DefaultStabilityWindow = 5 * time.Second
)

// PluginSource is the subset of the plugin registry the supervisor needs.
type PluginSource interface {
	ListEnabled() ([]plugins.Artifact, error)
	Disable(name string) error
}

// RunRecorder receives every finished run, successful or not.
type RunRecorder interface {
	RecordRun(ctx context.Context, res *Result) error
}

// Config contains configuration for a Supervisor.
type Config struct {
	Controller      service.Controller
	Plugins         PluginSource
	Selector        plugins.Selector // defaults to NewestSelector
	MaxAttempts     int
	StabilityWindow time.Duration
	Recorders       []RunRecorder
	Logger          *slog.Logger

	// Sleep blocks for the stability window. Defaults to a timer-backed wait.
	Sleep func(time.Duration)
	// Now defaults to time.Now.
	Now func() time.Time
}

// Supervisor runs recovery against one managed service.
type Supervisor struct {
	controller      service.Controller
	plugins         PluginSource
	selector        plugins.Selector
	maxAttempts     int
	stabilityWindow time.Duration
	recorders       []RunRecorder
	sleep           func(time.Duration)
	now             func() time.Time
	logger          *slog.Logger

	running atomic.Bool
}

// NewSupervisor creates a Supervisor from cfg, applying defaults.
func NewSupervisor(cfg Config) *Supervisor {
	s := &Supervisor{
		controller:      cfg.Controller,
		plugins:         cfg.Plugins,
		selector:        cfg.Selector,
		maxAttempts:     cfg.MaxAttempts,
		stabilityWindow: cfg.StabilityWindow,
		recorders:       cfg.Recorders,
		sleep:           cfg.Sleep,
		now:             cfg.Now,
		logger:          cfg.Logger,
	}
	if s.selector == nil {
		s.selector = plugins.NewestSelector{}
	}
	if s.maxAttempts < 1 {
		s.maxAttempts = DefaultMaxAttempts
	}
	if s.stabilityWindow <= 0 {
		s.stabilityWindow = DefaultStabilityWindow
	}
	if s.sleep == nil {
		s.sleep = timerSleep
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "recovery")
	return s
}

// Running reports whether a recovery run is in flight.
func (s *Supervisor) Running() bool {
	return s.running.Load()
}

// Recover performs one recovery run. It returns ErrRecoveryInProgress without
// touching the service when another run is active. An unexpected internal
// failure returns ErrInternal together with the partial Result.
func (s *Supervisor) Recover(ctx context.Context) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRecoveryInProgress
	}
	defer s.running.Store(false)

	res := &Result{
		ID:             uuid.New().String(),
		Log:            []string{},
		AttemptRecords: []Attempt{},
		Disabled:       []string{},
		StartedAt:      s.now().UTC(),
	}

	s.logger.Info("recovery started", "run_id", res.ID, "max_attempts", s.maxAttempts)

	err := s.runGuarded(ctx, res)
	res.FinishedAt = s.now().UTC()

	s.logger.Info("recovery finished",
		"run_id", res.ID,
		"success", res.Succeeded,
		"attempts", res.Attempts,
		"reason", res.Reason,
		"disabled", res.Disabled,
		"duration", res.Duration(),
	)

	s.record(ctx, res)
	return res, err
}

// runGuarded converts a panic in a collaborator into an internal failure that
// keeps the partial log.
func (s *Supervisor) runGuarded(ctx context.Context, res *Result) (err error) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("recovery aborted", "run_id", res.ID, "panic", fmt.Sprint(p))
			res.Succeeded = false
			res.Reason = ReasonInternal
			res.Message = MessageInternal
			err = ErrInternal
		}
	}()
	s.run(ctx, res)
	return nil
}

func (s *Supervisor) run(ctx context.Context, res *Result) {
	for ordinal := 1; ordinal <= s.maxAttempts; ordinal++ {
		last := ordinal == s.maxAttempts
		a := res.begin(ordinal)
		res.step(a, "Attempt %d: Starting server...", ordinal)

		if _, err := s.controller.Stop(ctx); err != nil {
			res.step(a, "Warning: Failed to stop server cleanly")
		}

		if _, err := s.controller.Start(ctx); err != nil {
			a.Outcome = OutcomeFailed
			res.step(a, "Attempt %d: Server failed to start", ordinal)

			if last {
				res.step(a, "Max recovery attempts reached")
				s.fail(res, ReasonMaxAttempts)
				return
			}
			if stop := s.disableOne(res, a); stop {
				s.fail(res, ReasonNoPluginsToDisable)
				return
			}
			continue
		}

		a.Outcome = OutcomeStarted
		res.step(a, "Attempt %d: Server started successfully", ordinal)

		s.sleep(s.stabilityWindow)

		active, _, _ := s.controller.IsActive(ctx)
		if active {
			a.Outcome = OutcomeStable
			res.step(a, "Server is running stable")
			res.Succeeded = true
			res.Message = MessageSucceeded
			return
		}

		a.Outcome = OutcomeUnstable
		res.step(a, "Server started but became unstable")
		if last {
			s.fail(res, ReasonUnstable)
		}
	}
}

// disableOne moves the selected artifact to the disabled directory. It returns
// true only when there was nothing to disable, which ends the run. Listing and
// move errors are logged into the attempt and the run continues.
func (s *Supervisor) disableOne(res *Result, a *Attempt) (stop bool) {
	enabled, err := s.plugins.ListEnabled()
	if err != nil {
		res.step(a, "Failed to list mods: %v", err)
		s.logger.Warn("listing enabled artifacts failed", "run_id", res.ID, "error", err)
		return false
	}

	victim, ok := s.selector.Select(enabled)
	if !ok {
		res.step(a, "No mods found to disable")
		return true
	}

	if err := s.plugins.Disable(victim.Name); err != nil {
		res.step(a, "Failed to disable mod %s: %v", victim.Name, err)
		s.logger.Warn("disabling artifact failed", "run_id", res.ID, "name", victim.Name, "error", err)
		return false
	}

	a.Disabled = victim.Name
	res.Disabled = append(res.Disabled, victim.Name)
	res.step(a, "Disabled mod: %s", victim.Name)
	return false
}

func (s *Supervisor) fail(res *Result, reason Reason) {
	res.Succeeded = false
	res.Reason = reason
	res.Message = MessageFailed
}

func (s *Supervisor) record(ctx context.Context, res *Result) {
	for _, r := range s.recorders {
		if err := r.RecordRun(ctx, res); err != nil {
			s.logger.Warn("recording recovery run failed", "run_id", res.ID, "error", err)
		}
	}
}

// timerSleep blocks for d using a timer.
func timerSleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	<-t.C
}
