// ABOUTME: Tests for the recovery supervisor state machine
// ABOUTME: Scripted fake controller plus a real plugin registry over temp directories

package recovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/warden/internal/plugins"
	"github.com/2389/warden/internal/service"
)

// fakeController replays scripted outcomes. Missing script entries default to
// success for stop and start, and "active" for liveness.
type fakeController struct {
	mu          sync.Mutex
	stopErr     []error
	startErr    []error
	active      []bool
	stops       int
	starts      int
	statusCalls int

	// onStart runs inside Start, e.g. to block or panic.
	onStart func()
}

func (f *fakeController) Stop(context.Context) (service.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.stops
	f.stops++
	if i < len(f.stopErr) && f.stopErr[i] != nil {
		return service.Result{ExitCode: 1}, f.stopErr[i]
	}
	return service.Result{Success: true}, nil
}

func (f *fakeController) Start(context.Context) (service.Result, error) {
	if f.onStart != nil {
		f.onStart()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.starts
	f.starts++
	if i < len(f.startErr) && f.startErr[i] != nil {
		return service.Result{ExitCode: 1}, f.startErr[i]
	}
	return service.Result{Success: true}, nil
}

func (f *fakeController) IsActive(context.Context) (bool, service.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.statusCalls
	f.statusCalls++
	if i < len(f.active) {
		return f.active[i], service.Result{Success: f.active[i]}, nil
	}
	return true, service.Result{Success: true, Stdout: "active"}, nil
}

var errStart = errors.New("start failed")

func failing(n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = errStart
	}
	return errs
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
}

type memoryRecorder struct {
	runs []*Result
}

func (m *memoryRecorder) RecordRun(_ context.Context, res *Result) error {
	m.runs = append(m.runs, res)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRegistry(t *testing.T, mods map[string]int64) *plugins.Registry {
	t.Helper()
	enabled := filepath.Join(t.TempDir(), "mods")
	require.NoError(t, os.MkdirAll(enabled, 0o755))
	for name, mtime := range mods {
		path := filepath.Join(enabled, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
		ts := time.Unix(mtime, 0)
		require.NoError(t, os.Chtimes(path, ts, ts))
	}
	return plugins.NewRegistry(plugins.Config{
		EnabledDir:  enabled,
		DisabledDir: filepath.Join(enabled, "disabled"),
		Logger:      testLogger(),
	})
}

func newSupervisor(ctl service.Controller, src PluginSource, maxAttempts int, sleeper *sleepRecorder, recorders ...RunRecorder) *Supervisor {
	return NewSupervisor(Config{
		Controller:      ctl,
		Plugins:         src,
		MaxAttempts:     maxAttempts,
		StabilityWindow: 5 * time.Second,
		Sleep:           sleeper.Sleep,
		Recorders:       recorders,
		Logger:          testLogger(),
	})
}

func TestRecover_FirstAttemptStable(t *testing.T) {
	ctl := &fakeController{}
	reg := newRegistry(t, map[string]int64{"modA.jar": 100})
	sleeper := &sleepRecorder{}
	sup := newSupervisor(ctl, reg, 3, sleeper)

	res, err := sup.Recover(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Succeeded)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, res.Disabled)
	assert.Equal(t, ReasonNone, res.Reason)
	assert.Equal(t, MessageSucceeded, res.Message)
	assert.Equal(t, []string{
		"Attempt 1: Starting server...",
		"Attempt 1: Server started successfully",
		"Server is running stable",
	}, res.Log)
	assert.Equal(t, []time.Duration{5 * time.Second}, sleeper.waits)

	require.Len(t, res.AttemptRecords, 1)
	assert.Equal(t, OutcomeStable, res.AttemptRecords[0].Outcome)

	enabled, err := reg.ListEnabled()
	require.NoError(t, err)
	assert.Len(t, enabled, 1)
}

func TestRecover_DisablesNewestFirst(t *testing.T) {
	ctl := &fakeController{startErr: failing(3)}
	reg := newRegistry(t, map[string]int64{"modA.jar": 100, "modB.jar": 200})
	sup := newSupervisor(ctl, reg, 3, &sleepRecorder{})

	res, err := sup.Recover(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Succeeded)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []string{"modB.jar", "modA.jar"}, res.Disabled)
	assert.Equal(t, ReasonMaxAttempts, res.Reason)
	assert.Equal(t, MessageFailed, res.Message)
	assert.Equal(t, []string{
		"Attempt 1: Starting server...",
		"Attempt 1: Server failed to start",
		"Disabled mod: modB.jar",
		"Attempt 2: Starting server...",
		"Attempt 2: Server failed to start",
		"Disabled mod: modA.jar",
		"Attempt 3: Starting server...",
		"Attempt 3: Server failed to start",
		"Max recovery attempts reached",
	}, res.Log)

	enabled, err := reg.ListEnabled()
	require.NoError(t, err)
	assert.Empty(t, enabled)
	disabled, err := reg.ListDisabled()
	require.NoError(t, err)
	assert.Len(t, disabled, 2)

	assert.Equal(t, 3, ctl.starts)
	assert.Equal(t, 3, ctl.stops)
	assert.Equal(t, 0, ctl.statusCalls)
}

func TestRecover_DisablesAtMostNMinusOne(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		mods        int
		wantDisable int
		wantTries   int
		wantReason  Reason
	}{
		{"more mods than attempts", 3, 5, 2, 3, ReasonMaxAttempts},
		{"single attempt", 1, 4, 0, 1, ReasonMaxAttempts},
		{"fewer mods than attempts", 5, 2, 2, 3, ReasonNoPluginsToDisable},
		{"exact", 4, 3, 3, 4, ReasonMaxAttempts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mods := make(map[string]int64, tt.mods)
			for i := 0; i < tt.mods; i++ {
				mods[string(rune('a'+i))+".jar"] = int64(100 + i)
			}
			ctl := &fakeController{startErr: failing(tt.maxAttempts)}
			reg := newRegistry(t, mods)
			sup := newSupervisor(ctl, reg, tt.maxAttempts, &sleepRecorder{})

			res, err := sup.Recover(context.Background())
			require.NoError(t, err)

			assert.False(t, res.Succeeded)
			assert.Len(t, res.Disabled, tt.wantDisable)
			assert.Equal(t, tt.wantTries, res.Attempts)
			assert.LessOrEqual(t, ctl.starts, tt.maxAttempts)
			assert.Equal(t, tt.wantReason, res.Reason)

			// Newest first: the last letters go first.
			for i, name := range res.Disabled {
				assert.Equal(t, string(rune('a'+tt.mods-1-i))+".jar", name)
			}
		})
	}
}

func TestRecover_NoModsStopsAfterOneAttempt(t *testing.T) {
	ctl := &fakeController{startErr: failing(3)}
	reg := newRegistry(t, nil)
	sup := newSupervisor(ctl, reg, 3, &sleepRecorder{})

	res, err := sup.Recover(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Succeeded)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, ReasonNoPluginsToDisable, res.Reason)
	assert.Equal(t, 1, ctl.starts)
	assert.Equal(t, "No mods found to disable", res.Log[len(res.Log)-1])
}

func TestRecover_StopFailureIsOnlyAWarning(t *testing.T) {
	ctl := &fakeController{stopErr: []error{errors.New("stop failed")}}
	sup := newSupervisor(ctl, newRegistry(t, nil), 3, &sleepRecorder{})

	res, err := sup.Recover(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Succeeded)
	assert.Equal(t, []string{
		"Attempt 1: Starting server...",
		"Warning: Failed to stop server cleanly",
		"Attempt 1: Server started successfully",
		"Server is running stable",
	}, res.Log)
}

func TestRecover_UnstableRetriesWithoutDisabling(t *testing.T) {
	ctl := &fakeController{active: []bool{false, true}}
	reg := newRegistry(t, map[string]int64{"modA.jar": 100})
	sleeper := &sleepRecorder{}
	sup := newSupervisor(ctl, reg, 3, sleeper)

	res, err := sup.Recover(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Succeeded)
	assert.Equal(t, 2, res.Attempts)
	assert.Empty(t, res.Disabled)
	assert.Equal(t, OutcomeUnstable, res.AttemptRecords[0].Outcome)
	assert.Equal(t, OutcomeStable, res.AttemptRecords[1].Outcome)
	assert.Contains(t, res.Log, "Server started but became unstable")
	assert.Len(t, sleeper.waits, 2)

	enabled, err := reg.ListEnabled()
	require.NoError(t, err)
	assert.Len(t, enabled, 1)
}

func TestRecover_UnstableOnEveryAttempt(t *testing.T) {
	ctl := &fakeController{active: []bool{false, false, false}}
	sleeper := &sleepRecorder{}
	sup := newSupervisor(ctl, newRegistry(t, map[string]int64{"modA.jar": 1}), 3, sleeper)

	res, err := sup.Recover(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Succeeded)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, ReasonUnstable, res.Reason)
	assert.Empty(t, res.Disabled)
	// Bounded: one stability wait per attempt.
	assert.Len(t, sleeper.waits, 3)
}

type brokenSource struct {
	listErr    error
	disableErr error
	enabled    []plugins.Artifact
}

func (b *brokenSource) ListEnabled() ([]plugins.Artifact, error) { return b.enabled, b.listErr }
func (b *brokenSource) Disable(string) error { return b.disableErr }

func TestRecover_MoveFailureContinues(t *testing.T) {
	ctl := &fakeController{startErr: failing(3)}
	src := &brokenSource{
		enabled:    []plugins.Artifact{{Name: "stuck.jar", ModTime: time.Unix(1, 0)}},
		disableErr: errors.New("permission denied"),
	}
	sup := newSupervisor(ctl, src, 3, &sleepRecorder{})

	res, err := sup.Recover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Attempts)
	assert.Empty(t, res.Disabled)
	assert.Contains(t, res.Log, "Failed to disable mod stuck.jar: permission denied")
	assert.Equal(t, ReasonMaxAttempts, res.Reason)
}

func TestRecover_ListFailureContinues(t *testing.T) {
	ctl := &fakeController{startErr: []error{errStart, nil}}
	src := &brokenSource{listErr: errors.New("reading mods: permission denied")}
	sup := newSupervisor(ctl, src, 3, &sleepRecorder{})

	res, err := sup.Recover(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Succeeded)
	assert.Equal(t, 2, res.Attempts)
	assert.Contains(t, res.Log, "Failed to list mods: reading mods: permission denied")
}

func TestRecover_CustomSelector(t *testing.T) {
	ctl := &fakeController{startErr: failing(2)}
	reg := newRegistry(t, map[string]int64{"old.jar": 100, "new.jar": 200})
	oldest := plugins.SelectorFunc(func(enabled []plugins.Artifact) (plugins.Artifact, bool) {
		if len(enabled) == 0 {
			return plugins.Artifact{}, false
		}
		return enabled[len(enabled)-1], true
	})
	sup := NewSupervisor(Config{
		Controller:  ctl,
		Plugins:     reg,
		Selector:    oldest,
		MaxAttempts: 2,
		Sleep:       func(time.Duration) {},
		Logger:      testLogger(),
	})

	res, err := sup.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"old.jar"}, res.Disabled)
}

func TestRecover_PanicBecomesInternalFailure(t *testing.T) {
	ctl := &fakeController{
		startErr: []error{errStart},
	}
	calls := 0
	ctl.onStart = func() {
		calls++
		if calls == 2 {
			panic("controller exploded")
		}
	}
	rec := &memoryRecorder{}
	sup := newSupervisor(ctl, newRegistry(t, map[string]int64{"modA.jar": 1}), 3, &sleepRecorder{}, rec)

	res, err := sup.Recover(context.Background())
	require.ErrorIs(t, err, ErrInternal)
	require.NotNil(t, res)

	assert.False(t, res.Succeeded)
	assert.Equal(t, ReasonInternal, res.Reason)
	assert.Equal(t, MessageInternal, res.Message)
	assert.Contains(t, res.Log, "Disabled mod: modA.jar")
	assert.Equal(t, 2, res.Attempts)
	for _, line := range res.Log {
		assert.NotContains(t, line, "exploded")
	}
	require.Len(t, rec.runs, 1)
	assert.False(t, sup.Running())
}

func TestRecover_SingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	ctl := &fakeController{}
	ctl.onStart = func() {
		close(entered)
		<-release
	}
	sup := newSupervisor(ctl, newRegistry(t, nil), 3, &sleepRecorder{})

	done := make(chan *Result, 1)
	go func() {
		res, _ := sup.Recover(context.Background())
		done <- res
	}()

	<-entered
	assert.True(t, sup.Running())

	res, err := sup.Recover(context.Background())
	assert.ErrorIs(t, err, ErrRecoveryInProgress)
	assert.Nil(t, res)

	ctl.onStart = nil
	close(release)
	first := <-done
	require.NotNil(t, first)
	assert.True(t, first.Succeeded)
	assert.False(t, sup.Running())

	// A new run is allowed once the first completes.
	second, err := sup.Recover(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Succeeded)
}

func TestRecover_RecordsEveryRun(t *testing.T) {
	rec := &memoryRecorder{}
	ctl := &fakeController{startErr: failing(1)}
	sup := newSupervisor(ctl, newRegistry(t, nil), 2, &sleepRecorder{}, rec)

	res, err := sup.Recover(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.runs, 1)
	assert.Same(t, res, rec.runs[0])
	assert.NotEmpty(t, res.ID)
	assert.False(t, res.StartedAt.IsZero())
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestNewSupervisor_Defaults(t *testing.T) {
	sup := NewSupervisor(Config{Controller: &fakeController{}, Plugins: &brokenSource{}})

	assert.Equal(t, DefaultMaxAttempts, sup.maxAttempts)
	assert.Equal(t, DefaultStabilityWindow, sup.stabilityWindow)
	assert.IsType(t, plugins.NewestSelector{}, sup.selector)
}

func TestTimerSleep(t *testing.T) {
	start := time.Now()
	timerSleep(20 * time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
