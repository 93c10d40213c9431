// ABOUTME: Tests for gateway lifecycle and health endpoints
// ABOUTME: Provides shared fixtures: temp config, fake service controller, and an assembled gateway

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/service"
	"github.com/2389/warden/internal/store"
)

// testConfig creates a config rooted in a temp directory with both mod
// directories present.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "warden.db")},
		Plugins:  config.PluginsConfig{MinecraftDir: dir},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	require.NoError(t, os.MkdirAll(cfg.Plugins.EnabledDir, 0o755))
	require.NoError(t, os.MkdirAll(cfg.Plugins.DisabledDir, 0o755))
	return cfg
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeController answers like a healthy unit unless told otherwise.
type fakeController struct {
	mu        sync.Mutex
	startErr  error
	active    bool
	statusErr error
	starts    int

	// block, when set, holds Start until closed.
	block chan struct{}
	// started is signaled on every Start call when set.
	started chan struct{}
}

func newFakeController() *fakeController {
	return &fakeController{active: true}
}

func (f *fakeController) Stop(context.Context) (service.Result, error) {
	return service.Result{Success: true}, nil
}

func (f *fakeController) Start(context.Context) (service.Result, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return service.Result{ExitCode: 1, Stderr: f.startErr.Error()}, f.startErr
	}
	return service.Result{Success: true}, nil
}

func (f *fakeController) IsActive(context.Context) (bool, service.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return false, service.Result{ExitCode: -1}, f.statusErr
	}
	return f.active, service.Result{Success: f.active}, nil
}

// newTestGateway assembles a gateway over a temp SQLite store and ctl.
func newTestGateway(t *testing.T, cfg *config.Config, ctl service.Controller) *Gateway {
	t.Helper()

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	require.NoError(t, err)

	gw, err := assemble(cfg, components{
		store:      s,
		controller: ctl,
		sleep:      func(time.Duration) {},
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return gw
}

// writeMod creates a jar in dir with the given modification time.
func writeMod(t *testing.T, dir, name string, modTime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("jar"), 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

// freeAddr returns a loopback address that was free a moment ago.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestGatewayNew(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	assert.Same(t, cfg, gw.config)
	assert.NotNil(t, gw.store)
	assert.NotNil(t, gw.supervisor)
	assert.NotNil(t, gw.bridge)
	assert.Nil(t, gw.admin, "principal routes need a jwt secret")
}

func TestGatewayNew_BadFileMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Plugins.FileMode = "rw-r--r--"

	_, err := New(cfg, testLogger())
	assert.Error(t, err)
}

func TestGatewayRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.HTTPAddr = freeAddr(t)
	cfg.Plugins.Watch = true

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.Server.HTTPAddr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("gateway did not shutdown in time")
	}
}

func TestGatewayRun_ShutdownEndsEventStreams(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.HTTPAddr = freeAddr(t)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Run(ctx)
	}()

	baseURL := "http://" + cfg.Server.HTTPAddr
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	stream := openEventStream(t, baseURL, "")
	require.Equal(t, "ready", nextEvent(t, stream).name)

	start := time.Now()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
		assert.Less(t, time.Since(start), shutdownTimeout)
	case <-time.After(2 * shutdownTimeout):
		t.Fatal("gateway did not shut down")
	}

	select {
	case _, ok := <-stream:
		assert.False(t, ok, "stream should end on shutdown")
	case <-time.After(5 * time.Second):
		t.Fatal("event stream still open after shutdown")
	}
}

func TestGatewayRun_AddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Server.HTTPAddr = ln.Addr().String()

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	assert.Error(t, gw.Run(context.Background()))
}

func TestHealthEndpoint(t *testing.T) {
	gw := newTestGateway(t, testConfig(t), newFakeController())

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	_, err := time.Parse(time.RFC3339, body["timestamp"])
	assert.NoError(t, err)
}

func TestReadyEndpoint_NoAgent(t *testing.T) {
	gw := newTestGateway(t, testConfig(t), newFakeController())

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = true
	gw := newTestGateway(t, cfg, newFakeController())

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "warden_agent_connected")
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	gw := newTestGateway(t, testConfig(t), newFakeController())

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "")
	_, err := resolveTailscaleAuthKey("")
	assert.Error(t, err)

	key, err := resolveTailscaleAuthKey("tskey-config")
	require.NoError(t, err)
	assert.Equal(t, "tskey-config", key)

	t.Setenv("TS_AUTHKEY", "tskey-env")
	key, err = resolveTailscaleAuthKey("")
	require.NoError(t, err)
	assert.Equal(t, "tskey-env", key)
}

func TestResolveTailscaleStateDir(t *testing.T) {
	dir, err := resolveTailscaleStateDir("/var/lib/warden/ts")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/warden/ts", dir)

	dir, err = resolveTailscaleStateDir("")
	require.NoError(t, err)
	assert.Equal(t, "tailscale", filepath.Base(dir))
}
