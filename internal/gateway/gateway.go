// ABOUTME: Gateway orchestrator that wires the dashboard HTTP server
// ABOUTME: Owns the store, service controller, recovery supervisor, plugin registry, agent bridge and event stream

package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/warden/internal/admin"
	"github.com/2389/warden/internal/auth"
	"github.com/2389/warden/internal/bridge"
	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/events"
	"github.com/2389/warden/internal/metrics"
	"github.com/2389/warden/internal/plugins"
	"github.com/2389/warden/internal/recovery"
	"github.com/2389/warden/internal/service"
	"github.com/2389/warden/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Gateway orchestrates the warden server components.
type Gateway struct {
	config      *config.Config
	store       store.Store
	registry    *plugins.Registry
	controller  service.Controller
	supervisor  *recovery.Supervisor
	bridge      *bridge.Bridge
	events      *events.Broadcaster
	metrics     *metrics.Metrics
	admin       *admin.Service
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// components are the collaborators New builds from config. Tests supply
// their own through assemble.
type components struct {
	store      store.Store
	controller service.Controller
	metrics    *metrics.Metrics
	sleep      func(time.Duration) // stability wait, nil for the real timer
}

// initStore creates and returns a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("WARDEN_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	controller := service.NewSystemdController(service.SystemdConfig{
		Unit:          cfg.Service.Unit,
		SystemctlPath: cfg.Service.SystemctlPath,
		Timeout:       cfg.Service.CommandTimeout,
		Observer:      m,
		Logger:        logger,
	})

	gw, err := assemble(cfg, components{store: s, controller: controller, metrics: m}, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

// assemble wires the gateway around the given store and controller.
func assemble(cfg *config.Config, c components, logger *slog.Logger) (*Gateway, error) {
	mode, err := cfg.Plugins.Mode()
	if err != nil {
		return nil, err
	}
	m := c.metrics
	if m == nil {
		m = metrics.New()
	}

	registry := plugins.NewRegistry(plugins.Config{
		EnabledDir:  cfg.Plugins.EnabledDir,
		DisabledDir: cfg.Plugins.DisabledDir,
		Owner:       cfg.Plugins.Owner,
		FileMode:    mode,
		Logger:      logger,
	})

	supervisor := recovery.NewSupervisor(recovery.Config{
		Controller:      c.controller,
		Plugins:         registry,
		MaxAttempts:     cfg.Recovery.MaxAttempts,
		StabilityWindow: cfg.Recovery.StabilityWindow,
		Recorders:       []recovery.RunRecorder{c.store, m},
		Sleep:           c.sleep,
		Logger:          logger,
	})

	gw := &Gateway{
		config:     cfg,
		store:      c.store,
		registry:   registry,
		controller: c.controller,
		supervisor: supervisor,
		events:     events.NewBroadcaster(logger),
		metrics:    m,
		logger:     logger.With("component", "gateway"),
	}
	gw.bridge = bridge.New(bridge.Config{Logger: logger, Observer: m, OnEvent: gw.handleAgentEvent})

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /health/ready", gw.handleReady)

	// Agent websocket - optional shared token instead of JWT
	mux.HandleFunc("GET "+cfg.Agent.Path, gw.handleAgentWS)

	if err := gw.registerHTTPAPIRoutes(mux, cfg, logger); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, m.Handler())
		gw.logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	gw.refreshPluginGauges()
	return gw, nil
}

// Handler returns the root HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// refreshPluginGauges re-counts both artifact directories.
func (g *Gateway) refreshPluginGauges() {
	enabled, err := g.registry.ListEnabled()
	if err != nil {
		g.logger.Debug("counting enabled mods", "error", err)
		return
	}
	disabled, err := g.registry.ListDisabled()
	if err != nil {
		g.logger.Debug("counting disabled mods", "error", err)
		return
	}
	g.metrics.SetPluginCounts(len(enabled), len(disabled))
}

// handleAgentEvent fans one agent message out to event stream subscribers.
func (g *Gateway) handleAgentEvent(e *events.Event) {
	g.metrics.AgentEvent(e.Name)
	if e.Name == bridge.EventServerStats {
		if st, ok := g.bridge.Stats(); ok {
			g.metrics.SetServerStats(st)
		}
	}
	g.events.Publish(e)
}

// startPluginWatcher keeps the plugin gauges current while ctx is live.
func (g *Gateway) startPluginWatcher(ctx context.Context) {
	if err := g.registry.Watch(ctx, plugins.DefaultDebounce, g.refreshPluginGauges); err != nil {
		g.logger.Warn("plugin watcher disabled", "error", err)
	}
}

// setupTCPListener creates a standard TCP listener for HTTP.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// warnIgnoredAddress logs a warning if an HTTP address is configured but Tailscale is enabled.
func (g *Gateway) warnIgnoredAddress() {
	if g.config.Server.HTTPAddr != "" {
		g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
			"http_addr", g.config.Server.HTTPAddr,
		)
	}
}

// setupListener creates the HTTP listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		g.warnIgnoredAddress()
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// startServer serves HTTP in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	if g.config.Plugins.Watch {
		g.startPluginWatcher(ctx)
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The Run context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "warden", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}

// setupTailscaleListener creates a tsnet server and returns the HTTP listener on it.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	g.logTailscaleStatus(tsCfg.Hostname, status)

	if tsCfg.HTTPS {
		return g.createTailscaleTLSListener()
	}
	ln, err := g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener() (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown closes event streams and the agent connection, then stops the
// HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	// Event streams and the hijacked agent websocket only end when these
	// close, so http.Server.Shutdown would otherwise wait out its deadline.
	g.events.Close()
	g.bridge.Close("server shutting down")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth reports liveness.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady returns 200 OK only while the in-game agent is connected.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	since, ok := g.bridge.ConnectedSince()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":          "not_ready",
			"agent_connected": false,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"agent_connected": true,
		"connected_since": since.UTC().Format(time.RFC3339),
	})
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// tokenVerifier builds the JWT verifier when auth is configured.
func tokenVerifier(cfg *config.Config) (*auth.JWTVerifier, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, nil
	}
	v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP JWT verifier: %w", err)
	}
	return v, nil
}
