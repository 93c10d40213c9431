// ABOUTME: HTTP API handlers for the server dashboard
// ABOUTME: Exposes recovery, mod management, agent commands, principals, and audit history

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/warden/internal/admin"
	"github.com/2389/warden/internal/auth"
	"github.com/2389/warden/internal/bridge"
	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/plugins"
	"github.com/2389/warden/internal/recovery"
	"github.com/2389/warden/internal/store"
)


// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 64 << 10

// eventsKeepalive is how often an idle event stream sends a comment line.
const eventsKeepalive = 15 * time.Second

// ModRequest is the JSON request body for the mod management endpoints.
type ModRequest struct {
	Filename string `json:"filename"`
}

// SendMessageRequest is the JSON request body for POST /api/mod/send_message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// CreateTokenRequest is the JSON request body for POST /api/principals/{id}/token.
type CreateTokenRequest struct {
	TTLSeconds int64 `json:"ttl_seconds"`
}

// ServerStatusResponse is the JSON response for GET /api/server/status.
type ServerStatusResponse struct {
	Unit            string     `json:"unit"`
	Active          bool       `json:"active"`
	AgentConnected  bool       `json:"agent_connected"`
	AgentSince      *time.Time `json:"agent_connected_since,omitempty"`
	RecoveryRunning bool       `json:"recovery_running"`

	Stats *bridge.ServerStats `json:"stats,omitempty"`
}

// recoveryErrorResponse carries the partial result of an aborted run.
type recoveryErrorResponse struct {
	*recovery.Result
	Error string `json:"error"`
}

// AuditEntryResponse is one entry in GET /api/audit.
type AuditEntryResponse struct {
	ID          string         `json:"id"`
	PrincipalID string         `json:"actor_principal_id"`
	Action      string         `json:"action"`
	TargetType  string         `json:"target_type"`
	TargetID    string         `json:"target_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Detail      map[string]any `json:"detail,omitempty"`
}

// modOperation describes one of enable, disable, and delete.
type modOperation struct {
	verb          string // past tense for the success message
	action        store.AuditAction
	apply         func(name string) error
	notFound      string
	alreadyExists string
}

func (g *Gateway) registerHTTPAPIRoutes(mux *http.ServeMux, cfg *config.Config, logger *slog.Logger) error {
	verifier, err := tokenVerifier(cfg)
	if err != nil {
		return err
	}

	read := func(h http.HandlerFunc) http.Handler { return h }
	write := read
	if verifier != nil {
		authMiddleware := auth.HTTPAuthMiddleware(g.store, g.store, verifier, logger)
		adminMiddleware := auth.RequireAdminHTTP(logger)
		read = func(h http.HandlerFunc) http.Handler { return authMiddleware(h) }
		write = func(h http.HandlerFunc) http.Handler { return authMiddleware(adminMiddleware(h)) }
		logger.Info("HTTP auth middleware enabled")
	} else {
		logger.Warn("HTTP auth disabled - no jwt_secret configured")
	}

	mux.Handle("POST /api/server/recover", write(g.handleRecover))
	mux.Handle("GET /api/server/recoveries", read(g.handleListRecoveries))
	mux.Handle("GET /api/server/recoveries/{id}", read(g.handleGetRecovery))
	mux.Handle("GET /api/server/status", read(g.handleServerStatus))

	mux.Handle("GET /api/mods", read(g.handleListMods))
	mux.Handle("POST /api/mods/enable", write(g.handleModOperation(modOperation{
		verb:          "enabled",
		action:        store.AuditEnableMod,
		apply:         g.registry.Enable,
		notFound:      "Disabled mod file not found",
		alreadyExists: "Mod already exists in mods directory",
	})))
	mux.Handle("POST /api/mods/disable", write(g.handleModOperation(modOperation{
		verb:          "disabled",
		action:        store.AuditDisableMod,
		apply:         g.registry.Disable,
		notFound:      "Mod file not found",
		alreadyExists: "Mod already exists in disabled directory",
	})))
	mux.Handle("POST /api/mods/delete", write(g.handleModOperation(modOperation{
		verb:     "deleted",
		action:   store.AuditDeleteMod,
		apply:    g.registry.Delete,
		notFound: "Mod file not found",
	})))

	mux.Handle("POST /api/mod/send_message", write(g.handleSendMessage))
	mux.Handle("POST /api/mod/set_day", write(g.handleSetDay))
	mux.Handle("GET /api/mod/list_players", read(g.handleListPlayers))
	mux.Handle("GET /api/mod/events", read(g.handleAgentEvents))

	// Identity management only makes sense with tokens.
	if verifier != nil {
		g.admin = admin.NewService(g.store, verifier, logger)
		mux.Handle("GET /api/principals", write(g.handleListPrincipals))
		mux.Handle("POST /api/principals", write(g.handleCreatePrincipal))
		mux.Handle("POST /api/principals/{id}/revoke", write(g.handleRevokePrincipal))
		mux.Handle("POST /api/principals/{id}/token", write(g.handleCreateToken))
		mux.Handle("GET /api/audit", write(g.handleListAudit))
	}
	return nil
}

// sendJSONError writes the dashboard's JSON error envelope.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding request: %w", err)
	}
	return nil
}

// audit records a mutation. Failures are logged and never fail the request.
func (g *Gateway) audit(r *http.Request, action store.AuditAction, targetType store.AuditTarget, targetID string, detail map[string]any) {
	entry := &store.AuditEntry{
		ActorPrincipalID: auth.FromContext(r.Context()).Actor(),
		Action:           action,
		TargetType:       targetType,
		TargetID:         targetID,
		Detail:           detail,
	}
	if err := g.store.AppendAuditLog(context.WithoutCancel(r.Context()), entry); err != nil {
		g.logger.Warn("writing audit entry", "action", action, "target_id", targetID, "error", err)
	}
}

// handleRecover runs one recovery to completion. The run is detached from the
// request context so a dropped client cannot leave the server half-restarted.
func (g *Gateway) handleRecover(w http.ResponseWriter, r *http.Request) {
	res, err := g.supervisor.Recover(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, recovery.ErrRecoveryInProgress):
		g.sendJSONError(w, http.StatusConflict, "Recovery already in progress")
		return
	case err != nil:
		g.logger.Error("recovery aborted", "error", err)
		if res != nil {
			g.audit(r, store.AuditRecoverServer, store.TargetServer, g.config.Service.Unit, recoveryDetail(res))
		}
		writeJSON(w, http.StatusInternalServerError, recoveryErrorResponse{Result: res, Error: recovery.MessageInternal})
		return
	}

	g.audit(r, store.AuditRecoverServer, store.TargetServer, g.config.Service.Unit, recoveryDetail(res))

	status := http.StatusOK
	if !res.Succeeded {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

func recoveryDetail(res *recovery.Result) map[string]any {
	return map[string]any{
		"run_id":   res.ID,
		"success":  res.Succeeded,
		"attempts": res.Attempts,
		"reason":   string(res.Reason),
		"disabled": res.Disabled,
	}
}

// parseLimit reads an optional positive ?limit= value.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return n, nil
}

func (g *Gateway) handleListRecoveries(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := g.store.ListRecoveryRuns(r.Context(), limit)
	if err != nil {
		g.logger.Error("listing recovery runs", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recoveries": runs})
}

func (g *Gateway) handleGetRecovery(w http.ResponseWriter, r *http.Request) {
	run, err := g.store.GetRecoveryRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "recovery run not found")
		return
	}
	if err != nil {
		g.logger.Error("getting recovery run", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (g *Gateway) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	active, res, err := g.controller.IsActive(r.Context())
	if err != nil {
		g.logger.Warn("probing service", "error", err, "result", res.Summary())
		g.sendJSONError(w, http.StatusBadGateway, "Failed to query service status")
		return
	}

	resp := ServerStatusResponse{
		Unit:            g.config.Service.Unit,
		Active:          active,
		RecoveryRunning: g.supervisor.Running(),
	}
	if since, ok := g.bridge.ConnectedSince(); ok {
		resp.AgentConnected = true
		resp.AgentSince = &since
	}
	if st, ok := g.bridge.Stats(); ok {
		resp.Stats = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAgentEvents streams agent messages as server-sent events until the
// client goes away. ?event=NAME limits the stream to one event name.
func (g *Gateway) handleAgentEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	name := r.URL.Query().Get("event")
	ch, subID := g.events.Subscribe(r.Context(), name)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	_, connected := g.bridge.ConnectedSince()
	g.writeSSEEvent(w, "ready", map[string]any{"agent_connected": connected, "sub_id": subID})
	flusher.Flush()

	ticker := time.NewTicker(eventsKeepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			g.writeSSEEvent(w, e.Name, e)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single server-sent event.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

func (g *Gateway) handleListMods(w http.ResponseWriter, r *http.Request) {
	st, err := g.registry.Status(plugins.WorldDir(g.config.Plugins.MinecraftDir))
	if err != nil {
		g.logger.Error("listing mods", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "Failed to list mods")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (g *Gateway) handleModOperation(op modOperation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ModRequest
		if err := decodeJSON(w, r, &req); err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Filename == "" {
			g.sendJSONError(w, http.StatusBadRequest, "Filename required")
			return
		}

		err := op.apply(req.Filename)
		switch {
		case errors.Is(err, plugins.ErrInvalidName):
			g.sendJSONError(w, http.StatusBadRequest, "Invalid file type")
			return
		case errors.Is(err, plugins.ErrNotFound):
			g.sendJSONError(w, http.StatusNotFound, op.notFound)
			return
		case errors.Is(err, plugins.ErrAlreadyExists):
			g.sendJSONError(w, http.StatusConflict, op.alreadyExists)
			return
		case err != nil:
			g.logger.Error("mod operation failed", "op", op.verb, "filename", req.Filename, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to %s mod", strings.TrimSuffix(op.verb, "d")))
			return
		}

		g.refreshPluginGauges()
		g.audit(r, op.action, store.TargetMod, req.Filename, nil)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": fmt.Sprintf("Mod %s %s successfully", req.Filename, op.verb),
		})
	}
}

// sendBridgeResult maps a dispatch outcome to the agent endpoint envelope.
func (g *Gateway) sendBridgeResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case errors.Is(err, bridge.ErrEmptyContent):
		g.sendJSONError(w, http.StatusBadRequest, "Missing content")
	case errors.Is(err, bridge.ErrNotConnected):
		g.sendJSONError(w, http.StatusServiceUnavailable, "Mod not connected")
	case errors.Is(err, bridge.ErrSendFailure):
		g.sendJSONError(w, http.StatusBadGateway, "Failed to send to mod")
	default:
		g.logger.Error("agent command failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := g.bridge.SendChatMessage(r.Context(), req.Content)
	if err == nil {
		g.audit(r, store.AuditSendMessage, store.TargetAgent, "minecraft", map[string]any{"content": req.Content})
	}
	g.sendBridgeResult(w, err)
}

func (g *Gateway) handleSetDay(w http.ResponseWriter, r *http.Request) {
	err := g.bridge.SetDay(r.Context())
	if err == nil {
		g.audit(r, store.AuditSetDay, store.TargetAgent, "minecraft", nil)
	}
	g.sendBridgeResult(w, err)
}

func (g *Gateway) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	g.sendBridgeResult(w, g.bridge.ListPlayers(r.Context()))
}

// sendAdminError maps admin service errors to HTTP statuses.
func (g *Gateway) sendAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, admin.ErrInvalidArgument):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, admin.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "principal not found")
	case errors.Is(err, admin.ErrFailedPrecondition):
		g.sendJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, admin.ErrUnauthenticated):
		g.sendJSONError(w, http.StatusUnauthorized, "not authenticated")
	default:
		g.logger.Error("admin operation failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (g *Gateway) handleListPrincipals(w http.ResponseWriter, r *http.Request) {
	filter := store.PrincipalFilter{}
	if v := r.URL.Query().Get("status"); v != "" {
		status := store.PrincipalStatus(v)
		if !status.Valid() {
			g.sendJSONError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = &status
	}

	principals, err := g.admin.ListPrincipals(r.Context(), filter)
	if err != nil {
		g.sendAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"principals": principals})
}

func (g *Gateway) handleCreatePrincipal(w http.ResponseWriter, r *http.Request) {
	var req admin.CreatePrincipalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	p, err := g.admin.CreatePrincipal(r.Context(), req)
	if err != nil {
		g.sendAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (g *Gateway) handleRevokePrincipal(w http.ResponseWriter, r *http.Request) {
	p, err := g.admin.RevokePrincipal(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (g *Gateway) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	tok, err := g.admin.CreateToken(r.Context(), r.PathValue("id"), time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		g.sendAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (g *Gateway) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := store.AuditFilter{Limit: limit}
	if v := r.URL.Query().Get("action"); v != "" {
		action := store.AuditAction(v)
		if !action.Valid() {
			g.sendJSONError(w, http.StatusBadRequest, "invalid action")
			return
		}
		filter.Action = &action
	}
	if v := r.URL.Query().Get("actor"); v != "" {
		filter.ActorPrincipalID = &v
	}

	entries, err := g.store.ListAuditLog(r.Context(), filter)
	if err != nil {
		g.logger.Error("listing audit log", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]AuditEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = AuditEntryResponse{
			ID:          e.ID,
			PrincipalID: e.ActorPrincipalID,
			Action:      string(e.Action),
			TargetType:  string(e.TargetType),
			TargetID:    e.TargetID,
			Timestamp:   e.Timestamp,
			Detail:      e.Detail,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
