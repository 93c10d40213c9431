// ABOUTME: Tests for the dashboard HTTP API handlers
// ABOUTME: Covers recovery, mod management, agent commands, auth, principals, and audit history

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/warden/internal/auth"
	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/recovery"
	"github.com/2389/warden/internal/store"
)

const testJWTSecret = "gateway-test-secret-at-least-32-bytes"

func doRequest(t *testing.T, gw *Gateway, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// createTokenFor stores a principal with role and returns a bearer token for it.
func createTokenFor(t *testing.T, gw *Gateway, id string, role store.RoleName) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, gw.store.CreatePrincipal(ctx, &store.Principal{
		ID:          id,
		Type:        store.PrincipalTypeOperator,
		DisplayName: id,
		Status:      store.PrincipalStatusApproved,
	}))
	require.NoError(t, gw.store.AddRole(ctx, store.RoleSubjectPrincipal, id, role))

	verifier, err := auth.NewJWTVerifier([]byte(testJWTSecret))
	require.NoError(t, err)
	token, err := verifier.Generate(id, time.Hour)
	require.NoError(t, err)
	return token
}

func authConfig(t *testing.T) *config.Config {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = testJWTSecret
	return cfg
}

// --- Recovery ---

func TestHandleRecover_Success(t *testing.T) {
	gw := newTestGateway(t, testConfig(t), newFakeController())

	rec := doRequest(t, gw, http.MethodPost, "/api/server/recover", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, recovery.MessageSucceeded, body["message"])
	assert.EqualValues(t, 1, body["attempts"])
	assert.Contains(t, body["recovery_log"], "Server is running stable")

	runs, err := gw.store.ListRecoveryRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Succeeded)

	action := store.AuditRecoverServer
	entries, err := gw.store.ListAuditLog(context.Background(), store.AuditFilter{Action: &action})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, auth.AnonymousActor, entries[0].ActorPrincipalID)
}

func TestHandleRecover_DisablesModsAndFails(t *testing.T) {
	cfg := testConfig(t)
	ctl := newFakeController()
	ctl.startErr = errors.New("unit failed")
	gw := newTestGateway(t, cfg, ctl)

	base := time.Now().Add(-time.Hour)
	writeMod(t, cfg.Plugins.EnabledDir, "old.jar", base)
	writeMod(t, cfg.Plugins.EnabledDir, "newer.jar", base.Add(time.Minute))
	writeMod(t, cfg.Plugins.EnabledDir, "newest.jar", base.Add(2*time.Minute))

	rec := doRequest(t, gw, http.MethodPost, "/api/server/recover", nil, "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, recovery.MessageFailed, body["message"])
	assert.EqualValues(t, 3, body["attempts"])
	assert.Equal(t, []any{"newest.jar", "newer.jar"}, body["disabled"])
	assert.Contains(t, body["recovery_log"], "Max recovery attempts reached")

	assert.FileExists(t, filepath.Join(cfg.Plugins.DisabledDir, "newest.jar"))
	assert.FileExists(t, filepath.Join(cfg.Plugins.DisabledDir, "newer.jar"))
	assert.FileExists(t, filepath.Join(cfg.Plugins.EnabledDir, "old.jar"))
}

func TestHandleRecover_InProgress(t *testing.T) {
	ctl := newFakeController()
	ctl.block = make(chan struct{})
	ctl.started = make(chan struct{}, 1)
	gw := newTestGateway(t, testConfig(t), ctl)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- doRequest(t, gw, http.MethodPost, "/api/server/recover", nil, "")
	}()
	<-ctl.started

	rec := doRequest(t, gw, http.MethodPost, "/api/server/recover", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Recovery already in progress", decodeBody(t, rec)["error"])

	close(ctl.block)
	first := <-done
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, 1, ctl.starts)
}

func TestHandleListRecoveries(t *testing.T) {
	gw := newTestGateway(t, testConfig(t), newFakeController())
	for range 3 {
		require.Equal(t, http.StatusOK, doRequest(t, gw, http.MethodPost, "/api/server/recover", nil, "").Code)
	}

	rec := doRequest(t, gw, http.MethodGet, "/api/server/recoveries?limit=2", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	runs, ok := decodeBody(t, rec)["recoveries"].([]any)
	require.True(t, ok)
	assert.Len(t, runs, 2)
}

func TestHandleGetRecovery(t *testing.T) {
	gw := newTestGateway(t, testConfig(t), newFakeController())

	rec := doRequest(t, gw, http.MethodPost, "/api/server/recover", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	id, _ := decodeBody(t, rec)["id"].(string)
	require.NotEmpty(t, id)

	rec = doRequest(t, gw, http.MethodGet, "/api/server/recoveries/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, true, body["success"])

	rec = doRequest(t, gw, http.MethodGet, "/api/server/recoveries/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListRecoveries_BadLimit(t *testing.T) {
	gw := newTestGateway(t, testConfig(t), newFakeController())

	for _, q := range []string{"0", "-1", "abc"} {
		rec := doRequest(t, gw, http.MethodGet, "/api/server/recoveries?limit="+q, nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", q)
	}
}

func TestHandleServerStatus(t *testing.T) {
	ctl := newFakeController()
	gw := newTestGateway(t, testConfig(t), ctl)

	rec := doRequest(t, gw, http.MethodGet, "/api/server/status", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ServerStatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, config.DefaultServiceUnit, resp.Unit)
	assert.True(t, resp.Active)
	assert.False(t, resp.AgentConnected)
	assert.False(t, resp.RecoveryRunning)
}

func TestHandleServerStatus_StatusCheckError(t *testing.T) {
	ctl := newFakeController()
	ctl.statusErr = errors.New("systemctl timed out")
	gw := newTestGateway(t, testConfig(t), ctl)

	rec := doRequest(t, gw, http.MethodGet, "/api/server/status", nil, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

// --- Mods ---

func TestHandleListMods(t *testing.T) {
	cfg := testConfig(t)
	gw := newTestGateway(t, cfg, newFakeController())
	writeMod(t, cfg.Plugins.EnabledDir, "fabric-api-0.92.jar", time.Now())
	writeMod(t, cfg.Plugins.DisabledDir, "broken.jar", time.Now())

	rec := doRequest(t, gw, http.MethodGet, "/api/mods", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["mods_count"])
	assert.EqualValues(t, 1, body["disabled_count"])
	assert.Equal(t, true, body["fabric_api_installed"])
	assert.Equal(t, false, body["world_exists"])
}

func TestHandleModOperations(t *testing.T) {
	cfg := testConfig(t)
	gw := newTestGateway(t, cfg, newFakeController())
	writeMod(t, cfg.Plugins.EnabledDir, "a.jar", time.Now())

	rec := doRequest(t, gw, http.MethodPost, "/api/mods/disable", ModRequest{Filename: "a.jar"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Mod a.jar disabled successfully", decodeBody(t, rec)["message"])
	assert.FileExists(t, filepath.Join(cfg.Plugins.DisabledDir, "a.jar"))

	rec = doRequest(t, gw, http.MethodPost, "/api/mods/enable", ModRequest{Filename: "a.jar"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Mod a.jar enabled successfully", decodeBody(t, rec)["message"])

	rec = doRequest(t, gw, http.MethodPost, "/api/mods/delete", ModRequest{Filename: "a.jar"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Mod a.jar deleted successfully", decodeBody(t, rec)["message"])
	assert.NoFileExists(t, filepath.Join(cfg.Plugins.EnabledDir, "a.jar"))

	entries, err := gw.store.ListAuditLog(context.Background(), store.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestHandleModOperations_Errors(t *testing.T) {
	cfg := testConfig(t)
	gw := newTestGateway(t, cfg, newFakeController())
	writeMod(t, cfg.Plugins.EnabledDir, "dup.jar", time.Now())
	writeMod(t, cfg.Plugins.DisabledDir, "dup.jar", time.Now())

	tests := []struct {
		name    string
		path    string
		body    any
		status  int
		message string
	}{
		{"missing filename", "/api/mods/disable", ModRequest{}, http.StatusBadRequest, "Filename required"},
		{"not a jar", "/api/mods/delete", ModRequest{Filename: "notes.txt"}, http.StatusBadRequest, "Invalid file type"},
		{"path escape", "/api/mods/enable", ModRequest{Filename: "../x.jar"}, http.StatusBadRequest, "Invalid file type"},
		{"delete missing", "/api/mods/delete", ModRequest{Filename: "gone.jar"}, http.StatusNotFound, "Mod file not found"},
		{"enable missing", "/api/mods/enable", ModRequest{Filename: "gone.jar"}, http.StatusNotFound, "Disabled mod file not found"},
		{"enable collision", "/api/mods/enable", ModRequest{Filename: "dup.jar"}, http.StatusConflict, "Mod already exists in mods directory"},
		{"disable collision", "/api/mods/disable", ModRequest{Filename: "dup.jar"}, http.StatusConflict, "Mod already exists in disabled directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, gw, http.MethodPost, tt.path, tt.body, "")
			assert.Equal(t, tt.status, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.message, body["error"])
		})
	}
}

func TestHandleModOperations_InvalidJSON(t *testing.T) {
	gw := newTestGateway(t, testConfig(t), newFakeController())

	req := httptest.NewRequest(http.MethodPost, "/api/mods/disable", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleModOperations_WrongMethod(t *testing.T) {
	gw := newTestGateway(t, testConfig(t), newFakeController())

	rec := doRequest(t, gw, http.MethodGet, "/api/mods/delete", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// --- Agent commands ---

func TestHandleSendMessage_MissingContent(t *testing.T) {
	gw := newTestGateway(t, testConfig(t), newFakeController())

	rec := doRequest(t, gw, http.MethodPost, "/api/mod/send_message", SendMessageRequest{Content: "  "}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing content", decodeBody(t, rec)["error"])
}

func TestAgentCommands_NotConnected(t *testing.T) {
	gw := newTestGateway(t, testConfig(t), newFakeController())

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/mod/send_message"},
		{http.MethodPost, "/api/mod/set_day"},
		{http.MethodGet, "/api/mod/list_players"},
	} {
		rec := doRequest(t, gw, tc.method, tc.path, SendMessageRequest{Content: "hi"}, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, tc.path)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Mod not connected", body["error"])
	}
}

// --- Auth ---

func TestAPI_RequiresToken(t *testing.T) {
	gw := newTestGateway(t, authConfig(t), newFakeController())

	rec := doRequest(t, gw, http.MethodGet, "/api/mods", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays public.
	rec = doRequest(t, gw, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_MemberCanReadButNotMutate(t *testing.T) {
	gw := newTestGateway(t, authConfig(t), newFakeController())
	token := createTokenFor(t, gw, "member-1", store.RoleMember)

	rec := doRequest(t, gw, http.MethodGet, "/api/mods", nil, token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, gw, http.MethodPost, "/api/server/recover", nil, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_AdminMutationIsAttributed(t *testing.T) {
	cfg := authConfig(t)
	gw := newTestGateway(t, cfg, newFakeController())
	token := createTokenFor(t, gw, "admin-1", store.RoleAdmin)
	writeMod(t, cfg.Plugins.EnabledDir, "a.jar", time.Now())

	rec := doRequest(t, gw, http.MethodPost, "/api/mods/disable", ModRequest{Filename: "a.jar"}, token)
	require.Equal(t, http.StatusOK, rec.Code)

	action := store.AuditDisableMod
	entries, err := gw.store.ListAuditLog(context.Background(), store.AuditFilter{Action: &action})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin-1", entries[0].ActorPrincipalID)
	assert.Equal(t, "a.jar", entries[0].TargetID)
}

// --- Principals and audit ---

func TestPrincipalRoutes_AbsentWithoutAuth(t *testing.T) {
	gw := newTestGateway(t, testConfig(t), newFakeController())

	rec := doRequest(t, gw, http.MethodGet, "/api/principals", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrincipalRoutes_CreateTokenRevoke(t *testing.T) {
	gw := newTestGateway(t, authConfig(t), newFakeController())
	adminToken := createTokenFor(t, gw, "owner-1", store.RoleOwner)

	rec := doRequest(t, gw, http.MethodPost, "/api/principals", map[string]any{
		"type":         "service",
		"display_name": "Discord bot",
		"roles":        []string{"member"},
	}, adminToken)
	require.Equal(t, http.StatusCreated, rec.Code)
	id, _ := decodeBody(t, rec)["id"].(string)
	require.NotEmpty(t, id)

	rec = doRequest(t, gw, http.MethodPost, "/api/principals/"+id+"/token", map[string]any{"ttl_seconds": 3600}, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	botToken, _ := decodeBody(t, rec)["token"].(string)
	require.NotEmpty(t, botToken)

	rec = doRequest(t, gw, http.MethodGet, "/api/mods", nil, botToken)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, gw, http.MethodPost, "/api/principals/"+id+"/revoke", nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "revoked", decodeBody(t, rec)["status"])

	rec = doRequest(t, gw, http.MethodGet, "/api/mods", nil, botToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, gw, http.MethodGet, "/api/principals", nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	principals, _ := decodeBody(t, rec)["principals"].([]any)
	assert.Len(t, principals, 2)
}

func TestPrincipalRoutes_Errors(t *testing.T) {
	gw := newTestGateway(t, authConfig(t), newFakeController())
	adminToken := createTokenFor(t, gw, "admin-1", store.RoleAdmin)

	rec := doRequest(t, gw, http.MethodPost, "/api/principals", map[string]any{"type": "robot", "display_name": "x"}, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, gw, http.MethodPost, "/api/principals/missing/revoke", nil, adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, gw, http.MethodPost, "/api/principals/admin-1/revoke", nil, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	createTokenFor(t, gw, "owner-1", store.RoleOwner)
	rec = doRequest(t, gw, http.MethodPost, "/api/principals/owner-1/revoke", nil, adminToken)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, gw, http.MethodGet, "/api/principals?status=bogus", nil, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListAudit(t *testing.T) {
	cfg := authConfig(t)
	gw := newTestGateway(t, cfg, newFakeController())
	adminToken := createTokenFor(t, gw, "admin-1", store.RoleAdmin)
	writeMod(t, cfg.Plugins.EnabledDir, "a.jar", time.Now())

	require.Equal(t, http.StatusOK, doRequest(t, gw, http.MethodPost, "/api/mods/disable", ModRequest{Filename: "a.jar"}, adminToken).Code)
	require.Equal(t, http.StatusOK, doRequest(t, gw, http.MethodPost, "/api/server/recover", nil, adminToken).Code)

	rec := doRequest(t, gw, http.MethodGet, "/api/audit?action=disable_mod", nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	entries, _ := decodeBody(t, rec)["entries"].([]any)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	assert.Equal(t, "admin-1", entry["actor_principal_id"])
	assert.Equal(t, "a.jar", entry["target_id"])

	rec = doRequest(t, gw, http.MethodGet, "/api/audit?actor=admin-1", nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	entries, _ = decodeBody(t, rec)["entries"].([]any)
	assert.Len(t, entries, 2)

	rec = doRequest(t, gw, http.MethodGet, "/api/audit?actor=someone-else", nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	entries, _ = decodeBody(t, rec)["entries"].([]any)
	assert.Empty(t, entries)

	rec = doRequest(t, gw, http.MethodGet, "/api/audit?action=nope", nil, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleModOperations_RefreshesGauges(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = true
	gw := newTestGateway(t, cfg, newFakeController())
	writeMod(t, cfg.Plugins.EnabledDir, "a.jar", time.Now())

	require.Equal(t, http.StatusOK, doRequest(t, gw, http.MethodPost, "/api/mods/disable", ModRequest{Filename: "a.jar"}, "").Code)

	rec := doRequest(t, gw, http.MethodGet, "/metrics", nil, "")
	assert.Contains(t, rec.Body.String(), `warden_plugins_artifacts{location="disabled"} 1`)
}
