// ABOUTME: Websocket endpoint for the in-game agent
// ABOUTME: Adapts a websocket connection into a bridge transport and pumps inbound messages

package gateway

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// agentTokenHeader carries the shared agent secret when a query parameter is unsuitable.
const agentTokenHeader = "X-Warden-Agent-Token"

// wsTransport is the bridge.Transport for one websocket connection.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// Send writes data as a single text frame. A write that outlives the
// timeout closes the connection.
func (t *wsTransport) Send(ctx context.Context, data []byte) error {
	if t.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.writeTimeout)
		defer cancel()
	}
	return t.conn.Write(ctx, websocket.MessageText, data)
}

// Close performs the closing handshake with reason.
func (t *wsTransport) Close(reason string) error {
	return t.conn.Close(websocket.StatusNormalClosure, reason)
}

// agentAuthorized checks the optional shared token.
func (g *Gateway) agentAuthorized(r *http.Request) bool {
	want := g.config.Agent.Token
	if want == "" {
		return true
	}
	got := r.URL.Query().Get("token")
	if got == "" {
		got = r.Header.Get(agentTokenHeader)
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// handleAgentWS upgrades the request and holds the connection until either
// side closes it. The newest connection always wins the bridge slot.
func (g *Gateway) handleAgentWS(w http.ResponseWriter, r *http.Request) {
	if !g.agentAuthorized(r) {
		g.logger.Warn("rejected agent connection", "remote", r.RemoteAddr, "reason", "bad_agent_token")
		g.sendJSONError(w, http.StatusUnauthorized, "invalid agent token")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(g.config.Agent.ReadLimit)

	t := &wsTransport{conn: conn, writeTimeout: g.config.Agent.WriteTimeout}
	g.bridge.OnAgentConnect(t)
	defer func() {
		g.bridge.OnAgentDisconnect(t)
		_ = conn.CloseNow()
	}()

	g.logger.Info("agent websocket opened", "remote", r.RemoteAddr)
	g.readAgent(r.Context(), t)
}

// readAgent forwards text frames to the bridge until the connection ends.
func (g *Gateway) readAgent(ctx context.Context, t *wsTransport) {
	for {
		typ, data, err := t.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				g.logger.Info("agent websocket closed", "status", status)
			case errors.Is(err, context.Canceled):
				g.logger.Debug("agent websocket context canceled")
			default:
				g.logger.Warn("agent websocket read failed", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			g.logger.Debug("ignoring non-text agent frame", "type", typ, "bytes", len(data))
			continue
		}
		g.bridge.OnAgentMessage(t, data)
	}
}
