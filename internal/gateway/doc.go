// Package gateway wires the warden server components together.
//
// # Overview
//
// The gateway owns the SQLite store, the systemd controller, the recovery
// supervisor, the mod registry, and the agent bridge. It serves everything
// over one HTTP server, either a plain TCP listener or a tailnet listener
// provided by tsnet.
//
// # HTTP API
//
// Health (never authenticated):
//
//   - GET /health - Liveness check
//   - GET /health/ready - 200 while an agent is connected, 503 otherwise
//
// Server:
//
//   - POST /api/server/recover - Run one recovery (409 if one is running)
//   - GET /api/server/recoveries - Recent recovery runs, newest first
//   - GET /api/server/recoveries/{id} - One recovery run
//   - GET /api/server/status - Unit state, agent connection, last serverStats
//
// Mods:
//
//   - GET /api/mods - Enabled and disabled mod listing
//   - POST /api/mods/enable, /api/mods/disable, /api/mods/delete
//
// Agent commands:
//
//   - POST /api/mod/send_message - Broadcast chat to players
//   - POST /api/mod/set_day - Set world time to day
//   - GET /api/mod/list_players - Ask the agent for the player list
//   - GET /api/mod/events - Server-sent events for every agent message
//     (?event=serverStats for one name)
//
// Identity (only when auth.jwt_secret is set):
//
//   - GET, POST /api/principals
//   - POST /api/principals/{id}/revoke
//   - POST /api/principals/{id}/token
//   - GET /api/audit (filters: action, actor, limit)
//
// With a JWT secret, read routes need any approved principal and mutating
// routes need the admin or owner role. Without one, the API is open and
// audit entries are attributed to "anonymous".
//
// # Agent Websocket
//
// The in-game agent connects to agent.path (default /ws/minecraft). At most
// one agent is live; a new connection closes the previous one. Commands are
// JSON text frames:
//
//	{"type": "sendMessage", "content": "hello", "request_id": "..."}
//
// Frames from the agent are published to the event stream.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//
//	cancel()
//	gw.Shutdown(shutdownCtx)
//
// # Key Files
//
//   - gateway.go: Gateway struct, listeners, Run/Shutdown, health
//   - api.go: Dashboard API handlers
//   - websocket.go: Agent transport
package gateway
