// Package bridge holds the single live connection from the in-game agent and
// dispatches dashboard commands over it.
//
// # Connection Slot
//
// At most one agent transport is registered at any time. A new connection
// replaces the previous one, and the superseded transport is closed. A
// disconnect only clears the slot if it comes from the transport that is
// currently registered, so a late disconnect from an old socket never
// unregisters a newer one.
//
// # Dispatch
//
// Dispatch is fire-and-forget. The slot lock covers reading the current
// transport; the write itself happens outside the lock. There is no retry and
// no correlation of agent replies. Each command carries a request_id used only
// for log correlation.
//
// # Wire Format
//
// Dashboard to agent:
//
//	{"type": "sendMessage", "content": "hello", "request_id": "..."}
//	{"type": "setDay", "request_id": "..."}
//	{"type": "listPlayers", "request_id": "..."}
//
// Agent to dashboard messages are arbitrary JSON objects. {"event":
// "reconnected"} is logged as a notice. A serverStats report
//
//	{"event": "serverStats", "players": 3, "time": 6000, "tps": 20.0}
//
// replaces the stats snapshot returned by Stats until the connection goes
// away. Every decoded message is handed to Config.OnEvent; payloads without
// an "event" field are named "message".
package bridge
