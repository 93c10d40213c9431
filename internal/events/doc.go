// Package events fans out messages pushed by the in-game agent.
//
// # Overview
//
// The agent reports periodic server statistics and other notifications over
// its websocket. The bridge decodes each message into an Event and the
// gateway publishes it here; dashboard clients follow the stream over
// server-sent events at GET /api/mod/events.
//
// # Subscriptions
//
//	ch, subID := broadcaster.Subscribe(ctx, "serverStats") // one event name
//	ch, subID := broadcaster.Subscribe(ctx, events.All)    // everything
//
// Each subscriber has a 64-event buffer. A full buffer drops events for
// that subscriber only; publishers never block.
package events
