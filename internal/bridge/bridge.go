// ABOUTME: Single-slot registry for the in-game agent connection
// ABOUTME: Registers, supersedes, and clears the transport and dispatches commands over it

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/warden/internal/events"
)

// Errors returned by Dispatch and the command helpers
var (
	ErrNotConnected   = errors.New("agent not connected")
	ErrSendFailure    = errors.New("failed to send to agent")
	ErrEmptyContent   = errors.New("message content is required")
	ErrUnknownCommand = errors.New("unknown command type")
)

// Transport is one live connection to the agent.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	Close(reason string) error
}

// Observer is notified of connection changes and dispatch outcomes.
type Observer interface {
	AgentConnected(connected bool)
	CommandDispatched(msgType MessageType, err error)
}

// Config contains configuration for a Bridge.
type Config struct {
	Logger   *slog.Logger
	Observer Observer
	Now      func() time.Time

	// OnEvent receives every decoded agent message. Called synchronously
	// from the agent read loop.
	OnEvent func(*events.Event)
}

// Bridge owns the agent connection slot.
type Bridge struct {
	mu      sync.Mutex
	current Transport
	since   time.Time
	stats   *ServerStats

	observer Observer
	onEvent  func(*events.Event)
	now      func() time.Time
	logger   *slog.Logger
}

// New creates an empty Bridge.
func New(cfg Config) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Bridge{
		observer: cfg.Observer,
		onEvent:  cfg.OnEvent,
		now:      now,
		logger:   logger.With("component", "bridge"),
	}
}

// OnAgentConnect registers t as the live connection. Any previously
// registered transport is closed after the swap.
func (b *Bridge) OnAgentConnect(t Transport) {
	b.mu.Lock()
	prev := b.current
	b.current = t
	b.since = b.now()
	b.stats = nil
	b.mu.Unlock()

	if prev != nil && prev != t {
		if err := prev.Close("superseded by new agent connection"); err != nil {
			b.logger.Debug("closing superseded transport", "error", err)
		}
		b.logger.Info("agent connection superseded")
	}

	b.logger.Info("=== AGENT CONNECTED ===")
	if b.observer != nil {
		b.observer.AgentConnected(true)
	}
}

// OnAgentDisconnect clears the slot if t is still the registered transport.
// It reports whether the slot was cleared.
func (b *Bridge) OnAgentDisconnect(t Transport) bool {
	b.mu.Lock()
	cleared := b.current != nil && b.current == t
	if cleared {
		b.current = nil
		b.since = time.Time{}
		b.stats = nil
	}
	b.mu.Unlock()

	if !cleared {
		b.logger.Debug("ignoring disconnect from stale transport")
		return false
	}

	b.logger.Info("=== AGENT DISCONNECTED ===")
	if b.observer != nil {
		b.observer.AgentConnected(false)
	}
	return true
}

// OnAgentMessage handles one inbound payload read from t. Payloads from a
// transport that is no longer registered are dropped. Nothing the agent
// sends can fail the connection.
func (b *Bridge) OnAgentMessage(t Transport, raw []byte) {
	b.mu.Lock()
	current := b.current != nil && b.current == t
	b.mu.Unlock()
	if !current {
		b.logger.Debug("ignoring message from stale transport", "bytes", len(raw))
		return
	}

	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		b.logger.Warn("undecodable agent message", "error", err, "bytes", len(raw))
		return
	}

	at := b.now()
	name, _ := msg["event"].(string)
	switch name {
	case EventReconnected:
		b.logger.Info("agent reported reconnect")
	case EventServerStats:
		st := parseServerStats(msg, at)
		b.mu.Lock()
		if b.current == t {
			b.stats = &st
		}
		b.mu.Unlock()
		b.logger.Debug("server stats", "players", st.Players, "tps", st.TPS)
	case "":
		name = EventMessage
		b.logger.Debug("agent message", "payload", msg)
	default:
		b.logger.Debug("agent event", "event", name)
	}

	if b.onEvent != nil {
		b.onEvent(events.New(name, msg, at))
	}
}

// Stats returns the latest serverStats report from the current connection.
func (b *Bridge) Stats() (ServerStats, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stats == nil {
		return ServerStats{}, false
	}
	return *b.stats, true
}

// Connected reports whether an agent transport is registered.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current != nil
}

// ConnectedSince returns when the current transport registered.
func (b *Bridge) ConnectedSince() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.since, b.current != nil
}

// Dispatch writes msg to the current transport. It does not wait for a reply.
func (b *Bridge) Dispatch(ctx context.Context, msg CommandMessage) error {
	err := b.dispatch(ctx, msg)
	if b.observer != nil {
		b.observer.CommandDispatched(msg.Type, err)
	}
	return err
}

func (b *Bridge) dispatch(ctx context.Context, msg CommandMessage) error {
	if !msg.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Type)
	}
	if msg.RequestID == "" {
		msg.RequestID = uuid.New().String()
	}

	b.mu.Lock()
	t := b.current
	b.mu.Unlock()

	if t == nil {
		b.logger.Debug("dispatch without agent", "type", msg.Type, "request_id", msg.RequestID)
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}

	if err := t.Send(ctx, data); err != nil {
		b.logger.Warn("dispatch failed", "type", msg.Type, "request_id", msg.RequestID, "error", err)
		return fmt.Errorf("%w: %w", ErrSendFailure, err)
	}

	b.logger.Debug("command dispatched", "type", msg.Type, "request_id", msg.RequestID)
	return nil
}

// SendChatMessage broadcasts text to players in game.
func (b *Bridge) SendChatMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyContent
	}
	return b.Dispatch(ctx, CommandMessage{Type: TypeSendMessage, Content: text})
}

// SetDay advances the world time to day.
func (b *Bridge) SetDay(ctx context.Context) error {
	return b.Dispatch(ctx, CommandMessage{Type: TypeSetDay})
}

// ListPlayers asks the agent to report connected players.
func (b *Bridge) ListPlayers(ctx context.Context) error {
	return b.Dispatch(ctx, CommandMessage{Type: TypeListPlayers})
}

// Close drops the current transport, if any, and closes it with reason.
// Used at shutdown; later dispatches report ErrNotConnected.
func (b *Bridge) Close(reason string) {
	b.mu.Lock()
	t := b.current
	b.current = nil
	b.since = time.Time{}
	b.stats = nil
	b.mu.Unlock()

	if t == nil {
		return
	}
	if err := t.Close(reason); err != nil {
		b.logger.Debug("closing agent transport", "error", err)
	}
	if b.observer != nil {
		b.observer.AgentConnected(false)
	}
}
