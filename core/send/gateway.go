// Package send dispatches user messages to the remote session and watches for
// the agent's reply.
package send

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-sync/core/events"
	"github.com/koscakluka/ema-sync/core/eventstore"
	"github.com/koscakluka/ema-sync/core/playback"
	"github.com/koscakluka/ema-sync/internal/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultTimeout = 30 * time.Second

	localIDPrefix = "local-"
)

var (
	ErrNoResponse = errors.New("no response from agent")
	ErrSendFailed = errors.New("failed to send message")
)

// Transport delivers outbound records to the remote session.
type Transport interface {
	Connected() bool
	Dispatch(ctx context.Context, said events.Said) error
}

// EchoStore receives the optimistic echo of a sent message.
type EchoStore interface {
	InsertLocal(event events.StoreEvent) eventstore.Result
}

type Gate interface {
	TriggerOnce(gesture playback.Gesture)
}

type UserCounter interface {
	ConnectedUsers() int
}

// PendingSend is a dispatched message still waiting for an agent reply.
type PendingSend struct {
	LocalID  string
	Text     string
	SentAt   time.Time
	Deadline time.Time
}

type Gateway struct {
	mu sync.Mutex

	transport Transport
	store     EchoStore
	gate      Gate
	users     UserCounter
	clock     clock.Clock
	timeout   time.Duration

	pending    *PendingSend
	timer      clock.Timer
	generation uint64
	closed     bool

	onPendingChanged func(bool)
	onError          func(error)

	logger *slog.Logger
}

type Option func(*Gateway)

func WithEchoStore(store EchoStore) Option {
	return func(g *Gateway) { g.store = store }
}

// WithUnlockGate makes every send count as a button-press gesture.
func WithUnlockGate(gate Gate) Option {
	return func(g *Gateway) { g.gate = gate }
}

func WithUserCounter(users UserCounter) Option {
	return func(g *Gateway) { g.users = users }
}

func WithClock(c clock.Clock) Option {
	return func(g *Gateway) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithTimeout sets how long to wait for the agent before surfacing
// [ErrNoResponse]. Non-positive values keep the default.
func WithTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

func WithPendingCallback(callback func(isPending bool)) Option {
	return func(g *Gateway) {
		if callback != nil {
			g.onPendingChanged = callback
		}
	}
}

func WithErrorCallback(callback func(error)) Option {
	return func(g *Gateway) {
		if callback != nil {
			g.onError = callback
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewGateway(transport Transport, opts ...Option) *Gateway {
	g := &Gateway{
		transport:        transport,
		clock:            clock.New(),
		timeout:          DefaultTimeout,
		onPendingChanged: func(bool) {},
		onError:          func(error) {},
		logger:           logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dispatch sends text to the remote session. It returns false without side
// effects when text is blank or the transport is not connected.
//
// On send the user's message is echoed into the store right away, audio is
// unlocked, and a reply deadline is armed. A previous pending send is
// superseded.
func (g *Gateway) Dispatch(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if g.transport == nil || !g.transport.Connected() {
		g.logger.Debug("not sending message, transport disconnected")
		return false
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false
	}
	g.mu.Unlock()

	ctx, span := tracer.Start(ctx, "dispatch user message")
	defer span.End()

	now := g.clock.Now()
	localID := localIDPrefix + uuid.NewString()
	span.SetAttributes(attribute.String("message.local_id", localID))

	if g.store != nil {
		if result := g.store.InsertLocal(events.StoreEvent{
			ID:        localID,
			Kind:      events.StoreKindUserSaid,
			Action:    events.ActionSaid,
			Content:   text,
			Timestamp: now.UnixMilli(),
		}); !result.Accepted {
			g.logger.Warn("local echo was not stored", "local_id", localID, "reason", result.Reason, "error", result.Err)
		}
	}

	if g.gate != nil {
		g.gate.TriggerOnce(playback.GestureButtonPress)
	}

	wasPending := g.arm(PendingSend{
		LocalID:  localID,
		Text:     text,
		SentAt:   now,
		Deadline: now.Add(g.timeout),
	})
	if !wasPending {
		g.onPendingChanged(true)
	}

	connectedUsers := 0
	if g.users != nil {
		connectedUsers = g.users.ConnectedUsers()
	}

	if err := g.transport.Dispatch(ctx, events.NewUserSaid(text, connectedUsers, localID)); err != nil {
		err = fmt.Errorf("%w: %w", ErrSendFailed, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Error("failed to dispatch message", "local_id", localID, "error", err)

		if g.clear(localID) {
			g.onPendingChanged(false)
		}
		g.onError(err)
		return false
	}

	g.logger.Debug("dispatched message", "local_id", localID, "connected_users", connectedUsers)
	return true
}

// Observe resolves the pending send when event is an agent reply. Callers
// pass each newly accepted event once, in arrival order, so any reply seen
// while a send is pending arrived after it. Event timestamps are not
// compared: they come from the remote clock, possibly in whole seconds.
func (g *Gateway) Observe(event events.StoreEvent) bool {
	if event.Kind != events.StoreKindAgentSays || event.Action != events.ActionSays {
		return false
	}

	g.mu.Lock()
	if g.pending == nil {
		g.mu.Unlock()
		return false
	}
	localID := g.pending.LocalID
	g.disarmLocked()
	g.mu.Unlock()

	g.logger.Debug("agent replied", "local_id", localID, "event_id", event.ID)
	g.onPendingChanged(false)
	return true
}

// Fail drops the pending send without reporting a timeout. The caller is
// expected to have surfaced the underlying failure already.
func (g *Gateway) Fail() {
	g.mu.Lock()
	wasPending := g.pending != nil
	g.disarmLocked()
	g.mu.Unlock()

	if wasPending {
		g.onPendingChanged(false)
	}
}

// Close cancels the pending deadline. Late timer fires are ignored.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
	g.disarmLocked()
}

func (g *Gateway) Pending() (PendingSend, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil {
		return PendingSend{}, false
	}
	return *g.pending, true
}

func (g *Gateway) arm(pending PendingSend) (wasPending bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	wasPending = g.pending != nil
	if wasPending {
		g.logger.Debug("superseding pending message", "local_id", g.pending.LocalID, "by", pending.LocalID)
	}
	g.disarmLocked()

	generation := g.generation
	g.pending = &pending
	g.timer = g.clock.AfterFunc(g.timeout, func() { g.expire(generation) })
	return wasPending
}

// clear drops the pending send if it is still the one identified by localID.
func (g *Gateway) clear(localID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil || g.pending.LocalID != localID {
		return false
	}
	g.disarmLocked()
	return true
}

func (g *Gateway) expire(generation uint64) {
	g.mu.Lock()
	if g.closed || g.pending == nil || generation != g.generation {
		g.mu.Unlock()
		return
	}
	pending := *g.pending
	g.pending = nil
	g.timer = nil
	g.generation++
	g.mu.Unlock()

	err := fmt.Errorf("%w within %s", ErrNoResponse, g.timeout)
	_, span := tracer.Start(context.Background(), "await agent reply",
		trace.WithTimestamp(pending.SentAt),
		trace.WithAttributes(attribute.String("message.local_id", pending.LocalID)))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()

	g.logger.Warn("agent did not reply", "local_id", pending.LocalID, "timeout", g.timeout)
	g.onPendingChanged(false)
	g.onError(err)
}

func (g *Gateway) disarmLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.pending = nil
	g.generation++
}
