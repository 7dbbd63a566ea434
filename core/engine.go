// Package engine reconciles the inbound event and audio streams of a remote
// agent session into a stable message timeline, fading bubbles and a single
// audible speech stream.
//
// All inbound deliveries are processed in arrival order on one goroutine
// started by [Engine.Run]. Notifications are emitted on a separate goroutine,
// in the order they were produced.
package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-sync/core/bubbles"
	"github.com/koscakluka/ema-sync/core/events"
	"github.com/koscakluka/ema-sync/core/eventstore"
	"github.com/koscakluka/ema-sync/core/playback"
	"github.com/koscakluka/ema-sync/core/presence"
	"github.com/koscakluka/ema-sync/core/send"
	"github.com/koscakluka/ema-sync/core/timeline"
	"github.com/koscakluka/ema-sync/internal/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrAlreadyRunning = errors.New("engine is already running")
	ErrClosed         = errors.New("engine is closed")
)

type Engine struct {
	config      Config
	transport   Transport
	audioOutput AudioOutput
	presence    presence.Counter
	clock       clock.Clock
	sessionID   string

	logger         *slog.Logger
	loggerOverride *slog.Logger

	store       *eventstore.Store
	multiplexer *playback.Multiplexer
	unlockGate  *playback.UnlockGate
	gateway     *send.Gateway

	queue    chan queueItem
	closeCh  chan struct{}
	done     chan struct{}
	notifier *notifier

	runOnce      sync.Once
	closeOnce    sync.Once
	teardownOnce sync.Once
	started      atomic.Bool
	speaking     atomic.Bool

	mu          sync.RWMutex
	messages    []timeline.Message
	bubbles     []bubbles.Bubble
	lastAgentID string
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		config:    DefaultConfig(),
		clock:     clock.New(),
		sessionID: uuid.NewString(),
		logger:    logger,
		queue:     make(chan queueItem, engineQueueCapacity),
		closeCh:   make(chan struct{}),
		done:      make(chan struct{}),
		notifier:  newNotifier(),
	}

	for _, opt := range opts {
		opt(e)
	}

	storeOpts := []eventstore.Option{
		eventstore.WithCapacity(e.config.StoreCapacity),
		eventstore.WithClock(e.clock),
		eventstore.WithLogger(e.loggerOverride),
	}
	if e.config.SessionScoped {
		storeOpts = append(storeOpts, eventstore.WithSessionScope(e.sessionID))
	}
	e.store = eventstore.New(storeOpts...)

	e.multiplexer = playback.NewMultiplexer(e.audioOutput,
		playback.WithSpeakingCallback(e.onSpeakingChanged),
		playback.WithErrorCallback(e.onPlaybackError),
		playback.WithInterruptCallback(e.onStreamInterrupted),
		playback.WithLevelCallback(e.onLevelChanged),
		playback.WithLogger(e.loggerOverride),
	)
	e.unlockGate = playback.NewUnlockGate(e.multiplexer.Unlock, e.loggerOverride)

	e.gateway = send.NewGateway(e.transport,
		send.WithEchoStore(echoStore{engine: e}),
		send.WithUnlockGate(e.unlockGate),
		send.WithUserCounter(e.presence),
		send.WithClock(e.clock),
		send.WithTimeout(e.config.PendingTimeout),
		send.WithPendingCallback(func(isPending bool) {
			e.notifier.post(PendingChanged{Base: e.base(KindPendingChanged), Pending: isPending})
		}),
		send.WithErrorCallback(e.surfaceError),
		send.WithLogger(e.loggerOverride),
	)

	return e
}

// Run processes deliveries until ctx is done or the engine is closed, then
// tears the engine down. It may be called once.
func (e *Engine) Run(ctx context.Context, opts ...RunOption) error {
	if e.isClosed() {
		return ErrClosed
	}

	first := false
	e.runOnce.Do(func() {
		first = true
		e.started.Store(true)
	})
	if !first {
		return ErrAlreadyRunning
	}
	defer close(e.done)
	defer e.closeOnce.Do(func() { close(e.closeCh) })

	runOptions := RunOptions{}
	for _, opt := range opts {
		opt(&runOptions)
	}

	stopNotifier := make(chan struct{})
	notifierDone := make(chan struct{})
	go func() {
		defer close(notifierDone)
		e.notifier.run(stopNotifier, newCallbackEventEmitter(runOptions))
	}()
	defer func() {
		close(stopNotifier)
		<-notifierDone
	}()

	ticker := e.clock.NewTicker(e.config.BubbleParams().Tick)
	defer ticker.Stop()
	defer e.teardown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.closeCh:
			return nil
		case item := <-e.queue:
			e.process(ctx, item)
		case <-ticker.C():
			e.refreshBubbles()
		}
	}
}

// Deliver queues one inbound envelope for processing. It matches the
// signature transports use to hand over frames.
func (e *Engine) Deliver(channel string, data []byte) {
	e.enqueue(queueItem{channel: channel, data: bytes.Clone(data), queuedAt: e.clock.Now()})
}

// Flush waits until everything delivered before the call has been processed
// and its notifications emitted.
func (e *Engine) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !e.enqueue(queueItem{flush: done}) {
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send dispatches text as a user message. It reports false when text is
// blank, the transport is disconnected, or the send failed.
func (e *Engine) Send(ctx context.Context, text string) bool {
	if e.isClosed() {
		return false
	}
	return e.gateway.Dispatch(ctx, text)
}

// Unlock starts audio output on the first user gesture of the session.
func (e *Engine) Unlock(gesture playback.Gesture) {
	e.unlockGate.TriggerOnce(gesture)
}

// SetMuted silences speech output without affecting stream tracking, so
// unmuting resumes with whatever stream is current.
func (e *Engine) SetMuted(muted bool) {
	e.multiplexer.SetMuted(muted)
}

func (e *Engine) Muted() bool {
	return e.multiplexer.Muted()
}

func (e *Engine) Messages() []timeline.Message {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.messages)
}

func (e *Engine) Bubbles() []bubbles.Bubble {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.bubbles)
}

func (e *Engine) Speaking() bool {
	return e.speaking.Load()
}

func (e *Engine) Pending() bool {
	_, pending := e.gateway.Pending()
	return pending
}

// Close stops the engine and waits for Run to return.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.closeCh)
	})

	if e.started.Load() {
		<-e.done
		return
	}
	e.teardown()
}

func (e *Engine) teardown() {
	e.teardownOnce.Do(func() {
		e.gateway.Close()
		e.multiplexer.Stop()

		if closer, ok := e.transport.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				e.logger.Warn("failed to close transport", "error", err)
			}
		}
	})
}

func (e *Engine) enqueue(item queueItem) bool {
	if e.isClosed() {
		return false
	}

	select {
	case <-e.closeCh:
		return false
	case e.queue <- item:
		return true
	}
}

func (e *Engine) isClosed() bool {
	select {
	case <-e.closeCh:
		return true
	default:
		return false
	}
}

func (e *Engine) process(ctx context.Context, item queueItem) {
	switch {
	case item.flush != nil:
		e.notifier.post(flushMarker{Base: e.base(""), done: item.flush})
		return
	case item.refresh:
		e.refreshTimeline()
		return
	}

	_, span := tracer.Start(ctx, "process delivery",
		trace.WithAttributes(attribute.String("delivery.channel", item.channel)))
	defer span.End()

	waited := e.clock.Now().Sub(item.queuedAt).Seconds()
	span.SetAttributes(attribute.Float64("delivery.queued_time", waited))
	queueWait.Record(ctx, waited)
	deliveredEnvelopes.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", item.channel)))

	var err error
	switch item.channel {
	case events.ChannelStore:
		e.ingest(item.data)
	case events.ChannelAudioChunk:
		var chunk events.AudioChunk
		if chunk, err = events.ParseAudioChunk(item.data); err == nil {
			e.multiplexer.HandleChunk(chunk)
		}
	case events.ChannelAudioComplete:
		var complete events.AudioComplete
		if complete, err = events.ParseAudioComplete(item.data); err == nil {
			e.multiplexer.HandleComplete(complete)
		}
	case events.ChannelAudioError:
		var audioErr events.AudioError
		if audioErr, err = events.ParseAudioError(item.data); err == nil {
			e.multiplexer.HandleError(audioErr)
		}
	default:
		e.logger.Debug("ignoring delivery on unknown channel", "channel", item.channel)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("dropping malformed delivery", "channel", item.channel, "error", err)
	}
}

func (e *Engine) ingest(data []byte) {
	result := e.store.IngestJSON(data)
	if !result.Accepted {
		return
	}

	e.gateway.Observe(result.Event)
	e.refreshTimeline()
}

func (e *Engine) refreshTimeline() {
	snapshot := e.store.Snapshot()
	messages := timeline.Project(snapshot, e.config.WindowSize)
	latest, hasAgent := timeline.LatestAgent(snapshot)

	e.mu.Lock()
	e.messages = messages
	announce := hasAgent && latest.ID != e.lastAgentID
	if announce {
		e.lastAgentID = latest.ID
	}
	e.mu.Unlock()

	e.notifier.post(MessagesUpdated{Base: e.base(KindMessagesUpdated), Messages: slices.Clone(messages)})
	if announce {
		e.notifier.post(AgentReplied{Base: e.base(KindAgentReplied), Message: latest})
	}
}

// refreshBubbles runs on the bubble tick only, never on event arrival.
func (e *Engine) refreshBubbles() {
	e.mu.Lock()
	visible := bubbles.Visible(e.messages, e.clock.Now(), e.config.BubbleParams())
	changed := !sameBubbles(e.bubbles, visible)
	if changed {
		e.bubbles = visible
	}
	e.mu.Unlock()

	if changed {
		e.notifier.post(BubblesUpdated{Base: e.base(KindBubblesUpdated), Bubbles: slices.Clone(visible)})
	}
}

func (e *Engine) onSpeakingChanged(isSpeaking bool) {
	e.speaking.Store(isSpeaking)
	e.notifier.post(SpeakingChanged{Base: e.base(KindSpeakingChanged), Speaking: isSpeaking})
}

func (e *Engine) onLevelChanged(level float64) {
	e.notifier.post(LevelChanged{Base: e.base(KindLevelChanged), Level: level})
}

func (e *Engine) onStreamInterrupted(from, to string) {
	e.notifier.post(StreamInterrupted{Base: e.base(KindStreamInterrupted), From: from, To: to})
}

// onPlaybackError also gives up on the pending reply, since the reply's
// audio is what failed.
func (e *Engine) onPlaybackError(err error) {
	e.gateway.Fail()
	e.surfaceError(err)
}

func (e *Engine) surfaceError(err error) {
	e.notifier.post(SessionError{Base: e.base(KindSessionError), Err: err})
}

func (e *Engine) base(kind events.Kind) events.Base {
	return events.NewBaseAt(kind, e.clock.Now())
}

func sameBubbles(a, b []bubbles.Bubble) bool {
	return slices.EqualFunc(a, b, func(x, y bubbles.Bubble) bool {
		return x.MessageID == y.MessageID && x.Opacity == y.Opacity
	})
}

// echoStore inserts optimistic echoes and schedules a re-projection so they
// show up without waiting for the next inbound event.
type echoStore struct {
	engine *Engine
}

func (s echoStore) InsertLocal(event events.StoreEvent) eventstore.Result {
	result := s.engine.store.InsertLocal(event)
	if result.Accepted {
		s.engine.enqueue(queueItem{refresh: true})
	}
	return result
}
