package engine

import (
	"log/slog"

	"github.com/koscakluka/ema-sync/core/bubbles"
	"github.com/koscakluka/ema-sync/core/events"
	"github.com/koscakluka/ema-sync/core/playback"
	"github.com/koscakluka/ema-sync/core/presence"
	"github.com/koscakluka/ema-sync/core/send"
	"github.com/koscakluka/ema-sync/core/timeline"
	"github.com/koscakluka/ema-sync/internal/clock"
)

type EngineOption func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(config Config) EngineOption {
	return func(e *Engine) { e.config = config }
}

// Transport carries outbound records to the remote session. If it also
// implements io.Closer it is closed on teardown.
type Transport interface {
	send.Transport
}

func WithTransport(transport Transport) EngineOption {
	return func(e *Engine) { e.transport = transport }
}

type AudioOutput interface {
	playback.AudioOutput
}

// WithAudioOutput sets the speech sink. Sinks implementing
// [playback.Unlocker] are started on the first user gesture.
func WithAudioOutput(output AudioOutput) EngineOption {
	return func(e *Engine) { e.audioOutput = output }
}

func WithPresence(counter presence.Counter) EngineOption {
	return func(e *Engine) { e.presence = counter }
}

func WithClock(c clock.Clock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
			e.loggerOverride = l
		}
	}
}

// WithSessionID names the local session. It only matters when the
// configuration is session scoped.
func WithSessionID(id string) EngineOption {
	return func(e *Engine) {
		if id != "" {
			e.sessionID = id
		}
	}
}

type RunOptions struct {
	onMessages        func(messages []timeline.Message)
	onAgentReply      func(message timeline.Message)
	onBubbles         func(bubbles []bubbles.Bubble)
	onSpeakingChanged func(isSpeaking bool)
	onLevelChanged    func(level float64)
	onPendingChanged  func(isPending bool)
	onError           func(err error)
	onEvent           func(event events.Event)
}

type RunOption func(*RunOptions)

// WithMessagesCallback registers a callback for every new projection of the
// visible timeline.
func WithMessagesCallback(callback func(messages []timeline.Message)) RunOption {
	return func(o *RunOptions) { o.onMessages = callback }
}

// WithAgentReplyCallback registers a callback called once per agent message,
// when it first becomes the latest one.
func WithAgentReplyCallback(callback func(message timeline.Message)) RunOption {
	return func(o *RunOptions) { o.onAgentReply = callback }
}

func WithBubblesCallback(callback func(bubbles []bubbles.Bubble)) RunOption {
	return func(o *RunOptions) { o.onBubbles = callback }
}

func WithSpeakingCallback(callback func(isSpeaking bool)) RunOption {
	return func(o *RunOptions) { o.onSpeakingChanged = callback }
}

// WithLevelCallback registers a callback for the loudness of the audible
// speech, suitable for driving a speaking animation.
func WithLevelCallback(callback func(level float64)) RunOption {
	return func(o *RunOptions) { o.onLevelChanged = callback }
}

// WithPendingCallback registers a callback for when the engine starts and
// stops waiting for an agent reply.
func WithPendingCallback(callback func(isPending bool)) RunOption {
	return func(o *RunOptions) { o.onPendingChanged = callback }
}

// WithErrorCallback registers a callback for recoverable errors: playback
// failures, missing agent replies and failed sends.
func WithErrorCallback(callback func(err error)) RunOption {
	return func(o *RunOptions) { o.onError = callback }
}

// WithEventCallback registers a callback receiving every notification as a
// typed event, before the specific callbacks run.
func WithEventCallback(callback func(event events.Event)) RunOption {
	return func(o *RunOptions) { o.onEvent = callback }
}
