// Package playback keeps exactly one synthesized speech stream audible at a
// time and gates audio output behind a user gesture.
package playback

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/koscakluka/ema-sync/core/audio"
	"github.com/koscakluka/ema-sync/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrPlayback is wrapped by every playback failure surfaced to callbacks.
var ErrPlayback = errors.New("audio playback failed")

// retiredCapacity bounds how many superseded or finished stream ids are
// remembered for staleness checks.
const retiredCapacity = 64

type State string

const (
	StateIdle     State = "idle"
	StateActive   State = "active"
	StateDraining State = "draining"
)

// StreamError is a playback failure, either reported by the producer or
// raised by the sink.
type StreamError struct {
	StreamID string
	Message  string
	Err      error
}

func (e *StreamError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StreamID == "" {
		return fmt.Sprintf("%s: %s", ErrPlayback, msg)
	}
	return fmt.Sprintf("%s: stream %s: %s", ErrPlayback, e.StreamID, msg)
}

func (e *StreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrPlayback, e.Err}
	}
	return []error{ErrPlayback}
}

type Multiplexer struct {
	mu sync.Mutex

	output *output

	active      string
	activeBytes int
	activePeak  float64
	activeSpan  trace.Span

	// muted keeps tracking streams but stops forwarding audio to the sink.
	muted bool

	retired    []string
	retiredSet map[string]struct{}

	onSpeakingChanged func(bool)
	onError           func(error)
	onInterrupt       func(from, to string)
	onLevel           func(level float64)

	logger *slog.Logger
}

type MultiplexerOption func(*Multiplexer)

// WithSpeakingCallback is called when a stream becomes audible (true) and
// when no stream is active any more (false).
func WithSpeakingCallback(callback func(isSpeaking bool)) MultiplexerOption {
	return func(m *Multiplexer) {
		if callback != nil {
			m.onSpeakingChanged = callback
		}
	}
}

// WithErrorCallback is called with a [*StreamError] for every playback
// failure.
func WithErrorCallback(callback func(error)) MultiplexerOption {
	return func(m *Multiplexer) {
		if callback != nil {
			m.onError = callback
		}
	}
}

// WithInterruptCallback is called after the sink was cleared because stream
// to pre-empted stream from.
func WithInterruptCallback(callback func(from, to string)) MultiplexerOption {
	return func(m *Multiplexer) {
		if callback != nil {
			m.onInterrupt = callback
		}
	}
}

// WithLevelCallback is called with the RMS level of every chunk forwarded to
// the sink, and with zero when speech stops. Muted chunks are not reported.
func WithLevelCallback(callback func(level float64)) MultiplexerOption {
	return func(m *Multiplexer) {
		if callback != nil {
			m.onLevel = callback
		}
	}
}

func WithLogger(l *slog.Logger) MultiplexerOption {
	return func(m *Multiplexer) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewMultiplexer(sink AudioOutput, opts ...MultiplexerOption) *Multiplexer {
	m := &Multiplexer{
		output:            newOutput(sink),
		retiredSet:        map[string]struct{}{},
		onSpeakingChanged: func(bool) {},
		onError:           func(error) {},
		onInterrupt:       func(string, string) {},
		onLevel:           func(float64) {},
		logger:            logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HandleChunk forwards one chunk to the sink. A chunk for a stream other
// than the active one first clears the sink, then makes its stream active.
// Malformed chunks and chunks of retired streams are dropped.
func (m *Multiplexer) HandleChunk(chunk events.AudioChunk) {
	if chunk.StreamID == "" || chunk.ChunkBase64 == "" {
		m.logger.Warn("dropping malformed audio chunk", "stream_id", chunk.StreamID)
		return
	}

	pcm, err := base64.StdEncoding.DecodeString(chunk.ChunkBase64)
	if err != nil {
		m.logger.Warn("dropping undecodable audio chunk", "stream_id", chunk.StreamID, "error", err)
		return
	}

	var (
		interrupted     string
		startedSpeaking bool
		sendErr         error
		level           = -1.0
	)

	m.mu.Lock()
	if m.isRetiredLocked(chunk.StreamID) {
		m.mu.Unlock()
		m.logger.Debug("dropping chunk of stale stream", "stream_id", chunk.StreamID)
		return
	}

	if m.active != chunk.StreamID {
		if m.active != "" {
			interrupted = m.active
			m.output.Clear()
			m.endActiveLocked("interrupted", nil)
		} else {
			startedSpeaking = true
		}
		m.startActiveLocked(chunk.StreamID)
	}

	if m.muted {
		m.activeBytes += len(pcm)
	} else if err := m.output.SendAudio(pcm); err != nil {
		sendErr = &StreamError{StreamID: chunk.StreamID, Message: "failed to send audio to output", Err: err}
		m.endActiveLocked("failed", sendErr)
	} else {
		level = audio.Level(pcm)
		m.activeBytes += len(pcm)
		m.activePeak = max(m.activePeak, level)
	}
	m.mu.Unlock()

	if interrupted != "" {
		m.logger.Debug("interrupted audio stream", "from", interrupted, "to", chunk.StreamID)
		m.onInterrupt(interrupted, chunk.StreamID)
	}
	if startedSpeaking {
		m.onSpeakingChanged(true)
	}
	if level >= 0 {
		m.onLevel(level)
	}
	if sendErr != nil {
		m.logger.Error("audio output failed", "stream_id", chunk.StreamID, "error", sendErr)
		m.stoppedSpeaking()
		m.onError(sendErr)
	}
}

// HandleComplete returns to idle if complete refers to the active stream.
// Completions for any other stream are stale and ignored.
func (m *Multiplexer) HandleComplete(complete events.AudioComplete) {
	m.mu.Lock()
	if complete.StreamID == "" || complete.StreamID != m.active {
		m.mu.Unlock()
		m.logger.Debug("ignoring stale audio completion", "stream_id", complete.StreamID)
		return
	}

	duration := audio.Duration(m.activeBytes, m.output.EncodingInfo())
	m.endActiveLocked("completed", nil)
	m.mu.Unlock()

	m.logger.Debug("audio stream completed", "stream_id", complete.StreamID, "duration", duration)
	m.stoppedSpeaking()
}

// HandleError surfaces a producer-side failure and returns to idle. The
// multiplexer stays usable for the next stream.
func (m *Multiplexer) HandleError(audioErr events.AudioError) {
	err := &StreamError{StreamID: audioErr.StreamID, Message: audioErr.Message}

	m.mu.Lock()
	wasActive := m.active != ""
	if wasActive {
		m.endActiveLocked("failed", err)
	}
	m.mu.Unlock()

	m.logger.Error("audio stream error", "stream_id", audioErr.StreamID, "error", err)
	if wasActive {
		m.stoppedSpeaking()
	}
	m.onError(err)
}

// Stop silences the sink and retires the active stream, if any.
func (m *Multiplexer) Stop() {
	m.mu.Lock()
	wasActive := m.active != ""
	m.output.Clear()
	if wasActive {
		m.endActiveLocked("stopped", nil)
	}
	m.mu.Unlock()

	if wasActive {
		m.stoppedSpeaking()
	}
}

// SetMuted silences or restores the sink. While muted, streams are still
// tracked, switched and completed as usual but their audio is discarded.
// Muting clears whatever the sink has buffered.
func (m *Multiplexer) SetMuted(muted bool) {
	m.mu.Lock()
	if m.muted == muted {
		m.mu.Unlock()
		return
	}
	m.muted = muted
	wasActive := m.active != ""
	if muted {
		m.output.Clear()
	}
	m.mu.Unlock()

	m.logger.Debug("audio mute changed", "muted", muted)
	if muted && wasActive {
		m.onLevel(0)
	}
}

func (m *Multiplexer) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// State returns the multiplexer state and the active stream id, if any.
func (m *Multiplexer) State() (State, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == "" {
		return StateIdle, ""
	}
	return StateActive, m.active
}

// StreamState reports the state of a single stream. Streams that were
// superseded or finished are draining; unknown streams are idle.
func (m *Multiplexer) StreamState(streamID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case streamID != "" && streamID == m.active:
		return StateActive
	case m.isRetiredLocked(streamID):
		return StateDraining
	}
	return StateIdle
}

// Unlock starts sinks that wait for a user gesture.
func (m *Multiplexer) Unlock() error {
	return m.output.Unlock()
}

func (m *Multiplexer) stoppedSpeaking() {
	m.onSpeakingChanged(false)
	m.onLevel(0)
}

func (m *Multiplexer) startActiveLocked(streamID string) {
	m.active = streamID
	m.activeBytes = 0
	m.activePeak = 0
	_, m.activeSpan = tracer.Start(context.Background(), "play audio stream",
		trace.WithAttributes(attribute.String("audio_stream.id", streamID)))
}

func (m *Multiplexer) endActiveLocked(outcome string, err error) {
	if m.active == "" {
		return
	}

	if m.activeSpan != nil {
		m.activeSpan.SetAttributes(
			attribute.String("audio_stream.outcome", outcome),
			attribute.Int("audio_stream.bytes", m.activeBytes),
			attribute.Float64("audio_stream.peak_level", m.activePeak),
		)
		if err != nil {
			m.activeSpan.RecordError(err)
			m.activeSpan.SetStatus(codes.Error, err.Error())
		}
		m.activeSpan.End()
		m.activeSpan = nil
	}

	m.retireLocked(m.active)
	m.active = ""
	m.activeBytes = 0
	m.activePeak = 0
}

func (m *Multiplexer) retireLocked(streamID string) {
	if _, ok := m.retiredSet[streamID]; ok {
		return
	}

	if len(m.retired) == retiredCapacity {
		delete(m.retiredSet, m.retired[0])
		m.retired = m.retired[1:]
	}
	m.retired = append(m.retired, streamID)
	m.retiredSet[streamID] = struct{}{}
}

func (m *Multiplexer) isRetiredLocked(streamID string) bool {
	_, ok := m.retiredSet[streamID]
	return ok
}
