package engine

import (
	"github.com/koscakluka/ema-sync/core/bubbles"
	"github.com/koscakluka/ema-sync/core/events"
	"github.com/koscakluka/ema-sync/core/timeline"
)

const (
	// KindMessagesUpdated identifies a new projection of the visible timeline.
	KindMessagesUpdated events.Kind = "timeline.messages_updated"
	// KindAgentReplied identifies a newly arrived agent message, announced once.
	KindAgentReplied events.Kind = "timeline.agent_replied"
	// KindBubblesUpdated identifies a change in the floating bubble set.
	KindBubblesUpdated events.Kind = "bubbles.updated"
	// KindSpeakingChanged identifies start and end of audible agent speech.
	KindSpeakingChanged events.Kind = "playback.speaking_changed"
	// KindStreamInterrupted identifies a speech stream pre-empted by a newer one.
	KindStreamInterrupted events.Kind = "playback.stream_interrupted"
	// KindLevelChanged identifies a new loudness reading of the audible speech.
	KindLevelChanged events.Kind = "playback.level_changed"
	// KindPendingChanged identifies start and end of waiting for an agent reply.
	KindPendingChanged events.Kind = "send.pending_changed"
	// KindSessionError identifies a recoverable error surfaced to the user.
	KindSessionError events.Kind = "session.error"
)

type MessagesUpdated struct {
	events.Base
	Messages []timeline.Message
}

type AgentReplied struct {
	events.Base
	Message timeline.Message
}

type BubblesUpdated struct {
	events.Base
	Bubbles []bubbles.Bubble
}

type SpeakingChanged struct {
	events.Base
	Speaking bool
}

type StreamInterrupted struct {
	events.Base
	From, To string
}

// LevelChanged carries the RMS level in [0,1] of the last chunk sent to the
// speaker. It drops to zero when speech stops or is muted.
type LevelChanged struct {
	events.Base
	Level float64
}

type PendingChanged struct {
	events.Base
	Pending bool
}

type SessionError struct {
	events.Base
	Err error
}

// flushMarker is posted behind everything emitted so far and released once
// the emitter reaches it.
type flushMarker struct {
	events.Base
	done chan struct{}
}
