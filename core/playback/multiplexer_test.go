package playback

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/koscakluka/ema-sync/core/events"
)

func chunk(streamID, payload string) events.AudioChunk {
	return events.AudioChunk{StreamID: streamID, ChunkBase64: base64.StdEncoding.EncodeToString([]byte(payload))}
}

func TestMultiplexerPreemptsOnStreamSwitch(t *testing.T) {
	out := &recordingOutput{}
	var interrupts [][2]string
	m := NewMultiplexer(out, WithInterruptCallback(func(from, to string) {
		interrupts = append(interrupts, [2]string{from, to})
	}))

	m.HandleChunk(chunk("A", "a1"))
	m.HandleChunk(chunk("A", "a2"))
	m.HandleChunk(chunk("B", "b1"))
	m.HandleChunk(chunk("A", "a3"))

	calls := out.snapshot()
	expected := []outputCall{
		{kind: "send", audio: []byte("a1")},
		{kind: "send", audio: []byte("a2")},
		{kind: "clear"},
		{kind: "send", audio: []byte("b1")},
	}
	if len(calls) != len(expected) {
		t.Fatalf("expected %d output calls, got %d: %v", len(expected), len(calls), calls)
	}
	for i := range expected {
		if calls[i].kind != expected[i].kind || string(calls[i].audio) != string(expected[i].audio) {
			t.Fatalf("call %d: expected %v, got %v", i, expected[i], calls[i])
		}
	}

	if len(interrupts) != 1 || interrupts[0] != [2]string{"A", "B"} {
		t.Fatalf("expected exactly one A->B interrupt, got %v", interrupts)
	}
	if state, active := m.State(); state != StateActive || active != "B" {
		t.Fatalf("expected B active, got %s %q", state, active)
	}
	if got := m.StreamState("A"); got != StateDraining {
		t.Fatalf("expected superseded stream to be draining, got %s", got)
	}
}

func TestMultiplexerStartsFromIdleWithoutInterrupt(t *testing.T) {
	out := &recordingOutput{}
	var speaking []bool
	m := NewMultiplexer(out, WithSpeakingCallback(func(isSpeaking bool) { speaking = append(speaking, isSpeaking) }))

	m.HandleChunk(chunk("A", "a1"))

	for _, call := range out.snapshot() {
		if call.kind == "clear" {
			t.Fatalf("expected no interrupt when starting from idle")
		}
	}
	if len(speaking) != 1 || !speaking[0] {
		t.Fatalf("expected speaking to start once, got %v", speaking)
	}
}

func TestMultiplexerCompleteMatchingStreamReturnsToIdle(t *testing.T) {
	out := &recordingOutput{}
	var speaking []bool
	m := NewMultiplexer(out, WithSpeakingCallback(func(isSpeaking bool) { speaking = append(speaking, isSpeaking) }))

	m.HandleChunk(chunk("A", "a1"))
	m.HandleComplete(events.AudioComplete{StreamID: "A"})

	if state, _ := m.State(); state != StateIdle {
		t.Fatalf("expected idle after completion, got %s", state)
	}
	if len(speaking) != 2 || speaking[1] {
		t.Fatalf("expected speaking to end, got %v", speaking)
	}

	m.HandleChunk(chunk("A", "late"))
	if calls := out.snapshot(); len(calls) != 1 {
		t.Fatalf("expected late chunk of completed stream to be dropped, got %v", calls)
	}
}

func TestMultiplexerIgnoresStaleCompletion(t *testing.T) {
	out := &recordingOutput{}
	m := NewMultiplexer(out)

	m.HandleChunk(chunk("A", "a1"))
	m.HandleChunk(chunk("B", "b1"))
	m.HandleComplete(events.AudioComplete{StreamID: "A"})
	m.HandleComplete(events.AudioComplete{})

	if state, active := m.State(); state != StateActive || active != "B" {
		t.Fatalf("expected B to stay active after stale completion, got %s %q", state, active)
	}
}

func TestMultiplexerDropsMalformedChunks(t *testing.T) {
	out := &recordingOutput{}
	m := NewMultiplexer(out)

	m.HandleChunk(events.AudioChunk{StreamID: "", ChunkBase64: "YTE="})
	m.HandleChunk(events.AudioChunk{StreamID: "A", ChunkBase64: ""})
	m.HandleChunk(events.AudioChunk{StreamID: "A", ChunkBase64: "%%% not base64"})

	if calls := out.snapshot(); len(calls) != 0 {
		t.Fatalf("expected malformed chunks to be dropped, got %v", calls)
	}
	if state, _ := m.State(); state != StateIdle {
		t.Fatalf("expected malformed chunks not to activate a stream, got %s", state)
	}
}

func TestMultiplexerErrorSurfacesAndRecovers(t *testing.T) {
	out := &recordingOutput{}
	var surfaced []error
	var speaking []bool
	m := NewMultiplexer(out,
		WithErrorCallback(func(err error) { surfaced = append(surfaced, err) }),
		WithSpeakingCallback(func(isSpeaking bool) { speaking = append(speaking, isSpeaking) }),
	)

	m.HandleChunk(chunk("A", "a1"))
	m.HandleError(events.AudioError{StreamID: "A", Message: "tts exploded"})

	if len(surfaced) != 1 || !errors.Is(surfaced[0], ErrPlayback) {
		t.Fatalf("expected one playback error, got %v", surfaced)
	}
	var streamErr *StreamError
	if !errors.As(surfaced[0], &streamErr) || streamErr.Message != "tts exploded" {
		t.Fatalf("expected stream error with message, got %v", surfaced[0])
	}
	if state, _ := m.State(); state != StateIdle {
		t.Fatalf("expected idle after error, got %s", state)
	}
	if len(speaking) != 2 || speaking[1] {
		t.Fatalf("expected speaking to be cleared, got %v", speaking)
	}

	m.HandleChunk(chunk("B", "b1"))
	if state, active := m.State(); state != StateActive || active != "B" {
		t.Fatalf("expected multiplexer to accept the next stream, got %s %q", state, active)
	}
}

func TestMultiplexerErrorWhileIdleStillSurfaces(t *testing.T) {
	var surfaced []error
	m := NewMultiplexer(&recordingOutput{}, WithErrorCallback(func(err error) { surfaced = append(surfaced, err) }))

	m.HandleError(events.AudioError{Message: "no stream"})

	if len(surfaced) != 1 {
		t.Fatalf("expected error to be surfaced while idle, got %v", surfaced)
	}
}

func TestMultiplexerSinkFailureRetiresStream(t *testing.T) {
	sinkErr := errors.New("device gone")
	out := &recordingOutput{sendErr: sinkErr}
	var surfaced []error
	m := NewMultiplexer(out, WithErrorCallback(func(err error) { surfaced = append(surfaced, err) }))

	m.HandleChunk(chunk("A", "a1"))
	m.HandleChunk(chunk("A", "a2"))

	if len(surfaced) != 1 {
		t.Fatalf("expected one surfaced sink failure, got %v", surfaced)
	}
	if !errors.Is(surfaced[0], ErrPlayback) || !errors.Is(surfaced[0], sinkErr) {
		t.Fatalf("expected error to wrap playback and sink errors, got %v", surfaced[0])
	}
	if state, _ := m.State(); state != StateIdle {
		t.Fatalf("expected idle after sink failure, got %s", state)
	}
}

func TestMultiplexerWithoutSinkTracksStreams(t *testing.T) {
	m := NewMultiplexer(nil)

	m.HandleChunk(chunk("A", "a1"))
	if state, active := m.State(); state != StateActive || active != "A" {
		t.Fatalf("expected stream to be tracked without a sink, got %s %q", state, active)
	}
	if err := m.Unlock(); err != nil {
		t.Fatalf("expected unlock without sink to succeed, got %v", err)
	}
}

func TestMultiplexerTypedNilSinkIsUnconfigured(t *testing.T) {
	var out *recordingOutput
	m := NewMultiplexer(out)

	m.HandleChunk(chunk("A", "a1"))
	m.Stop()

	if state, _ := m.State(); state != StateIdle {
		t.Fatalf("expected stop to return to idle, got %s", state)
	}
}

func TestMultiplexerForgetsOldestRetiredStreams(t *testing.T) {
	m := NewMultiplexer(&recordingOutput{})

	m.HandleChunk(chunk("first", "x"))
	for i := range retiredCapacity + 1 {
		m.HandleChunk(chunk(string(rune('a'+i%26))+string(rune('A'+i/26)), "x"))
	}

	if got := m.StreamState("first"); got != StateIdle {
		t.Fatalf("expected oldest retired stream to be forgotten, got %s", got)
	}
}

func TestMultiplexerMutedTracksStreamsWithoutAudio(t *testing.T) {
	out := &recordingOutput{}
	var (
		interrupts int
		speaking   []bool
	)
	m := NewMultiplexer(out,
		WithInterruptCallback(func(string, string) { interrupts++ }),
		WithSpeakingCallback(func(isSpeaking bool) { speaking = append(speaking, isSpeaking) }),
	)

	m.HandleChunk(chunk("A", "a1"))
	m.SetMuted(true)
	if !m.Muted() {
		t.Fatalf("expected multiplexer to be muted")
	}
	m.HandleChunk(chunk("A", "a2"))
	m.HandleChunk(chunk("B", "b1"))

	if state, active := m.State(); state != StateActive || active != "B" {
		t.Fatalf("expected B to be tracked as active while muted, got %s %q", state, active)
	}
	if interrupts != 1 {
		t.Fatalf("expected the switch to B to count as an interrupt, got %d", interrupts)
	}

	m.SetMuted(false)
	m.HandleChunk(chunk("B", "b2"))
	m.HandleComplete(events.AudioComplete{StreamID: "B"})

	calls := out.snapshot()
	expected := []outputCall{
		{kind: "send", audio: []byte("a1")},
		{kind: "clear"},
		{kind: "clear"},
		{kind: "send", audio: []byte("b2")},
	}
	if len(calls) != len(expected) {
		t.Fatalf("expected %d output calls, got %d: %v", len(expected), len(calls), calls)
	}
	for i := range expected {
		if calls[i].kind != expected[i].kind || string(calls[i].audio) != string(expected[i].audio) {
			t.Fatalf("call %d: expected %v, got %v", i, expected[i], calls[i])
		}
	}
	if len(speaking) != 2 || !speaking[0] || speaking[1] {
		t.Fatalf("expected speaking to toggle once regardless of mute, got %v", speaking)
	}
}

func TestMultiplexerReportsChunkLevels(t *testing.T) {
	out := &recordingOutput{}
	var levels []float64
	m := NewMultiplexer(out, WithLevelCallback(func(level float64) { levels = append(levels, level) }))

	loud := string([]byte{0xff, 0x7f})
	quiet := string([]byte{0x00, 0x00})
	m.HandleChunk(chunk("A", loud))
	m.HandleChunk(chunk("A", quiet))
	m.HandleComplete(events.AudioComplete{StreamID: "A"})

	m.HandleChunk(chunk("B", loud))
	m.SetMuted(true)
	m.HandleChunk(chunk("B", loud))

	expected := []float64{1, 0, 0, 1, 0}
	if len(levels) != len(expected) {
		t.Fatalf("expected levels %v, got %v", expected, levels)
	}
	for i := range expected {
		if levels[i] != expected[i] {
			t.Fatalf("level %d: expected %v, got %v", i, expected[i], levels[i])
		}
	}
}
