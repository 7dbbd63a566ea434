package playback

import (
	"sync"

	"github.com/koscakluka/ema-sync/core/audio"
)

type outputCall struct {
	kind  string // "send" or "clear"
	audio []byte
}

type recordingOutput struct {
	mu      sync.Mutex
	calls   []outputCall
	sendErr error
	unlocks int
}

func (o *recordingOutput) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: 10, Format: audio.EncodingLinear16}
}

func (o *recordingOutput) SendAudio(pcm []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sendErr != nil {
		return o.sendErr
	}
	o.calls = append(o.calls, outputCall{kind: "send", audio: append([]byte(nil), pcm...)})
	return nil
}

func (o *recordingOutput) ClearBuffer() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, outputCall{kind: "clear"})
}

func (o *recordingOutput) Unlock() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unlocks++
	return nil
}

func (o *recordingOutput) snapshot() []outputCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]outputCall(nil), o.calls...)
}
