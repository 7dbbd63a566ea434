package playback

import (
	"reflect"

	"github.com/koscakluka/ema-sync/core/audio"
)

// AudioOutput is the playback sink. SendAudio must not block on playback;
// bytes sent for one stream play in FIFO order. ClearBuffer must stop
// audible output before it returns.
type AudioOutput interface {
	EncodingInfo() audio.EncodingInfo
	SendAudio(audio []byte) error
	ClearBuffer()
}

// Unlocker is implemented by sinks that may only start producing sound after
// a user gesture.
type Unlocker interface {
	Unlock() error
}

// output wraps the configured sink so the multiplexer can route without
// repeated nil and capability checks.
type output struct {
	base     AudioOutput
	unlocker Unlocker
}

func newOutput(client AudioOutput) *output {
	o := output{}
	o.Set(client)
	return &o
}

// Set replaces the configured sink. Nil and typed-nil sinks are treated as
// unconfigured.
func (o *output) Set(client AudioOutput) {
	if o == nil {
		return
	}

	o.base = nil
	o.unlocker = nil

	if isNilAudioOutput(client) {
		return
	}
	o.base = client

	if unlocker, ok := client.(Unlocker); ok {
		o.unlocker = unlocker
	}
}

func (o *output) isConfigured() bool {
	return o != nil && o.base != nil
}

// SendAudio forwards a chunk to the sink. Without a sink the chunk is
// dropped.
func (o *output) SendAudio(audio []byte) error {
	if !o.isConfigured() {
		return nil
	}
	return o.base.SendAudio(audio)
}

// Clear flushes buffered output. Without a sink this is a no-op.
func (o *output) Clear() {
	if o.isConfigured() {
		o.base.ClearBuffer()
	}
}

// Unlock starts sinks that wait for a user gesture. Sinks without that
// requirement are always unlocked.
func (o *output) Unlock() error {
	if o == nil || o.unlocker == nil {
		return nil
	}
	return o.unlocker.Unlock()
}

// EncodingInfo returns the sink encoding, or the project default without a
// sink.
func (o *output) EncodingInfo() audio.EncodingInfo {
	if o.isConfigured() {
		if info := o.base.EncodingInfo(); !info.IsZero() {
			return info
		}
	}
	return audio.GetDefaultEncodingInfo()
}

func isNilAudioOutput(client AudioOutput) bool {
	if client == nil {
		return true
	}

	v := reflect.ValueOf(client)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}
