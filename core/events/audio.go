package events

import (
	"encoding/json"
	"fmt"
)

const (
	ChannelStore         = "store"
	ChannelAudioChunk    = "ephemeral:audio-chunk"
	ChannelAudioComplete = "ephemeral:audio-complete"
	ChannelAudioError    = "ephemeral:audio-error"
	ChannelDispatch      = "dispatch"
)

// AudioChunk carries one base64 encoded PCM chunk of a speech stream.
type AudioChunk struct {
	StreamID    string `json:"streamId"`
	ChunkBase64 string `json:"chunkBase64"`
}

// AudioComplete signals that the producer sent the last chunk of a stream.
type AudioComplete struct {
	StreamID string `json:"streamId"`
}

// AudioError signals that the producer failed to deliver a stream.
type AudioError struct {
	StreamID string `json:"streamId,omitempty"`
	Message  string `json:"message"`
}

func ParseAudioChunk(data []byte) (AudioChunk, error) {
	var chunk AudioChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return AudioChunk{}, fmt.Errorf("failed to decode audio chunk: %w", err)
	}
	return chunk, nil
}

func ParseAudioComplete(data []byte) (AudioComplete, error) {
	var complete AudioComplete
	if err := json.Unmarshal(data, &complete); err != nil {
		return AudioComplete{}, fmt.Errorf("failed to decode audio completion: %w", err)
	}
	return complete, nil
}

func ParseAudioError(data []byte) (AudioError, error) {
	var audioErr AudioError
	if err := json.Unmarshal(data, &audioErr); err != nil {
		return AudioError{}, fmt.Errorf("failed to decode audio error: %w", err)
	}
	if audioErr.Message == "" {
		audioErr.Message = "unknown error"
	}
	return audioErr, nil
}
