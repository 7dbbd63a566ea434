// Package miniaudio plays speech through the default output device using
// miniaudio. The device stays stopped until [Client.Unlock] so nothing is
// audible before the user interacts; audio sent earlier is buffered.
package miniaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-sync/core/audio"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-sync/core/audio/miniaudio"

var logger = otelslog.NewLogger(scopeName)

var errNotInitialized = errors.New("playback device not initialized")

type Client struct {
	// audioContext is kept only to release it on Close.
	audioContext *malgo.AllocatedContext
	device       *malgo.Device

	encodingInfo audio.EncodingInfo
	buffer       *audio.Buffer

	mu     sync.Mutex
	logger *slog.Logger
}

type ClientOption func(*Client)

// WithSampleRate overrides the sample rate of incoming PCM16 audio.
func WithSampleRate(sampleRate int) ClientOption {
	return func(c *Client) {
		if sampleRate > 0 {
			c.encodingInfo.SampleRate = sampleRate
		}
	}
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		encodingInfo: audio.GetDefaultEncodingInfo(),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.buffer = audio.NewBuffer(c.encodingInfo)

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		c.logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	c.audioContext = audioCtx

	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * audio.DefaultChannels
	sampleRate := uint32(c.encodingInfo.SampleRate)

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = sampleRate
	config.Playback.Format = format
	config.Playback.Channels = audio.DefaultChannels
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	config.Periods = 4

	if c.device, err = malgo.InitDevice(audioCtx.Context, config, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			c.buffer.Fill(pOutput[:min(len(pOutput), int(frameCount)*bytesPerFrame)])
		},
	}); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	return c, nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encodingInfo
}

// SendAudio queues PCM16 audio. It never blocks on playback.
func (c *Client) SendAudio(pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return errNotInitialized
	}

	c.buffer.Write(pcm)
	return nil
}

func (c *Client) ClearBuffer() {
	c.buffer.Clear()
}

// Unlock starts the playback device.
func (c *Client) Unlock() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return errNotInitialized
	}
	if c.device.IsStarted() {
		return nil
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	if c.audioContext != nil {
		err := c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
		if err != nil {
			return fmt.Errorf("failed to release audio context: %w", err)
		}
	}
	return nil
}
