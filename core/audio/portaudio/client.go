// Package portaudio plays speech through the default PortAudio output
// stream. Blocking stream writes happen on a dedicated goroutine fed from a
// buffer, so sending audio never waits for the device.
package portaudio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-sync/core/audio"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-sync/core/audio/portaudio"

var logger = otelslog.NewLogger(scopeName)

const DefaultFramesPerBuffer = 1024

var errClosed = errors.New("portaudio client closed")

type Client struct {
	stream *portaudio.Stream
	out    []int16
	period []byte

	encodingInfo audio.EncodingInfo
	buffer       *audio.Buffer

	startOnce sync.Once
	closeOnce sync.Once
	closeCh   chan struct{}
	done      chan struct{}

	logger *slog.Logger
}

func NewClient(framesPerBuffer int) (*Client, error) {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	c := &Client{
		out:          make([]int16, framesPerBuffer),
		period:       make([]byte, framesPerBuffer*2),
		encodingInfo: audio.GetDefaultEncodingInfo(),
		closeCh:      make(chan struct{}),
		done:         make(chan struct{}),
		logger:       logger,
	}
	c.buffer = audio.NewBuffer(c.encodingInfo)

	stream, err := portaudio.OpenDefaultStream(0, audio.DefaultChannels, float64(c.encodingInfo.SampleRate), framesPerBuffer, c.out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}
	c.stream = stream

	return c, nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encodingInfo
}

func (c *Client) SendAudio(pcm []byte) error {
	select {
	case <-c.closeCh:
		return errClosed
	default:
	}

	c.buffer.Write(pcm)
	return nil
}

func (c *Client) ClearBuffer() {
	c.buffer.Clear()
}

// Unlock starts the stream and the writer goroutine.
func (c *Client) Unlock() error {
	var err error
	c.startOnce.Do(func() {
		if err = c.stream.Start(); err != nil {
			err = fmt.Errorf("failed to start portaudio stream: %w", err)
			close(c.done)
			return
		}
		go c.write()
	})
	return err
}

func (c *Client) write() {
	defer close(c.done)

	for {
		if c.buffer.Len() == 0 {
			select {
			case <-c.closeCh:
				return
			case <-c.buffer.Updated():
				continue
			}
		}

		select {
		case <-c.closeCh:
			return
		default:
		}

		c.buffer.Fill(c.period)
		for i := range c.out {
			c.out[i] = int16(binary.LittleEndian.Uint16(c.period[2*i:]))
		}
		if err := c.stream.Write(); err != nil {
			c.logger.Debug("portaudio stream write reported a problem", "error", err)
		}
	}
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.startOnce.Do(func() { close(c.done) })
		<-c.done

		if closeErr := c.stream.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close portaudio stream: %w", closeErr)
		}
		if termErr := portaudio.Terminate(); termErr != nil && err == nil {
			err = fmt.Errorf("failed to terminate portaudio: %w", termErr)
		}
	})
	return err
}
