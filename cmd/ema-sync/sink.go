package main

import (
	"io"
	"log/slog"

	engine "github.com/koscakluka/ema-sync/core"
	"github.com/koscakluka/ema-sync/core/audio/miniaudio"
	"github.com/koscakluka/ema-sync/core/audio/portaudio"
	"github.com/m-mizutani/goerr/v2"
)

type audioSink interface {
	engine.AudioOutput
	io.Closer
}

// openSink opens the configured speech sink. A nil sink means audio is
// tracked but not played.
func openSink(cfg audioConfig, logger *slog.Logger) (audioSink, error) {
	switch cfg.Sink {
	case "", "none":
		return nil, nil
	case "malgo":
		client, err := miniaudio.NewClient(miniaudio.WithSampleRate(cfg.SampleRate), miniaudio.WithLogger(logger))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open malgo sink")
		}
		return client, nil
	case "portaudio":
		client, err := portaudio.NewClient(portaudio.DefaultFramesPerBuffer)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open portaudio sink")
		}
		return client, nil
	}
	return nil, goerr.New("unknown audio sink", goerr.V("sink", cfg.Sink))
}
