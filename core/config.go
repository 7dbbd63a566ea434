package engine

import (
	"time"

	"github.com/koscakluka/ema-sync/core/bubbles"
	"github.com/koscakluka/ema-sync/core/send"
)

const DefaultWindowSize = 10

type Config struct {
	// WindowSize is how many of the most recent messages are shown.
	WindowSize int

	MaxBubbles                  int
	BubbleDuration              time.Duration
	ReducedMotionBubbleDuration time.Duration
	FadeInFraction              float64
	FadeOutStartFraction        float64
	BubbleTick                  time.Duration
	ReducedMotionBubbleTick     time.Duration
	ReducedMotion               bool

	// PendingTimeout is how long a sent message may wait for an agent reply
	// before a no-response error is reported.
	PendingTimeout time.Duration

	// SessionScoped drops store events that name a different origin session.
	SessionScoped bool
	// StoreCapacity bounds the event store. Zero keeps every event.
	StoreCapacity int
}

func DefaultConfig() Config {
	return Config{
		WindowSize:                  DefaultWindowSize,
		MaxBubbles:                  bubbles.DefaultMaxBubbles,
		BubbleDuration:              bubbles.DefaultDuration,
		ReducedMotionBubbleDuration: bubbles.DefaultReducedMotionDuration,
		FadeInFraction:              bubbles.DefaultFadeInFraction,
		FadeOutStartFraction:        bubbles.DefaultFadeOutStartFraction,
		BubbleTick:                  bubbles.DefaultTick,
		ReducedMotionBubbleTick:     bubbles.DefaultReducedMotionTick,
		PendingTimeout:              send.DefaultTimeout,
	}
}

// BubbleParams resolves the bubble parameters for the configured motion
// preference.
func (c Config) BubbleParams() bubbles.Params {
	params := bubbles.Params{
		Duration:             c.BubbleDuration,
		FadeInFraction:       c.FadeInFraction,
		FadeOutStartFraction: c.FadeOutStartFraction,
		MaxBubbles:           c.MaxBubbles,
		Tick:                 c.BubbleTick,
	}
	if c.ReducedMotion {
		params.Duration = c.ReducedMotionBubbleDuration
		params.Tick = c.ReducedMotionBubbleTick
	}

	defaults := bubbles.DefaultParams(c.ReducedMotion)
	if params.Duration <= 0 {
		params.Duration = defaults.Duration
	}
	if params.Tick <= 0 {
		params.Tick = defaults.Tick
	}
	return params
}
