// Package bubbles computes the time-fading floating presentation of recent
// messages.
package bubbles

import (
	"time"

	"github.com/koscakluka/ema-sync/core/timeline"
)

const (
	DefaultDuration              = 12 * time.Second
	DefaultReducedMotionDuration = 8 * time.Second
	DefaultFadeInFraction        = 0.15
	DefaultFadeOutStartFraction  = 0.85
	DefaultMaxBubbles            = 5
	DefaultTick                  = 100 * time.Millisecond
	DefaultReducedMotionTick     = 500 * time.Millisecond
)

type Params struct {
	Duration             time.Duration
	FadeInFraction       float64
	FadeOutStartFraction float64
	// MaxBubbles caps the visible set to the most recent bubbles. Zero or
	// less means no cap.
	MaxBubbles int
	// Tick is how often the visible set should be recomputed.
	Tick time.Duration
}

// DefaultParams returns the stock parameters; reduced motion shortens the
// lifetime and slows the refresh.
func DefaultParams(reducedMotion bool) Params {
	params := Params{
		Duration:             DefaultDuration,
		FadeInFraction:       DefaultFadeInFraction,
		FadeOutStartFraction: DefaultFadeOutStartFraction,
		MaxBubbles:           DefaultMaxBubbles,
		Tick:                 DefaultTick,
	}
	if reducedMotion {
		params.Duration = DefaultReducedMotionDuration
		params.Tick = DefaultReducedMotionTick
	}
	return params
}

type Bubble struct {
	MessageID string
	Role      timeline.Role
	Text      string
	Opacity   float64
	Age       time.Duration
}

// Progress is the clamped fraction of the bubble lifetime that has elapsed.
func Progress(age time.Duration, params Params) float64 {
	if params.Duration <= 0 {
		return 1
	}
	return clamp(float64(age)/float64(params.Duration), 0, 1)
}

// Opacity fades in linearly over the first FadeInFraction of the lifetime,
// holds at 1, then fades out linearly after FadeOutStartFraction.
func Opacity(age time.Duration, params Params) float64 {
	t := Progress(age, params)

	var opacity float64
	switch {
	case t < params.FadeInFraction:
		opacity = t / params.FadeInFraction
	case t > params.FadeOutStartFraction && params.FadeOutStartFraction < 1:
		opacity = (1 - t) / (1 - params.FadeOutStartFraction)
	case t >= 1:
		opacity = 0
	default:
		opacity = 1
	}
	return clamp(opacity, 0, 1)
}

// Visible returns the bubbles for messages that have not aged out at now,
// oldest first, capped to the most recent MaxBubbles.
func Visible(messages []timeline.Message, now time.Time, params Params) []Bubble {
	var visible []Bubble
	for _, message := range messages {
		age := now.Sub(message.Time())
		if Progress(age, params) >= 1 {
			continue
		}

		visible = append(visible, Bubble{
			MessageID: message.ID,
			Role:      message.Role,
			Text:      message.Text,
			Opacity:   Opacity(age, params),
			Age:       age,
		})
	}

	if params.MaxBubbles > 0 && len(visible) > params.MaxBubbles {
		visible = visible[len(visible)-params.MaxBubbles:]
	}
	return visible
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
