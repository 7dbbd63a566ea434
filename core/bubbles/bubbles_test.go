package bubbles

import (
	"math"
	"testing"
	"time"

	"github.com/koscakluka/ema-sync/core/timeline"
)

const epsilon = 1e-9

func TestOpacityBoundaries(t *testing.T) {
	params := DefaultParams(false)

	if got := Opacity(0, params); got != 0 {
		t.Fatalf("expected opacity 0 at age 0, got %f", got)
	}
	if got := Opacity(params.Duration, params); got != 0 {
		t.Fatalf("expected opacity 0 at full duration, got %f", got)
	}

	fadeInEnd := time.Duration(float64(params.Duration) * params.FadeInFraction)
	if got := Opacity(fadeInEnd, params); math.Abs(got-1) > epsilon {
		t.Fatalf("expected opacity 1 at fade-in boundary, got %f", got)
	}

	fadeOutStart := time.Duration(float64(params.Duration) * params.FadeOutStartFraction)
	if got := Opacity(fadeOutStart, params); math.Abs(got-1) > epsilon {
		t.Fatalf("expected opacity 1 at fade-out start, got %f", got)
	}

	if got := Opacity(params.Duration/2, params); got != 1 {
		t.Fatalf("expected full opacity mid-life, got %f", got)
	}
}

func TestOpacityIsContinuous(t *testing.T) {
	for _, reducedMotion := range []bool{false, true} {
		params := DefaultParams(reducedMotion)
		step := time.Millisecond
		// the steepest slope is 1/(FadeInFraction*Duration) per unit of time
		maxJump := float64(step)/(params.FadeInFraction*float64(params.Duration)) + epsilon

		previous := Opacity(0, params)
		for age := step; age <= params.Duration+10*step; age += step {
			current := Opacity(age, params)
			if math.Abs(current-previous) > maxJump {
				t.Fatalf("discontinuity at %s: %f -> %f", age, previous, current)
			}
			if current < 0 || current > 1 {
				t.Fatalf("opacity out of range at %s: %f", age, current)
			}
			previous = current
		}
	}
}

func TestOpacityHandlesDegenerateFractions(t *testing.T) {
	params := Params{Duration: time.Second, FadeInFraction: 0, FadeOutStartFraction: 1}

	if got := Opacity(0, params); got != 1 {
		t.Fatalf("expected no fade-in with zero fraction, got %f", got)
	}
	if got := Opacity(time.Second, params); got != 0 {
		t.Fatalf("expected aged-out bubble to be transparent, got %f", got)
	}
	if got := Opacity(time.Second, Params{}); got != 0 {
		t.Fatalf("expected zero duration to be fully aged out, got %f", got)
	}
}

func TestDefaultParamsReducedMotion(t *testing.T) {
	normal := DefaultParams(false)
	reduced := DefaultParams(true)

	if normal.Duration != 12*time.Second || reduced.Duration != 8*time.Second {
		t.Fatalf("unexpected durations %s / %s", normal.Duration, reduced.Duration)
	}
	if normal.Tick != 100*time.Millisecond || reduced.Tick != 500*time.Millisecond {
		t.Fatalf("unexpected ticks %s / %s", normal.Tick, reduced.Tick)
	}
}

func TestVisibleDropsAgedOutMessages(t *testing.T) {
	params := DefaultParams(false)
	now := time.UnixMilli(100_000)

	messages := []timeline.Message{
		{ID: "old", Role: timeline.RoleUser, Text: "old", CreatedAt: now.Add(-params.Duration).UnixMilli()},
		{ID: "fresh", Role: timeline.RoleAgent, Text: "fresh", CreatedAt: now.Add(-params.Duration / 2).UnixMilli()},
	}

	got := Visible(messages, now, params)
	if len(got) != 1 || got[0].MessageID != "fresh" {
		t.Fatalf("expected only fresh bubble, got %v", got)
	}
	if got[0].Opacity != 1 || got[0].Age != params.Duration/2 {
		t.Fatalf("unexpected bubble state %+v", got[0])
	}
}

func TestVisibleCapsToMostRecent(t *testing.T) {
	params := DefaultParams(false)
	params.MaxBubbles = 2
	now := time.UnixMilli(100_000)

	var messages []timeline.Message
	for i, id := range []string{"a", "b", "c"} {
		messages = append(messages, timeline.Message{ID: id, CreatedAt: now.Add(-time.Duration(3-i) * time.Second).UnixMilli()})
	}

	got := Visible(messages, now, params)
	if len(got) != 2 || got[0].MessageID != "b" || got[1].MessageID != "c" {
		t.Fatalf("expected [b c], got %v", got)
	}
}
