package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Gesture identifies the user interaction that triggered an unlock.
type Gesture string

const (
	GesturePointerDown Gesture = "pointer-down"
	GestureTouchStart  Gesture = "touch-start"
	GestureButtonPress Gesture = "button-press"
)

// UnlockGate runs the platform audio unlock exactly once per session, on the
// first user gesture.
type UnlockGate struct {
	once     sync.Once
	unlocked atomic.Bool

	unlock func() error
	logger *slog.Logger
}

func NewUnlockGate(unlock func() error, l *slog.Logger) *UnlockGate {
	if unlock == nil {
		unlock = func() error { return nil }
	}
	if l == nil {
		l = logger
	}
	return &UnlockGate{unlock: unlock, logger: l}
}

// TriggerOnce unlocks audio on the first call. Later calls, and failures of
// the unlock itself, are absorbed.
func (g *UnlockGate) TriggerOnce(gesture Gesture) {
	if g == nil {
		return
	}

	g.once.Do(func() {
		g.unlocked.Store(true)

		defer func() {
			if recovered := recover(); recovered != nil {
				g.logger.Error("audio unlock panicked", "gesture", gesture, "error", fmt.Errorf("%v", recovered))
			}
		}()

		if err := g.unlock(); err != nil {
			g.logger.Warn("audio unlock failed", "gesture", gesture, "error", err)
			return
		}
		g.logger.Debug("audio unlocked", "gesture", gesture)
	})
}

func (g *UnlockGate) Unlocked() bool {
	return g != nil && g.unlocked.Load()
}
