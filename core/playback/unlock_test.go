package playback

import (
	"errors"
	"sync"
	"testing"
)

func TestUnlockGateTriggersOnce(t *testing.T) {
	calls := 0
	gate := NewUnlockGate(func() error { calls++; return nil }, nil)

	if gate.Unlocked() {
		t.Fatalf("expected gate to start locked")
	}

	gate.TriggerOnce(GesturePointerDown)
	gate.TriggerOnce(GestureTouchStart)
	gate.TriggerOnce(GestureButtonPress)

	if calls != 1 {
		t.Fatalf("expected unlock to run once, got %d", calls)
	}
	if !gate.Unlocked() {
		t.Fatalf("expected gate to be unlocked")
	}
}

func TestUnlockGateConcurrentTriggers(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	gate := NewUnlockGate(func() error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil
	}, nil)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gate.TriggerOnce(GesturePointerDown)
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected unlock to run once, got %d", calls)
	}
}

func TestUnlockGateAbsorbsFailures(t *testing.T) {
	failing := NewUnlockGate(func() error { return errors.New("not allowed") }, nil)
	failing.TriggerOnce(GestureButtonPress)
	failing.TriggerOnce(GestureButtonPress)
	if !failing.Unlocked() {
		t.Fatalf("expected a failed unlock to still consume the gate")
	}

	panicking := NewUnlockGate(func() error { panic("boom") }, nil)
	panicking.TriggerOnce(GestureButtonPress)
	panicking.TriggerOnce(GestureButtonPress)

	var nilGate *UnlockGate
	nilGate.TriggerOnce(GestureButtonPress)
	if nilGate.Unlocked() {
		t.Fatalf("expected nil gate to report locked")
	}
}

func TestUnlockGateStartsSink(t *testing.T) {
	out := &recordingOutput{}
	m := NewMultiplexer(out)
	gate := NewUnlockGate(m.Unlock, nil)

	gate.TriggerOnce(GesturePointerDown)
	gate.TriggerOnce(GesturePointerDown)

	if out.unlocks != 1 {
		t.Fatalf("expected sink to be unlocked once, got %d", out.unlocks)
	}
}
