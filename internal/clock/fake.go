package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Timer callbacks run synchronously on the
// goroutine calling Advance, in deadline order.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	timer := &fakeTimer{clock: f, deadline: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, timer)
	return timer
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()

	ticker := &fakeTicker{clock: f, period: d, next: f.now.Add(d), c: make(chan time.Time, 1)}
	f.tickers = append(f.tickers, ticker)
	return ticker
}

// Advance moves the clock forward by d, firing every timer whose deadline
// has been reached and delivering at most one pending tick per ticker.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now

	var due []*fakeTimer
	remaining := f.timers[:0]
	for _, timer := range f.timers {
		if timer.stopped {
			continue
		}
		if !timer.deadline.After(now) {
			timer.stopped = true
			due = append(due, timer)
			continue
		}
		remaining = append(remaining, timer)
	}
	f.timers = remaining

	for _, ticker := range f.tickers {
		if ticker.stopped || ticker.next.After(now) {
			continue
		}
		for !ticker.next.After(now) {
			ticker.next = ticker.next.Add(ticker.period)
		}
		select {
		case ticker.c <- now:
		default:
		}
	}
	f.mu.Unlock()

	slices.SortStableFunc(due, func(a, b *fakeTimer) int { return a.deadline.Compare(b.deadline) })
	for _, timer := range due {
		timer.fn()
	}
}

// PendingTimers reports how many timers are armed and not yet fired.
func (f *Fake) PendingTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	pending := 0
	for _, timer := range f.timers {
		if !timer.stopped {
			pending++
		}
	}
	return pending
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	fn       func()
	stopped  bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type fakeTicker struct {
	clock   *Fake
	period  time.Duration
	next    time.Time
	c       chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
