package engine

import (
	"sync"
	"time"

	"github.com/koscakluka/ema-sync/core/events"
)

const engineQueueCapacity = 256

type queueItem struct {
	channel  string
	data     []byte
	queuedAt time.Time

	// refresh asks for a re-projection without new input.
	refresh bool
	flush   chan struct{}
}

// notifier hands notifications from the ingestion loop and from timer or
// caller goroutines to a single emitting goroutine. Posting never blocks, so
// callbacks may call back into the engine.
type notifier struct {
	mu      sync.Mutex
	pending []events.Event
	signal  chan struct{}
}

func newNotifier() *notifier {
	return &notifier{signal: make(chan struct{}, 1)}
}

func (n *notifier) post(event events.Event) {
	n.mu.Lock()
	n.pending = append(n.pending, event)
	n.mu.Unlock()

	select {
	case n.signal <- struct{}{}:
	default:
	}
}

// run emits posted notifications in order until stop is closed, then emits
// whatever is still pending and returns.
func (n *notifier) run(stop <-chan struct{}, emit eventEmitter) {
	for {
		select {
		case <-n.signal:
			n.drain(emit)
		case <-stop:
			n.drain(emit)
			return
		}
	}
}

func (n *notifier) drain(emit eventEmitter) {
	for {
		n.mu.Lock()
		batch := n.pending
		n.pending = nil
		n.mu.Unlock()

		if len(batch) == 0 {
			return
		}

		for _, event := range batch {
			if marker, ok := event.(flushMarker); ok {
				close(marker.done)
				continue
			}
			emit(event)
		}
	}
}
