package audio

import "sync"

// Buffer is a FIFO of PCM bytes between a producer that must not block and a
// device callback that pulls fixed-size periods.
type Buffer struct {
	mu      sync.Mutex
	data    []byte
	silence byte

	updateSignal chan struct{}
}

func NewBuffer(encodingInfo EncodingInfo) *Buffer {
	return &Buffer{
		silence:      encodingInfo.SilenceValue(),
		updateSignal: make(chan struct{}, 1),
	}
}

func (b *Buffer) Write(pcm []byte) {
	b.mu.Lock()
	b.data = append(b.data, pcm...)
	b.mu.Unlock()

	select {
	case b.updateSignal <- struct{}{}:
	default:
	}
}

// Clear drops everything not yet handed to the device. Once it returns, no
// earlier bytes are produced by Fill.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = nil
}

// Fill copies queued audio into out and pads the remainder with silence. It
// returns how many queued bytes were used.
func (b *Buffer) Fill(out []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := copy(out, b.data)
	for i := n; i < len(out); i++ {
		out[i] = b.silence
	}

	b.data = b.data[n:]
	if len(b.data) == 0 {
		b.data = nil
	}
	return n
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Updated is signalled after writes, for consumers that poll rather than
// being driven by a device callback.
func (b *Buffer) Updated() <-chan struct{} {
	return b.updateSignal
}
