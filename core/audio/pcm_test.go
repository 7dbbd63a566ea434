package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestDurationLinear16(t *testing.T) {
	info := EncodingInfo{SampleRate: 10, Format: EncodingLinear16}
	if got := Duration(40, info); got != 2*time.Second {
		t.Fatalf("expected 2s, got %s", got)
	}
	if got := Duration(40, EncodingInfo{}); got != 0 {
		t.Fatalf("expected zero duration for unknown encoding, got %s", got)
	}
}

func TestLevel(t *testing.T) {
	if got := Level(nil); got != 0 {
		t.Fatalf("expected silence for empty chunk, got %f", got)
	}

	loud := make([]byte, 8)
	for i := range 4 {
		binary.LittleEndian.PutUint16(loud[2*i:], uint16(math.MaxInt16))
	}
	if got := Level(loud); math.Abs(got-1) > 1e-9 {
		t.Fatalf("expected full level, got %f", got)
	}

	if got := Level(make([]byte, 8)); got != 0 {
		t.Fatalf("expected zero level for silence, got %f", got)
	}
}
