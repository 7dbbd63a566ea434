package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Duration is the playback length of byteCount bytes of mono audio.
func Duration(byteCount int, encodingInfo EncodingInfo) time.Duration {
	byteSize := encodingInfo.Format.ByteSize()
	if byteSize <= 0 || encodingInfo.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(byteCount) / float64(encodingInfo.SampleRate) * float64(time.Second) / float64(byteSize))
}

// Level is the RMS level of a little-endian PCM16 chunk, in [0,1]. It is
// meant for coarse visual feedback such as a speaking meter.
func Level(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := range samples {
		sample := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / math.MaxInt16
		sum += sample * sample
	}
	return math.Min(1, math.Sqrt(sum/float64(samples)))
}
