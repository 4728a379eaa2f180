package audio

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	// InputSampleRate is the microphone capture rate.
	InputSampleRate = 16000
	// OutputSampleRate is the synthesized playback rate.
	OutputSampleRate = 24000
	// FrameSize is the number of samples per capture frame.
	FrameSize = 4096
)

// InputMimeType is the wire MIME type for outbound microphone frames.
const InputMimeType = "audio/pcm;rate=16000"

// Chunk is a decoded buffer of mono floating point samples at a fixed
// sample rate. Ownership transfers to whoever schedules it for playback.
type Chunk struct {
	Samples []float32
	Rate    int
}

// Duration returns the real-time playback length of the chunk.
func (c *Chunk) Duration() time.Duration {
	if c == nil || c.Rate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.Rate)
}

// Seconds is Duration as a float, which is what the playback timeline
// arithmetic works in.
func (c *Chunk) Seconds() float64 {
	if c == nil || c.Rate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.Rate)
}

// EncodeFrame converts floating point samples to the wire transport's
// base64 form: 16-bit little-endian PCM.
func EncodeFrame(samples []float32) string {
	return base64.StdEncoding.EncodeToString(FloatToPCM16(samples))
}

// DecodeChunk converts base64 16-bit little-endian PCM into a Chunk at
// the given sample rate.
func DecodeChunk(data string, rate int) (*Chunk, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	return &Chunk{Samples: PCM16ToFloat(raw), Rate: rate}, nil
}

// FloatToPCM16 converts samples in [-1, 1] to interleaved 16-bit
// little-endian bytes, clipping out-of-range values.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		v := int32(sample * 32768)
		if v > 32767 {
			v = 32767
		}
		if v < -32768 {
			v = -32768
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// PCM16ToFloat converts 16-bit little-endian bytes back to floating
// point samples. A trailing odd byte is ignored.
func PCM16ToFloat(raw []byte) []float32 {
	n := len(raw) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(raw[i*2]) | int16(raw[i*2+1])<<8
		out[i] = float32(v) / 32768
	}
	return out
}
