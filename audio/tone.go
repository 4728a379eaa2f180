package audio

import (
	"math"
	"time"
)

const (
	chimeAttack = 20 * time.Millisecond
	chimeGain   = 0.15
)

// StartChime is the rising sweep played when a session opens.
func StartChime() *Chunk {
	return sweep(600, 1200, 150*time.Millisecond)
}

// EndChime is the falling sweep played on a user-initiated stop. The
// session controller waits out its duration before releasing the
// output device.
func EndChime() *Chunk {
	return sweep(1200, 600, 200*time.Millisecond)
}

// sweep synthesizes a sine glide from startHz to endHz with a short
// linear attack and an exponential decay to silence.
func sweep(startHz, endHz float64, d time.Duration) *Chunk {
	n := int(float64(OutputSampleRate) * d.Seconds())
	samples := make([]float32, n)

	attack := int(float64(OutputSampleRate) * chimeAttack.Seconds())
	if attack <= 0 || attack > n {
		attack = n
	}

	var phase float64
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n-1)
		freq := startHz * math.Pow(endHz/startHz, t)
		phase += 2 * math.Pi * freq / float64(OutputSampleRate)

		gain := chimeGain
		if i < attack {
			gain *= float64(i) / float64(attack)
		} else {
			decay := float64(i-attack) / float64(n-attack)
			gain *= math.Pow(0.0001, decay)
		}
		samples[i] = float32(gain * math.Sin(phase))
	}

	return &Chunk{Samples: samples, Rate: OutputSampleRate}
}
