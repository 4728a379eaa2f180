package voice

import (
	"context"
	"math"
	"time"

	"github.com/charmbracelet/log"
)

const (
	minPitchHz   = 70
	maxPitchHz   = 300
	pitchSplitHz = 170
	pitchSamples = 10

	// Frames with less band energy than this are treated as silence.
	energyFloor = 1e-6
)

// Classifier picks a persona from the speaker's pitch. Explicit
// preferences short-circuit; automatic mode runs a bounded sampling
// loop over microphone frames and classifies by mean dominant
// frequency. It is a deliberate heuristic and may misclassify.
type Classifier struct {
	Interval time.Duration
	Timeout  time.Duration
	Rate     int
	log      *log.Logger
}

func NewClassifier(rate int, logger *log.Logger) *Classifier {
	return &Classifier{
		Interval: 100 * time.Millisecond,
		Timeout:  5 * time.Second,
		Rate:     rate,
		log:      logger,
	}
}

// Determine resolves the persona for the given preference. It always
// returns a persona: cancellation, timeout, and silence all fall back
// to the default.
func (c *Classifier) Determine(ctx context.Context, pref Preference, frames <-chan []float32) Persona {
	switch pref {
	case PreferenceMale:
		return PersonaCharon
	case PreferenceFemale:
		return PersonaZephyr
	}

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	deadline := time.NewTimer(c.Timeout)
	defer deadline.Stop()

	var samples []float64
	for {
		select {
		case <-ctx.Done():
			return DefaultPersona
		case <-deadline.C:
			c.log.Debug("pitch sampling timed out", "collected", len(samples))
			return DefaultPersona
		case <-ticker.C:
			frame, ok := latest(frames)
			if !ok {
				continue
			}
			hz := DominantFrequency(frame, c.Rate)
			if hz < minPitchHz || hz > maxPitchHz {
				continue
			}
			samples = append(samples, hz)
			if len(samples) < pitchSamples {
				continue
			}

			var sum float64
			for _, s := range samples {
				sum += s
			}
			mean := sum / float64(len(samples))
			c.log.Debug("pitch classified", "meanHz", mean)
			if mean < pitchSplitHz {
				return PersonaCharon
			}
			return PersonaZephyr
		}
	}
}

// latest drains the channel and returns the newest pending frame, so
// sampling keeps up with capture without blocking it.
func latest(frames <-chan []float32) ([]float32, bool) {
	var frame []float32
	var ok bool
	for {
		select {
		case f, open := <-frames:
			if !open {
				return frame, ok
			}
			frame, ok = f, true
		default:
			return frame, ok
		}
	}
}

// DominantFrequency returns the strongest frequency within the human
// pitch band, computed as a direct DFT over just the band's bins.
// Returns 0 for silence.
func DominantFrequency(frame []float32, rate int) float64 {
	n := len(frame)
	if n == 0 {
		return 0
	}
	binWidth := float64(rate) / float64(n)
	lo := int(math.Ceil(minPitchHz / binWidth))
	hi := int(math.Floor(maxPitchHz / binWidth))

	best, bestMag := 0.0, 0.0
	for k := lo; k <= hi; k++ {
		w := 2 * math.Pi * float64(k) / float64(n)
		var re, im float64
		for i, s := range frame {
			re += float64(s) * math.Cos(w*float64(i))
			im -= float64(s) * math.Sin(w*float64(i))
		}
		mag := re*re + im*im
		if mag > bestMag {
			bestMag = mag
			best = float64(k) * binWidth
		}
	}
	if bestMag < energyFloor {
		return 0
	}
	return best
}
