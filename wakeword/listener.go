package wakeword

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"aura.town/audio"
	"aura.town/stt"
)

// Listener watches a continuous recognition stream for a trigger
// phrase. The wake event is edge triggered: it fires at most once per
// listening session no matter how often the phrase recurs, and re-arms
// only when listening is switched off and back on. Recognition engines
// may self-terminate on silence; the listener restarts them for as long
// as listening stays on.
type Listener struct {
	phrase      string
	language    string
	recognition stt.SpeechRecognition
	frames      <-chan []float32
	log         *log.Logger

	// RestartDelay spaces out recognizer restarts.
	RestartDelay time.Duration

	mu        sync.Mutex
	listening bool
	fired     bool
	cancel    context.CancelFunc
	onWake    func()
	onError   func(error)
}

// NewListener builds a listener for phrase. frames may be nil when the
// recognition engine captures its own audio.
func NewListener(phrase, language string, recognition stt.SpeechRecognition, frames <-chan []float32, logger *log.Logger) *Listener {
	return &Listener{
		phrase:       strings.ToLower(phrase),
		language:     language,
		recognition:  recognition,
		frames:       frames,
		log:          logger,
		RestartDelay: 250 * time.Millisecond,
	}
}

// SetOnWake registers the wake callback.
func (l *Listener) SetOnWake(fn func()) {
	l.mu.Lock()
	l.onWake = fn
	l.mu.Unlock()
}

// SetOnError registers a callback for recognition failures that are
// not part of the normal idle cycle.
func (l *Listener) SetOnError(fn func(error)) {
	l.mu.Lock()
	l.onError = fn
	l.mu.Unlock()
}

func (l *Listener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listening
}

// SetListening turns the ambient recognition loop on or off. Turning
// it on re-arms the wake latch.
func (l *Listener) SetListening(on bool) {
	l.mu.Lock()
	if on == l.listening {
		l.mu.Unlock()
		return
	}
	l.listening = on
	if !on {
		cancel := l.cancel
		l.cancel = nil
		l.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}
	l.fired = false
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.mu.Unlock()

	go l.run(ctx)
}

func (l *Listener) run(ctx context.Context) {
	for ctx.Err() == nil {
		rec, err := l.recognition.Start(ctx, l.language)
		if err != nil {
			if errors.Is(err, stt.ErrAlreadyStarted) {
				l.log.Debug("recognizer already running, keeping it")
			} else {
				l.log.Warn("failed to start recognizer", "error", err)
			}
			if !l.pause(ctx) {
				return
			}
			continue
		}

		ended := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				rec.Stop()
			case <-ended:
			}
		}()
		go l.pump(ctx, rec)

		for res := range rec.Results() {
			l.match(res)
		}
		close(ended)

		if err := rec.Err(); err != nil && !stt.Benign(err) {
			l.log.Warn("recognition stream failed", "error", err)
			l.mu.Lock()
			fn := l.onError
			l.mu.Unlock()
			if fn != nil {
				fn(err)
			}
		} else {
			l.log.Debug("recognizer ended, restarting")
		}

		if !l.pause(ctx) {
			return
		}
	}
}

func (l *Listener) pause(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(l.RestartDelay):
		return true
	}
}

func (l *Listener) pump(ctx context.Context, rec stt.SpeechRecognizer) {
	if l.frames == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-l.frames:
			if !ok {
				return
			}
			if err := rec.SendAudio(audio.FloatToPCM16(frame)); err != nil {
				return
			}
		}
	}
}

func (l *Listener) match(res stt.Result) {
	if !strings.Contains(res.Transcript(), l.phrase) {
		return
	}
	l.mu.Lock()
	if l.fired || !l.listening {
		l.mu.Unlock()
		return
	}
	l.fired = true
	fn := l.onWake
	l.mu.Unlock()

	l.log.Info("wake phrase detected", "phrase", l.phrase)
	if fn != nil {
		fn()
	}
}
