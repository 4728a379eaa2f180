package playback

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"aura.town/audio"
)

// Source is a handle to one chunk that has been placed on the playback
// timeline.
type Source interface {
	Stop()
}

// Device is the output half of the audio hardware: a monotonic clock
// plus the ability to start a chunk at a given point on that clock.
// The done callback fires on natural playback completion, not when the
// source is stopped early.
type Device interface {
	Now() float64
	Start(chunk *audio.Chunk, at float64, done func()) (Source, error)
	Close() error
}

// Scheduler places decoded chunks on the playback timeline so they play
// gapless and in arrival order regardless of network jitter. A newly
// scheduled chunk starts at max(cursor, device now) and advances the
// cursor by its duration; the cursor never moves backwards.
type Scheduler struct {
	mu         sync.Mutex
	dev        Device
	cursor     float64
	active     map[int]Source
	nextID     int
	onSpeaking func(bool)
	log        *log.Logger
}

func NewScheduler(dev Device, logger *log.Logger) *Scheduler {
	return &Scheduler{
		dev:    dev,
		active: make(map[int]Source),
		log:    logger,
	}
}

// SetOnSpeaking registers a callback for edges of the speaking
// indicator: true when the active set becomes non-empty, false when it
// empties again.
func (s *Scheduler) SetOnSpeaking(fn func(bool)) {
	s.mu.Lock()
	s.onSpeaking = fn
	s.mu.Unlock()
}

// Schedule inserts the chunk onto the timeline and returns its start
// time on the device clock. Ownership of the chunk transfers to the
// scheduler.
func (s *Scheduler) Schedule(chunk *audio.Chunk) (float64, error) {
	if chunk == nil || len(chunk.Samples) == 0 {
		return 0, fmt.Errorf("empty chunk")
	}

	s.mu.Lock()

	start := s.cursor
	if now := s.dev.Now(); now > start {
		start = now
	}

	id := s.nextID
	s.nextID++

	src, err := s.dev.Start(chunk, start, func() { s.complete(id) })
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("start playback source: %w", err)
	}

	s.cursor = start + chunk.Seconds()
	wasEmpty := len(s.active) == 0
	s.active[id] = src
	fn := s.onSpeaking
	s.mu.Unlock()

	if wasEmpty && fn != nil {
		fn(true)
	}
	return start, nil
}

// Speaking reports whether any scheduled chunk is still live.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) > 0
}

// Cursor returns the next available start time on the timeline.
func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Scheduler) complete(id int) {
	s.mu.Lock()
	if _, ok := s.active[id]; !ok {
		// Already removed by Reset racing with completion.
		s.mu.Unlock()
		return
	}
	delete(s.active, id)
	emptied := len(s.active) == 0
	fn := s.onSpeaking
	s.mu.Unlock()

	if emptied && fn != nil {
		fn(false)
	}
}

// Reset stops every live source, clears the set, and zeroes the cursor.
// Used only during full session cleanup.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	sources := make([]Source, 0, len(s.active))
	for _, src := range s.active {
		sources = append(sources, src)
	}
	hadActive := len(s.active) > 0
	s.active = make(map[int]Source)
	s.cursor = 0
	fn := s.onSpeaking
	s.mu.Unlock()

	for _, src := range sources {
		src.Stop()
	}
	if hadActive && fn != nil {
		fn(false)
	}
}
