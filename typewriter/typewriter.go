package typewriter

import (
	"strings"
	"sync"
	"time"
)

type entry struct {
	text     string
	duration float64
}

// Typewriter paces the reveal of transcript deltas so that each one
// takes as long to appear as its audio chunk takes to play. Deltas are
// revealed strictly in arrival order, one at a time; later deltas wait
// in the queue.
type Typewriter struct {
	mu         sync.Mutex
	queue      []entry
	processing bool
	displayed  string
	timer      *time.Timer
	generation int
	onChange   func(string)
}

func New() *Typewriter {
	return &Typewriter{}
}

// SetOnChange registers a callback invoked with the full displayed text
// whenever it changes. Used by the terminal view.
func (tw *Typewriter) SetOnChange(fn func(string)) {
	tw.mu.Lock()
	tw.onChange = fn
	tw.mu.Unlock()
}

// StreamText enqueues a transcript delta paired with the playback
// duration of its audio chunk, in seconds.
func (tw *Typewriter) StreamText(text string, durationSeconds float64) {
	tw.mu.Lock()
	tw.queue = append(tw.queue, entry{text: text, duration: durationSeconds})
	tw.processLocked()
	text, fn := tw.displayed, tw.onChange
	tw.mu.Unlock()
	if fn != nil {
		fn(text)
	}
}

// Displayed returns the text revealed so far.
func (tw *Typewriter) Displayed() string {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.displayed
}

// IsTyping reports whether a reveal is mid-flight or queued.
func (tw *Typewriter) IsTyping() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.processing || len(tw.queue) > 0
}

// Reset cancels any pending reveal, empties the queue, and clears the
// displayed text. Called on session (re)start so a prior turn's reveal
// cannot leak into a new one.
func (tw *Typewriter) Reset() {
	tw.mu.Lock()
	if tw.timer != nil {
		tw.timer.Stop()
		tw.timer = nil
	}
	tw.generation++
	tw.queue = nil
	tw.processing = false
	tw.displayed = ""
	fn := tw.onChange
	tw.mu.Unlock()
	if fn != nil {
		fn("")
	}
}

// processLocked pops the next queued delta and begins revealing it.
// Deltas with no words or a non-positive duration are appended whole,
// immediately, and processing advances to the next entry in the same
// call; this avoids stalling the queue on empty or zero-length chunks.
func (tw *Typewriter) processLocked() {
	for {
		if tw.processing || len(tw.queue) == 0 {
			return
		}

		next := tw.queue[0]
		tw.queue = tw.queue[1:]

		words := strings.Fields(next.text)
		if len(words) == 0 || next.duration <= 0 {
			tw.displayed = strings.TrimLeft(tw.displayed+next.text, " ")
			continue
		}

		tw.processing = true
		delay := time.Duration(next.duration * float64(time.Second) / float64(len(words)))
		tw.revealLocked(words, 0, delay, tw.generation)
		return
	}
}

func (tw *Typewriter) revealLocked(words []string, index int, delay time.Duration, generation int) {
	tw.displayed = strings.TrimLeft(tw.displayed+" "+words[index], " ")

	if index+1 >= len(words) {
		tw.timer = time.AfterFunc(delay, func() {
			tw.finish(generation)
		})
		return
	}

	tw.timer = time.AfterFunc(delay, func() {
		tw.step(words, index+1, delay, generation)
	})
}

func (tw *Typewriter) step(words []string, index int, delay time.Duration, generation int) {
	tw.mu.Lock()
	if generation != tw.generation {
		tw.mu.Unlock()
		return
	}
	tw.revealLocked(words, index, delay, generation)
	text, fn := tw.displayed, tw.onChange
	tw.mu.Unlock()
	if fn != nil {
		fn(text)
	}
}

func (tw *Typewriter) finish(generation int) {
	tw.mu.Lock()
	if generation != tw.generation {
		tw.mu.Unlock()
		return
	}
	tw.timer = nil
	tw.processing = false
	tw.processLocked()
	text, fn := tw.displayed, tw.onChange
	tw.mu.Unlock()
	if fn != nil {
		fn(text)
	}
}
