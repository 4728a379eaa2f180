package wakeword

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"aura.town/stt"
)

type fakeRecognizer struct {
	results chan stt.Result
	err     error
	stopped atomic.Bool
}

func (f *fakeRecognizer) SendAudio(data []byte) error { return nil }
func (f *fakeRecognizer) Results() <-chan stt.Result  { return f.results }
func (f *fakeRecognizer) Err() error                  { return f.err }

func (f *fakeRecognizer) Stop() error {
	if f.stopped.CompareAndSwap(false, true) {
		close(f.results)
	}
	return nil
}

func (f *fakeRecognizer) emit(text string) {
	f.results <- stt.Result{Alternatives: []stt.Alternative{{Transcript: text}}}
}

type fakeRecognition struct {
	mu       sync.Mutex
	starts   int
	startErr error
	current  *fakeRecognizer
	started  chan *fakeRecognizer
}

func newFakeRecognition() *fakeRecognition {
	return &fakeRecognition{started: make(chan *fakeRecognizer, 16)}
}

func (f *fakeRecognition) Start(ctx context.Context, language string) (stt.SpeechRecognizer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		err := f.startErr
		f.startErr = nil
		return nil, err
	}
	rec := &fakeRecognizer{results: make(chan stt.Result, 16), err: stt.ErrNoSpeech}
	f.current = rec
	f.started <- rec
	return rec, nil
}

func (f *fakeRecognition) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func newTestListener(rec *fakeRecognition) *Listener {
	l := NewListener("Hey Aura", "en", rec, nil, log.New(io.Discard))
	l.RestartDelay = time.Millisecond
	return l
}

func waitForStart(t *testing.T, rec *fakeRecognition) *fakeRecognizer {
	t.Helper()
	select {
	case r := <-rec.started:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("recognizer never started")
		return nil
	}
}

func waitForWake(t *testing.T, woke <-chan struct{}) {
	t.Helper()
	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatal("wake event never fired")
	}
}

func TestWakePhraseFiresOnce(t *testing.T) {
	recognition := newFakeRecognition()
	l := newTestListener(recognition)
	defer l.SetListening(false)

	woke := make(chan struct{}, 8)
	l.SetOnWake(func() { woke <- struct{}{} })
	l.SetListening(true)

	rec := waitForStart(t, recognition)
	rec.emit("well HEY aura how are you")
	rec.emit("hey aura again")
	rec.Stop()

	waitForWake(t, woke)

	// The latch holds even across a recognizer restart.
	rec = waitForStart(t, recognition)
	rec.emit("hey aura once more")
	rec.Stop()

	select {
	case <-woke:
		t.Fatal("wake fired a second time in the same listening session")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNonMatchingSpeechIgnored(t *testing.T) {
	recognition := newFakeRecognition()
	l := newTestListener(recognition)
	defer l.SetListening(false)

	woke := make(chan struct{}, 1)
	l.SetOnWake(func() { woke <- struct{}{} })
	l.SetListening(true)

	rec := waitForStart(t, recognition)
	rec.emit("good morning")
	rec.emit("hey laura")

	select {
	case <-woke:
		t.Fatal("wake fired without the trigger phrase")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRestartRearmsLatch(t *testing.T) {
	recognition := newFakeRecognition()
	l := newTestListener(recognition)
	defer l.SetListening(false)

	woke := make(chan struct{}, 8)
	l.SetOnWake(func() { woke <- struct{}{} })

	l.SetListening(true)
	rec := waitForStart(t, recognition)
	rec.emit("hey aura")
	waitForWake(t, woke)

	l.SetListening(false)
	l.SetListening(true)

	rec = waitForStart(t, recognition)
	rec.emit("hey aura")
	waitForWake(t, woke)
}

func TestRecognizerAutoRestarts(t *testing.T) {
	recognition := newFakeRecognition()
	l := newTestListener(recognition)
	defer l.SetListening(false)

	l.SetListening(true)

	// Self-terminating engines get restarted while listening holds.
	for i := 0; i < 3; i++ {
		rec := waitForStart(t, recognition)
		rec.Stop()
	}
	if got := recognition.startCount(); got < 3 {
		t.Errorf("start count = %d, want at least 3", got)
	}
}

func TestAlreadyStartedSwallowed(t *testing.T) {
	recognition := newFakeRecognition()
	recognition.startErr = stt.ErrAlreadyStarted

	l := newTestListener(recognition)
	defer l.SetListening(false)

	var surfaced atomic.Bool
	l.SetOnError(func(error) { surfaced.Store(true) })
	l.SetListening(true)

	// The failed attempt is swallowed and the loop tries again.
	waitForStart(t, recognition)
	if surfaced.Load() {
		t.Error("already-started surfaced as an error")
	}
}

func TestNonBenignErrorSurfaces(t *testing.T) {
	recognition := newFakeRecognition()
	l := newTestListener(recognition)
	defer l.SetListening(false)

	errs := make(chan error, 1)
	l.SetOnError(func(err error) { errs <- err })
	l.SetListening(true)

	rec := waitForStart(t, recognition)
	rec.err = errors.New("socket torn")
	rec.Stop()

	select {
	case err := <-errs:
		if err == nil || err.Error() != "socket torn" {
			t.Errorf("surfaced error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("non-benign error never surfaced")
	}
}

func TestStopListeningStopsRecognizer(t *testing.T) {
	recognition := newFakeRecognition()
	l := newTestListener(recognition)

	l.SetListening(true)
	rec := waitForStart(t, recognition)

	l.SetListening(false)

	deadline := time.Now().Add(2 * time.Second)
	for !rec.stopped.Load() {
		if time.Now().After(deadline) {
			t.Fatal("recognizer not stopped when listening turned off")
		}
		time.Sleep(time.Millisecond)
	}
	if l.Listening() {
		t.Error("still listening after SetListening(false)")
	}
}
