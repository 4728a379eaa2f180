package stt

import (
	"context"
	"errors"
	"strings"
)

// Alternative is one hypothesis for a stretch of recognized speech.
type Alternative struct {
	Transcript string
	Confidence float64
}

// Result is one recognition event. Interim results may be revised
// later; Final marks a settled hypothesis.
type Result struct {
	Alternatives []Alternative
	Final        bool
	Start        float64
	Duration     float64
}

// Transcript joins every alternative's text into one lowercase string.
// Used for trigger-phrase matching, where recall matters more than
// picking the single best hypothesis.
func (r Result) Transcript() string {
	parts := make([]string, 0, len(r.Alternatives))
	for _, alt := range r.Alternatives {
		parts = append(parts, alt.Transcript)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// SpeechRecognizer is a live recognition stream. Results is closed when
// the stream ends, whether by Stop, server shutdown, or error; Err
// reports the terminal error afterwards.
type SpeechRecognizer interface {
	SendAudio(data []byte) error
	Results() <-chan Result
	Err() error
	Stop() error
}

// SpeechRecognition creates recognition streams.
type SpeechRecognition interface {
	Start(ctx context.Context, language string) (SpeechRecognizer, error)
}

var (
	// ErrAlreadyStarted means a start was requested while a stream was
	// already live. Callers keeping a stream alive treat it as success.
	ErrAlreadyStarted = errors.New("recognizer already started")

	// ErrNoSpeech is the engine giving up after a silence timeout.
	ErrNoSpeech = errors.New("no speech detected")

	// ErrAborted is a recognition cancelled from outside.
	ErrAborted = errors.New("recognition aborted")
)

// Benign reports whether err is an expected idle-path ending rather
// than a failure worth surfacing.
func Benign(err error) bool {
	return errors.Is(err, ErrNoSpeech) || errors.Is(err, ErrAborted)
}
