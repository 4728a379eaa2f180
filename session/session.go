package session

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"aura.town/audio"
	"aura.town/gemini"
	"aura.town/voice"
)

// State is the controller's lifecycle position.
type State string

const (
	StateIdle     State = "idle"
	StateGreeting State = "greeting"
	StateActive   State = "active"
	StateError    State = "error"
)

// Trigger says how a session start was requested.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerWakeWord Trigger = "wakeword"
)

// Capture is an open microphone. Frames closes when the capture is
// closed.
type Capture interface {
	Frames() <-chan []float32
	Close()
}

// LiveStream is an established remote conversation.
type LiveStream interface {
	SendRealtimeInput(frame []float32) error
	Close() error
}

// Connector opens a live stream and wires its callbacks.
type Connector func(ctx context.Context, cfg gemini.LiveConfig, callbacks gemini.Callbacks, logger *log.Logger) (LiveStream, error)

// Synthesizer is the one-shot text-to-speech path for the greeting.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, persona voice.Persona) (*audio.Chunk, error)
}

// PersonaResolver picks a voice persona for the session.
type PersonaResolver interface {
	Determine(ctx context.Context, pref voice.Preference, frames <-chan []float32) voice.Persona
}

// WakeControl arms and disarms ambient wake-word listening.
type WakeControl interface {
	SetListening(bool)
}

// Session is one live conversational stream.
type Session struct {
	ID        string
	StartedAt time.Time
	stream    LiveStream
}

// User-visible failure messages.
const (
	msgMicrophone   = "Failed to access microphone. Please check permissions."
	msgOutput       = "Failed to open the audio output device."
	msgCredential   = "Your API key appears to be invalid. Please select a valid key to continue."
	msgConnectivity = "Connection error. Please check your quota or network and try again."
	msgGreeting     = "Failed to play the greeting. Please try again."
)

// credentialInvalid reports whether a remote error looks like a
// rejected or missing API key rather than a transport problem.
func credentialInvalid(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "API_KEY_INVALID") || strings.Contains(msg, "not found")
}
