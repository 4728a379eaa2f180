package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"aura.town/audio"
	"aura.town/etc"
	"aura.town/gemini"
	"aura.town/mic"
	"aura.town/playback"
	"aura.town/store"
	"aura.town/typewriter"
	"aura.town/voice"
)

// Config carries the fixed parameters of a controller.
type Config struct {
	APIKey string
	Model  string
	URL    string
}

// Collaborators are the controller's injected dependencies.
type Collaborators struct {
	Store      store.Store
	OpenMic    func() (Capture, error)
	OpenDevice func() (playback.Device, error)
	Connect    Connector
	Speech     Synthesizer
	Personas   PersonaResolver
	Wake       WakeControl
}

// Controller owns the session lifecycle: resource acquisition, remote
// callback wiring, state transitions, and cleanup. At most one session
// is live at a time; starts while non-idle are no-ops.
type Controller struct {
	cfg   Config
	co    Collaborators
	log   *log.Logger
	typer *typewriter.Typewriter

	mu          sync.Mutex
	state       State
	sess        *Session
	capture     Capture
	dev         playback.Device
	sched       *playback.Scheduler
	userStopped bool
	suppressMic bool
	reauth      bool
	errMessage  string

	// Per-turn transcript accumulators. The assistant transcript is
	// cumulative on the wire; assistantSeen tracks the prefix already
	// handed to the typewriter.
	userTranscript string
	assistantSeen  string

	onState          func(State)
	onUserTranscript func(string)
	onSpeaking       func(bool)
}

func NewController(cfg Config, co Collaborators, logger *log.Logger) *Controller {
	return &Controller{
		cfg:   cfg,
		co:    co,
		log:   logger,
		typer: typewriter.New(),
		state: StateIdle,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMessage
}

// ReauthRequired reports whether the last failure demands new
// credentials rather than a plain retry.
func (c *Controller) ReauthRequired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reauth
}

// CurrentSession returns the live session's ID and start time. ok is
// false when no session is live.
func (c *Controller) CurrentSession() (id string, startedAt time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return "", time.Time{}, false
	}
	return c.sess.ID, c.sess.StartedAt, true
}

// Typewriter exposes the assistant transcript reveal for UIs.
func (c *Controller) Typewriter() *typewriter.Typewriter {
	return c.typer
}

func (c *Controller) Speaking() bool {
	c.mu.Lock()
	sched := c.sched
	c.mu.Unlock()
	return sched != nil && sched.Speaking()
}

func (c *Controller) SetOnState(fn func(State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Controller) SetOnUserTranscript(fn func(string)) {
	c.mu.Lock()
	c.onUserTranscript = fn
	c.mu.Unlock()
}

func (c *Controller) SetOnSpeaking(fn func(bool)) {
	c.mu.Lock()
	c.onSpeaking = fn
	c.mu.Unlock()
}

// HandleWake is the wake-word listener's callback.
func (c *Controller) HandleWake() {
	if err := c.Start(context.Background(), TriggerWakeWord); err != nil {
		c.log.Error("wake-triggered start failed", "error", err)
	}
}

// Start establishes a session. Preconditions: controller idle (starts
// while greeting or active are no-ops) and a profile configured.
func (c *Controller) Start(ctx context.Context, trigger Trigger) error {
	profile, err := c.co.Store.Profile(ctx)
	if err != nil {
		return fmt.Errorf("cannot start without an identity: %w", err)
	}

	c.mu.Lock()
	if c.state == StateActive || c.state == StateGreeting {
		c.mu.Unlock()
		c.log.Debug("start ignored, session already live")
		return nil
	}
	next := StateActive
	if trigger == TriggerWakeWord && c.co.Speech != nil {
		next = StateGreeting
	}
	c.state = next
	c.userStopped = false
	c.reauth = false
	c.errMessage = ""
	c.userTranscript = ""
	c.assistantSeen = ""
	c.mu.Unlock()

	c.notifyState(next)
	if c.co.Wake != nil {
		c.co.Wake.SetListening(false)
	}
	c.typer.Reset()
	c.notifyUserTranscript("")

	capture, err := c.co.OpenMic()
	if err != nil {
		if errors.Is(err, mic.ErrPermission) {
			c.log.Error("microphone permission denied")
		}
		c.fail(msgMicrophone, err)
		return err
	}

	dev, err := c.co.OpenDevice()
	if err != nil {
		capture.Close()
		c.fail(msgOutput, err)
		return err
	}
	sched := playback.NewScheduler(dev, c.log)

	c.mu.Lock()
	c.capture = capture
	c.dev = dev
	c.sched = sched
	speaking := c.onSpeaking
	c.mu.Unlock()
	if speaking != nil {
		sched.SetOnSpeaking(speaking)
	}

	pref, err := c.co.Store.VoicePreference(ctx)
	if err != nil {
		c.log.Warn("failed to load voice preference", "error", err)
		pref = ""
	}
	persona := c.co.Personas.Determine(ctx, pref, capture.Frames())

	if _, err := sched.Schedule(audio.StartChime()); err != nil {
		c.log.Warn("failed to play start sound", "error", err)
	}

	if next == StateGreeting {
		c.setSuppressed(true)
		go c.playGreeting(ctx, profile, persona)
	}

	stream, err := c.co.Connect(ctx, gemini.LiveConfig{
		APIKey:        c.cfg.APIKey,
		URL:           c.cfg.URL,
		Model:         c.cfg.Model,
		UserName:      profile.DisplayName,
		AssistantName: profile.AssistantName,
		Persona:       persona,
	}, gemini.Callbacks{
		OnOpen:    func() { c.log.Info("session opened") },
		OnMessage: c.handleMessage,
		OnError:   c.handleError,
		OnClose:   c.handleClose,
	}, c.log)
	if err != nil {
		if credentialInvalid(err) {
			c.fail(msgCredential, err)
			c.mu.Lock()
			c.reauth = true
			c.mu.Unlock()
		} else {
			c.fail(msgConnectivity, err)
		}
		return err
	}

	c.mu.Lock()
	if c.state == StateError {
		// The greeting aborted the attempt while we were connecting.
		c.mu.Unlock()
		stream.Close()
		return errors.New("session aborted before it was established")
	}
	sess := &Session{ID: etc.NewFreshID(), StartedAt: time.Now(), stream: stream}
	c.sess = sess
	c.mu.Unlock()

	go c.pump(stream, capture.Frames())
	c.log.Info("session started", "trigger", trigger, "id", sess.ID)
	return nil
}

// pump forwards captured frames to the remote stream, fire and forget.
// Frames arriving while the greeting plays are discarded.
func (c *Controller) pump(stream LiveStream, frames <-chan []float32) {
	for frame := range frames {
		if c.suppressed() {
			continue
		}
		if err := stream.SendRealtimeInput(frame); err != nil {
			c.log.Debug("dropping outbound frame", "error", err)
		}
	}
}

// playGreeting speaks the introductory utterance while the session is
// still being established. A failed greeting aborts the session
// attempt; mic suppression is always lifted on the way out.
func (c *Controller) playGreeting(ctx context.Context, profile *store.Profile, persona voice.Persona) {
	defer c.finishGreeting()

	text := gemini.GreetingText(profile.AssistantName, profile.DisplayName)
	chunk, err := c.co.Speech.Synthesize(ctx, text, persona)
	if err != nil {
		c.log.Error("greeting synthesis failed", "error", err)
		c.fail(msgGreeting, err)
		return
	}

	c.mu.Lock()
	sched := c.sched
	c.mu.Unlock()
	if sched == nil {
		return
	}
	if _, err := sched.Schedule(chunk); err != nil {
		c.log.Error("failed to play greeting", "error", err)
		c.fail(msgGreeting, err)
		return
	}

	timer := time.NewTimer(chunk.Duration())
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// finishGreeting lifts microphone suppression and promotes the state
// to active once greeting playback is over.
func (c *Controller) finishGreeting() {
	c.setSuppressed(false)
	c.mu.Lock()
	promoted := c.state == StateGreeting
	if promoted {
		c.state = StateActive
	}
	c.mu.Unlock()
	if promoted {
		c.notifyState(StateActive)
	}
}

// handleMessage demultiplexes one remote event: live user speech text,
// turn-complete markers, and synthesized audio with its cumulative
// transcript.
func (c *Controller) handleMessage(msg *gemini.ServerMessage) {
	sc := msg.ServerContent
	if sc == nil {
		return
	}

	c.mu.Lock()
	if c.sess == nil || c.state == StateError || c.state == StateIdle {
		// Racing with cleanup; the session is gone.
		c.mu.Unlock()
		return
	}
	sched := c.sched

	userText := ""
	haveUser := false
	if sc.InputTranscription != nil {
		c.userTranscript = sc.InputTranscription.Text
		userText, haveUser = c.userTranscript, true
	}

	var chunk *audio.Chunk
	if b64 := sc.Audio(); b64 != "" {
		decoded, err := audio.DecodeChunk(b64, audio.OutputSampleRate)
		if err != nil {
			c.log.Warn("failed to decode audio chunk", "error", err)
		} else {
			chunk = decoded
		}
	}

	delta := ""
	if sc.OutputTranscription != nil {
		full := sc.OutputTranscription.Text
		if strings.HasPrefix(full, c.assistantSeen) {
			delta = full[len(c.assistantSeen):]
		} else {
			// The cumulative transcript restarted; treat it as a
			// fresh utterance and reveal the whole thing.
			delta = full
		}
		c.assistantSeen = full
	}

	turnDone := sc.TurnComplete
	turnUser, turnAssistant := "", ""
	if turnDone {
		turnUser, turnAssistant = c.userTranscript, c.assistantSeen
		c.userTranscript = ""
		c.assistantSeen = ""
	}
	c.mu.Unlock()

	if haveUser {
		c.notifyUserTranscript(userText)
	}

	if chunk != nil {
		duration := chunk.Seconds()
		if sched != nil {
			if _, err := sched.Schedule(chunk); err != nil {
				c.log.Warn("failed to schedule playback", "error", err)
			}
		}
		if delta != "" {
			c.typer.StreamText(delta, duration)
		}
	} else if delta != "" {
		c.typer.StreamText(delta, 0)
	}

	if turnDone {
		if err := c.co.Store.AddConversation(context.Background(), turnUser, turnAssistant); err != nil {
			c.log.Warn("failed to persist conversation turn", "error", err)
		}
		c.notifyUserTranscript("")
	}
}

// Stop closes the live session at the user's request. The departure
// sound plays before resources are released.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return fmt.Errorf("no session to stop")
	}
	c.userStopped = true
	stream := c.sess.stream
	c.mu.Unlock()

	if err := stream.Close(); err != nil {
		// Closing failed; clean up without the sound.
		c.log.Error("error closing session", "error", err)
		c.mu.Lock()
		c.userStopped = false
		c.sess = nil
		c.mu.Unlock()
		c.finishClose()
		return err
	}
	return nil
}

func (c *Controller) handleError(err error) {
	if credentialInvalid(err) {
		c.fail(msgCredential, err)
		c.mu.Lock()
		c.reauth = true
		c.mu.Unlock()
		return
	}
	c.fail(msgConnectivity, err)
}

func (c *Controller) handleClose(cause error) {
	c.mu.Lock()
	if c.state == StateError {
		// The error path already tore everything down.
		c.mu.Unlock()
		return
	}
	userStopped := c.userStopped
	c.userStopped = false
	c.sess = nil
	sched := c.sched
	c.mu.Unlock()

	c.log.Info("session closed", "userStopped", userStopped, "cause", cause)

	if userStopped && sched != nil {
		// Drop any still-queued reply audio so the departure sound
		// starts immediately instead of behind the playback cursor.
		sched.Reset()
		chime := audio.EndChime()
		wait := chime.Duration() + 100*time.Millisecond
		if _, err := sched.Schedule(chime); err != nil {
			c.log.Warn("failed to play end sound", "error", err)
			c.finishClose()
			return
		}
		time.AfterFunc(wait, c.finishClose)
		return
	}
	c.finishClose()
}

// finishClose releases resources and returns to idle, which re-arms
// wake-word listening.
func (c *Controller) finishClose() {
	c.cleanup()
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	c.notifyState(StateIdle)
	if c.co.Wake != nil {
		c.co.Wake.SetListening(true)
	}
}

func (c *Controller) fail(message string, err error) {
	c.mu.Lock()
	if c.state == StateError {
		c.mu.Unlock()
		return
	}
	c.state = StateError
	c.errMessage = message
	var stream LiveStream
	if c.sess != nil {
		stream = c.sess.stream
		c.sess = nil
	}
	c.mu.Unlock()

	c.log.Error("session failed", "error", err)
	if stream != nil {
		stream.Close()
	}
	c.cleanup()
	c.notifyState(StateError)
}

// ClearError acknowledges a failure and returns to idle so the user
// can retry.
func (c *Controller) ClearError() {
	c.mu.Lock()
	if c.state != StateError {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.errMessage = ""
	c.mu.Unlock()

	c.notifyState(StateIdle)
	if c.co.Wake != nil {
		c.co.Wake.SetListening(true)
	}
}

// cleanup releases every held resource. Idempotent and callable from
// any state.
func (c *Controller) cleanup() {
	c.mu.Lock()
	capture, dev, sched := c.capture, c.dev, c.sched
	c.capture, c.dev, c.sched = nil, nil, nil
	c.suppressMic = false
	c.userTranscript = ""
	c.assistantSeen = ""
	c.mu.Unlock()

	if capture != nil {
		capture.Close()
	}
	if sched != nil {
		sched.Reset()
	}
	if dev != nil {
		if err := dev.Close(); err != nil {
			c.log.Warn("failed to close playback device", "error", err)
		}
	}
}

func (c *Controller) setSuppressed(on bool) {
	c.mu.Lock()
	c.suppressMic = on
	c.mu.Unlock()
}

func (c *Controller) suppressed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressMic
}

func (c *Controller) notifyState(state State) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (c *Controller) notifyUserTranscript(text string) {
	c.mu.Lock()
	fn := c.onUserTranscript
	c.mu.Unlock()
	if fn != nil {
		fn(text)
	}
}
