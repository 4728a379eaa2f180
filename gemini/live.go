package gemini

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"aura.town/audio"
	"aura.town/voice"
)

const (
	LiveBaseURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	LiveModel   = "models/gemini-2.5-flash-native-audio-preview-09-2025"

	setupTimeout = 10 * time.Second
)

// Callbacks are the four hooks a live session drives. OnMessage runs
// on the session's read goroutine; handlers must not block.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(*ServerMessage)
	OnError   func(error)
	OnClose   func(error)
}

type LiveConfig struct {
	APIKey        string
	URL           string
	Model         string
	UserName      string
	AssistantName string
	Persona       voice.Persona
}

// LiveSession is a bidirectional audio conversation over the
// BidiGenerateContent websocket.
type LiveSession struct {
	conn      *websocket.Conn
	callbacks Callbacks
	log       *log.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Connect dials the live API, completes the setup handshake, and
// starts the read loop. OnOpen fires before Connect returns.
func Connect(ctx context.Context, cfg LiveConfig, callbacks Callbacks, logger *log.Logger) (*LiveSession, error) {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = LiveBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = LiveModel
	}

	url := fmt.Sprintf("%s?key=%s", baseURL, cfg.APIKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect live session: %w", err)
	}

	setup := setupMessage{
		Setup: setupPayload{
			Model: model,
			GenerationConfig: &generationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig: &speechConfig{
					VoiceConfig: &voiceConfig{
						PrebuiltVoiceConfig: &prebuiltVoiceConfig{
							VoiceName: string(cfg.Persona),
						},
					},
				},
			},
			SystemInstruction: &content{
				Parts: []Part{{Text: SystemPrompt(cfg.AssistantName, cfg.UserName)}},
			},
			InputAudioTranscription:  &struct{}{},
			OutputAudioTranscription: &struct{}{},
		},
	}
	if err := conn.WriteJSON(setup); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send setup message: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(setupTimeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set setup deadline: %w", err)
	}
	var ack ServerMessage
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to receive setup response: %w", err)
	}
	if ack.SetupComplete == nil {
		conn.Close()
		return nil, fmt.Errorf("live session setup not acknowledged")
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to clear setup deadline: %w", err)
	}

	s := &LiveSession{
		conn:      conn,
		callbacks: callbacks,
		log:       logger,
	}
	if callbacks.OnOpen != nil {
		callbacks.OnOpen()
	}
	go s.readLoop()
	return s, nil
}

// SendRealtimeInput forwards one captured microphone frame. Delivery
// is best effort; callers fire and forget.
func (s *LiveSession) SendRealtimeInput(frame []float32) error {
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			Media: &MediaBlob{
				Data:     audio.EncodeFrame(frame),
				MimeType: audio.InputMimeType,
			},
		},
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send audio frame: %w", err)
	}
	return nil
}

func (s *LiveSession) readLoop() {
	for {
		var msg ServerMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				if s.callbacks.OnError != nil {
					s.callbacks.OnError(err)
				}
				s.close(err)
			} else {
				s.close(nil)
			}
			return
		}

		if msg.GoAway != nil {
			s.log.Info("live session asked to go away")
			s.close(nil)
			return
		}
		if s.callbacks.OnMessage != nil {
			s.callbacks.OnMessage(&msg)
		}
	}
}

// Close shuts the session down. Safe to call more than once; OnClose
// fires exactly once, whether closed locally or by the server.
func (s *LiveSession) Close() error {
	s.close(nil)
	return nil
}

func (s *LiveSession) close(cause error) {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.writeMu.Unlock()
		s.conn.Close()

		if s.callbacks.OnClose != nil {
			s.callbacks.OnClose(cause)
		}
	})
}
