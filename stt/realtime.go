package stt

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"aura.town/audio"
)

const (
	RealtimeBaseURL = "wss://eu2.rt.speechmatics.com/v2"
	pingInterval    = 30 * time.Second
	pongTimeout     = 60 * time.Second
)

type transcriptionConfig struct {
	Language       string  `json:"language"`
	EnablePartials bool    `json:"enable_partials"`
	MaxDelay       float64 `json:"max_delay,omitempty"`
}

type audioFormat struct {
	Type       string `json:"type"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type startRecognitionMessage struct {
	Message             string              `json:"message"`
	AudioFormat         audioFormat         `json:"audio_format"`
	TranscriptionConfig transcriptionConfig `json:"transcription_config"`
}

type endOfStreamMessage struct {
	Message   string `json:"message"`
	LastSeqNo int    `json:"last_seq_no"`
}

type serverMessage struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Reason  string `json:"reason"`
	Results []struct {
		Alternatives []struct {
			Confidence float64 `json:"confidence"`
			Content    string  `json:"content"`
		} `json:"alternatives"`
		StartTime float64 `json:"start_time"`
		EndTime   float64 `json:"end_time"`
	} `json:"results"`
}

// RealtimeRecognition streams microphone audio to the Speechmatics
// realtime API and yields interim and final transcripts.
type RealtimeRecognition struct {
	APIKey string
	URL    string
	log    *log.Logger
}

func NewRealtimeRecognition(apiKey string, logger *log.Logger) *RealtimeRecognition {
	return &RealtimeRecognition{
		APIKey: apiKey,
		URL:    RealtimeBaseURL,
		log:    logger,
	}
}

func (r *RealtimeRecognition) Start(ctx context.Context, language string) (SpeechRecognizer, error) {
	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("Bearer %s", r.APIKey))

	url := fmt.Sprintf("%s/%s", r.URL, language)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect recognition socket: %w", err)
	}

	startMsg := startRecognitionMessage{
		Message: "StartRecognition",
		AudioFormat: audioFormat{
			Type:       "raw",
			Encoding:   "pcm_s16le",
			SampleRate: audio.InputSampleRate,
		},
		TranscriptionConfig: transcriptionConfig{
			Language:       language,
			EnablePartials: true,
			MaxDelay:       2,
		},
	}
	if err := conn.WriteJSON(startMsg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send StartRecognition message: %w", err)
	}

	rec := &realtimeRecognizer{
		conn:    conn,
		results: make(chan Result, 16),
		log:     r.log,
	}
	go rec.readLoop()
	go rec.keepAlive(ctx)
	return rec, nil
}

type realtimeRecognizer struct {
	conn    *websocket.Conn
	results chan Result
	log     *log.Logger

	writeMu sync.Mutex
	seq     int

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

func (r *realtimeRecognizer) SendAudio(data []byte) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	r.seq++
	return nil
}

func (r *realtimeRecognizer) Results() <-chan Result {
	return r.results
}

func (r *realtimeRecognizer) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

func (r *realtimeRecognizer) setErr(err error) {
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.errMu.Unlock()
}

func (r *realtimeRecognizer) Stop() error {
	var err error
	r.closeOnce.Do(func() {
		r.setErr(ErrAborted)

		r.writeMu.Lock()
		end := endOfStreamMessage{Message: "EndOfStream", LastSeqNo: r.seq}
		if werr := r.conn.WriteJSON(end); werr != nil {
			err = fmt.Errorf("failed to send EndOfStream message: %w", werr)
		}
		r.writeMu.Unlock()

		if cerr := r.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}

func (r *realtimeRecognizer) readLoop() {
	defer close(r.results)

	for {
		var msg serverMessage
		if err := r.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.setErr(fmt.Errorf("recognition socket closed: %w", err))
			} else {
				r.setErr(ErrAborted)
			}
			return
		}

		switch msg.Message {
		case "AddTranscript", "AddPartialTranscript":
			result := resultFromMessage(msg)
			if len(result.Alternatives) == 0 {
				continue
			}
			select {
			case r.results <- result:
			default:
				r.log.Warn("dropping recognition result, consumer too slow")
			}
		case "EndOfTranscript":
			r.setErr(ErrNoSpeech)
			return
		case "Error":
			r.setErr(serverError(msg))
			return
		}
	}
}

func resultFromMessage(msg serverMessage) Result {
	result := Result{Final: msg.Message == "AddTranscript"}
	for _, res := range msg.Results {
		for _, alt := range res.Alternatives {
			if alt.Content == "" {
				continue
			}
			result.Alternatives = append(result.Alternatives, Alternative{
				Transcript: alt.Content,
				Confidence: alt.Confidence,
			})
		}
		if result.Start == 0 {
			result.Start = res.StartTime
		}
		result.Duration = res.EndTime - result.Start
	}
	return result
}

func serverError(msg serverMessage) error {
	switch msg.Type {
	case "timelimit_exceeded", "idle_timeout":
		return fmt.Errorf("%w: %s", ErrNoSpeech, msg.Reason)
	case "job_already_running":
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, msg.Reason)
	}
	return fmt.Errorf("recognition error %s: %s", msg.Type, msg.Reason)
}

func (r *realtimeRecognizer) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(pongTimeout)
			if err := r.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
				return
			}
		}
	}
}
