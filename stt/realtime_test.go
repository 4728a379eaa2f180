package stt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

func TestResultTranscriptJoinsAlternatives(t *testing.T) {
	r := Result{Alternatives: []Alternative{
		{Transcript: "Hey"},
		{Transcript: "AURA"},
	}}
	if got := r.Transcript(); got != "hey aura" {
		t.Errorf("transcript = %q, want %q", got, "hey aura")
	}

	if got := (Result{}).Transcript(); got != "" {
		t.Errorf("empty result transcript = %q, want empty", got)
	}
}

func TestBenignErrors(t *testing.T) {
	if !Benign(ErrNoSpeech) || !Benign(ErrAborted) {
		t.Error("no-speech and aborted must be benign")
	}
	if Benign(io.EOF) || Benign(nil) {
		t.Error("unrelated errors must not be benign")
	}
}

func TestServerErrorMapping(t *testing.T) {
	err := serverError(serverMessage{Type: "idle_timeout", Reason: "silence"})
	if !Benign(err) {
		t.Errorf("idle_timeout should map to a benign error, got %v", err)
	}

	err = serverError(serverMessage{Type: "not_authorised", Reason: "bad key"})
	if Benign(err) {
		t.Error("not_authorised must not be benign")
	}
	if !strings.Contains(err.Error(), "not_authorised") {
		t.Errorf("error should carry the server type, got %v", err)
	}
}

// fakeServer upgrades the connection, records the StartRecognition
// handshake, and then runs script against the socket.
func fakeServer(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var start startRecognitionMessage
		if err := conn.ReadJSON(&start); err != nil {
			t.Errorf("read StartRecognition: %v", err)
			return
		}
		if start.Message != "StartRecognition" {
			t.Errorf("handshake message = %q", start.Message)
		}
		if start.AudioFormat.SampleRate != 16000 {
			t.Errorf("handshake sample rate = %d", start.AudioFormat.SampleRate)
		}
		script(conn)
	}))
}

func dialFake(t *testing.T, srv *httptest.Server) SpeechRecognizer {
	t.Helper()
	r := NewRealtimeRecognition("test-key", log.New(io.Discard))
	r.URL = "ws" + strings.TrimPrefix(srv.URL, "http")

	rec, err := r.Start(context.Background(), "en")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return rec
}

func TestRealtimeTranscripts(t *testing.T) {
	srv := fakeServer(t, func(conn *websocket.Conn) {
		partial, _ := json.Marshal(map[string]any{
			"message": "AddPartialTranscript",
			"results": []map[string]any{{
				"alternatives": []map[string]any{{"content": "hey", "confidence": 0.4}},
				"start_time":   0.0,
				"end_time":     0.5,
			}},
		})
		conn.WriteMessage(websocket.TextMessage, partial)

		final, _ := json.Marshal(map[string]any{
			"message": "AddTranscript",
			"results": []map[string]any{{
				"alternatives": []map[string]any{{"content": "hey aura", "confidence": 0.9}},
				"start_time":   0.0,
				"end_time":     1.2,
			}},
		})
		conn.WriteMessage(websocket.TextMessage, final)

		end, _ := json.Marshal(map[string]any{"message": "EndOfTranscript"})
		conn.WriteMessage(websocket.TextMessage, end)
	})
	defer srv.Close()

	rec := dialFake(t, srv)
	defer rec.Stop()

	var results []Result
	timeout := time.After(2 * time.Second)
	for {
		select {
		case res, ok := <-rec.Results():
			if !ok {
				goto done
			}
			results = append(results, res)
		case <-timeout:
			t.Fatal("timed out waiting for results")
		}
	}
done:
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Final || !results[1].Final {
		t.Errorf("finality flags = %v %v, want false true", results[0].Final, results[1].Final)
	}
	if got := results[1].Transcript(); got != "hey aura" {
		t.Errorf("final transcript = %q", got)
	}
	if !Benign(rec.Err()) {
		t.Errorf("end of transcript should leave a benign error, got %v", rec.Err())
	}
}

func TestRealtimeSendAudio(t *testing.T) {
	got := make(chan []byte, 1)
	srv := fakeServer(t, func(conn *websocket.Conn) {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.BinaryMessage {
			got <- data
		}
		// Hold the socket open until the client stops.
		conn.ReadMessage()
	})
	defer srv.Close()

	rec := dialFake(t, srv)
	defer rec.Stop()

	if err := rec.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("send audio: %v", err)
	}

	select {
	case data := <-got:
		if len(data) != 4 {
			t.Errorf("server received %d bytes, want 4", len(data))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received audio")
	}
}

func TestRealtimeStopIsAborted(t *testing.T) {
	srv := fakeServer(t, func(conn *websocket.Conn) {
		// Read until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	rec := dialFake(t, srv)
	rec.Stop()

	select {
	case _, ok := <-rec.Results():
		if ok {
			t.Error("unexpected result after stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("results channel not closed after stop")
	}
	if !Benign(rec.Err()) {
		t.Errorf("stop should read as benign, got %v", rec.Err())
	}
}
