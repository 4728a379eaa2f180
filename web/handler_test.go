package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"aura.town/playback"
	"aura.town/session"
	"aura.town/store"
)

func testHandler(t *testing.T) (*Handler, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	ctrl := session.NewController(session.Config{}, session.Collaborators{
		Store:      st,
		OpenMic:    func() (session.Capture, error) { return nil, io.ErrClosedPipe },
		OpenDevice: func() (playback.Device, error) { return nil, io.ErrClosedPipe },
	}, log.New(io.Discard))
	return NewHandler(ctrl, st, log.New(io.Discard)), st
}

func TestStatusEndpoint(t *testing.T) {
	h, _ := testHandler(t)
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var status struct {
		State    string `json:"state"`
		Speaking bool   `json:"speaking"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.State != "idle" {
		t.Errorf("state = %q, want idle", status.State)
	}
	if status.Speaking {
		t.Error("speaking without a session")
	}
}

func TestConversationsPage(t *testing.T) {
	h, st := testHandler(t)
	st.AddConversation(context.Background(), "what time is it", "It is noon.")

	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/conversations")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	if !strings.Contains(page, "what time is it") || !strings.Contains(page, "It is noon.") {
		t.Errorf("history entries missing from page")
	}
}
