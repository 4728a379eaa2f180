package ui

import (
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"aura.town/playback"
	"aura.town/session"
	"aura.town/store"
)

func testModel() model {
	ctrl := session.NewController(session.Config{}, session.Collaborators{
		Store:      store.NewMemory(),
		OpenMic:    func() (session.Capture, error) { return nil, io.ErrClosedPipe },
		OpenDevice: func() (playback.Device, error) { return nil, io.ErrClosedPipe },
	}, log.New(io.Discard))

	m := model{
		ctrl:          ctrl,
		events:        make(chan tea.Msg, 8),
		assistantName: "Aura",
		state:         session.StateIdle,
	}
	resized, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return resized.(model)
}

func TestViewShowsLifecycle(t *testing.T) {
	m := testModel()

	if !strings.Contains(m.View(), "idle") {
		t.Error("idle state not shown")
	}

	updated, _ := m.Update(stateMsg(session.StateActive))
	m = updated.(model)
	if !strings.Contains(m.View(), "listening") {
		t.Error("active state not shown as listening")
	}

	updated, _ = m.Update(speakingMsg(true))
	m = updated.(model)
	if !strings.Contains(m.View(), "speaking") {
		t.Error("speaking indicator missing")
	}
}

func TestViewShowsTranscripts(t *testing.T) {
	m := testModel()

	updated, _ := m.Update(assistantTextMsg("Hello Ada"))
	m = updated.(model)
	if !strings.Contains(m.View(), "Hello Ada") {
		t.Error("assistant text not rendered")
	}

	updated, _ = m.Update(userTranscriptMsg("what time is it"))
	m = updated.(model)
	if !strings.Contains(m.View(), "what time is it") {
		t.Error("user transcript not rendered")
	}
}
