package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"aura.town/session"
)

type stateMsg session.State
type userTranscriptMsg string
type assistantTextMsg string
type speakingMsg bool

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff8800"))
	idleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type model struct {
	viewport      viewport.Model
	ctrl          *session.Controller
	events        chan tea.Msg
	assistantName string

	state         session.State
	userLine      string
	assistantText string
	speaking      bool
	ready         bool
}

// Run wires the controller's callbacks into a terminal view and blocks
// until the user quits.
func Run(ctrl *session.Controller, assistantName string) error {
	events := make(chan tea.Msg, 64)
	emit := func(msg tea.Msg) {
		select {
		case events <- msg:
		default:
		}
	}

	ctrl.SetOnState(func(s session.State) { emit(stateMsg(s)) })
	ctrl.SetOnUserTranscript(func(text string) { emit(userTranscriptMsg(text)) })
	ctrl.SetOnSpeaking(func(on bool) { emit(speakingMsg(on)) })
	ctrl.Typewriter().SetOnChange(func(text string) { emit(assistantTextMsg(text)) })

	m := model{
		ctrl:          ctrl,
		events:        events,
		assistantName: assistantName,
		state:         ctrl.State(),
	}
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (m model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(events chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.state == session.StateActive || m.state == session.StateGreeting {
				m.ctrl.Stop()
			}
			return m, tea.Quit
		case "s":
			go m.ctrl.Start(context.Background(), session.TriggerManual)
		case "x":
			if m.state == session.StateActive || m.state == session.StateGreeting {
				m.ctrl.Stop()
			}
		case "r":
			m.ctrl.ClearError()
		}

	case stateMsg:
		m.state = session.State(msg)
		return m, waitForEvent(m.events)
	case userTranscriptMsg:
		m.userLine = string(msg)
		return m, waitForEvent(m.events)
	case assistantTextMsg:
		m.assistantText = string(msg)
		if m.ready {
			m.viewport.SetContent(m.assistantText)
			m.viewport.GotoBottom()
		}
		return m, waitForEvent(m.events)
	case speakingMsg:
		m.speaking = bool(msg)
		return m, waitForEvent(m.events)

	case tea.WindowSizeMsg:
		headerHeight := 3
		footerHeight := 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.viewport.SetContent(m.assistantText)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if !m.ready {
		return "starting..."
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(m.assistantName))
	b.WriteString("  ")
	b.WriteString(m.statusBadge())
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.userLine != "" {
		b.WriteString(userStyle.Render("you: " + m.userLine))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("s start · x stop · r retry · q quit"))
	return b.String()
}

func (m model) statusBadge() string {
	switch m.state {
	case session.StateActive:
		if m.speaking {
			return activeStyle.Render("● speaking")
		}
		return activeStyle.Render("listening")
	case session.StateGreeting:
		return activeStyle.Render("greeting")
	case session.StateError:
		msg := m.ctrl.ErrorMessage()
		return errorStyle.Render(fmt.Sprintf("error: %s", msg))
	}
	return idleStyle.Render("idle, say the wake word or press s")
}
