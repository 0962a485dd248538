// Package tui is the terminal chat front end for the doctor, driving either an
// in-process engine or a remote server.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const sendTimeout = 10 * time.Second

type (
	replyMsg string
	endedMsg struct{}
	errMsg   struct{ err error }
)

// Options configures the App.
type Options struct {
	Mode      string // shown in the status bar
	CharLimit int
}

type App struct {
	width, height int
	session       Session
	chat          *Chat
	status        *Status
	input         *Input
	keys          KeyMap
}

func NewApp(session Session, opts Options) *App {
	if opts.Mode == "" {
		opts.Mode = "local"
	}
	return &App{
		session: session,
		chat:    NewChat(),
		status:  NewStatus(opts.Mode),
		input:   NewInput(opts.CharLimit),
		keys:    DefaultKeyMap,
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.input.Init(), a.waitForReply())
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, a.keys.Quit):
			a.session.Close()
			return a, tea.Quit
		case key.Matches(msg, a.keys.Send):
			return a, a.submit()
		case key.Matches(msg, a.keys.PageUp), key.Matches(msg, a.keys.PageDown):
			var cmd tea.Cmd
			a.chat, cmd = a.chat.Update(msg)
			return a, cmd
		}
		if a.status.ended {
			return a, nil
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		return a, nil

	case replyMsg:
		a.chat.AddMessage(RoleDoctor, string(msg))
		return a, a.waitForReply()

	case endedMsg:
		a.status.ended = true
		a.input.Disable()
		a.chat.AddMessage(RoleNotice, "The session has ended.")
		return a, nil

	case errMsg:
		a.status.err = msg.err
		a.chat.AddMessage(RoleError, msg.err.Error())
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// submit sends the typed line. Blank lines are not sent.
func (a *App) submit() tea.Cmd {
	text := strings.TrimSpace(a.input.Value())
	if text == "" || a.status.ended {
		return nil
	}
	a.input.Reset()
	a.chat.AddMessage(RoleUser, text)
	a.status.turns++

	session := a.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := session.Send(ctx, text); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

// waitForReply blocks on the next doctor line.
func (a *App) waitForReply() tea.Cmd {
	replies := a.session.Replies()
	return func() tea.Msg {
		text, ok := <-replies
		if !ok {
			return endedMsg{}
		}
		return replyMsg(text)
	}
}

func (a *App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Initializing..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		a.status.View(a.width),
		a.chat.View(),
		a.input.View(a.width),
	)
}

func (a *App) resize() {
	statusHeight := lipgloss.Height(a.status.View(a.width))
	inputHeight := lipgloss.Height(a.input.View(a.width))
	a.chat.SetSize(a.width, a.height-statusHeight-inputHeight)
}

// Transcript returns the conversation shown so far.
func (a *App) Transcript() []Message {
	return a.chat.Messages()
}

// Run starts the program on the terminal and blocks until the user quits.
func Run(session Session, opts Options) error {
	p := tea.NewProgram(NewApp(session, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
