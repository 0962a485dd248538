package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type Input struct {
	textinput textinput.Model
}

func NewInput(charLimit int) *Input {
	ti := textinput.New()
	ti.Placeholder = "Tell the doctor what's on your mind..."
	ti.Prompt = "> "
	if charLimit > 0 {
		ti.CharLimit = charLimit
	}
	ti.Focus()
	return &Input{textinput: ti}
}

func (i *Input) Init() tea.Cmd {
	return textinput.Blink
}

func (i *Input) Update(msg tea.Msg) (*Input, tea.Cmd) {
	var cmd tea.Cmd
	i.textinput, cmd = i.textinput.Update(msg)
	return i, cmd
}

func (i *Input) View(width int) string {
	i.textinput.Width = max(width-6, 1)
	return InputBarStyle.Width(width - 2).Render(i.textinput.View())
}

func (i *Input) Value() string {
	return i.textinput.Value()
}

func (i *Input) Reset() {
	i.textinput.Reset()
}

// Disable stops accepting keystrokes once the conversation is over.
func (i *Input) Disable() {
	i.textinput.Blur()
	i.textinput.Placeholder = "The session has ended."
}
