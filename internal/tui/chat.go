package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type Role string

const (
	RoleUser   Role = "you"
	RoleDoctor Role = "doctor"
	RoleNotice Role = "notice"
	RoleError  Role = "error"
)

type Message struct {
	Role    Role
	Content string
}

type Chat struct {
	viewport viewport.Model
	messages []Message
}

func NewChat() *Chat {
	return &Chat{viewport: viewport.New(0, 0)}
}

func (c *Chat) Init() tea.Cmd {
	return nil
}

func (c *Chat) Update(msg tea.Msg) (*Chat, tea.Cmd) {
	var cmd tea.Cmd
	c.viewport, cmd = c.viewport.Update(msg)
	return c, cmd
}

func (c *Chat) SetSize(width, height int) {
	c.viewport.Width = max(width-4, 1)
	c.viewport.Height = max(height-2, 1)
	c.render()
}

func (c *Chat) View() string {
	return ChatPanelStyle.Render(c.viewport.View())
}

func (c *Chat) AddMessage(role Role, content string) {
	c.messages = append(c.messages, Message{Role: role, Content: content})
	c.render()
}

// Messages returns the transcript so far.
func (c *Chat) Messages() []Message {
	return c.messages
}

func (c *Chat) render() {
	width := c.viewport.Width
	var sb strings.Builder
	for _, msg := range c.messages {
		var style lipgloss.Style
		line := string(msg.Role) + ": " + msg.Content
		switch msg.Role {
		case RoleUser:
			style = UserMessageStyle
		case RoleDoctor:
			style = DoctorMessageStyle
		case RoleError:
			style = ErrorStyle
		default:
			style = NoticeStyle
			line = msg.Content
		}
		if width > 0 {
			style = style.Width(width)
		}
		sb.WriteString(style.Render(line))
		sb.WriteString("\n")
	}
	c.viewport.SetContent(sb.String())
	c.viewport.GotoBottom()
}
