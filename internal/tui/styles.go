package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	Teal     = lipgloss.Color("#0d7377")
	OffWhite = lipgloss.Color("#f8f7f4")
	Muted    = lipgloss.Color("#8a8a8a")
	Alert    = lipgloss.Color("#e06c75")

	// Styles
	StatusBarStyle = lipgloss.NewStyle().
			Background(Teal).
			Foreground(OffWhite).
			Bold(true).
			Padding(0, 1)

	ChatPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Teal).
			Padding(0, 1)

	InputBarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Teal).
			Padding(0, 1)

	UserMessageStyle = lipgloss.NewStyle().
				Foreground(OffWhite).
				Bold(true)

	DoctorMessageStyle = lipgloss.NewStyle().
				Foreground(Teal)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Alert)
)
