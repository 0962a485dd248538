package tui

import "fmt"

type Status struct {
	mode  string // "local" or the server URL
	turns int
	ended bool
	err   error
}

func NewStatus(mode string) *Status {
	return &Status{mode: mode}
}

func (s *Status) View(width int) string {
	state := "in session"
	switch {
	case s.err != nil:
		state = "error"
	case s.ended:
		state = "ended, esc to exit"
	}
	content := fmt.Sprintf("Doctor | %s | turns: %d | %s", s.mode, s.turns, state)
	return StatusBarStyle.Width(width).Render(content)
}
