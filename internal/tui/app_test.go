package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/doctor/internal/eliza"
	"github.com/normanking/doctor/internal/script"
)

func newLocalApp(t *testing.T) *App {
	t.Helper()
	s, err := script.Doctor()
	require.NoError(t, err)
	app := NewApp(NewLocalSession(eliza.New(s)), Options{})
	app.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return app
}

// pump delivers the next doctor line to the app.
func pump(t *testing.T, app *App) {
	t.Helper()
	app.Update(app.waitForReply()())
}

func typeLine(t *testing.T, app *App, text string) tea.Cmd {
	t.Helper()
	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

func TestApp_ShowsGreeting(t *testing.T) {
	app := newLocalApp(t)
	pump(t, app)

	require.Len(t, app.Transcript(), 1)
	assert.Equal(t, Message{Role: RoleDoctor, Content: "The doctor is in."}, app.Transcript()[0])
}

func TestApp_Conversation(t *testing.T) {
	app := newLocalApp(t)
	pump(t, app)

	cmd := typeLine(t, app, "My dog hates me.")
	require.NotNil(t, cmd)
	assert.Nil(t, cmd())
	assert.Empty(t, app.input.Value())
	pump(t, app)

	transcript := app.Transcript()
	require.Len(t, transcript, 3)
	assert.Equal(t, Message{Role: RoleUser, Content: "My dog hates me."}, transcript[1])
	assert.Equal(t, Message{Role: RoleDoctor, Content: "Your dog hates you?"}, transcript[2])
	assert.Equal(t, 1, app.status.turns)
	assert.Contains(t, app.View(), "Your dog hates you?")
}

func TestApp_BlankLineIsNotSent(t *testing.T) {
	app := newLocalApp(t)
	pump(t, app)

	cmd := typeLine(t, app, "   ")
	assert.Nil(t, cmd)
	assert.Len(t, app.Transcript(), 1)
}

func TestApp_FarewellEndsSession(t *testing.T) {
	app := newLocalApp(t)
	pump(t, app)

	cmd := typeLine(t, app, "bye")
	require.NotNil(t, cmd)
	assert.Nil(t, cmd())
	pump(t, app) // farewell
	pump(t, app) // channel closed

	assert.True(t, app.status.ended)
	transcript := app.Transcript()
	assert.Equal(t, "Alright then, goodbye!", transcript[len(transcript)-2].Content)
	assert.Equal(t, RoleNotice, transcript[len(transcript)-1].Role)

	assert.Nil(t, typeLine(t, app, "hello?"))
	assert.Contains(t, app.View(), "ended")
}

func TestApp_SendErrorIsShown(t *testing.T) {
	app := newLocalApp(t)
	app.Update(errMsg{errors.New("connection reset")})

	assert.Error(t, app.status.err)
	transcript := app.Transcript()
	require.NotEmpty(t, transcript)
	assert.Equal(t, RoleError, transcript[len(transcript)-1].Role)
}

func TestApp_QuitKey(t *testing.T) {
	app := newLocalApp(t)

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestApp_ViewBeforeResize(t *testing.T) {
	s, err := script.Doctor()
	require.NoError(t, err)
	app := NewApp(NewLocalSession(eliza.New(s)), Options{Mode: "ws://example/eliza"})

	assert.Equal(t, "Initializing...", app.View())
	app.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	assert.Contains(t, app.View(), "ws://example/eliza")
}
