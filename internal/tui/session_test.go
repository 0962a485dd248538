package tui

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/doctor/internal/client"
	"github.com/normanking/doctor/internal/config"
	"github.com/normanking/doctor/internal/eliza"
	"github.com/normanking/doctor/internal/script"
	"github.com/normanking/doctor/internal/server"
)

func next(t *testing.T, ch <-chan string) (string, bool) {
	t.Helper()
	select {
	case msg, ok := <-ch:
		return msg, ok
	case <-time.After(3 * time.Second):
		t.Fatal("no reply")
		return "", false
	}
}

func TestLocalSession(t *testing.T) {
	s, err := script.Doctor()
	require.NoError(t, err)
	sess := NewLocalSession(eliza.New(s))
	ctx := context.Background()

	msg, ok := next(t, sess.Replies())
	require.True(t, ok)
	assert.Equal(t, "The doctor is in.", msg)

	require.NoError(t, sess.Send(ctx, "I need help"))
	msg, _ = next(t, sess.Replies())
	assert.Equal(t, "What would it mean to you if you got help?", msg)

	require.NoError(t, sess.Send(ctx, "quit"))
	msg, _ = next(t, sess.Replies())
	assert.Equal(t, "Alright then, goodbye!", msg)
	_, ok = next(t, sess.Replies())
	assert.False(t, ok)

	assert.ErrorIs(t, sess.Send(ctx, "still there?"), eliza.ErrTerminated)
	assert.NoError(t, sess.Close())
}

func TestLocalSession_Close(t *testing.T) {
	s, err := script.Doctor()
	require.NoError(t, err)
	sess := NewLocalSession(eliza.New(s))

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())

	_, ok := next(t, sess.Replies()) // greeting still buffered
	assert.True(t, ok)
	_, ok = next(t, sess.Replies())
	assert.False(t, ok)
}

func TestRemoteSession_DropsSeparator(t *testing.T) {
	s, err := script.Doctor()
	require.NoError(t, err)
	cfg := config.Default()
	cfg.Server.WriteWait = 2 * time.Second
	cfg.Session.Intro = []string{"What's on your mind?"}
	cfg.Session.Separator = "---"

	srv := server.New(cfg, s, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		ts.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+cfg.Server.Path, client.DefaultOptions())
	require.NoError(t, err)

	sess := NewRemoteSession(c, "---")
	defer sess.Close()

	msg, _ := next(t, sess.Replies())
	assert.Equal(t, "The doctor is in.", msg)
	msg, _ = next(t, sess.Replies())
	assert.Equal(t, "What's on your mind?", msg)

	require.NoError(t, sess.Send(ctx, "you"))
	msg, _ = next(t, sess.Replies())
	assert.Equal(t, "We were discussing you, not me.", msg)

	require.NoError(t, sess.Send(ctx, "bye"))
	msg, _ = next(t, sess.Replies())
	assert.Equal(t, "Alright then, goodbye!", msg)
	_, ok := next(t, sess.Replies())
	assert.False(t, ok)
}
