package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/doctor/internal/config"
	"github.com/normanking/doctor/internal/script"
	"github.com/normanking/doctor/internal/server"
)

func startDoctor(t *testing.T) string {
	t.Helper()
	s, err := script.Doctor()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Server.WriteWait = 2 * time.Second
	srv := server.New(cfg, s, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + cfg.Server.Path
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClient_Conversation(t *testing.T) {
	url := startDoctor(t)
	ctx := testContext(t)

	c, err := Dial(ctx, url, DefaultOptions())
	require.NoError(t, err)
	defer c.Close()

	greeting, err := c.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "The doctor is in.", greeting)

	reply, err := c.Ask(ctx, "My dog hates me.")
	require.NoError(t, err)
	assert.Equal(t, "Your dog hates you?", reply)

	reply, err = c.Ask(ctx, "goodbye")
	require.NoError(t, err)
	assert.Equal(t, "Alright then, goodbye!", reply)

	_, err = c.Receive(ctx)
	require.ErrorIs(t, err, ErrClosed)
	assert.True(t, IsNormalClose(err), "got %v", err)
	assert.True(t, IsNormalClose(c.Err()))

	select {
	case <-c.Done():
	case <-ctx.Done():
		t.Fatal("connection did not end")
	}
	assert.ErrorIs(t, c.Send(ctx, "hello?"), ErrClosed)
}

func TestClient_MessagesChannel(t *testing.T) {
	url := startDoctor(t)
	ctx := testContext(t)

	c, err := Dial(ctx, url, DefaultOptions())
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "The doctor is in.", <-c.Messages())
	require.NoError(t, c.Send(ctx, "sorry"))
	require.NoError(t, c.Send(ctx, "sorry"))
	assert.Equal(t, "Please don't apologize.", <-c.Messages())
	assert.Equal(t, "Apologies are not necessary.", <-c.Messages())
}

func TestClient_DialFailure(t *testing.T) {
	ctx := testContext(t)

	_, err := Dial(ctx, "ws://127.0.0.1:1/eliza", Options{
		MaxRetries:        2,
		InitialRetryDelay: 10 * time.Millisecond,
		HandshakeTimeout:  time.Second,
	})
	require.Error(t, err)

	var ce *ConnectionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2, ce.Attempts)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}

func TestClient_DialCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1/eliza", Options{MaxRetries: 3, InitialRetryDelay: time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_SendTooLarge(t *testing.T) {
	url := startDoctor(t)
	ctx := testContext(t)

	opts := DefaultOptions()
	opts.MaxMessageBytes = 8
	c, err := Dial(ctx, url, opts)
	require.NoError(t, err)
	defer c.Close()

	err = c.Send(ctx, "this is far too long")
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestClient_ReceiveHonoursContext(t *testing.T) {
	url := startDoctor(t)
	ctx := testContext(t)

	c, err := Dial(ctx, url, DefaultOptions())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Receive(ctx)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = c.Receive(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	url := startDoctor(t)
	ctx := testContext(t)

	c, err := Dial(ctx, url, DefaultOptions())
	require.NoError(t, err)

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Send(ctx, "anyone?"), ErrClosed)
}
