// Package client talks to a doctor server over WebSocket. It is used by the
// connect command and by the terminal UI in remote mode.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/doctor/internal/logging"
)

var (
	// ErrClosed is returned once the connection has ended.
	ErrClosed = errors.New("connection closed")

	// ErrMessageTooLarge is returned by Send for oversized utterances.
	ErrMessageTooLarge = errors.New("message too large")
)

// ConnectionError reports a failure to reach the server.
type ConnectionError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Options configures a Client.
type Options struct {
	MaxRetries        int
	InitialRetryDelay time.Duration
	HandshakeTimeout  time.Duration
	WriteWait         time.Duration
	MaxMessageBytes   int64
}

// DefaultOptions returns the options used by Dial when none are given.
func DefaultOptions() Options {
	return Options{
		MaxRetries:        3,
		InitialRetryDelay: 500 * time.Millisecond,
		HandshakeTimeout:  10 * time.Second,
		WriteWait:         10 * time.Second,
		MaxMessageBytes:   4096,
	}
}

// Client is one conversation with a remote doctor. Send and Receive may be
// called from different goroutines.
type Client struct {
	url  string
	opts Options
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu  sync.Mutex
	messages chan string
	stop     chan struct{}
	done     chan struct{}

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

// Dial connects to url, retrying with exponential backoff.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = DefaultOptions().WriteWait
	}
	dialer := &websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}

	var lastErr error
	delay := opts.InitialRetryDelay
	for attempt := 0; attempt < opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &ConnectionError{URL: url, Attempts: attempt, Err: ctx.Err()}
			}
			delay *= 2
		}

		conn, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			lastErr = err
			continue
		}
		return newClient(url, conn, opts), nil
	}
	return nil, &ConnectionError{URL: url, Attempts: opts.MaxRetries, Err: lastErr}
}

func newClient(url string, conn *websocket.Conn, opts Options) *Client {
	if opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(opts.MaxMessageBytes)
	}
	c := &Client{
		url:      url,
		opts:     opts,
		conn:     conn,
		log:      logging.WithComponent("client").With().Str("url", url).Logger(),
		messages: make(chan string, 16),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// readLoop forwards text frames until the connection ends. The server's
// pings are answered by the default ping handler.
func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.messages)

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			c.setErr(err)
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		select {
		case c.messages <- string(data):
		case <-c.stop:
			c.setErr(ErrClosed)
			return
		}
	}
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Err returns what ended the connection, or nil while it is open. A normal
// close from the server is a *websocket.CloseError with code 1000.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Messages streams server frames in arrival order. The channel closes when the
// connection ends.
func (c *Client) Messages() <-chan string {
	return c.messages
}

// Done is closed when the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Send transmits one utterance.
func (c *Client) Send(ctx context.Context, text string) error {
	if c.opts.MaxMessageBytes > 0 && int64(len(text)) > c.opts.MaxMessageBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrMessageTooLarge, len(text), c.opts.MaxMessageBytes)
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.opts.WriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Receive waits for the next frame. After the connection ends it returns
// ErrClosed wrapping the reason.
func (c *Client) Receive(ctx context.Context) (string, error) {
	select {
	case msg, ok := <-c.messages:
		if !ok {
			return "", c.closedErr()
		}
		return msg, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Client) closedErr() error {
	if err := c.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return ErrClosed
}

// Ask sends text and returns the next frame.
func (c *Client) Ask(ctx context.Context, text string) (string, error) {
	if err := c.Send(ctx, text); err != nil {
		return "", err
	}
	return c.Receive(ctx)
}

// IsNormalClose reports whether err carries a normal closure from the server,
// as sent after the farewell.
func IsNormalClose(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure
}

// Close performs the close handshake and releases the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		werr := c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.opts.WriteWait))
		c.writeMu.Unlock()
		if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			c.log.Debug().Err(werr).Msg("close frame not sent")
		}

		close(c.stop)
		select {
		case <-c.done:
		case <-time.After(time.Second):
		}
		err = c.conn.Close()
		<-c.done
	})
	return err
}
