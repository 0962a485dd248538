package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/doctor/internal/bus"
	"github.com/normanking/doctor/internal/eliza"
	"github.com/normanking/doctor/internal/logging"
)

const (
	inboxSize  = 16
	outboxSize = 32
)

// SessionOptions shapes one WebSocket conversation.
type SessionOptions struct {
	MaxMessageBytes int64
	WriteWait       time.Duration
	PongWait        time.Duration
	Intro           []string
	Separator       string
}

func (o SessionOptions) pingPeriod() time.Duration {
	return o.PongWait * 9 / 10
}

type frame struct {
	text      string
	close     bool
	closeCode int
}

// Session bridges one WebSocket connection to one eliza.Engine.
//
// Three goroutines cooperate: readPump queues inbound text in arrival order,
// converse is the only consumer and runs turns one at a time, and writePump
// owns every write to the connection.
type Session struct {
	id      string
	remote  string
	created time.Time
	conn    *websocket.Conn
	engine  *eliza.Engine
	bus     *bus.Bus
	opts    SessionOptions
	log     zerolog.Logger

	inbox    chan string
	outbox   chan frame
	finished chan struct{}

	turns atomic.Int64
	state atomic.Int32
}

// SessionInfo is the public view of a live session.
type SessionInfo struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	State      string    `json:"state"`
	Turns      int       `json:"turns"`
	CreatedAt  time.Time `json:"created_at"`
}

func newSession(id, remote string, conn *websocket.Conn, engine *eliza.Engine, b *bus.Bus, opts SessionOptions) *Session {
	s := &Session{
		id:       id,
		remote:   remote,
		created:  time.Now().UTC(),
		conn:     conn,
		engine:   engine,
		bus:      b,
		opts:     opts,
		log:      logging.WithComponent("session").With().Str("session_id", id).Logger(),
		inbox:    make(chan string, inboxSize),
		outbox:   make(chan frame, outboxSize),
		finished: make(chan struct{}),
	}
	s.state.Store(int32(engine.State()))
	return s
}

func (s *Session) ID() string { return s.id }

// Info snapshots the session for the sessions API.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:         s.id,
		RemoteAddr: s.remote,
		State:      eliza.State(s.state.Load()).String(),
		Turns:      int(s.turns.Load()),
		CreatedAt:  s.created,
	}
}

// run serves the connection until the client leaves, the conversation ends
// or ctx is cancelled. The engine is closed before run returns.
func (s *Session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opened := bus.NewEvent(bus.EventSessionOpened, s.id)
	opened.RemoteAddr = s.remote
	s.publish(opened)
	s.log.Info().Str("remote_addr", s.remote).Msg("session opened")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writePump(ctx)
	}()
	go func() {
		defer wg.Done()
		defer close(s.finished)
		s.converse(ctx)
	}()

	reason := s.readPump(ctx)
	cancel()
	wg.Wait()
	s.conn.Close()

	closed := bus.NewEvent(bus.EventSessionClosed, s.id)
	closed.Turn = int(s.turns.Load())
	closed.Reason = reason
	s.publish(closed)
	s.log.Info().Int("turns", closed.Turn).Str("reason", reason).Msg("session closed")
}

// readPump queues text frames and returns why reading stopped.
func (s *Session) readPump(ctx context.Context) string {
	s.conn.SetReadLimit(s.opts.MaxMessageBytes)
	s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
		return nil
	})

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			return s.disconnectReason(ctx, err)
		}
		s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
		if kind != websocket.TextMessage {
			s.log.Debug().Int("frame_type", kind).Msg("ignoring non-text frame")
			continue
		}

		select {
		case s.inbox <- string(data):
		case <-s.finished:
			// conversation over; drain until the close handshake completes
		case <-ctx.Done():
			return "cancelled"
		}
	}
}

func (s *Session) disconnectReason(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return "cancelled"
	case websocket.IsCloseError(err, websocket.CloseNormalClosure):
		return "closed"
	case websocket.IsCloseError(err, websocket.CloseGoingAway):
		return "client left"
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn().Int64("limit", s.opts.MaxMessageBytes).Msg("message too large")
		return "message too large"
	default:
		s.log.Debug().Err(err).Msg("transport disconnect")
		return "disconnected"
	}
}

// converse greets, then answers queued utterances strictly in order.
func (s *Session) converse(ctx context.Context) {
	defer func() {
		s.engine.Close()
		s.state.Store(int32(s.engine.State()))
	}()

	greeting := s.engine.Greet()
	s.state.Store(int32(s.engine.State()))
	s.announce(0, greeting, eliza.Reply{Text: greeting}, 0)
	s.send(ctx, greeting)
	for _, line := range s.opts.Intro {
		s.send(ctx, line)
	}
	s.sendSeparator(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case text := <-s.inbox:
			if s.turn(ctx, text) {
				return
			}
		}
	}
}

// turn answers one utterance and reports whether the conversation is over.
func (s *Session) turn(ctx context.Context, text string) bool {
	start := time.Now()
	reply, err := s.engine.Turn(text)
	latency := time.Since(start)

	s.turns.Store(int64(s.engine.Turns()))
	s.state.Store(int32(s.engine.State()))

	in := bus.NewEvent(bus.EventMessageIn, s.id)
	in.Turn = s.engine.Turns()
	in.Content = text
	s.publish(in)

	if err != nil {
		s.log.Debug().Err(err).Msg("turn rejected")
		return true
	}

	if reply.Recovered != nil {
		ev := bus.NewEvent(bus.EventSynthesisError, s.id)
		ev.Turn = s.engine.Turns()
		ev.Reason = reply.Recovered.Error()
		var se *eliza.SynthesisError
		if errors.As(reply.Recovered, &se) {
			ev.Keyword = se.Keyword
		}
		s.publish(ev)
	}

	s.announce(s.engine.Turns(), reply.Text, reply, latency)
	s.send(ctx, reply.Text)
	if reply.Final {
		s.enqueue(ctx, frame{close: true, closeCode: websocket.CloseNormalClosure, text: "goodbye"})
		return true
	}
	s.sendSeparator(ctx)
	return false
}

func (s *Session) announce(turn int, text string, reply eliza.Reply, latency time.Duration) {
	out := bus.NewEvent(bus.EventMessageOut, s.id)
	out.Turn = turn
	out.Content = text
	out.Keyword = reply.Keyword
	out.Final = reply.Final
	out.Latency = latency
	if turn > 0 {
		out.Source = reply.Source.String()
	}
	s.publish(out)
}

func (s *Session) send(ctx context.Context, text string) {
	s.enqueue(ctx, frame{text: text})
}

func (s *Session) sendSeparator(ctx context.Context) {
	if s.opts.Separator != "" {
		s.send(ctx, s.opts.Separator)
	}
}

func (s *Session) enqueue(ctx context.Context, f frame) {
	select {
	case s.outbox <- f:
	case <-ctx.Done():
	}
}

// writePump owns all writes: queued frames, pings and the close frame.
func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(s.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case f := <-s.outbox:
			s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if f.close {
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(f.closeCode, f.text))
				// give the client a moment to answer the close frame
				select {
				case <-ctx.Done():
				case <-time.After(s.opts.WriteWait):
				}
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(f.text)); err != nil {
				s.log.Debug().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
				time.Now().Add(s.opts.WriteWait))
			return
		}
	}
}

func (s *Session) publish(e bus.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(e); err != nil {
		s.log.Debug().Err(err).Str("event", string(e.Type)).Msg("event not published")
	}
}
