package tui

import (
	"context"
	"sync"

	"github.com/normanking/doctor/internal/client"
	"github.com/normanking/doctor/internal/eliza"
)

// Session is a conversation the UI can drive. Replies carries every line the
// doctor says, the greeting first, and is closed when the conversation ends.
type Session interface {
	Send(ctx context.Context, text string) error
	Replies() <-chan string
	Close() error
}

// LocalSession runs an engine in-process.
type LocalSession struct {
	mu      sync.Mutex
	engine  *eliza.Engine
	replies chan string
	ended   bool
}

// NewLocalSession greets immediately; the greeting is the first reply.
func NewLocalSession(engine *eliza.Engine) *LocalSession {
	s := &LocalSession{
		engine:  engine,
		replies: make(chan string, 64),
	}
	s.replies <- engine.Greet()
	return s
}

func (s *LocalSession) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return eliza.ErrTerminated
	}

	reply, err := s.engine.Turn(text)
	if err != nil {
		return err
	}
	select {
	case s.replies <- reply.Text:
	case <-ctx.Done():
		return ctx.Err()
	}
	if reply.Final {
		s.end()
	}
	return nil
}

func (s *LocalSession) Replies() <-chan string { return s.replies }

func (s *LocalSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Close()
	s.end()
	return nil
}

func (s *LocalSession) end() {
	if !s.ended {
		s.ended = true
		close(s.replies)
	}
}

// RemoteSession talks to a doctor server. Frames equal to separator are
// dropped so that servers running with the intro/separator framing display
// cleanly.
type RemoteSession struct {
	client    *client.Client
	replies   chan string
	separator string
}

// NewRemoteSession forwards the client's frames until it disconnects.
func NewRemoteSession(c *client.Client, separator string) *RemoteSession {
	s := &RemoteSession{
		client:    c,
		replies:   make(chan string, 64),
		separator: separator,
	}
	go s.forward()
	return s
}

func (s *RemoteSession) forward() {
	defer close(s.replies)
	for msg := range s.client.Messages() {
		if s.separator != "" && msg == s.separator {
			continue
		}
		s.replies <- msg
	}
}

func (s *RemoteSession) Send(ctx context.Context, text string) error {
	return s.client.Send(ctx, text)
}

func (s *RemoteSession) Replies() <-chan string { return s.replies }

func (s *RemoteSession) Close() error {
	return s.client.Close()
}
