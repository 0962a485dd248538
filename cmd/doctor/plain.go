package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/normanking/doctor/internal/client"
	"github.com/normanking/doctor/internal/eliza"
	"github.com/normanking/doctor/internal/tui"
)

// runPlain is the line-oriented front end: one utterance per input line,
// one reply per output line. It returns when the conversation ends, the
// input is exhausted or ctx is cancelled.
func runPlain(ctx context.Context, sess tui.Session, in io.Reader, out io.Writer) error {
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for line := range sess.Replies() {
			fmt.Fprintln(out, line)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			sess.Close()
			<-printed
			return nil
		case <-printed:
			return nil
		case line, ok := <-lines:
			if !ok {
				sess.Close()
				<-printed
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := sess.Send(ctx, line); err != nil {
				if errors.Is(err, eliza.ErrTerminated) || errors.Is(err, client.ErrClosed) {
					<-printed
					return nil
				}
				sess.Close()
				return err
			}
		}
	}
}
