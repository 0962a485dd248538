package eliza

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMatchingRule means a candidate rule had no decomposition that fit
	// the input. The engine resolves it by trying the next candidate and
	// finally the fallback rule, so it never leaves the package.
	ErrNoMatchingRule = errors.New("no matching rule")

	// ErrPlaceholderOutOfRange means a template referenced a capture the
	// pattern does not produce.
	ErrPlaceholderOutOfRange = errors.New("placeholder out of range")

	// ErrTerminated is returned by Turn once the session has ended.
	ErrTerminated = errors.New("session terminated")
)

// SynthesisError records a template that could not be assembled.
type SynthesisError struct {
	Keyword  string
	Template string
	Ref      int
	Captures int
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize %q for keyword %q: {%d} with %d captures: %v",
		e.Template, e.Keyword, e.Ref, e.Captures, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}
