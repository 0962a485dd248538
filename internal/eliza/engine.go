// Package eliza implements the conversation engine: tokenizing an utterance,
// choosing a rule from a script.Script, and assembling the reply.
//
// An Engine holds the state of one conversation and is not safe for
// concurrent use. Many engines may share one Script.
package eliza

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/normanking/doctor/internal/script"
)

// State is the lifecycle position of an Engine.
type State int

const (
	StateCreated State = iota
	StateGreeted
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateGreeted:
		return "greeted"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Source says where a reply came from.
type Source int

const (
	SourceRule Source = iota
	SourceMemory
	SourceFallback
	SourceFarewell
)

func (s Source) String() string {
	switch s {
	case SourceRule:
		return "rule"
	case SourceMemory:
		return "memory"
	case SourceFallback:
		return "fallback"
	case SourceFarewell:
		return "farewell"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Reply is the engine's answer to one turn.
type Reply struct {
	Text    string
	Keyword string // rule that produced Text; empty for farewells
	Source  Source

	// Final is set on the farewell. No further turns are accepted.
	Final bool

	// Recovered holds a synthesis defect that was answered with the
	// fallback reply instead.
	Recovered error
}

// Option configures an Engine.
type Option func(*Engine)

// WithSessionID tags the engine and its log lines with id.
func WithSessionID(id string) Option {
	return func(e *Engine) { e.id = id }
}

// WithMemorySize overrides the script's memory capacity when n > 0.
func WithMemorySize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.memorySize = n
		}
	}
}

// WithLogger sets the logger used for synthesis diagnostics. The engine adds
// only session_id to it.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine runs one conversation against a shared, read-only script.
type Engine struct {
	script     *script.Script
	id         string
	memorySize int
	log        zerolog.Logger

	state    State
	turns    int
	memory   *MemoryStack
	rotation map[string]int
}

// New creates an engine in the Created state.
func New(s *script.Script, opts ...Option) *Engine {
	e := &Engine{
		script:     s,
		memorySize: s.MemorySize(),
		log:        log.Logger.With().Str("component", "eliza").Logger(),
		rotation:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.memory = NewMemoryStack(e.memorySize)
	e.log = e.log.With().Str("session_id", e.id).Logger()
	return e
}

func (e *Engine) ID() string { return e.id }

func (e *Engine) State() State { return e.state }

// Turns returns the number of utterances processed, the farewell included.
func (e *Engine) Turns() int { return e.turns }

func (e *Engine) MemoryLen() int { return e.memory.Len() }

// Greet moves a new session to Greeted and returns the opening line.
func (e *Engine) Greet() string {
	if e.state == StateCreated {
		e.state = StateGreeted
	}
	return e.script.Greeting()
}

// Turn answers one utterance. A quit word ends the session with the farewell.
func (e *Engine) Turn(text string) (Reply, error) {
	if e.state == StateTerminated {
		return Reply{}, ErrTerminated
	}
	e.state = StateActive
	e.turns++

	tokens := Tokenize(text, e.script)
	if e.script.IsQuit(tokens) {
		e.terminate()
		return Reply{Text: e.script.Farewell(), Source: SourceFarewell, Final: true}, nil
	}

	reply := e.respond(tokens)
	e.log.Debug().
		Int("turn", e.turns).
		Str("keyword", reply.Keyword).
		Stringer("source", reply.Source).
		Int("memory", e.memory.Len()).
		Msg("turn answered")
	return reply, nil
}

// Close ends the session and drops its memory.
func (e *Engine) Close() {
	e.terminate()
}

func (e *Engine) terminate() {
	e.state = StateTerminated
	e.memory.Reset()
	clear(e.rotation)
}

func (e *Engine) respond(tokens []string) Reply {
	for _, rule := range e.script.Candidates(tokens) {
		reply, err := e.apply(rule, tokens, false)
		if errors.Is(err, ErrNoMatchingRule) {
			continue
		}
		if err != nil {
			e.log.Warn().Err(err).Str("keyword", rule.Keyword).Msg("synthesis failed, answering with fallback")
			reply = e.fallback(tokens)
			reply.Recovered = err
			return reply
		}
		e.maybeRemember(rule, tokens)
		return reply
	}

	if entry, ok := e.memory.PopIfAny(); ok {
		return Reply{Text: entry, Keyword: e.script.Fallback().Keyword, Source: SourceMemory}
	}
	return e.fallback(tokens)
}

// apply answers with rule. A goto is followed once; after that a redirecting
// template is replaced by the first plain template of its decomposition.
func (e *Engine) apply(rule *script.Rule, tokens []string, redirected bool) (Reply, error) {
	idx, caps, ok := Decompose(e.script, rule.Decompositions, tokens)
	if !ok {
		if redirected {
			return e.fallback(tokens), nil
		}
		return Reply{}, ErrNoMatchingRule
	}

	d := rule.Decompositions[idx]
	t := e.next(rotationKey(rule.Keyword, "", idx), d.Templates)
	if t.IsGoto() {
		if !redirected {
			target, ok := e.script.Rule(t.Goto)
			if !ok {
				return e.fallback(tokens), nil
			}
			return e.apply(target, tokens, true)
		}
		if t, ok = firstPlain(d.Templates); !ok {
			return e.fallback(tokens), nil
		}
	}

	text, err := e.assemble(rule.Keyword, t, caps)
	if err != nil {
		return Reply{}, err
	}
	src := SourceRule
	if rule.Fallback {
		src = SourceFallback
	}
	return Reply{Text: text, Keyword: rule.Keyword, Source: src}, nil
}

// fallback answers with the fallback rule's templates. Scripts are validated
// so that these always assemble.
func (e *Engine) fallback(tokens []string) Reply {
	fb := e.script.Fallback()
	reply := Reply{Keyword: fb.Keyword, Source: SourceFallback}

	idx, caps, ok := Decompose(e.script, fb.Decompositions, tokens)
	if !ok {
		reply.Text = fb.Decompositions[0].Templates[0].Source
		return reply
	}
	d := fb.Decompositions[idx]
	t := e.next(rotationKey(fb.Keyword, "", idx), d.Templates)
	text, err := e.assemble(fb.Keyword, t, caps)
	if err != nil {
		e.log.Error().Err(err).Msg("fallback template failed")
		text = t.Source
	}
	reply.Text = text
	return reply
}

// maybeRemember pushes a memory entry when the answering rule declares one
// that matches the input.
func (e *Engine) maybeRemember(rule *script.Rule, tokens []string) {
	if !rule.Remembers() {
		return
	}
	idx, caps, ok := Decompose(e.script, rule.Memory, tokens)
	if !ok {
		return
	}
	t := e.next(rotationKey(rule.Keyword, "m", idx), rule.Memory[idx].Templates)
	text, err := e.assemble(rule.Keyword, t, caps)
	if err != nil {
		e.log.Warn().Err(err).Str("keyword", rule.Keyword).Msg("memory template failed")
		return
	}
	e.memory.Push(text)
}

// next returns the template due for key and advances the rotation.
func (e *Engine) next(key string, templates []script.Template) script.Template {
	i := e.rotation[key] % len(templates)
	e.rotation[key] = i + 1
	return templates[i]
}

// assemble fills placeholders with reflected captures. Template text itself
// is never reflected.
func (e *Engine) assemble(keyword string, t script.Template, caps [][]string) (string, error) {
	var b strings.Builder
	for _, part := range t.Parts {
		if part.Ref == 0 {
			b.WriteString(part.Text)
			continue
		}
		if part.Ref > len(caps) {
			return "", &SynthesisError{
				Keyword:  keyword,
				Template: t.Source,
				Ref:      part.Ref,
				Captures: len(caps),
				Err:      ErrPlaceholderOutOfRange,
			}
		}
		b.WriteString(strings.Join(e.script.Reflect(caps[part.Ref-1]), " "))
	}
	return tidy(b.String()), nil
}

var punctuationSpace = strings.NewReplacer(" ?", "?", " .", ".", " ,", ",", " !", "!")

// tidy collapses the gaps an empty or padded capture leaves behind.
func tidy(s string) string {
	return punctuationSpace.Replace(strings.Join(strings.Fields(s), " "))
}

func firstPlain(templates []script.Template) (script.Template, bool) {
	for _, t := range templates {
		if !t.IsGoto() {
			return t, true
		}
	}
	return script.Template{}, false
}

func rotationKey(keyword, kind string, idx int) string {
	return fmt.Sprintf("%s#%s%d", keyword, kind, idx)
}
