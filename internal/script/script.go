// Package script holds the ELIZA rule database: keywords, decomposition
// patterns, reassembly templates, and the word tables (contractions,
// reflections, synonyms) the engine consults while answering.
//
// A Script is immutable once Parse returns. Every accessor is read-only, so a
// single Script is shared by all sessions without locking.
package script

import (
	"sort"
	"strings"
)

// Decomposition pairs a pattern with the templates used when it matches.
type Decomposition struct {
	Pattern   Pattern
	Templates []Template
}

// Rule is the set of decompositions triggered by one keyword.
type Rule struct {
	Keyword        string
	Rank           int
	Fallback       bool
	Decompositions []Decomposition

	// Memory decompositions build entries for the session memory stack when
	// this rule answers a turn.
	Memory []Decomposition
}

// Remembers reports whether the rule feeds the memory stack.
func (r *Rule) Remembers() bool {
	return len(r.Memory) > 0
}

// Script is a validated, read-only rule database.
type Script struct {
	greeting   string
	farewell   string
	memorySize int

	quit         map[string]struct{}
	contractions map[string][]string
	reflections  map[string]string
	reflectWidth int
	synonyms     map[string]map[string]struct{}

	rules     []*Rule
	byKeyword map[string]*Rule
	fallback  *Rule
}

// Greeting is sent once when a session opens.
func (s *Script) Greeting() string { return s.greeting }

// Farewell answers a quit phrase.
func (s *Script) Farewell() string { return s.farewell }

// MemorySize is the default memory stack capacity.
func (s *Script) MemorySize() int { return s.memorySize }

// Fallback returns the rule used when no keyword matches.
func (s *Script) Fallback() *Rule { return s.fallback }

// Rules returns the rules in declaration order. The slice must not be modified.
func (s *Script) Rules() []*Rule { return s.rules }

// Rule looks up a rule by keyword.
func (s *Script) Rule(keyword string) (*Rule, bool) {
	r, ok := s.byKeyword[strings.ToLower(keyword)]
	return r, ok
}

// Candidates returns the rules whose keyword occurs in tokens, highest rank
// first. Equal ranks keep the order of first occurrence in the input.
func (s *Script) Candidates(tokens []string) []*Rule {
	var out []*Rule
	seen := make(map[*Rule]struct{})
	for _, tok := range tokens {
		r, ok := s.byKeyword[tok]
		if !ok || r.Fallback {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rank > out[j].Rank
	})
	return out
}

// IsQuit reports whether any token is a quit word.
func (s *Script) IsQuit(tokens []string) bool {
	for _, tok := range tokens {
		if _, ok := s.quit[tok]; ok {
			return true
		}
	}
	return false
}

// Expand returns the canonical words for a contraction such as "don't".
func (s *Script) Expand(word string) ([]string, bool) {
	words, ok := s.contractions[word]
	return words, ok
}

// InSet reports whether word belongs to the named synonym set.
func (s *Script) InSet(set, word string) bool {
	members, ok := s.synonyms[set]
	if !ok {
		return false
	}
	_, ok = members[word]
	return ok
}

// Reflect swaps first and second person in a captured token sequence. Entries
// of the reflection table may span several words ("you are" -> "i am"); the
// longest entry starting at each position wins.
func (s *Script) Reflect(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		consumed := 0
		for width := min(s.reflectWidth, len(tokens)-i); width > 0; width-- {
			key := strings.Join(tokens[i:i+width], " ")
			if repl, ok := s.reflections[key]; ok {
				out = append(out, strings.Fields(repl)...)
				consumed = width
				break
			}
		}
		if consumed == 0 {
			out = append(out, tokens[i])
			consumed = 1
		}
		i += consumed
	}
	return out
}
