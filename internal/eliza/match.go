package eliza

import "github.com/normanking/doctor/internal/script"

// SetMatcher answers synonym slot membership. *script.Script implements it.
type SetMatcher interface {
	InSet(set, word string) bool
}

// Match decomposes tokens with p. Wildcards take the shortest run of tokens
// that lets the rest of the pattern match. The returned captures are in
// pattern order; capture n of a template is captures[n-1].
func Match(sets SetMatcher, p script.Pattern, tokens []string) ([][]string, bool) {
	return matchFrom(sets, p.Segments, tokens, make([][]string, 0, p.Captures()))
}

// Decompose tries each decomposition in order and returns the first that
// matches.
func Decompose(sets SetMatcher, decomps []script.Decomposition, tokens []string) (int, [][]string, bool) {
	for i, d := range decomps {
		if caps, ok := Match(sets, d.Pattern, tokens); ok {
			return i, caps, true
		}
	}
	return -1, nil, false
}

func matchFrom(sets SetMatcher, segs []script.Segment, tokens []string, caps [][]string) ([][]string, bool) {
	if len(segs) == 0 {
		return caps, len(tokens) == 0
	}

	seg := segs[0]
	switch seg.Kind {
	case script.SegmentLiteral:
		if len(tokens) == 0 || tokens[0] != seg.Text {
			return nil, false
		}
		return matchFrom(sets, segs[1:], tokens[1:], caps)

	case script.SegmentSynonym:
		if len(tokens) == 0 || !sets.InSet(seg.Text, tokens[0]) {
			return nil, false
		}
		return matchFrom(sets, segs[1:], tokens[1:], capture(caps, tokens[:1]))

	default:
		if len(segs) == 1 {
			return capture(caps, tokens), true
		}
		for n := 0; n <= len(tokens); n++ {
			if out, ok := matchFrom(sets, segs[1:], tokens[n:], capture(caps, tokens[:n])); ok {
				return out, true
			}
		}
		return nil, false
	}
}

// capture appends without sharing caps' backing array between branches.
func capture(caps [][]string, group []string) [][]string {
	return append(caps[:len(caps):len(caps)], group)
}
