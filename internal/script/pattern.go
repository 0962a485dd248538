package script

import (
	"fmt"
	"strconv"
	"strings"
)

// SegmentKind identifies what a pattern segment matches.
type SegmentKind int

const (
	SegmentLiteral  SegmentKind = iota // exactly this token
	SegmentWildcard                    // zero or more tokens, captured
	SegmentSynonym                     // one token from a synonym set, captured
)

// Segment is one element of a decomposition pattern.
type Segment struct {
	Kind SegmentKind
	Text string // literal token or synonym set name
}

// Pattern is a parsed decomposition pattern such as "* i @desire *".
type Pattern struct {
	Source   string
	Segments []Segment
	captures int
}

// Captures returns the number of capture groups the pattern produces.
func (p Pattern) Captures() int {
	return p.captures
}

// MatchesAnything reports whether the pattern is a lone wildcard.
func (p Pattern) MatchesAnything() bool {
	return len(p.Segments) == 1 && p.Segments[0].Kind == SegmentWildcard
}

// ParsePattern parses whitespace separated pattern tokens. "*" is a wildcard,
// "@name" a synonym slot; everything else is a lowercase literal.
func ParsePattern(src string) (Pattern, error) {
	fields := strings.Fields(strings.ToLower(src))
	if len(fields) == 0 {
		return Pattern{}, fmt.Errorf("empty pattern")
	}

	p := Pattern{Source: src, Segments: make([]Segment, 0, len(fields))}
	for _, f := range fields {
		switch {
		case f == "*":
			p.Segments = append(p.Segments, Segment{Kind: SegmentWildcard})
			p.captures++
		case strings.HasPrefix(f, "@"):
			name := f[1:]
			if name == "" {
				return Pattern{}, fmt.Errorf("synonym slot without a set name")
			}
			p.Segments = append(p.Segments, Segment{Kind: SegmentSynonym, Text: name})
			p.captures++
		case strings.Contains(f, "*"):
			return Pattern{}, fmt.Errorf("wildcard must stand alone, got %q", f)
		default:
			p.Segments = append(p.Segments, Segment{Kind: SegmentLiteral, Text: f})
		}
	}
	return p, nil
}

// TemplatePart is either literal text or a reference to a capture group.
type TemplatePart struct {
	Text string
	Ref  int // 1-based capture index; 0 for literal text
}

// Template is a parsed reassembly rule.
type Template struct {
	Source string
	Goto   string // target keyword when the template is a redirect
	Parts  []TemplatePart
}

// IsGoto reports whether the template redirects to another keyword.
func (t Template) IsGoto() bool {
	return t.Goto != ""
}

// MaxRef returns the highest capture index referenced by the template.
func (t Template) MaxRef() int {
	highest := 0
	for _, part := range t.Parts {
		if part.Ref > highest {
			highest = part.Ref
		}
	}
	return highest
}

const gotoPrefix = "goto "

// ParseTemplate parses a reassembly template. "goto <keyword>" produces a
// redirect; otherwise "{n}" marks a placeholder for capture n.
func ParseTemplate(src string) (Template, error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return Template{}, fmt.Errorf("empty template")
	}

	lower := strings.ToLower(trimmed)
	if lower == strings.TrimSpace(gotoPrefix) {
		return Template{}, fmt.Errorf("goto needs exactly one keyword")
	}
	if strings.HasPrefix(lower, gotoPrefix) {
		target := strings.TrimSpace(lower[len(gotoPrefix):])
		if target == "" || strings.ContainsAny(target, " \t") {
			return Template{}, fmt.Errorf("goto needs exactly one keyword, got %q", trimmed)
		}
		return Template{Source: src, Goto: target}, nil
	}

	t := Template{Source: src}
	rest := trimmed
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.IndexByte(rest, '}') >= 0 {
				return Template{}, fmt.Errorf("unbalanced '}' in %q", trimmed)
			}
			t.Parts = append(t.Parts, TemplatePart{Text: rest})
			break
		}
		if open > 0 {
			if strings.IndexByte(rest[:open], '}') >= 0 {
				return Template{}, fmt.Errorf("unbalanced '}' in %q", trimmed)
			}
			t.Parts = append(t.Parts, TemplatePart{Text: rest[:open]})
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return Template{}, fmt.Errorf("unterminated placeholder in %q", trimmed)
		}
		ref, err := strconv.Atoi(rest[open+1 : open+end])
		if err != nil || ref < 1 {
			return Template{}, fmt.Errorf("placeholder %q is not a positive capture index", rest[open:open+end+1])
		}
		t.Parts = append(t.Parts, TemplatePart{Ref: ref})
		rest = rest[open+end+1:]
	}
	return t, nil
}
