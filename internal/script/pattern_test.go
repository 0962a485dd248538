package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern("* I @desire *")
	require.NoError(t, err)

	assert.Equal(t, 3, p.Captures())
	assert.False(t, p.MatchesAnything())
	require.Len(t, p.Segments, 4)
	assert.Equal(t, Segment{Kind: SegmentWildcard}, p.Segments[0])
	assert.Equal(t, Segment{Kind: SegmentLiteral, Text: "i"}, p.Segments[1])
	assert.Equal(t, Segment{Kind: SegmentSynonym, Text: "desire"}, p.Segments[2])
	assert.Equal(t, Segment{Kind: SegmentWildcard}, p.Segments[3])
}

func TestParsePattern_CatchAll(t *testing.T) {
	p, err := ParsePattern("  *  ")
	require.NoError(t, err)
	assert.True(t, p.MatchesAnything())
	assert.Equal(t, 1, p.Captures())
}

func TestParsePattern_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"bare at", "* @ *"},
		{"embedded wildcard", "i want*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePattern(tt.src)
			assert.Error(t, err)
		})
	}
}

func TestParseTemplate(t *testing.T) {
	tmpl, err := ParseTemplate("Why do you want {3}?")
	require.NoError(t, err)

	assert.False(t, tmpl.IsGoto())
	assert.Equal(t, 3, tmpl.MaxRef())
	assert.Equal(t, []TemplatePart{
		{Text: "Why do you want "},
		{Ref: 3},
		{Text: "?"},
	}, tmpl.Parts)
}

func TestParseTemplate_Plain(t *testing.T) {
	tmpl, err := ParseTemplate("Please go on.")
	require.NoError(t, err)
	assert.Equal(t, 0, tmpl.MaxRef())
	assert.Equal(t, []TemplatePart{{Text: "Please go on."}}, tmpl.Parts)
}

func TestParseTemplate_Goto(t *testing.T) {
	tmpl, err := ParseTemplate("GOTO What")
	require.NoError(t, err)
	assert.True(t, tmpl.IsGoto())
	assert.Equal(t, "what", tmpl.Goto)
	assert.Empty(t, tmpl.Parts)
}

func TestParseTemplate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"goto without target", "goto "},
		{"goto with two targets", "goto what why"},
		{"unterminated", "Tell me about {2"},
		{"stray close", "Tell me} about it"},
		{"zero index", "About {0}?"},
		{"not a number", "About {x}?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate(tt.src)
			assert.Error(t, err)
		})
	}
}
